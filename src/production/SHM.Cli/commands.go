package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Cli/api"
)

// reportNames mirrors the reports served under /analysis.
var reportNames = []string{
	"area_impact",
	"daily_device_usage",
	"device_type_usage",
	"device_usage_frequency",
	"room_energy",
	"room_event_count",
	"user_activity",
	"user_habits",
}

var chatModelNames = []string{"deepseek", "qwen"}

func newEntityCmd(e entity) *cobra.Command {
	cmd := &cobra.Command{
		Use:   e.command,
		Short: e.short,
	}

	var skip, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + e.command,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := newClient().List(cmd.Context(), e.collection, skip, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(e.short, e.columns, rows))
			return nil
		},
	}
	list.Flags().IntVar(&skip, "skip", 0, "rows to skip")
	list.Flags().IntVar(&limit, "limit", 100, "maximum rows to return")

	values := make(map[string]*string, len(e.fields))
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a record in " + e.collection,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := make(map[string]string, len(values))
			for _, f := range e.fields {
				if cmd.Flags().Changed(f.flag()) {
					set[f.name] = *values[f.name]
				}
			}
			payload, err := buildPayload(e.fields, set)
			if err != nil {
				return err
			}
			row, err := newClient().Create(cmd.Context(), e.collection, payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Created %s %v", e.collection, row["id"])))
			fmt.Fprintln(cmd.OutOrStdout(), renderTable("", e.columns, []api.Row{row}))
			return nil
		},
	}
	for _, f := range e.fields {
		usage := f.usage
		if f.required {
			usage += " (required)"
		}
		if f.kind == timeField {
			usage += ", YYYY-MM-DD HH:MM:SS or RFC3339"
		}
		values[f.name] = add.Flags().String(f.flag(), "", usage)
	}

	cmd.AddCommand(list, add)
	return cmd
}

var (
	analysisOutput string
	analysisMonth  string
)

var analysisCmd = &cobra.Command{
	Use:       "analysis <report>",
	Short:     "Run a report; charts are saved as PNG",
	Long:      "Run a report. Available reports: " + strings.Join(reportNames, ", "),
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: reportNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		report, err := newClient().Analysis(cmd.Context(), name, analysisMonth)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case report.PNG != nil:
			path := analysisOutput
			if path == "" {
				path = name + ".png"
			}
			if err := os.WriteFile(path, report.PNG, 0o644); err != nil {
				return fmt.Errorf("failed to save chart: %w", err)
			}
			fmt.Fprintln(out, successStyle.Render("Chart saved to "+path))
		case report.Error != "":
			fmt.Fprintln(out, dimStyle.Render(report.Error))
		default:
			fmt.Fprintln(out, renderTable(name, nil, report.Data))
		}
		return nil
	},
}

var chatModelName string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the smart home assistant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !validChatModel(chatModelName) {
			return fmt.Errorf("unknown model %q, use one of %s", chatModelName, strings.Join(chatModelNames, ", "))
		}
		_, err := tea.NewProgram(newChatModel(newClient(), chatModelName, timeout)).Run()
		return err
	},
}

var sqlCmd = &cobra.Command{
	Use:   "sql",
	Short: "Interactive read-only SQL console with schema completion",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		schema, err := client.Schema(ctx)
		cancel()

		var completer *sqlCompleter
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("Schema unavailable, completion disabled: "+err.Error()))
		} else {
			completer = newSQLCompleter(schema)
		}

		_, err = tea.NewProgram(newSQLModel(client, completer, timeout)).Run()
		return err
	},
}

var (
	loginUser     string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a bearer token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginPassword == "" {
			loginPassword = os.Getenv("SHM_PASSWORD")
		}
		if loginUser == "" || loginPassword == "" {
			return errors.New("--username and --password (or SHM_PASSWORD) are required")
		}

		tok, err := newClient().Login(cmd.Context(), loginUser, loginPassword)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("export SHM_TOKEN=<token> to use it"))
		return nil
	},
}

func init() {
	analysisCmd.Flags().StringVarP(&analysisOutput, "output", "o", "", "PNG output path (default <report>.png)")
	analysisCmd.Flags().StringVar(&analysisMonth, "month", "", "month for daily_device_usage, YYYY-MM")

	chatCmd.Flags().StringVar(&chatModelName, "model", "deepseek", "assistant model: "+strings.Join(chatModelNames, " or "))

	loginCmd.Flags().StringVar(&loginUser, "username", "admin", "account name")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
}

func validChatModel(name string) bool {
	for _, m := range chatModelNames {
		if m == name {
			return true
		}
	}
	return false
}
