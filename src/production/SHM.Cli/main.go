// Command shm is the terminal client for the smart home API: entity
// management, reports, the assistant chat and a read-only SQL console.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Cli/api"
)

const defaultAPIURL = "http://127.0.0.1:8000"

var (
	apiURL  string
	token   string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "shm",
	Short:        "Smart home data management and analysis client",
	SilenceUsage: true,
}

func init() {
	_ = godotenv.Load()

	url := os.Getenv("SHM_API_URL")
	if url == "" {
		url = defaultAPIURL
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", url, "API service base URL (env SHM_API_URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("SHM_TOKEN"), "bearer token for protected endpoints (env SHM_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")

	for _, e := range entities {
		rootCmd.AddCommand(newEntityCmd(e))
	}
	rootCmd.AddCommand(analysisCmd, chatCmd, sqlCmd, loginCmd)
}

func newClient() *api.Client {
	return api.New(apiURL, token, timeout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}
