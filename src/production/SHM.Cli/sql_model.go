package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Cli/api"
)

const maxHints = 8

type sqlResultMsg struct {
	res *api.SQLResult
	err error
}

// sqlModel is the read-only SQL console with schema completion.
type sqlModel struct {
	client    *api.Client
	timeout   time.Duration
	completer *sqlCompleter
	input     textinput.Model
	spinner   spinner.Model
	busy      bool
}

// newSQLModel builds the console. completer may be nil when the schema could
// not be fetched.
func newSQLModel(client *api.Client, completer *sqlCompleter, timeout time.Duration) sqlModel {
	ti := textinput.New()
	ti.Prompt = "SQL> "
	ti.Placeholder = "SELECT * FROM users LIMIT 5;"
	ti.ShowSuggestions = completer != nil
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return sqlModel{client: client, timeout: timeout, completer: completer, input: ti, spinner: sp}
}

func (m sqlModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m sqlModel) run(statement string) tea.Cmd {
	client, timeout := m.client, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := client.SQL(ctx, statement)
		return sqlResultMsg{res: res, err: err}
	}
}

func (m sqlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			statement := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.input.SetSuggestions(nil)
			switch {
			case statement == "":
				return m, nil
			case isExit(statement):
				return m, tea.Quit
			}
			m.busy = true
			return m, tea.Batch(tea.Println(dimStyle.Render("SQL> ")+statement), m.run(statement), m.spinner.Tick)
		}

	case sqlResultMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			return m, tea.Println(errorStyle.Render("Request failed: " + msg.err.Error()))
		case !msg.res.Success:
			return m, tea.Println(errorStyle.Render("Query failed: " + msg.res.Error))
		}
		return m, tea.Println(renderTable("SQL query result", msg.res.Columns, msg.res.Data))

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.completer != nil {
		m.input.SetSuggestions(m.completer.Suggestions(m.input.Value()))
	}
	return m, cmd
}

func (m sqlModel) View() string {
	if m.busy {
		return m.spinner.View() + " Running query..."
	}
	view := m.input.View()
	if hints := m.hints(); hints != "" {
		view += "\n" + dimStyle.Render(hints)
	}
	return view
}

// hints lists the first completions for the word being typed.
func (m sqlModel) hints() string {
	if m.completer == nil || m.input.Value() == "" {
		return ""
	}
	words := m.completer.Complete(m.input.Value())
	if len(words) > maxHints {
		words = words[:maxHints]
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("%s (%s)", w, m.completer.Kind(w))
	}
	return strings.Join(parts, "  ")
}
