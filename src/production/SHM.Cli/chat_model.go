package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/charts"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Cli/api"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

const plotFile = "nlp_analysis_plot.png"

type replyMsg struct {
	env     shmmodels.Envelope
	err     error
	explain bool
}

// chatModel is the interactive assistant REPL.
type chatModel struct {
	client   *api.Client
	conv     *conversation
	timeout  time.Duration
	plotPath string
	input    textinput.Model
	spinner  spinner.Model
	busy     bool
}

func newChatModel(client *api.Client, model string, timeout time.Duration) chatModel {
	ti := textinput.New()
	ti.Prompt = userStyle.Render("You") + " > "
	ti.Placeholder = "ask about your home, /explain, or exit"
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		client:   client,
		conv:     newConversation(model),
		timeout:  timeout,
		plotPath: plotFile,
		input:    ti,
		spinner:  sp,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tea.Println(dimStyle.Render(fmt.Sprintf("Chatting with %s. The conversation is remembered until you exit.", m.conv.model))),
	)
}

func (m chatModel) send(req shmmodels.NLPRequest, explain bool) tea.Cmd {
	client, timeout := m.client, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		env, err := client.Ask(ctx, req)
		return replyMsg{env: env, err: err, explain: explain}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			switch {
			case text == "":
				return m, nil
			case isExit(text):
				return m, tea.Quit
			case text == "/explain":
				req, err := m.conv.explainRequest()
				if err != nil {
					return m, tea.Println(dimStyle.Render(err.Error()))
				}
				m.busy = true
				return m, tea.Batch(m.send(req, true), m.spinner.Tick)
			}
			req := m.conv.ask(text)
			m.busy = true
			return m, tea.Batch(
				tea.Println(userStyle.Render("You")+" "+text),
				m.send(req, false),
				m.spinner.Tick,
			)
		}

	case replyMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			return m, tea.Println(errorStyle.Render("Request to the assistant failed: " + msg.err.Error()))
		case msg.explain:
			return m, tea.Println(panel("AI data analyst", explanation(msg.env)))
		}
		return m, tea.Println(m.render(m.conv.apply(msg.env)))

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
	return m, cmd
}

func (m chatModel) View() string {
	if m.busy {
		return m.spinner.View() + " The assistant is thinking..."
	}
	return m.input.View()
}

func (m chatModel) render(out outcome) string {
	header := agentStyle.Render("AI Agent")
	if out.sql != "" {
		header += dimStyle.Render(" (SQL: " + out.sql + ")")
	}

	var body string
	switch out.kind {
	case outcomeChart:
		body = m.renderChart(out)
	case outcomeTable:
		body = renderTable(out.title, out.columns, out.rows) + "\n" +
			dimStyle.Render("Result added to the conversation memory. Type /explain for an interpretation.")
	case outcomeError:
		body = panel(errorStyle.Render(out.title), out.text)
	default:
		body = panel(out.title, out.text)
	}
	return header + "\n" + body + "\n"
}

func (m chatModel) renderChart(out outcome) string {
	err := plotRows(m.plotPath, out.title, out.columns, out.rows)
	switch {
	case err == nil:
		return successStyle.Render(fmt.Sprintf("Chart %q saved to %s", out.title, m.plotPath)) + "\n" +
			dimStyle.Render("Type /explain for an interpretation.")
	case errors.Is(err, charts.ErrNotChartable):
		return dimStyle.Render("The data is not suitable for a chart, showing it as a table.") + "\n" +
			renderTable(out.title, out.columns, out.rows)
	default:
		return errorStyle.Render("Failed to draw chart: "+err.Error()) + "\n" +
			renderTable(out.title, out.columns, out.rows)
	}
}

// plotRows draws rows with charts.AutoChart and writes the PNG to path.
func plotRows(path, title string, columns []string, rows []api.Row) error {
	if len(columns) == 0 {
		columns = columnsOf(rows)
	}
	png, err := charts.AutoChart(title, columns, rows)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

func isExit(text string) bool {
	switch strings.ToLower(text) {
	case "exit", "quit":
		return true
	}
	return false
}
