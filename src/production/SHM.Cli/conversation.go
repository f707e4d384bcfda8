package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Cli/api"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

const (
	observationLimit = 500
	explainRows      = 20
	defaultPlotTitle = "AI analysis result"
)

var errNothingToExplain = errors.New("no data to explain yet, ask a question first")

const explainPrompt = "You are a professional data analyst. Based on the data table and the " +
	"analysis context below, summarise the main conclusions, trends, anomalies and " +
	"recommendations. Answer in concise, professional natural language. Do not output SQL or code."

type outcomeKind int

const (
	outcomeChart outcomeKind = iota
	outcomeTable
	outcomeSuggestion
	outcomeError
	outcomeMessage
	outcomeAnswer
)

// outcome is what the chat shows for one assistant reply.
type outcome struct {
	kind    outcomeKind
	title   string
	text    string
	sql     string
	columns []string
	rows    []api.Row
}

// conversation is the chat memory sent with every question.
type conversation struct {
	model        string
	messages     []shmmodels.ChatMessage
	lastQuestion string
	lastColumns  []string
	lastRows     []api.Row
}

func newConversation(model string) *conversation {
	return &conversation{model: model}
}

func (c *conversation) ask(question string) shmmodels.NLPRequest {
	c.lastQuestion = question
	c.messages = append(c.messages, shmmodels.ChatMessage{Role: "user", Content: question})
	return shmmodels.NLPRequest{Messages: c.messages, Model: c.model}
}

func (c *conversation) remember(content string) {
	c.messages = append(c.messages, shmmodels.ChatMessage{Role: "assistant", Content: content})
}

// apply records the reply in memory and decides how to show it. Charts are
// remembered as an observation; data as a truncated result.
func (c *conversation) apply(env shmmodels.Envelope) outcome {
	sql, _ := env["sql"].(string)
	rows, hasData := envelopeRows(env)
	columns := envelopeColumns(env)

	if action, _ := env["action"].(string); action == "visualize" {
		title, _ := env["title"].(string)
		if title == "" {
			title = defaultPlotTitle
		}
		c.lastColumns, c.lastRows = columns, rows
		c.remember(fmt.Sprintf("[System observation]: generated a chart titled '%s' for the user.", title))
		return outcome{kind: outcomeChart, title: title, sql: sql, columns: columns, rows: rows}
	}

	if hasData {
		c.lastColumns, c.lastRows = columns, rows
		c.remember("[System query result]:\n" + truncate(compactJSON(env["data"]), observationLimit))
		return outcome{kind: outcomeTable, title: "Query result", sql: sql, columns: columns, rows: rows}
	}

	if s, _ := env["suggestion"].(string); s != "" {
		return outcome{kind: outcomeSuggestion, title: "Model suggestion", text: s}
	}

	if e, _ := env["error"].(string); e != "" {
		text := e
		if raw, ok := env["raw"].(string); ok && raw != "" {
			text += "\n\nRaw: " + raw
		}
		return outcome{kind: outcomeError, title: "Error", text: text, sql: sql}
	}

	if msg, _ := env["message"].(string); msg != "" {
		text := msg
		if n, ok := env["rowcount"]; ok {
			text += fmt.Sprintf(" (%s rows affected)", formatCell(n))
		}
		return outcome{kind: outcomeMessage, title: "Done", text: text, sql: sql}
	}

	answer, _ := env["answer"].(string)
	return outcome{kind: outcomeAnswer, title: "AI reply", text: answer}
}

// explainRequest builds a one-off request asking the model to interpret the
// last data set. It does not touch the conversation memory.
func (c *conversation) explainRequest() (shmmodels.NLPRequest, error) {
	if len(c.lastRows) == 0 {
		return shmmodels.NLPRequest{}, errNothingToExplain
	}
	table, err := toCSV(c.lastColumns, c.lastRows, explainRows)
	if err != nil {
		return shmmodels.NLPRequest{}, err
	}
	return shmmodels.NLPRequest{
		Model: c.model,
		Messages: []shmmodels.ChatMessage{
			{Role: "system", Content: explainPrompt},
			{Role: "user", Content: fmt.Sprintf("[Analysis context]\n%s\n\n[Data table]\n%s", c.lastQuestion, table)},
		},
	}, nil
}

func explanation(env shmmodels.Envelope) string {
	for _, key := range []string{"suggestion", "answer"} {
		if s, _ := env[key].(string); s != "" {
			return s
		}
	}
	return "No explanation was returned."
}

func envelopeRows(env shmmodels.Envelope) ([]api.Row, bool) {
	raw, ok := env["data"].([]interface{})
	if !ok {
		return nil, false
	}
	rows := make([]api.Row, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]interface{}); ok {
			rows = append(rows, m)
		}
	}
	return rows, true
}

func envelopeColumns(env shmmodels.Envelope) []string {
	raw, _ := env["columns"].([]interface{})
	cols := make([]string, 0, len(raw))
	for _, c := range raw {
		if s, ok := c.(string); ok {
			cols = append(cols, s)
		}
	}
	return cols
}

// toCSV writes at most limit rows with a header line.
func toCSV(columns []string, rows []api.Row, limit int) (string, error) {
	if len(columns) == 0 {
		columns = columnsOf(rows)
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return "", err
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = formatCell(row[col])
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func compactJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "...(truncated)"
}
