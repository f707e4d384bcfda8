package main

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Cli/api"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

func TestAskCarriesHistory(t *testing.T) {
	c := newConversation("qwen")

	req := c.ask("how many devices?")
	assert.Equal(t, "qwen", req.Model)
	require.Len(t, req.Messages, 1)

	c.apply(shmmodels.Envelope{"answer": "four"})
	req = c.ask("and rooms?")
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "and rooms?", req.Messages[1].Content)
}

func TestApplyPrecedence(t *testing.T) {
	data := []interface{}{map[string]interface{}{"room": "Kitchen", "energy": 3.5}}

	tests := []struct {
		name       string
		env        shmmodels.Envelope
		want       outcomeKind
		remembered string
	}{
		{
			name:       "visualize",
			env:        shmmodels.Envelope{"action": "visualize", "title": "Energy", "data": data},
			want:       outcomeChart,
			remembered: "[System observation]: generated a chart titled 'Energy' for the user.",
		},
		{
			name:       "data",
			env:        shmmodels.Envelope{"data": data, "columns": []interface{}{"room", "energy"}, "sql": "SELECT 1"},
			want:       outcomeTable,
			remembered: "[System query result]:\n" + `[{"energy":3.5,"room":"Kitchen"}]`,
		},
		{name: "suggestion", env: shmmodels.Envelope{"suggestion": "try rooms", "answer": "x"}, want: outcomeSuggestion},
		{name: "error", env: shmmodels.Envelope{"error": "bad sql", "raw": "SELEC"}, want: outcomeError},
		{name: "message", env: shmmodels.Envelope{"message": "Executed", "rowcount": 2.0}, want: outcomeMessage},
		{name: "answer", env: shmmodels.Envelope{"answer": "hello"}, want: outcomeAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConversation("deepseek")
			out := c.apply(tt.env)
			assert.Equal(t, tt.want, out.kind)
			if tt.remembered == "" {
				assert.Empty(t, c.messages)
				return
			}
			require.Len(t, c.messages, 1)
			assert.Equal(t, "assistant", c.messages[0].Role)
			assert.Equal(t, tt.remembered, c.messages[0].Content)
		})
	}
}

func TestApplyTexts(t *testing.T) {
	c := newConversation("deepseek")

	out := c.apply(shmmodels.Envelope{"error": "bad sql", "raw": "SELEC"})
	assert.Equal(t, "bad sql\n\nRaw: SELEC", out.text)

	out = c.apply(shmmodels.Envelope{"message": "Executed", "rowcount": 2.0})
	assert.Equal(t, "Executed (2 rows affected)", out.text)

	out = c.apply(shmmodels.Envelope{"action": "visualize", "data": []interface{}{}})
	assert.Equal(t, defaultPlotTitle, out.title)
}

func TestObservationIsTruncated(t *testing.T) {
	c := newConversation("deepseek")
	rows := make([]interface{}, 100)
	for i := range rows {
		rows[i] = map[string]interface{}{"name": strings.Repeat("x", 20)}
	}

	c.apply(shmmodels.Envelope{"data": rows})
	require.Len(t, c.messages, 1)
	assert.True(t, strings.HasSuffix(c.messages[0].Content, "...(truncated)"))
	assert.Len(t, []rune(c.messages[0].Content), len("[System query result]:\n")+observationLimit+len("...(truncated)"))
}

func TestExplainRequest(t *testing.T) {
	c := newConversation("deepseek")
	_, err := c.explainRequest()
	assert.ErrorIs(t, err, errNothingToExplain)

	rows := make([]interface{}, 30)
	for i := range rows {
		rows[i] = map[string]interface{}{"day": "2024-06-01", "n": float64(i)}
	}
	c.ask("usage per day")
	c.apply(shmmodels.Envelope{"data": rows, "columns": []interface{}{"day", "n"}})
	before := len(c.messages)

	req, err := c.explainRequest()
	require.NoError(t, err)
	assert.Equal(t, before, len(c.messages))
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)

	user := req.Messages[1].Content
	require.True(t, strings.HasPrefix(user, "[Analysis context]\nusage per day\n\n[Data table]\n"))
	records, err := csv.NewReader(strings.NewReader(strings.SplitN(user, "[Data table]\n", 2)[1])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, explainRows+1)
	assert.Equal(t, []string{"day", "n"}, records[0])
}

func TestToCSVDerivesColumns(t *testing.T) {
	out, err := toCSV(nil, []api.Row{{"name": "a,b", "id": 1.0}}, 10)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,\"a,b\"\n", out)
}
