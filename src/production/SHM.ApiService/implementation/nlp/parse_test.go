package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		wantTitle string
		wantSQL   string
		wantOK    bool
	}{
		{
			name:      "titled call",
			answer:    "```json\n{\"tool_name\": \"generate_visualization\", \"tool_input\": {\"title\": \"Usage\", \"sql\": \"SELECT 1;\"}}\n```",
			wantTitle: "Usage",
			wantSQL:   "SELECT 1;",
			wantOK:    true,
		},
		{
			name:      "default title",
			answer:    "here:\n```json {\"tool_name\":\"generate_visualization\",\"tool_input\":{\"sql\":\"SELECT 2;\"}} ```",
			wantTitle: DefaultChartTitle,
			wantSQL:   "SELECT 2;",
			wantOK:    true,
		},
		{name: "other tool", answer: "```json\n{\"tool_name\": \"drop_tables\", \"tool_input\": {\"sql\": \"SELECT 1;\"}}\n```"},
		{name: "empty sql", answer: "```json\n{\"tool_name\": \"generate_visualization\", \"tool_input\": {\"sql\": \"  \"}}\n```"},
		{name: "malformed json", answer: "```json\n{\"tool_name\": generate_visualization}\n```"},
		{name: "no block", answer: "SELECT 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, sql, ok := ParseToolCall(tt.answer)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantSQL, sql)
		})
	}
}

func TestExtractStatement(t *testing.T) {
	tests := []struct {
		answer   string
		wantStmt string
		wantVerb string
		wantOK   bool
	}{
		{answer: "Sure: SELECT name FROM users; and more;", wantStmt: "SELECT name FROM users;", wantVerb: "select", wantOK: true},
		{answer: "update devices set type = 'lamp' where id = 2;", wantStmt: "update devices set type = 'lamp' where id = 2;", wantVerb: "update", wantOK: true},
		{answer: "Delete\nFROM feedbacks WHERE id = 1;", wantStmt: "Delete\nFROM feedbacks WHERE id = 1;", wantVerb: "delete", wantOK: true},
		{answer: "the selection is empty;"},
		{answer: "SELECT without terminator"},
		{answer: "I cannot answer that."},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			stmt, verb, ok := ExtractStatement(tt.answer)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStmt, stmt)
			assert.Equal(t, tt.wantVerb, verb)
		})
	}
}

func TestWantsVisualization(t *testing.T) {
	assert.True(t, WantsVisualization("Show a CHART of usage"))
	assert.True(t, WantsVisualization("设备使用趋势"))
	assert.True(t, WantsVisualization("please visualise rooms"))
	assert.False(t, WantsVisualization("what is alice's id"))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Usage trend by room", Capitalize("usage TREND by Room"))
	assert.Equal(t, "设备趋势", Capitalize("设备趋势"))
	assert.Equal(t, "", Capitalize(""))
}
