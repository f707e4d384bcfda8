package nlp

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// VisualizeTool is the only tool the assistant may call.
const VisualizeTool = "generate_visualization"

// DefaultChartTitle is used when a tool call carries no title.
const DefaultChartTitle = "AI Generated Chart"

var (
	toolCallPattern  = regexp.MustCompile("```json\\s*(\\{[\\s\\S]*?\\})\\s*```")
	inlineSQLPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete)\b[\s\S]+?;`)
)

// VisualizationKeywords mark a question that asks for a chart.
var VisualizationKeywords = []string{
	"图表", "可视化", "分析", "趋势", "分布", "对比", "占比", "排行",
	"chart", "visualize", "visualise", "analysis", "trend", "distribution", "comparison", "ranking",
}

type toolCall struct {
	ToolName  string `json:"tool_name"`
	ToolInput struct {
		Title string `json:"title"`
		SQL   string `json:"sql"`
	} `json:"tool_input"`
}

// ParseToolCall extracts a generate_visualization call from a fenced json
// block. ok is false when there is no usable call.
func ParseToolCall(answer string) (title, sql string, ok bool) {
	m := toolCallPattern.FindStringSubmatch(answer)
	if m == nil {
		return "", "", false
	}

	var call toolCall
	if err := json.Unmarshal([]byte(m[1]), &call); err != nil {
		return "", "", false
	}
	if call.ToolName != VisualizeTool || strings.TrimSpace(call.ToolInput.SQL) == "" {
		return "", "", false
	}

	title = call.ToolInput.Title
	if title == "" {
		title = DefaultChartTitle
	}
	return title, call.ToolInput.SQL, true
}

// ExtractStatement finds the first inline statement, shortest match up to a
// semicolon. verb is the lower-cased leading keyword.
func ExtractStatement(answer string) (statement, verb string, ok bool) {
	m := inlineSQLPattern.FindStringSubmatch(answer)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[0]), strings.ToLower(m[1]), true
}

// WantsVisualization reports whether question contains a chart keyword.
func WantsVisualization(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range VisualizationKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Capitalize upper-cases the first character and lower-cases the rest.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
