package nlp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// SchemaSource lists the tables the assistant may query.
type SchemaSource interface {
	Schema(ctx context.Context) ([]shmmodels.TableSchema, error)
}

const promptHeader = `You are a professional smart-home data analyst assistant. Follow the rules below strictly and answer the user's request either with one SQL statement or with a tool call, using only the database schema provided.

[Database schema]:
%s

[Guidelines]:
1. Use the conversation history, including earlier query results, to understand the context.
2. Use only the tables and columns listed above. Never guess a column that is not listed.

[Available tools]:
1. generate_visualization: whenever the user asks for analysis, a visualization, a chart, a trend, a distribution, a comparison, a share or a ranking, you MUST call this tool. It takes a "title" for the chart and a "sql" query that produces the data.

   Example:
   - User: show me a chart of device usage frequency
   - You:
   ` + "```json" + `
   {
     "tool_name": "generate_visualization",
     "tool_input": {
       "title": "Device usage frequency",
       "sql": "SELECT d.name, COUNT(u.id) AS usage_count FROM device_usages u JOIN devices d ON u.device_id = d.id GROUP BY d.name ORDER BY usage_count DESC;"
     }
   }
   ` + "```" + `

[Output rules]:
1. When calling the tool, your whole answer must be that JSON code block and nothing else.
2. Only for simple, non-analytical lookups (for example "what is Alice's id?") answer with a plain SQL statement ending with a semicolon.
3. Never produce DROP, TRUNCATE, ALTER or any other destructive statement.
4. If you cannot produce SQL or a tool call, briefly explain why.`

const fallbackPrompt = `You are a professional smart-home data analyst assistant. Turn the user's request into exactly one SQL statement that PostgreSQL can execute directly.
1. Output only the SQL statement, with no explanation, comment or prose.
2. Joins, aggregation, grouping, subqueries, ordering, pattern matching and statistics are all allowed.
3. Produce a single statement and end it with a semicolon.
4. Only SELECT, INSERT, UPDATE and DELETE are allowed. Never produce DROP, TRUNCATE or ALTER.
5. If you cannot produce SQL, briefly explain why.`

// PromptCache builds the schema-aware system prompt once and keeps it for
// the life of the process. A failed build yields the fallback prompt and is
// retried on the next call.
type PromptCache struct {
	mu     sync.Mutex
	source SchemaSource
	prompt string
	log    *logger.Logger
}

func NewPromptCache(source SchemaSource, log *logger.Logger) *PromptCache {
	return &PromptCache{source: source, log: log.WithComponent("nlp_prompt")}
}

// Get returns the cached prompt, building it on first use.
func (p *PromptCache) Get(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prompt != "" {
		return p.prompt
	}

	tables, err := p.source.Schema(ctx)
	if err != nil {
		p.log.WithError(err).Warn("failed to build schema prompt, using fallback")
		return fallbackPrompt
	}

	p.prompt = fmt.Sprintf(promptHeader, FormatSchema(tables))
	p.log.WithField("tables", len(tables)).Info("schema prompt cached")
	return p.prompt
}

// Warm builds the prompt ahead of the first request.
func (p *PromptCache) Warm(ctx context.Context) {
	p.Get(ctx)
}

// FormatSchema renders tables as "-- Table:" / "-- Columns:" line pairs.
func FormatSchema(tables []shmmodels.TableSchema) string {
	blocks := make([]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
		}
		blocks = append(blocks, fmt.Sprintf("-- Table: %s\n-- Columns: %s", t.Name, strings.Join(cols, ", ")))
	}
	return strings.Join(blocks, "\n")
}
