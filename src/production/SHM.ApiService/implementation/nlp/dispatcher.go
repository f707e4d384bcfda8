// Package nlp turns assistant replies into executed queries and chart
// instructions.
package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/llm"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/metrics"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

// Dispatch outcomes, also used as transcript kinds.
const (
	KindVisualize  = "visualize"
	KindSelect     = "select"
	KindWrite      = "write"
	KindSQLError   = "sql_error"
	KindSuggestion = "suggestion"
	KindLLMError   = "llm_error"
)

const (
	errMissingQuestion = "missing question content"
	errNoStatement     = "no SQL statement identified"
	transcriptTimeout  = 5 * time.Second
)

// Executor runs statements taken from assistant replies.
type Executor interface {
	Select(ctx context.Context, statement string) (*shmmodels.ResultSet, error)
	Exec(ctx context.Context, statement string) (int64, error)
}

// Dispatcher forwards a conversation to the model and acts on its reply.
type Dispatcher struct {
	completer    llm.Completer
	executor     Executor
	prompts      *PromptCache
	transcripts  interfaces.TranscriptRepository
	defaultModel string
	log          *logger.Logger
	now          func() time.Time
}

// NewDispatcher creates a dispatcher. transcripts may be nil.
func NewDispatcher(
	completer llm.Completer,
	executor Executor,
	prompts *PromptCache,
	transcripts interfaces.TranscriptRepository,
	defaultModel string,
	log *logger.Logger,
) *Dispatcher {
	if defaultModel == "" {
		defaultModel = llm.ProviderDeepSeek
	}
	return &Dispatcher{
		completer:    completer,
		executor:     executor,
		prompts:      prompts,
		transcripts:  transcripts,
		defaultModel: defaultModel,
		log:          log.WithComponent("nlp"),
		now:          time.Now,
	}
}

// Handle answers one assistant request. It never fails: every problem is
// reported inside the returned envelope.
func (d *Dispatcher) Handle(ctx context.Context, req shmmodels.NLPRequest, requestID string) shmmodels.Envelope {
	messages := req.Messages
	if len(messages) == 0 {
		if strings.TrimSpace(req.Question) == "" {
			return shmmodels.Envelope{"error": errMissingQuestion}
		}
		messages = []shmmodels.ChatMessage{{Role: "user", Content: req.Question}}
	}

	model := req.Model
	if model == "" {
		model = d.defaultModel
	}

	final := make([]shmmodels.ChatMessage, 0, len(messages)+1)
	final = append(final, shmmodels.ChatMessage{Role: "system", Content: d.prompts.Get(ctx)})
	final = append(final, messages...)

	question := lastUserQuestion(messages)
	log := d.log.WithRequestID(requestID).WithField("model", model)

	answer, err := d.completer.Complete(ctx, model, final)
	if err != nil {
		log.WithError(err).Warn("model call failed")
		env := shmmodels.Envelope{"error": err.Error()}
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && apiErr.Raw != nil {
			env["raw_result"] = apiErr.Raw
		}
		d.finish(ctx, log, KindLLMError, env, shmmodels.Transcript{
			Model: model, Question: question, Error: err.Error(), RequestID: requestID,
		})
		return env
	}

	kind, env := d.dispatch(ctx, answer, question)
	t := shmmodels.Transcript{Model: model, Question: question, Answer: answer, RequestID: requestID}
	if s, ok := env["sql"].(string); ok {
		t.SQL = s
	}
	if e, ok := env["error"].(string); ok {
		t.Error = e
	}
	d.finish(ctx, log, kind, env, t)
	return env
}

// dispatch applies the reply precedence: tool call, then inline statement,
// then plain suggestion.
func (d *Dispatcher) dispatch(ctx context.Context, answer, question string) (string, shmmodels.Envelope) {
	if title, sql, ok := ParseToolCall(answer); ok {
		rs, err := d.executor.Select(ctx, sql)
		metrics.RecordSQLStatement("tool", err)
		if err != nil {
			return KindSQLError, sqlErrorEnvelope(sql, err, answer)
		}
		return KindVisualize, visualizeEnvelope(rs, title, answer)
	}

	statement, verb, ok := ExtractStatement(answer)
	if !ok {
		return KindSuggestion, shmmodels.Envelope{
			"suggestion": answer,
			"error":      errNoStatement,
			"raw":        answer,
			"answer":     answer,
		}
	}

	if verb == "select" {
		rs, err := d.executor.Select(ctx, statement)
		metrics.RecordSQLStatement(verb, err)
		if err != nil {
			return KindSQLError, sqlErrorEnvelope(statement, err, answer)
		}
		if len(rs.Rows) > 0 && WantsVisualization(question) {
			return KindVisualize, visualizeEnvelope(rs, Capitalize(question), answer)
		}
		return KindSelect, shmmodels.Envelope{
			"sql":     statement,
			"data":    rows(rs),
			"columns": columns(rs),
			"answer":  answer,
		}
	}

	affected, err := d.executor.Exec(ctx, statement)
	metrics.RecordSQLStatement(verb, err)
	if err != nil {
		return KindSQLError, sqlErrorEnvelope(statement, err, answer)
	}
	return KindWrite, shmmodels.Envelope{
		"sql":      statement,
		"rowcount": affected,
		"message":  fmt.Sprintf("%s executed successfully", strings.ToUpper(verb)),
		"answer":   answer,
	}
}

func (d *Dispatcher) finish(ctx context.Context, log *logger.Logger, kind string, env shmmodels.Envelope, t shmmodels.Transcript) {
	metrics.RecordDispatch(kind)
	log.Logger.Info().Str("kind", kind).Msg("assistant request dispatched")

	if d.transcripts == nil {
		return
	}
	t.Kind = kind
	t.CreatedAt = d.now().UTC()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcriptTimeout)
	defer cancel()
	if err := d.transcripts.Save(saveCtx, t); err != nil {
		log.WithError(err).Warn("failed to store transcript")
	}
}

func visualizeEnvelope(rs *shmmodels.ResultSet, title, answer string) shmmodels.Envelope {
	return shmmodels.Envelope{
		"action":  KindVisualize,
		"data":    rows(rs),
		"columns": columns(rs),
		"title":   title,
		"answer":  answer,
	}
}

func sqlErrorEnvelope(statement string, err error, answer string) shmmodels.Envelope {
	return shmmodels.Envelope{
		"sql":    statement,
		"error":  err.Error(),
		"raw":    answer,
		"answer": answer,
	}
}

func rows(rs *shmmodels.ResultSet) []shmmodels.Row {
	if rs == nil || rs.Rows == nil {
		return []shmmodels.Row{}
	}
	return rs.Rows
}

func columns(rs *shmmodels.ResultSet) []string {
	if rs == nil || rs.Columns == nil {
		return []string{}
	}
	return rs.Columns
}

func lastUserQuestion(messages []shmmodels.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
