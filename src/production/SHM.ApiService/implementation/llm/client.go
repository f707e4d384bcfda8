// Package llm talks to OpenAI-compatible chat-completion providers.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/metrics"
	config "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Config"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderQwen     = "qwen"
)

var (
	ErrUnknownProvider = errors.New("unsupported model provider")
	ErrMissingAPIKey   = errors.New("API key not configured")
	ErrNoChoices       = errors.New("no completion returned")
	ErrUnavailable     = errors.New("provider temporarily unavailable")
)

// Provider describes one chat-completion endpoint.
type Provider struct {
	Name   string
	URL    string
	Model  string
	APIKey string
	// CheckBodyCode treats a non-empty top-level "code" in a 200 reply as a failure.
	CheckBodyCode bool
}

// APIError is a failed call that reached the provider.
type APIError struct {
	Provider string
	Status   int
	Message  string
	// Raw is the decoded reply body when it was JSON.
	Raw map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API returned an error: %s", e.Provider, e.Message)
}

// Completer produces an assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, provider string, messages []shmmodels.ChatMessage) (string, error)
}

// Client calls providers with a fixed timeout and a circuit breaker each.
type Client struct {
	providers  map[string]Provider
	breakers   map[string]*gobreaker.CircuitBreaker[string]
	httpClient *http.Client
	log        *logger.Logger
}

// Settings tunes the transport and breakers.
type Settings struct {
	Timeout         time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// ProvidersFromConfig returns the built-in providers.
func ProvidersFromConfig(cfg config.LLMConfig) []Provider {
	return []Provider{
		{Name: ProviderDeepSeek, URL: cfg.DeepSeekURL, Model: cfg.DeepSeekModel, APIKey: cfg.DeepSeekAPIKey},
		{Name: ProviderQwen, URL: cfg.QwenURL, Model: cfg.QwenModel, APIKey: cfg.QwenAPIKey, CheckBodyCode: true},
	}
}

// NewClientFromConfig creates a client for the configured providers.
func NewClientFromConfig(cfg config.LLMConfig, log *logger.Logger) *Client {
	return NewClient(ProvidersFromConfig(cfg), Settings{
		Timeout:         cfg.Timeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	}, log)
}

// NewClient creates a client for the given providers.
func NewClient(providers []Provider, s Settings, log *logger.Logger) *Client {
	if s.BreakerFailures <= 0 {
		s.BreakerFailures = 5
	}
	log = log.WithComponent("llm")

	c := &Client{
		providers:  make(map[string]Provider, len(providers)),
		breakers:   make(map[string]*gobreaker.CircuitBreaker[string], len(providers)),
		httpClient: &http.Client{Timeout: s.Timeout},
		log:        log,
	}
	for _, p := range providers {
		c.providers[p.Name] = p
		c.breakers[p.Name] = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:    "llm-" + p.Name,
			Timeout: s.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(s.BreakerFailures)
			},
			IsSuccessful: func(err error) bool {
				return err == nil || callerFault(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		})
	}
	return c
}

// Providers lists the configured provider names.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Complete sends messages to provider and returns choices[0].message.content.
func (c *Client) Complete(ctx context.Context, provider string, messages []shmmodels.ChatMessage) (string, error) {
	p, ok := c.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if p.APIKey == "" {
		return "", fmt.Errorf("%w for model %q", ErrMissingAPIKey, provider)
	}

	start := time.Now()
	answer, err := c.breakers[provider].Execute(func() (string, error) {
		return c.call(ctx, p, messages)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "breaker_open"
			err = fmt.Errorf("%w: %s: %v", ErrUnavailable, provider, err)
		}
		metrics.RecordLLMRequest(provider, outcome, time.Since(start))
		c.log.WithError(err).WithField("provider", provider).Warn("chat completion failed")
		return "", err
	}

	metrics.RecordLLMRequest(provider, "ok", time.Since(start))
	return answer, nil
}

type completionRequest struct {
	Model    string                  `json:"model"`
	Messages []shmmodels.ChatMessage `json:"messages"`
	Stream   bool                    `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Code    interface{} `json:"code"`
	Message string      `json:"message"`
}

func (c *Client) call(ctx context.Context, p Provider, messages []shmmodels.ChatMessage) (string, error) {
	payload, err := json.Marshal(completionRequest{Model: p.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", p.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Provider: p.Name, Status: resp.StatusCode, Message: string(body), Raw: decodeRaw(body)}
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse %s response: %w", p.Name, err)
	}

	if p.CheckBodyCode && codeSet(parsed.Code) {
		msg := parsed.Message
		if msg == "" {
			msg = "no error details"
		}
		return "", &APIError{Provider: p.Name, Status: resp.StatusCode, Message: msg, Raw: decodeRaw(body)}
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.Name, ErrNoChoices)
	}
	return parsed.Choices[0].Message.Content, nil
}

// callerFault reports failures caused by the request rather than the
// provider: a cancelled caller, or a 4xx/body-code rejection other than
// throttling. These do not count toward opening the breaker.
func callerFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusTooManyRequests
}

func codeSet(code interface{}) bool {
	switch v := code.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case float64:
		return v != 0
	case bool:
		return v
	}
	return true
}

func decodeRaw(body []byte) map[string]interface{} {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	return raw
}
