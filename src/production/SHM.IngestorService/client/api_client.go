package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// ErrBreakerOpen is returned while the API service is considered down.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// StatusError is a non-2xx reply from the API service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Body)
}

// Permanent reports whether retrying cannot help. 4xx replies mean the
// record itself was rejected.
func (e *StatusError) Permanent() bool {
	return e.Status >= 400 && e.Status < 500
}

// IsPermanent reports whether err is a rejection of the request itself.
func IsPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Permanent()
}

// APIClient handles communication with the API Service
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	apiSecret  string
	breaker    *gobreaker.CircuitBreaker[[]byte]
	maxRetries int
	retryDelay time.Duration
	logger     *logger.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, apiSecret string, timeout time.Duration, log *logger.Logger) *APIClient {
	log = log.WithComponent("api_client")
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		apiSecret:  apiSecret,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "api-service",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A rejected record says nothing about the health of the service.
			IsSuccessful: func(err error) bool {
				return err == nil || IsPermanent(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}),
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     log,
	}
}

// DeviceExistsResponse represents the response from device validation
type DeviceExistsResponse struct {
	Exists bool   `json:"exists"`
	Error  string `json:"error,omitempty"`
}

// CreateRecordResponse represents the response from telemetry record creation
type CreateRecordResponse struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// retryWithBackoff executes operation through the breaker, retrying
// transient failures with exponential backoff. Rejections and an open breaker
// end the retry loop at once.
func (c *APIClient) retryWithBackoff(ctx context.Context, operation func() ([]byte, error)) ([]byte, error) {
	attempt := func() ([]byte, error) {
		body, err := c.breaker.Execute(operation)
		switch {
		case err == nil:
			return body, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrBreakerOpen, err))
		case IsPermanent(err):
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	tries := uint(c.maxRetries + 1)
	body, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Logger.Debug().Err(err).Dur("retry_in", next).Msg("API call failed, retrying")
		}),
	)
	switch {
	case err == nil:
		return body, nil
	case ctx.Err() != nil, errors.Is(err, ErrBreakerOpen), IsPermanent(err):
		return nil, err
	}
	return nil, fmt.Errorf("operation failed after %d attempts: %w", tries, err)
}

// newBackOff doubles retryDelay on every attempt, without jitter.
func (c *APIClient) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.retryDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         8 * c.retryDelay,
	}
	b.Reset()
	return b
}

// DeviceExists checks whether a device is registered
func (c *APIClient) DeviceExists(ctx context.Context, deviceID int64) (bool, error) {
	body, err := c.retryWithBackoff(ctx, func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, "/internal/devices/"+strconv.FormatInt(deviceID, 10)+"/exists", nil)
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate device %d: %w", deviceID, err)
	}

	var response DeviceExistsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != "" {
		return false, fmt.Errorf("API error: %s", response.Error)
	}
	return response.Exists, nil
}

// CreateUsage stores a device usage interval
func (c *APIClient) CreateUsage(ctx context.Context, usage shmmodels.DeviceUsageCreate) (int64, error) {
	return c.create(ctx, "/internal/device_usages", usage)
}

// CreateEvent stores a security event
func (c *APIClient) CreateEvent(ctx context.Context, event shmmodels.SecurityEventCreate) (int64, error) {
	return c.create(ctx, "/internal/security_events", event)
}

func (c *APIClient) create(ctx context.Context, path string, record interface{}) (int64, error) {
	body, err := c.retryWithBackoff(ctx, func() ([]byte, error) {
		return c.do(ctx, http.MethodPost, path, record)
	})
	if err != nil {
		return 0, err
	}

	var response CreateRecordResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if !response.Success {
		return 0, fmt.Errorf("API error: %s", response.Error)
	}
	return response.ID, nil
}

// do makes one HTTP request and returns the body of a 2xx reply
func (c *APIClient) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "shm-ingestor")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// Health checks if the API Service is healthy
func (c *APIClient) Health(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/health/live", nil); err != nil {
		return fmt.Errorf("failed to check API health: %w", err)
	}
	return nil
}

// BreakerStatus reports the breaker state for the health endpoint
func (c *APIClient) BreakerStatus() map[string]interface{} {
	counts := c.breaker.Counts()
	return map[string]interface{}{
		"state":                c.breaker.State().String(),
		"consecutive_failures": counts.ConsecutiveFailures,
		"total_failures":       counts.TotalFailures,
	}
}
