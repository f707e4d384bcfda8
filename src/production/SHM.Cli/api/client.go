// Package api is the HTTP client the shm command uses to reach the API service.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	api_models "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models/api"
)

// Row is one decoded JSON object from a list or query result.
type Row = map[string]interface{}

// HTTPError is a non-2xx reply. Message is the "error" field when present.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Report is the result of an /analysis call: either a PNG, a table, or an error.
type Report struct {
	PNG   []byte
	Data  []Row
	Error string
}

// SQLResult mirrors the /api/sql_query reply.
type SQLResult struct {
	Success bool     `json:"success"`
	Data    []Row    `json:"data"`
	Columns []string `json:"columns"`
	Error   string   `json:"error"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// List fetches one page of a collection such as "users".
func (c *Client) List(ctx context.Context, collection string, skip, limit int) ([]Row, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var rows []Row
	if err := c.doJSON(ctx, http.MethodGet, "/"+collection+"/?"+q.Encode(), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Create posts a new record and returns the stored row.
func (c *Client) Create(ctx context.Context, collection string, payload map[string]interface{}) (Row, error) {
	var row Row
	if err := c.doJSON(ctx, http.MethodPost, "/"+collection+"/", payload, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Analysis runs a named report.
func (c *Client) Analysis(ctx context.Context, name, month string) (*Report, error) {
	path := "/analysis/" + url.PathEscape(name)
	if month != "" {
		path += "?month=" + url.QueryEscape(month)
	}

	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "image/png") {
		return &Report{PNG: body}, nil
	}

	var reply struct {
		Data  []Row  `json:"data"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &Report{Data: reply.Data, Error: reply.Error}, nil
}

// Ask sends a conversation to the assistant.
func (c *Client) Ask(ctx context.Context, req shmmodels.NLPRequest) (shmmodels.Envelope, error) {
	var env shmmodels.Envelope
	if err := c.doJSON(ctx, http.MethodPost, "/nlp/", req, &env); err != nil {
		return nil, err
	}
	return env, nil
}

// SQL runs a read-only statement through the query console.
func (c *Client) SQL(ctx context.Context, statement string) (*SQLResult, error) {
	var res SQLResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/sql_query", shmmodels.SQLQueryRequest{SQL: statement}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Schema returns table -> column names for completion.
func (c *Client) Schema(ctx context.Context) (map[string][]string, error) {
	var schema map[string][]string
	if err := c.doJSON(ctx, http.MethodGet, "/api/schema_for_completion", nil, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// Login exchanges operator credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (*api_models.TokenResponse, error) {
	var token api_models.TokenResponse
	req := api_models.LoginRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	_, body, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &HTTPError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	return resp, body, nil
}

func errorMessage(body []byte) string {
	var reply struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &reply); err != nil || reply.Error == "" {
		return strings.TrimSpace(string(body))
	}
	if len(reply.Details) == 0 {
		return reply.Error
	}
	parts := make([]string, len(reply.Details))
	for i, d := range reply.Details {
		parts[i] = d.Field + " (" + d.Rule + ")"
	}
	return reply.Error + ": " + strings.Join(parts, ", ")
}
