package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "tok", 5*time.Second)
}

func TestListSendsPagingAndToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("skip"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":1,"name":"Kitchen","devices":[]}]`))
	})

	rows, err := c.List(context.Background(), "rooms", 5, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Kitchen", rows[0]["name"])
}

func TestCreateReportsValidationDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"validation failed","details":[{"field":"Name","rule":"required"}]}`))
	})

	_, err := c.Create(context.Background(), "users", map[string]interface{}{})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.Status)
	assert.Equal(t, "validation failed: Name (required)", httpErr.Message)
}

func TestAnalysisImageOrTable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analysis/device_usage_frequency":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG"))
		case "/analysis/daily_device_usage":
			assert.Equal(t, "2024-07", r.URL.Query().Get("month"))
			_, _ = w.Write([]byte(`{"error":"No valid usage data."}`))
		default:
			_, _ = w.Write([]byte(`{"data":[{"device_a":"Lamp","device_b":"TV","total_overlap_minutes":30}]}`))
		}
	})

	report, err := c.Analysis(context.Background(), "device_usage_frequency", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), report.PNG)

	report, err = c.Analysis(context.Background(), "daily_device_usage", "2024-07")
	require.NoError(t, err)
	assert.Equal(t, "No valid usage data.", report.Error)

	report, err = c.Analysis(context.Background(), "user_habits", "")
	require.NoError(t, err)
	require.Len(t, report.Data, 1)
	assert.Equal(t, "Lamp", report.Data[0]["device_a"])
}

func TestAskPostsConversation(t *testing.T) {
	var got shmmodels.NLPRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nlp/", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"sql":"SELECT 1;","data":[{"?column?":1}],"answer":"SELECT 1;"}`))
	})

	env, err := c.Ask(context.Background(), shmmodels.NLPRequest{
		Messages: []shmmodels.ChatMessage{{Role: "user", Content: "one?"}},
		Model:    "qwen",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", env["sql"])
	assert.Equal(t, "qwen", got.Model)
}

func TestSQLAndSchema(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/schema_for_completion" {
			_, _ = w.Write([]byte(`{"users":["id","name"]}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error":"Only SELECT queries are allowed."}`))
	})

	schema, err := c.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema["users"])

	res, err := c.SQL(context.Background(), "delete from users")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Only SELECT queries are allowed.", res.Error)
}
