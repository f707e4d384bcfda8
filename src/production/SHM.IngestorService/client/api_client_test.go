package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewAPIClient(srv.URL, "shh", 5*time.Second, logger.Nop())
	c.retryDelay = time.Millisecond
	t.Cleanup(c.httpClient.CloseIdleConnections)
	return c
}

func TestDeviceExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer shh", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/internal/devices/3/exists":
			_, _ = w.Write([]byte(`{"exists":true}`))
		default:
			_, _ = w.Write([]byte(`{"exists":false}`))
		}
	})

	ok, err := c.DeviceExists(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeviceExists(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateUsagePostsRecord(t *testing.T) {
	var got shmmodels.DeviceUsageCreate
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/device_usages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"id":17}`))
	})

	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	id, err := c.CreateUsage(context.Background(), shmmodels.DeviceUsageCreate{UserID: 1, DeviceID: 2, StartTime: start})
	require.NoError(t, err)
	assert.EqualValues(t, 17, id)
	assert.EqualValues(t, 2, got.DeviceID)
	assert.True(t, start.Equal(got.StartTime))
}

func TestRejectedRecordIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"error":"referenced row does not exist"}`))
	})

	_, err := c.CreateEvent(context.Background(), shmmodels.SecurityEventCreate{UserID: 1, DeviceID: 9, EventType: "smoke"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, "closed", c.BreakerStatus()["state"])
}

func TestTransientFailureIsRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"id":1}`))
	})

	id, err := c.CreateEvent(context.Background(), shmmodels.SecurityEventCreate{UserID: 1, DeviceID: 1, EventType: "door"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)
	assert.EqualValues(t, 3, hits.Load())
}

func TestRetriesStopAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.CreateUsage(context.Background(), shmmodels.DeviceUsageCreate{UserID: 1, DeviceID: 1})
	require.ErrorContains(t, err, "operation failed after 4 attempts")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.False(t, IsPermanent(err))
	assert.EqualValues(t, 4, hits.Load())
}

func TestBackOffDoublesWithoutJitter(t *testing.T) {
	c := NewAPIClient("http://127.0.0.1:1", "", time.Second, logger.Nop())
	b := c.newBackOff()
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.DeviceExists(context.Background(), 1)
	require.Error(t, err)
	_, err = c.DeviceExists(context.Background(), 1)
	require.ErrorIs(t, err, ErrBreakerOpen)

	assert.EqualValues(t, 5, hits.Load())
	assert.Equal(t, "open", c.BreakerStatus()["state"])
}

func TestRetryStopsOnCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.CreateUsage(ctx, shmmodels.DeviceUsageCreate{UserID: 1, DeviceID: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/live" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	assert.NoError(t, c.Health(context.Background()))
}
