package ingestor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.IngestorService/client"
	config "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Config"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeForwarder struct {
	mu        sync.Mutex
	devices   map[int64]bool
	lookupErr error
	createErr error
	lookups   int
	usages    []shmmodels.DeviceUsageCreate
	events    []shmmodels.SecurityEventCreate
}

func (f *fakeForwarder) DeviceExists(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.devices[id], f.lookupErr
}

func (f *fakeForwarder) CreateUsage(_ context.Context, u shmmodels.DeviceUsageCreate) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.usages = append(f.usages, u)
	return int64(len(f.usages)), nil
}

func (f *fakeForwarder) CreateEvent(_ context.Context, e shmmodels.SecurityEventCreate) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.events = append(f.events, e)
	return int64(len(f.events)), nil
}

func (f *fakeForwarder) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.usages) + len(f.events)
}

type published struct {
	topic   string
	payload errorPayload
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) publish(topic string, payload []byte) error {
	var ep errorPayload
	if err := json.Unmarshal(payload, &ep); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: ep})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

var receivedAt = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func newTestIngestor(fwd Forwarder, size int, window time.Duration) (*Ingestor, *fakePublisher) {
	i := New(&config.IngestorConfig{
		MQTT:  config.MQTTConfig{Topic: "smarthome/#"},
		Batch: config.BatchConfig{Size: size, Window: window},
	}, fwd, logger.Nop())
	pub := &fakePublisher{}
	i.publish = pub.publish
	i.now = func() time.Time { return receivedAt }
	return i, pub
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		topic   string
		user    int64
		device  int64
		kind    shmmodels.TelemetryKind
		wantErr bool
	}{
		{topic: "smarthome/1/2/usage", user: 1, device: 2, kind: shmmodels.TelemetryUsage},
		{topic: "smarthome/10/20/security", user: 10, device: 20, kind: shmmodels.TelemetrySecurity},
		{topic: "smarthome/1/2/temperature", wantErr: true},
		{topic: "smarthome/x/2/usage", wantErr: true},
		{topic: "smarthome/1/0/usage", wantErr: true},
		{topic: "smarthome/1/2", wantErr: true},
		{topic: "sensors/1/2/usage", wantErr: true},
		{topic: "smarthome/1/2/usage/extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			user, device, kind, err := ParseTopic(tt.topic)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTopic)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.user, user)
			assert.Equal(t, tt.device, device)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestDecodeUsage(t *testing.T) {
	msg := shmmodels.TelemetryMessage{UserID: 1, DeviceID: 2, Kind: shmmodels.TelemetryUsage, ReceivedAt: receivedAt}

	usage, err := DecodeUsage(msg)
	require.NoError(t, err)
	assert.Equal(t, receivedAt, usage.StartTime)
	assert.Nil(t, usage.EndTime)

	msg.Payload = []byte(`{"start_time":"2024-06-01T08:00:00Z","end_time":"2024-06-01T09:30:00Z","energy_consumed":1.5,"usage_type":"lighting"}`)
	usage, err = DecodeUsage(msg)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, usage.EndTime.Sub(usage.StartTime))
	assert.Equal(t, 1.5, *usage.EnergyConsumed)
	assert.Equal(t, "lighting", *usage.UsageType)

	for _, bad := range []string{
		`{"start_time":"yesterday"}`,
		`{"start_time":"2024-06-01T09:00:00Z","end_time":"2024-06-01T08:00:00Z"}`,
		`{"energy_consumed":-2}`,
		`not json`,
	} {
		msg.Payload = []byte(bad)
		_, err := DecodeUsage(msg)
		assert.ErrorIs(t, err, ErrInvalidPayload, bad)
	}
}

func TestDecodeEvent(t *testing.T) {
	msg := shmmodels.TelemetryMessage{UserID: 1, DeviceID: 2, Kind: shmmodels.TelemetrySecurity, ReceivedAt: receivedAt}

	msg.Payload = []byte(`{"event_type":"smoke","event_level":"high"}`)
	event, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, "smoke", event.EventType)
	assert.Equal(t, "high", *event.EventLevel)
	assert.Equal(t, receivedAt, event.Timestamp)

	msg.Payload = []byte(`{"event_level":"high"}`)
	_, err = DecodeEvent(msg)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	msg.Payload = nil
	_, err = DecodeEvent(msg)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestStopFlushesQueuedMessages(t *testing.T) {
	fwd := &fakeForwarder{devices: map[int64]bool{2: true}}
	ing, pub := newTestIngestor(fwd, 100, time.Hour)
	ing.startWriter(context.Background())

	ing.enqueue("smarthome/1/2/usage", []byte(`{"start_time":"2024-06-01T08:00:00Z"}`))
	ing.enqueue("smarthome/1/2/security", []byte(`{"event_type":"door_open"}`))
	ing.enqueue("smarthome/1/2/usage", nil)
	ing.Stop()
	ing.Stop()

	require.Len(t, fwd.usages, 2)
	require.Len(t, fwd.events, 1)
	assert.EqualValues(t, 1, fwd.usages[0].UserID)
	assert.Equal(t, receivedAt, fwd.usages[1].StartTime)
	assert.Equal(t, "door_open", fwd.events[0].EventType)
	assert.Equal(t, 1, fwd.lookups, "device lookups are cached per batch")
	assert.Empty(t, pub.all())
}

func TestWindowFlush(t *testing.T) {
	fwd := &fakeForwarder{devices: map[int64]bool{2: true}}
	ing, _ := newTestIngestor(fwd, 100, 10*time.Millisecond)
	ing.startWriter(context.Background())
	defer ing.Stop()

	ing.enqueue("smarthome/1/2/usage", nil)
	assert.Eventually(t, func() bool { return fwd.stored() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSizeFlush(t *testing.T) {
	fwd := &fakeForwarder{devices: map[int64]bool{2: true}}
	ing, _ := newTestIngestor(fwd, 2, time.Hour)
	ing.startWriter(context.Background())
	defer ing.Stop()

	ing.enqueue("smarthome/1/2/usage", nil)
	ing.enqueue("smarthome/1/2/usage", nil)
	assert.Eventually(t, func() bool { return fwd.stored() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCancelDrainsQueue(t *testing.T) {
	fwd := &fakeForwarder{devices: map[int64]bool{2: true}}
	ing, _ := newTestIngestor(fwd, 100, time.Hour)
	ing.enqueue("smarthome/1/2/usage", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ing.startWriter(ctx)
	ing.wg.Wait()

	assert.Equal(t, 1, fwd.stored())
	ing.Stop()
}

func TestEnqueueDropsWhenQueueIsFullOrStopped(t *testing.T) {
	ing, pub := newTestIngestor(&fakeForwarder{}, 100, time.Hour)
	ing.msgCh = make(chan shmmodels.TelemetryMessage, 1)

	ing.enqueue("smarthome/1/2/usage", nil)
	ing.enqueue("smarthome/1/3/usage", nil)

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ingestor/errors/1/3", msgs[0].topic)
	assert.Equal(t, ErrorQueueFull, msgs[0].payload.ErrorType)

	ing.Stop()
	assert.NotPanics(t, func() { ing.enqueue("smarthome/1/4/security", nil) })

	msgs = pub.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ingestor/errors/1/4", msgs[1].topic)
	assert.Equal(t, ErrorQueueFull, msgs[1].payload.ErrorType)
}

func TestErrorsArePublished(t *testing.T) {
	tests := []struct {
		name      string
		topic     string
		payload   string
		fwd       *fakeForwarder
		wantTopic string
		wantType  string
	}{
		{
			name:      "invalid topic",
			topic:     "smarthome/7",
			fwd:       &fakeForwarder{},
			wantTopic: "ingestor/errors/7/unknown",
			wantType:  ErrorInvalidTopic,
		},
		{
			name:      "unknown device",
			topic:     "smarthome/1/5/usage",
			fwd:       &fakeForwarder{devices: map[int64]bool{}},
			wantTopic: "ingestor/errors/1/5",
			wantType:  ErrorDeviceNotFound,
		},
		{
			name:      "lookup failure",
			topic:     "smarthome/1/5/usage",
			fwd:       &fakeForwarder{lookupErr: client.ErrBreakerOpen},
			wantTopic: "ingestor/errors/1/5",
			wantType:  ErrorDeviceLookup,
		},
		{
			name:      "bad payload",
			topic:     "smarthome/1/2/security",
			payload:   `{"location":"hall"}`,
			fwd:       &fakeForwarder{devices: map[int64]bool{2: true}},
			wantTopic: "ingestor/errors/1/2",
			wantType:  ErrorInvalidPayload,
		},
		{
			name:      "rejected by the API",
			topic:     "smarthome/1/2/usage",
			fwd:       &fakeForwarder{devices: map[int64]bool{2: true}, createErr: &client.StatusError{Status: 422, Body: "fk"}},
			wantTopic: "ingestor/errors/1/2",
			wantType:  ErrorRecordRejected,
		},
		{
			name:      "API down",
			topic:     "smarthome/1/2/usage",
			fwd:       &fakeForwarder{devices: map[int64]bool{2: true}, createErr: errors.New("connection refused")},
			wantTopic: "ingestor/errors/1/2",
			wantType:  ErrorRecordNotCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing, pub := newTestIngestor(tt.fwd, 100, time.Hour)
			ing.startWriter(context.Background())
			ing.enqueue(tt.topic, []byte(tt.payload))
			ing.Stop()

			msgs := pub.all()
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantTopic, msgs[0].topic)
			assert.Equal(t, tt.wantType, msgs[0].payload.ErrorType)
			assert.Equal(t, receivedAt, msgs[0].payload.Timestamp)
			assert.Zero(t, tt.fwd.stored())
		})
	}
}

func TestSubscriptionUsesSharedGroup(t *testing.T) {
	ing, _ := newTestIngestor(&fakeForwarder{}, 1, time.Second)
	assert.Equal(t, "smarthome/#", ing.subscription())

	ing.cfg.SharedGroup = "workers"
	assert.Equal(t, "$share/workers/smarthome/#", ing.subscription())
}
