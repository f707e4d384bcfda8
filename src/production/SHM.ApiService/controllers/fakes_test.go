package controllers

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	api_models "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models/api"
)

// memRepo is an in-memory CRUDRepository.
type memRepo[In any, Out any] struct {
	mu       sync.Mutex
	items    map[int64]Out
	next     int64
	build    func(id int64, in In) Out
	err      error
	gotSkip  int
	gotLimit int
}

func newMemRepo[In any, Out any](build func(id int64, in In) Out) *memRepo[In, Out] {
	return &memRepo[In, Out]{items: map[int64]Out{}, next: 1, build: build}
}

func (r *memRepo[In, Out]) Create(_ context.Context, in In) (*Out, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	id := r.next
	r.next++
	out := r.build(id, in)
	r.items[id] = out
	return &out, nil
}

func (r *memRepo[In, Out]) Get(_ context.Context, id int64) (*Out, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &out, nil
}

func (r *memRepo[In, Out]) List(_ context.Context, skip, limit int) ([]Out, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gotSkip, r.gotLimit = skip, limit

	ids := make([]int64, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Out
	for i, id := range ids {
		if i < skip || len(out) >= limit {
			continue
		}
		out = append(out, r.items[id])
	}
	return out, nil
}

func (r *memRepo[In, Out]) Upsert(_ context.Context, id int64, in In) (*Out, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := r.build(id, in)
	r.items[id] = out
	if id >= r.next {
		r.next = id + 1
	}
	return &out, nil
}

func (r *memRepo[In, Out]) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	return nil
}

func newUserRepo() *memRepo[shmmodels.UserCreate, shmmodels.UserOut] {
	return newMemRepo(func(id int64, in shmmodels.UserCreate) shmmodels.UserOut {
		return shmmodels.UserOut{
			User:      shmmodels.User{ID: id, Name: in.Name, HouseArea: in.HouseArea},
			Usages:    []shmmodels.DeviceUsage{},
			Events:    []shmmodels.SecurityEvent{},
			Feedbacks: []shmmodels.Feedback{},
		}
	})
}

type fakeDeviceRepo struct {
	*memRepo[shmmodels.DeviceCreate, shmmodels.DeviceOut]
}

func (r fakeDeviceRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := r.Get(ctx, id)
	return err == nil, nil
}

func newDeviceRepo() fakeDeviceRepo {
	return fakeDeviceRepo{newMemRepo(func(id int64, in shmmodels.DeviceCreate) shmmodels.DeviceOut {
		return shmmodels.DeviceOut{Device: shmmodels.Device{ID: id, Name: in.Name, Type: in.Type, RoomID: in.RoomID}}
	})}
}

func newUsageRepo() *memRepo[shmmodels.DeviceUsageCreate, shmmodels.DeviceUsage] {
	return newMemRepo(func(id int64, in shmmodels.DeviceUsageCreate) shmmodels.DeviceUsage {
		return shmmodels.DeviceUsage{ID: id, UserID: in.UserID, DeviceID: in.DeviceID, StartTime: in.StartTime, EndTime: in.EndTime}
	})
}

func newEventRepo() *memRepo[shmmodels.SecurityEventCreate, shmmodels.SecurityEvent] {
	return newMemRepo(func(id int64, in shmmodels.SecurityEventCreate) shmmodels.SecurityEvent {
		return shmmodels.SecurityEvent{ID: id, UserID: in.UserID, DeviceID: in.DeviceID, EventType: in.EventType, Timestamp: in.Timestamp}
	})
}

// fakeAnalytics serves fixed overlap pairs and one-bar counts.
type fakeAnalytics struct {
	overlaps []shmmodels.DeviceOverlap
}

func (f *fakeAnalytics) counts(context.Context) ([]shmmodels.LabeledCount, error) {
	return []shmmodels.LabeledCount{{Label: "Lamp", Value: 2}}, nil
}

func (f *fakeAnalytics) DeviceUsageFrequency(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.counts(ctx)
}
func (f *fakeAnalytics) AreaImpact(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.counts(ctx)
}
func (f *fakeAnalytics) DeviceTypeUsage(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.counts(ctx)
}
func (f *fakeAnalytics) RoomEnergy(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.counts(ctx)
}
func (f *fakeAnalytics) UserActivity(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.counts(ctx)
}
func (f *fakeAnalytics) RoomEventCount(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return nil, nil
}
func (f *fakeAnalytics) DailyDeviceUsage(ctx context.Context, _, _ time.Time) ([]shmmodels.LabeledCount, error) {
	return f.counts(ctx)
}
func (f *fakeAnalytics) DeviceOverlaps(context.Context, time.Time, int) ([]shmmodels.DeviceOverlap, error) {
	return f.overlaps, nil
}
func (f *fakeAnalytics) DeviceNames(context.Context, []int64) (map[int64]string, error) {
	return map[int64]string{}, nil
}

type fakeQueries struct {
	result *shmmodels.ResultSet
	err    error
	tables []shmmodels.TableSchema
	got    []string
}

func (f *fakeQueries) Select(_ context.Context, statement string) (*shmmodels.ResultSet, error) {
	f.got = append(f.got, statement)
	return f.result, f.err
}

func (f *fakeQueries) Exec(context.Context, string) (int64, error) {
	panic("console must never execute writes")
}

func (f *fakeQueries) Schema(context.Context) ([]shmmodels.TableSchema, error) {
	return f.tables, f.err
}

type fakeAssistant struct {
	got       shmmodels.NLPRequest
	requestID string
}

func (f *fakeAssistant) Handle(_ context.Context, req shmmodels.NLPRequest, requestID string) shmmodels.Envelope {
	f.got, f.requestID = req, requestID
	return shmmodels.Envelope{"suggestion": "hi", "error": "no SQL statement identified"}
}

type fakeHealth struct{ status string }

func (f fakeHealth) GetHealthStatus(context.Context) map[string]interface{} {
	return map[string]interface{}{"status": f.status}
}

type fakeIssuer struct{}

func (fakeIssuer) GenerateAccessToken(username string) (*api_models.TokenResponse, error) {
	return &api_models.TokenResponse{AccessToken: "tok-" + username, TokenType: "Bearer", ExpiresAt: 1}, nil
}
