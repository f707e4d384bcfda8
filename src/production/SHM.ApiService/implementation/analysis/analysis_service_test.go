package analysis

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

type fakeAnalytics struct {
	counts   []shmmodels.LabeledCount
	overlaps []shmmodels.DeviceOverlap
	names    map[int64]string
	err      error

	gotNow   time.Time
	gotLimit int
	gotFrom  time.Time
	gotTo    time.Time
}

func (f *fakeAnalytics) labeled(context.Context) ([]shmmodels.LabeledCount, error) {
	return f.counts, f.err
}

func (f *fakeAnalytics) DeviceUsageFrequency(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.labeled(ctx)
}
func (f *fakeAnalytics) AreaImpact(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.labeled(ctx)
}
func (f *fakeAnalytics) DeviceTypeUsage(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.labeled(ctx)
}
func (f *fakeAnalytics) RoomEnergy(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.labeled(ctx)
}
func (f *fakeAnalytics) UserActivity(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.labeled(ctx)
}
func (f *fakeAnalytics) RoomEventCount(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return f.labeled(ctx)
}

func (f *fakeAnalytics) DailyDeviceUsage(ctx context.Context, from, to time.Time) ([]shmmodels.LabeledCount, error) {
	f.gotFrom, f.gotTo = from, to
	return f.labeled(ctx)
}

func (f *fakeAnalytics) DeviceOverlaps(_ context.Context, now time.Time, limit int) ([]shmmodels.DeviceOverlap, error) {
	f.gotNow, f.gotLimit = now, limit
	return f.overlaps, f.err
}

func (f *fakeAnalytics) DeviceNames(_ context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, id := range ids {
		if n, ok := f.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func newService(repo *fakeAnalytics) *Service {
	return NewService(repo, logger.Nop())
}

// chain returns n pairs over devices 1..n+1 with distinct totals.
func chain(n int) []shmmodels.DeviceOverlap {
	pairs := make([]shmmodels.DeviceOverlap, n)
	for i := range pairs {
		pairs[i] = shmmodels.DeviceOverlap{DeviceA: int64(i + 1), DeviceB: int64(i + 2), TotalMinutes: float64(100 - i)}
	}
	return pairs
}

func TestUserHabitsTableAtThreshold(t *testing.T) {
	repo := &fakeAnalytics{
		overlaps: chain(OverlapTableMax),
		names:    map[int64]string{1: "Lamp", 2: "TV"},
	}
	repo.overlaps[0].TotalMinutes = 12.3456

	pinned := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	svc := newService(repo)
	svc.now = func() time.Time { return pinned }

	report, err := svc.UserHabits(context.Background())
	require.NoError(t, err)
	require.False(t, report.IsImage())
	assert.Equal(t, pinned, repo.gotNow)
	assert.Equal(t, OverlapPairLimit, repo.gotLimit)

	rows := report.Body["data"].([]shmmodels.OverlapRow)
	require.Len(t, rows, OverlapTableMax)
	assert.Equal(t, shmmodels.OverlapRow{DeviceA: "Lamp", DeviceB: "TV", TotalMinutes: 12.35}, rows[0])
	assert.Equal(t, "Device 3", rows[1].DeviceB)
}

func TestUserHabitsHeatmapAboveThreshold(t *testing.T) {
	repo := &fakeAnalytics{overlaps: chain(OverlapTableMax + 1)}

	report, err := newService(repo).UserHabits(context.Background())
	require.NoError(t, err)
	require.True(t, report.IsImage())
	assert.True(t, bytes.HasPrefix(report.PNG, pngMagic))
}

func TestUserHabitsErrors(t *testing.T) {
	report, err := newService(&fakeAnalytics{}).UserHabits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no simultaneous device usage found", report.Body["error"])

	report, err = newService(&fakeAnalytics{err: errors.New("connection refused")}).UserHabits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "database query failed: connection refused", report.Body["error"])
}

func TestBuildOverlapMatrix(t *testing.T) {
	ids, matrix := BuildOverlapMatrix([]shmmodels.DeviceOverlap{
		{DeviceA: 3, DeviceB: 9, TotalMinutes: 15},
		{DeviceA: 1, DeviceB: 3, TotalMinutes: 40},
	})

	assert.Equal(t, []int64{1, 3, 9}, ids)
	want := [][]float64{
		{0, 40, 0},
		{40, 0, 15},
		{0, 15, 0},
	}
	if diff := cmp.Diff(want, matrix); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
	for i := range matrix {
		assert.Zero(t, matrix[i][i])
		for j := range matrix {
			assert.Equal(t, matrix[i][j], matrix[j][i])
		}
	}
}

func TestBarReports(t *testing.T) {
	repo := &fakeAnalytics{counts: []shmmodels.LabeledCount{{Label: "Kitchen", Value: 3}, {Label: "Hall", Value: 1}}}
	svc := newService(repo)

	for _, name := range []string{"device_usage_frequency", "area_impact", "device_type_usage", "room_energy", "user_activity", "room_event_count"} {
		t.Run(name, func(t *testing.T) {
			report, err := svc.Run(context.Background(), name, Params{})
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(report.PNG, pngMagic))
		})
	}
}

func TestEmptyBarReportReturnsError(t *testing.T) {
	report, err := newService(&fakeAnalytics{}).Run(context.Background(), "room_energy", Params{})
	require.NoError(t, err)
	assert.False(t, report.IsImage())
	assert.Equal(t, "No energy data.", report.Body["error"])
}

func TestRunPropagatesQueryFailure(t *testing.T) {
	_, err := newService(&fakeAnalytics{err: errors.New("boom")}).Run(context.Background(), "user_activity", Params{})
	assert.Error(t, err)
}

func TestDailyDeviceUsageMonth(t *testing.T) {
	repo := &fakeAnalytics{counts: []shmmodels.LabeledCount{{Label: "2024-06-01", Value: 4}}}
	svc := newService(repo)

	report, err := svc.Run(context.Background(), "daily_device_usage", Params{})
	require.NoError(t, err)
	assert.True(t, report.IsImage())
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), repo.gotFrom)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), repo.gotTo)

	_, err = svc.Run(context.Background(), "daily_device_usage", Params{Month: "2024-13"})
	assert.ErrorIs(t, err, ErrInvalidMonth)

	_, err = svc.Run(context.Background(), "daily_device_usage", Params{Month: "2025-02"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), repo.gotTo)
}

func TestUnknownReport(t *testing.T) {
	_, err := newService(&fakeAnalytics{}).Run(context.Background(), "nope", Params{})
	assert.ErrorIs(t, err, ErrUnknownReport)
}

func TestNames(t *testing.T) {
	names := newService(&fakeAnalytics{}).Names()
	assert.Len(t, names, 8)
	assert.Contains(t, names, "user_habits")
	assert.Contains(t, names, "daily_device_usage")
}
