package interfaces

import (
	"context"
	"time"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// AnalyticsRepository runs the aggregate queries behind the report endpoints
type AnalyticsRepository interface {
	DeviceUsageFrequency(ctx context.Context) ([]shmmodels.LabeledCount, error)
	AreaImpact(ctx context.Context) ([]shmmodels.LabeledCount, error)
	DeviceTypeUsage(ctx context.Context) ([]shmmodels.LabeledCount, error)
	RoomEnergy(ctx context.Context) ([]shmmodels.LabeledCount, error)
	UserActivity(ctx context.Context) ([]shmmodels.LabeledCount, error)
	RoomEventCount(ctx context.Context) ([]shmmodels.LabeledCount, error)
	// DailyDeviceUsage counts usages per start day in [from, to).
	DailyDeviceUsage(ctx context.Context, from, to time.Time) ([]shmmodels.LabeledCount, error)

	// DeviceOverlaps ranks device pairs by simultaneous use, treating open
	// intervals as running until now.
	DeviceOverlaps(ctx context.Context, now time.Time, limit int) ([]shmmodels.DeviceOverlap, error)
	DeviceNames(ctx context.Context, ids []int64) (map[int64]string, error)
}
