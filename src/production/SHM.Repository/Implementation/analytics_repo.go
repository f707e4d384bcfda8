package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// Each usage interval pair of one user on two different devices contributes
// the length of its intersection. Open intervals end at $1; an interval
// stored with end before start contributes nothing.
const deviceOverlapQuery = `
	WITH pairs AS (
		SELECT
			LEAST(t1.device_id, t2.device_id)    AS device_a,
			GREATEST(t1.device_id, t2.device_id) AS device_b,
			GREATEST(EXTRACT(EPOCH FROM (
				LEAST(COALESCE(t1.end_time, CAST($1 AS timestamp)), COALESCE(t2.end_time, CAST($1 AS timestamp)))
				- GREATEST(t1.start_time, t2.start_time)
			)) / 60.0, 0) AS minutes
		FROM device_usages t1
		JOIN device_usages t2
			ON t1.user_id = t2.user_id
			AND t1.id < t2.id
			AND t1.device_id <> t2.device_id
			AND t1.start_time < COALESCE(t2.end_time, CAST($1 AS timestamp))
			AND t2.start_time < COALESCE(t1.end_time, CAST($1 AS timestamp))
	)
	SELECT device_a, device_b, CAST(SUM(minutes) AS double precision) AS total_minutes
	FROM pairs
	GROUP BY device_a, device_b
	HAVING SUM(minutes) > 0
	ORDER BY total_minutes DESC, device_a, device_b
	LIMIT $2`

type PostgresAnalyticsRepository struct {
	db *sql.DB
}

func NewPostgresAnalyticsRepository(db *sql.DB) *PostgresAnalyticsRepository {
	return &PostgresAnalyticsRepository{db: db}
}

func (r *PostgresAnalyticsRepository) DeviceUsageFrequency(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return r.labeledCounts(ctx, `
		SELECT COALESCE(d.name, 'Device ' || u.device_id), COUNT(*)
		FROM device_usages u
		LEFT JOIN devices d ON d.id = u.device_id
		GROUP BY u.device_id, d.name
		ORDER BY u.device_id`)
}

// AreaImpact always yields the three house-size bins once any user and any
// usage exist, so empty bins show as zero bars.
func (r *PostgresAnalyticsRepository) AreaImpact(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	var haveUsers, haveUsages bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users), EXISTS(SELECT 1 FROM device_usages)`).Scan(&haveUsers, &haveUsages)
	if err != nil {
		return nil, err
	}
	if !haveUsers || !haveUsages {
		return []shmmodels.LabeledCount{}, nil
	}

	return r.labeledCounts(ctx, `
		WITH bins (label, lo, hi, ord) AS (
			VALUES ('small', 0, 80, 1), ('medium', 80, 120, 2), ('large', 120, NULL, 3)
		)
		SELECT b.label, COUNT(u.id)
		FROM bins b
		LEFT JOIN users usr ON usr.house_area >= b.lo AND (b.hi IS NULL OR usr.house_area < b.hi)
		LEFT JOIN device_usages u ON u.user_id = usr.id
		GROUP BY b.label, b.ord
		ORDER BY b.ord`)
}

func (r *PostgresAnalyticsRepository) DeviceTypeUsage(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return r.labeledCounts(ctx, `
		SELECT COALESCE(d.type, 'unknown') AS label, COUNT(*) AS n
		FROM device_usages u
		JOIN devices d ON d.id = u.device_id
		GROUP BY 1
		ORDER BY n DESC, label`)
}

func (r *PostgresAnalyticsRepository) RoomEnergy(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return r.labeledCounts(ctx, `
		SELECT rm.name, SUM(COALESCE(u.energy_consumed, 0)) AS energy
		FROM device_usages u
		JOIN devices d ON d.id = u.device_id
		JOIN rooms rm ON rm.id = d.room_id
		GROUP BY rm.name
		ORDER BY energy DESC, rm.name`)
}

func (r *PostgresAnalyticsRepository) UserActivity(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return r.labeledCounts(ctx, `
		SELECT usr.name, COUNT(*) AS n
		FROM device_usages u
		JOIN users usr ON usr.id = u.user_id
		GROUP BY usr.name
		ORDER BY n DESC, usr.name`)
}

func (r *PostgresAnalyticsRepository) RoomEventCount(ctx context.Context) ([]shmmodels.LabeledCount, error) {
	return r.labeledCounts(ctx, `
		SELECT rm.name, COUNT(*) AS n
		FROM security_events e
		JOIN devices d ON d.id = e.device_id
		JOIN rooms rm ON rm.id = d.room_id
		GROUP BY rm.name
		ORDER BY n DESC, rm.name`)
}

func (r *PostgresAnalyticsRepository) DailyDeviceUsage(ctx context.Context, from, to time.Time) ([]shmmodels.LabeledCount, error) {
	return r.labeledCounts(ctx, `
		SELECT to_char(date_trunc('day', start_time), 'YYYY-MM-DD') AS day, COUNT(*)
		FROM device_usages
		WHERE start_time >= $1 AND start_time < $2
		GROUP BY day
		ORDER BY day`, from.UTC(), to.UTC())
}

func (r *PostgresAnalyticsRepository) DeviceOverlaps(ctx context.Context, now time.Time, limit int) ([]shmmodels.DeviceOverlap, error) {
	rows, err := r.db.QueryContext(ctx, deviceOverlapQuery, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query device overlaps: %w", err)
	}
	defer rows.Close()

	overlaps := make([]shmmodels.DeviceOverlap, 0)
	for rows.Next() {
		var o shmmodels.DeviceOverlap
		if err := rows.Scan(&o.DeviceA, &o.DeviceB, &o.TotalMinutes); err != nil {
			return nil, err
		}
		overlaps = append(overlaps, o)
	}
	return overlaps, rows.Err()
}

func (r *PostgresAnalyticsRepository) DeviceNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM devices WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query device names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (r *PostgresAnalyticsRepository) labeledCounts(ctx context.Context, query string, args ...any) ([]shmmodels.LabeledCount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]shmmodels.LabeledCount, 0)
	for rows.Next() {
		var c shmmodels.LabeledCount
		if err := rows.Scan(&c.Label, &c.Value); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
