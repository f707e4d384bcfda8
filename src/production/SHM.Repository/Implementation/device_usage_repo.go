package implementation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

const usageSelect = `
	SELECT u.id, u.user_id, u.device_id, u.start_time, u.end_time, u.usage_type,
	       u.energy_consumed, u.device_type, u.user_name, ` + deviceColumns + `
	FROM device_usages u
	JOIN devices d ON d.id = u.device_id`

type PostgresDeviceUsageRepository struct {
	db *sql.DB
}

func NewPostgresDeviceUsageRepository(db *sql.DB) *PostgresDeviceUsageRepository {
	return &PostgresDeviceUsageRepository{db: db}
}

func (r *PostgresDeviceUsageRepository) Create(ctx context.Context, in shmmodels.DeviceUsageCreate) (*shmmodels.DeviceUsage, error) {
	query := `
		INSERT INTO device_usages (user_id, device_id, start_time, end_time, usage_type, energy_consumed, device_type, user_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, in.UserID, in.DeviceID, in.StartTime.UTC(), utcPtr(in.EndTime),
		in.UsageType, in.EnergyConsumed, in.DeviceType, in.UserName).Scan(&id)
	if err != nil {
		return nil, translateError(err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresDeviceUsageRepository) Get(ctx context.Context, id int64) (*shmmodels.DeviceUsage, error) {
	usage, err := scanUsage(r.db.QueryRowContext(ctx, usageSelect+` WHERE u.id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *PostgresDeviceUsageRepository) List(ctx context.Context, skip, limit int) ([]shmmodels.DeviceUsage, error) {
	return queryUsages(ctx, r.db, `ORDER BY u.id LIMIT $1 OFFSET $2`, limit, skip)
}

func (r *PostgresDeviceUsageRepository) Upsert(ctx context.Context, id int64, in shmmodels.DeviceUsageCreate) (*shmmodels.DeviceUsage, error) {
	query := `
		INSERT INTO device_usages (id, user_id, device_id, start_time, end_time, usage_type, energy_consumed, device_type, user_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, device_id = EXCLUDED.device_id,
			start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
			usage_type = EXCLUDED.usage_type, energy_consumed = EXCLUDED.energy_consumed,
			device_type = EXCLUDED.device_type, user_name = EXCLUDED.user_name
		RETURNING (xmax = 0)`

	err := upsertRow(ctx, r.db, "device_usages", query, id, in.UserID, in.DeviceID, in.StartTime.UTC(),
		utcPtr(in.EndTime), in.UsageType, in.EnergyConsumed, in.DeviceType, in.UserName)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *PostgresDeviceUsageRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.db, "device_usages", id)
}

// usagesByUser loads the usages of several users keyed by user id.
func usagesByUser(ctx context.Context, db execer, userIDs []int64) (map[int64][]shmmodels.DeviceUsage, error) {
	usages, err := queryUsages(ctx, db, `WHERE u.user_id = ANY($1) ORDER BY u.id`, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	byUser := make(map[int64][]shmmodels.DeviceUsage, len(userIDs))
	for _, u := range usages {
		byUser[u.UserID] = append(byUser[u.UserID], u)
	}
	return byUser, nil
}

func queryUsages(ctx context.Context, db execer, tail string, args ...any) ([]shmmodels.DeviceUsage, error) {
	rows, err := db.QueryContext(ctx, usageSelect+"\n\t"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query device usages: %w", err)
	}
	defer rows.Close()

	usages := make([]shmmodels.DeviceUsage, 0)
	for rows.Next() {
		usage, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		usages = append(usages, usage)
	}
	return usages, rows.Err()
}

func scanUsage(s rowScanner) (shmmodels.DeviceUsage, error) {
	var (
		u shmmodels.DeviceUsage
		d shmmodels.Device
	)
	targets := append([]any{
		&u.ID, &u.UserID, &u.DeviceID, &u.StartTime, &u.EndTime, &u.UsageType,
		&u.EnergyConsumed, &u.DeviceType, &u.UserName,
	}, deviceTargets(&d)...)
	if err := s.Scan(targets...); err != nil {
		return u, err
	}
	u.StartTime = u.StartTime.UTC()
	u.EndTime = utcPtr(u.EndTime)
	u.Device = &d
	return u, nil
}
