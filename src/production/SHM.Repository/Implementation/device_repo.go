package implementation

import (
	"context"
	"database/sql"
	"fmt"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

const deviceSelect = `
	SELECT ` + deviceColumns + `, r.id, r.name
	FROM devices d
	LEFT JOIN rooms r ON r.id = d.room_id`

type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

func (r *PostgresDeviceRepository) Create(ctx context.Context, in shmmodels.DeviceCreate) (*shmmodels.DeviceOut, error) {
	query := `INSERT INTO devices (name, type, room_id) VALUES ($1, $2, $3) RETURNING id`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, in.Name, in.Type, in.RoomID).Scan(&id); err != nil {
		return nil, translateError(err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresDeviceRepository) Get(ctx context.Context, id int64) (*shmmodels.DeviceOut, error) {
	device, err := scanDeviceOut(r.db.QueryRowContext(ctx, deviceSelect+` WHERE d.id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *PostgresDeviceRepository) List(ctx context.Context, skip, limit int) ([]shmmodels.DeviceOut, error) {
	rows, err := r.db.QueryContext(ctx, deviceSelect+` ORDER BY d.id LIMIT $1 OFFSET $2`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]shmmodels.DeviceOut, 0)
	for rows.Next() {
		device, err := scanDeviceOut(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (r *PostgresDeviceRepository) Upsert(ctx context.Context, id int64, in shmmodels.DeviceCreate) (*shmmodels.DeviceOut, error) {
	query := `
		INSERT INTO devices (id, name, type, room_id) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, room_id = EXCLUDED.room_id
		RETURNING (xmax = 0)`

	if err := upsertRow(ctx, r.db, "devices", query, id, in.Name, in.Type, in.RoomID); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes a device together with its usages and events.
func (r *PostgresDeviceRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.db, "devices", id)
}

func (r *PostgresDeviceRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM devices WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func scanDeviceOut(s rowScanner) (shmmodels.DeviceOut, error) {
	var (
		out      shmmodels.DeviceOut
		roomID   *int64
		roomName *string
	)
	targets := append(deviceTargets(&out.Device), &roomID, &roomName)
	if err := s.Scan(targets...); err != nil {
		return out, err
	}
	if roomID != nil && roomName != nil {
		out.Room = &shmmodels.Room{ID: *roomID, Name: *roomName}
	}
	return out, nil
}
