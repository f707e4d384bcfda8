package implementation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

type PostgresRoomRepository struct {
	db *sql.DB
}

func NewPostgresRoomRepository(db *sql.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, in shmmodels.RoomCreate) (*shmmodels.RoomOut, error) {
	var id int64
	if err := r.db.QueryRowContext(ctx, `INSERT INTO rooms (name) VALUES ($1) RETURNING id`, in.Name).Scan(&id); err != nil {
		return nil, translateError(err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresRoomRepository) Get(ctx context.Context, id int64) (*shmmodels.RoomOut, error) {
	var room shmmodels.Room
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM rooms WHERE id = $1`, id).Scan(&room.ID, &room.Name)
	if err != nil {
		return nil, err
	}

	out, err := r.withDevices(ctx, []shmmodels.Room{room})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (r *PostgresRoomRepository) List(ctx context.Context, skip, limit int) ([]shmmodels.RoomOut, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM rooms ORDER BY id LIMIT $1 OFFSET $2`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]shmmodels.Room, 0)
	for rows.Next() {
		var room shmmodels.Room
		if err := rows.Scan(&room.ID, &room.Name); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.withDevices(ctx, rooms)
}

func (r *PostgresRoomRepository) Upsert(ctx context.Context, id int64, in shmmodels.RoomCreate) (*shmmodels.RoomOut, error) {
	query := `
		INSERT INTO rooms (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING (xmax = 0)`

	if err := upsertRow(ctx, r.db, "rooms", query, id, in.Name); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes a room. Its devices stay, unplaced.
func (r *PostgresRoomRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.db, "rooms", id)
}

func (r *PostgresRoomRepository) withDevices(ctx context.Context, rooms []shmmodels.Room) ([]shmmodels.RoomOut, error) {
	out := make([]shmmodels.RoomOut, 0, len(rooms))
	if len(rooms) == 0 {
		return out, nil
	}

	ids := make([]int64, len(rooms))
	for i, room := range rooms {
		ids[i] = room.ID
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices d WHERE d.room_id = ANY($1) ORDER BY d.id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query room devices: %w", err)
	}
	defer rows.Close()

	byRoom := make(map[int64][]shmmodels.Device, len(rooms))
	for rows.Next() {
		var d shmmodels.Device
		if err := rows.Scan(deviceTargets(&d)...); err != nil {
			return nil, err
		}
		if d.RoomID != nil {
			byRoom[*d.RoomID] = append(byRoom[*d.RoomID], d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, room := range rooms {
		out = append(out, shmmodels.RoomOut{Room: room, Devices: orEmpty(byRoom[room.ID])})
	}
	return out, nil
}
