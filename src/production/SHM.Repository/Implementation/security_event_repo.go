package implementation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

const eventSelect = `
	SELECT e.id, e.user_id, e.device_id, e.event_type, e.event_level, e.location, e.status,
	       e.timestamp, ` + deviceColumns + `
	FROM security_events e
	JOIN devices d ON d.id = e.device_id`

type PostgresSecurityEventRepository struct {
	db *sql.DB
}

func NewPostgresSecurityEventRepository(db *sql.DB) *PostgresSecurityEventRepository {
	return &PostgresSecurityEventRepository{db: db}
}

func (r *PostgresSecurityEventRepository) Create(ctx context.Context, in shmmodels.SecurityEventCreate) (*shmmodels.SecurityEvent, error) {
	query := `
		INSERT INTO security_events (user_id, device_id, event_type, event_level, location, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, in.UserID, in.DeviceID, in.EventType, in.EventLevel,
		in.Location, in.Status, in.Timestamp.UTC()).Scan(&id)
	if err != nil {
		return nil, translateError(err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresSecurityEventRepository) Get(ctx context.Context, id int64) (*shmmodels.SecurityEvent, error) {
	event, err := scanEvent(r.db.QueryRowContext(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *PostgresSecurityEventRepository) List(ctx context.Context, skip, limit int) ([]shmmodels.SecurityEvent, error) {
	return queryEvents(ctx, r.db, `ORDER BY e.id LIMIT $1 OFFSET $2`, limit, skip)
}

func (r *PostgresSecurityEventRepository) Upsert(ctx context.Context, id int64, in shmmodels.SecurityEventCreate) (*shmmodels.SecurityEvent, error) {
	query := `
		INSERT INTO security_events (id, user_id, device_id, event_type, event_level, location, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, device_id = EXCLUDED.device_id,
			event_type = EXCLUDED.event_type, event_level = EXCLUDED.event_level,
			location = EXCLUDED.location, status = EXCLUDED.status, timestamp = EXCLUDED.timestamp
		RETURNING (xmax = 0)`

	err := upsertRow(ctx, r.db, "security_events", query, id, in.UserID, in.DeviceID, in.EventType,
		in.EventLevel, in.Location, in.Status, in.Timestamp.UTC())
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *PostgresSecurityEventRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.db, "security_events", id)
}

func eventsByUser(ctx context.Context, db execer, userIDs []int64) (map[int64][]shmmodels.SecurityEvent, error) {
	events, err := queryEvents(ctx, db, `WHERE e.user_id = ANY($1) ORDER BY e.id`, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	byUser := make(map[int64][]shmmodels.SecurityEvent, len(userIDs))
	for _, e := range events {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	return byUser, nil
}

func queryEvents(ctx context.Context, db execer, tail string, args ...any) ([]shmmodels.SecurityEvent, error) {
	rows, err := db.QueryContext(ctx, eventSelect+"\n\t"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	events := make([]shmmodels.SecurityEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(s rowScanner) (shmmodels.SecurityEvent, error) {
	var (
		e shmmodels.SecurityEvent
		d shmmodels.Device
	)
	targets := append([]any{
		&e.ID, &e.UserID, &e.DeviceID, &e.EventType, &e.EventLevel, &e.Location, &e.Status, &e.Timestamp,
	}, deviceTargets(&d)...)
	if err := s.Scan(targets...); err != nil {
		return e, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Device = &d
	return e, nil
}
