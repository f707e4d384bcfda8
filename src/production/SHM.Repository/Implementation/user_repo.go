package implementation

import (
	"context"
	"database/sql"
	"fmt"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, in shmmodels.UserCreate) (*shmmodels.UserOut, error) {
	query := `INSERT INTO users (name, house_area) VALUES ($1, $2) RETURNING id`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, in.Name, in.HouseArea).Scan(&id); err != nil {
		return nil, translateError(err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresUserRepository) Get(ctx context.Context, id int64) (*shmmodels.UserOut, error) {
	query := `SELECT id, name, house_area FROM users WHERE id = $1`

	var user shmmodels.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.HouseArea)
	if err != nil {
		return nil, err
	}

	out, err := r.withRelations(ctx, []shmmodels.User{user})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (r *PostgresUserRepository) List(ctx context.Context, skip, limit int) ([]shmmodels.UserOut, error) {
	query := `SELECT id, name, house_area FROM users ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]shmmodels.User, 0)
	for rows.Next() {
		var user shmmodels.User
		if err := rows.Scan(&user.ID, &user.Name, &user.HouseArea); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.withRelations(ctx, users)
}

func (r *PostgresUserRepository) Upsert(ctx context.Context, id int64, in shmmodels.UserCreate) (*shmmodels.UserOut, error) {
	query := `
		INSERT INTO users (id, name, house_area) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, house_area = EXCLUDED.house_area
		RETURNING (xmax = 0)`

	if err := upsertRow(ctx, r.db, "users", query, id, in.Name, in.HouseArea); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes a user together with its usages, events and feedback.
func (r *PostgresUserRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.db, "users", id)
}

// withRelations attaches usages, events and feedback with one query per relation.
func (r *PostgresUserRepository) withRelations(ctx context.Context, users []shmmodels.User) ([]shmmodels.UserOut, error) {
	out := make([]shmmodels.UserOut, 0, len(users))
	if len(users) == 0 {
		return out, nil
	}

	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	usages, err := usagesByUser(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	events, err := eventsByUser(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	feedbacks, err := feedbacksByUser(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		out = append(out, shmmodels.UserOut{
			User:      u,
			Usages:    orEmpty(usages[u.ID]),
			Events:    orEmpty(events[u.ID]),
			Feedbacks: orEmpty(feedbacks[u.ID]),
		})
	}
	return out, nil
}

// orEmpty keeps nested lists as [] rather than null in JSON.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
