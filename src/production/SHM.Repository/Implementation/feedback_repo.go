package implementation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// Feedback may not reference a device, hence the outer join.
const feedbackSelect = `
	SELECT f.id, f.user_id, f.content, f.feedback_type, f.status, f.device_id, f.timestamp,
	       ` + deviceColumns + `
	FROM feedbacks f
	LEFT JOIN devices d ON d.id = f.device_id`

type PostgresFeedbackRepository struct {
	db *sql.DB
}

func NewPostgresFeedbackRepository(db *sql.DB) *PostgresFeedbackRepository {
	return &PostgresFeedbackRepository{db: db}
}

func (r *PostgresFeedbackRepository) Create(ctx context.Context, in shmmodels.FeedbackCreate) (*shmmodels.Feedback, error) {
	query := `
		INSERT INTO feedbacks (user_id, content, feedback_type, status, device_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, in.UserID, in.Content, in.FeedbackType, in.Status,
		in.DeviceID, in.Timestamp.UTC()).Scan(&id)
	if err != nil {
		return nil, translateError(err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresFeedbackRepository) Get(ctx context.Context, id int64) (*shmmodels.Feedback, error) {
	feedback, err := scanFeedback(r.db.QueryRowContext(ctx, feedbackSelect+` WHERE f.id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (r *PostgresFeedbackRepository) List(ctx context.Context, skip, limit int) ([]shmmodels.Feedback, error) {
	return queryFeedbacks(ctx, r.db, `ORDER BY f.id LIMIT $1 OFFSET $2`, limit, skip)
}

func (r *PostgresFeedbackRepository) Upsert(ctx context.Context, id int64, in shmmodels.FeedbackCreate) (*shmmodels.Feedback, error) {
	query := `
		INSERT INTO feedbacks (id, user_id, content, feedback_type, status, device_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, content = EXCLUDED.content,
			feedback_type = EXCLUDED.feedback_type, status = EXCLUDED.status,
			device_id = EXCLUDED.device_id, timestamp = EXCLUDED.timestamp
		RETURNING (xmax = 0)`

	err := upsertRow(ctx, r.db, "feedbacks", query, id, in.UserID, in.Content, in.FeedbackType,
		in.Status, in.DeviceID, in.Timestamp.UTC())
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *PostgresFeedbackRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.db, "feedbacks", id)
}

func feedbacksByUser(ctx context.Context, db execer, userIDs []int64) (map[int64][]shmmodels.Feedback, error) {
	feedbacks, err := queryFeedbacks(ctx, db, `WHERE f.user_id = ANY($1) ORDER BY f.id`, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	byUser := make(map[int64][]shmmodels.Feedback, len(userIDs))
	for _, f := range feedbacks {
		byUser[f.UserID] = append(byUser[f.UserID], f)
	}
	return byUser, nil
}

func queryFeedbacks(ctx context.Context, db execer, tail string, args ...any) ([]shmmodels.Feedback, error) {
	rows, err := db.QueryContext(ctx, feedbackSelect+"\n\t"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query feedbacks: %w", err)
	}
	defer rows.Close()

	feedbacks := make([]shmmodels.Feedback, 0)
	for rows.Next() {
		feedback, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		feedbacks = append(feedbacks, feedback)
	}
	return feedbacks, rows.Err()
}

func scanFeedback(s rowScanner) (shmmodels.Feedback, error) {
	var (
		f       shmmodels.Feedback
		dID     *int64
		dName   *string
		dType   *string
		dRoomID *int64
	)
	err := s.Scan(&f.ID, &f.UserID, &f.Content, &f.FeedbackType, &f.Status, &f.DeviceID, &f.Timestamp,
		&dID, &dName, &dType, &dRoomID)
	if err != nil {
		return f, err
	}
	f.Timestamp = f.Timestamp.UTC()
	if dID != nil && dName != nil {
		f.Device = &shmmodels.Device{ID: *dID, Name: *dName, Type: dType, RoomID: dRoomID}
	}
	return f, nil
}
