package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

const foreignKeyViolation = "23503"

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// translateError maps driver errors onto repository sentinels.
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", interfaces.ErrInvalidReference, pqErr.Detail)
	}
	return err
}

// deleteByID removes one row and reports sql.ErrNoRows when nothing matched.
func deleteByID(ctx context.Context, db execer, table string, id int64) error {
	result, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return translateError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// syncSequence moves a serial sequence past ids inserted explicitly by Upsert.
func syncSequence(ctx context.Context, db execer, table string) error {
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 1) FROM %[1]s), 1))`,
		table)
	_, err := db.ExecContext(ctx, query)
	return err
}

// inTx runs fn inside a transaction, committing only when fn succeeds.
func inTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// deviceTargets returns scan destinations for the d.id, d.name, d.type,
// d.room_id column block used by joined selects.
func deviceTargets(d *shmmodels.Device) []any {
	return []any{&d.ID, &d.Name, &d.Type, &d.RoomID}
}

const deviceColumns = "d.id, d.name, d.type, d.room_id"

// upsertRow runs an INSERT ... ON CONFLICT (id) DO UPDATE ... RETURNING (xmax = 0)
// statement and keeps the table's sequence ahead of explicitly inserted ids.
func upsertRow(ctx context.Context, db *sql.DB, table, query string, args ...any) error {
	return inTx(ctx, db, nil, func(tx *sql.Tx) error {
		var inserted bool
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&inserted); err != nil {
			return translateError(err)
		}
		if inserted {
			return syncSequence(ctx, tx, table)
		}
		return nil
	})
}
