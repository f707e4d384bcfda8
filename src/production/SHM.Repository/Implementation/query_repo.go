package implementation

import (
	"context"
	"database/sql"
	"fmt"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

type PostgresQueryRepository struct {
	db *sql.DB
}

func NewPostgresQueryRepository(db *sql.DB) *PostgresQueryRepository {
	return &PostgresQueryRepository{db: db}
}

func (r *PostgresQueryRepository) Select(ctx context.Context, statement string) (*shmmodels.ResultSet, error) {
	var result *shmmodels.ResultSet
	err := inTx(ctx, r.db, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, statement)
		if err != nil {
			return err
		}
		defer rows.Close()

		result, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresQueryRepository) Exec(ctx context.Context, statement string) (int64, error) {
	var affected int64
	err := inTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, statement)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (r *PostgresQueryRepository) Schema(ctx context.Context) ([]shmmodels.TableSchema, error) {
	query := `
		SELECT table_name, column_name,
		       CASE WHEN character_maximum_length IS NOT NULL
		            THEN data_type || '(' || character_maximum_length || ')'
		            ELSE data_type END
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect schema: %w", err)
	}
	defer rows.Close()

	tables := make([]shmmodels.TableSchema, 0)
	for rows.Next() {
		var table string
		var col shmmodels.Column
		if err := rows.Scan(&table, &col.Name, &col.Type); err != nil {
			return nil, err
		}
		if n := len(tables); n == 0 || tables[n-1].Name != table {
			tables = append(tables, shmmodels.TableSchema{Name: table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, col)
	}
	return tables, rows.Err()
}

// collectRows materialises a result set, turning driver byte slices
// (numeric, text arrays) into strings so rows encode cleanly as JSON.
func collectRows(rows *sql.Rows) (*shmmodels.ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &shmmodels.ResultSet{Columns: columns, Rows: make([]shmmodels.Row, 0)}
	values := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		row := make(shmmodels.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}
