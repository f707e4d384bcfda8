package interfaces

import (
	"context"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// QueryRepository executes free-form SQL coming from the console or the assistant
type QueryRepository interface {
	// Select runs a statement in a read-only transaction.
	Select(ctx context.Context, statement string) (*shmmodels.ResultSet, error)
	// Exec runs a write statement in its own transaction, rolling back on error.
	Exec(ctx context.Context, statement string) (int64, error)
	Schema(ctx context.Context) ([]shmmodels.TableSchema, error)
}
