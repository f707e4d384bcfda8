package interfaces

import (
	"context"
	"errors"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// ErrInvalidReference is returned when a write points at a row that does not exist.
var ErrInvalidReference = errors.New("referenced record does not exist")

// CRUDRepository is the persistence contract shared by every entity.
// Get, Delete and Upsert's lookups report a missing id as sql.ErrNoRows.
type CRUDRepository[In any, Out any] interface {
	Create(ctx context.Context, in In) (*Out, error)
	Get(ctx context.Context, id int64) (*Out, error)
	List(ctx context.Context, skip, limit int) ([]Out, error)
	// Upsert updates the row with the given id, inserting it with that id when absent.
	Upsert(ctx context.Context, id int64, in In) (*Out, error)
	Delete(ctx context.Context, id int64) error
}

type UserRepository = CRUDRepository[shmmodels.UserCreate, shmmodels.UserOut]

type RoomRepository = CRUDRepository[shmmodels.RoomCreate, shmmodels.RoomOut]

type DeviceRepository interface {
	CRUDRepository[shmmodels.DeviceCreate, shmmodels.DeviceOut]
	Exists(ctx context.Context, id int64) (bool, error)
}

type DeviceUsageRepository = CRUDRepository[shmmodels.DeviceUsageCreate, shmmodels.DeviceUsage]

type SecurityEventRepository = CRUDRepository[shmmodels.SecurityEventCreate, shmmodels.SecurityEvent]

type FeedbackRepository = CRUDRepository[shmmodels.FeedbackCreate, shmmodels.Feedback]
