package interfaces

import (
	"context"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

type TranscriptRepository interface {
	Save(ctx context.Context, t shmmodels.Transcript) error
}
