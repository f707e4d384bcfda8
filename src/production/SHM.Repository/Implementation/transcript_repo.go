package implementation

import (
	"context"
	"fmt"

	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoTranscriptRepository archives assistant exchanges in a MongoDB collection
type MongoTranscriptRepository struct {
	coll *mongo.Collection
}

func NewMongoTranscriptRepository(client *mongo.Client, database, collection string) *MongoTranscriptRepository {
	return &MongoTranscriptRepository{coll: client.Database(database).Collection(collection)}
}

func (r *MongoTranscriptRepository) Save(ctx context.Context, t shmmodels.Transcript) error {
	if _, err := r.coll.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}
