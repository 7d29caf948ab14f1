// Package telemetry is a write-only decision log for the engine, grounded
// on the teacher's internal/db/mongodb.go (connection/index setup) and
// internal/audit/audit.go (fire-and-forget event insert). Unlike the
// teacher, where audit entries fed a security review UI, these exist purely
// for observability and are never read back at startup — the engine does
// not persist or restore state across restarts (spec.md §9's non-goal).
package telemetry

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store writes engine decisions to a Mongo collection, fire-and-forget. A
// nil *Store is valid and simply logs locally — telemetry is an optional
// ambient concern, not a load-bearing dependency of the engine loop.
type Store struct {
	collection *mongo.Collection
	client     *mongo.Client
}

// Connect dials uri and prepares the engine_events collection with a
// short-lived retention index, mirroring the teacher's ensureIndexes
// pattern but scoped to the one collection this package owns.
func Connect(uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	coll := client.Database(database).Collection("engine_events")
	go func() {
		idxCtx, idxCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer idxCancel()
		_, err := coll.Indexes().CreateOne(idxCtx, mongo.IndexModel{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(30 * 24 * 3600),
		})
		if err != nil {
			log.Printf("[Telemetry] failed to ensure index: %v", err)
		}
	}()

	return &Store{collection: coll, client: client}, nil
}

// Close disconnects the underlying Mongo client.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// LogEvent records one engine decision, fire-and-forget — mirrors
// audit.LogEvent's "never block the caller on the write" shape. A nil
// Store just logs locally, so callers never need a nil check.
func (s *Store) LogEvent(kind string, gameID string, details string) {
	if s == nil || s.collection == nil {
		log.Printf("[Telemetry] %s game=%s %s", kind, gameID, details)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.collection.InsertOne(ctx, bson.M{
			"kind":      kind,
			"gameId":    gameID,
			"details":   details,
			"createdAt": time.Now(),
		})
		if err != nil {
			log.Printf("[Telemetry] write failed: %v", err)
		}
	}()
}
