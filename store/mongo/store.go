// Package mongo implements store.Store on MongoDB via Grove ORM.
//
// The inbox claim is a FindOneAndUpdate conditional flip: MongoDB's
// single-document atomicity is the one concurrency primitive the whole
// pipeline depends on. Everything else is ordinary CRUD.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/nexlead/prism/store"
)

// Collection name constants.
const (
	colInbox = "prism_inbox"
	colUsers = "prism_users"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for both collections. Idempotent; run once at
// process start or as a migration step, never lazily from request paths.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}

		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("prism/mongo: migrate %s indexes: %w", col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// migrationIndexes returns the index definitions for both collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInbox: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			// Claim scan: cheapest claimable-first lookup.
			{Keys: bson.D{
				{Key: "processed", Value: 1},
				{Key: "dead_lettered", Value: 1},
				{Key: "received_at", Value: 1},
			}},
			// Inspection by kind and provider time.
			{Keys: bson.D{{Key: "event_type", Value: 1}, {Key: "occurred_at", Value: -1}}},
			// Retention expiry of old processed events.
			{Keys: bson.D{{Key: "received_at", Value: 1}}},
		},
		colUsers: {
			// Keyed by external user id as _id; only the high-water mark
			// needs a secondary index, for processing-lag monitoring.
			{Keys: bson.D{{Key: "last_event_occurred_at", Value: -1}}},
		},
	}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
