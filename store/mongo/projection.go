package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	prism "github.com/nexlead/prism"
	"github.com/nexlead/prism/projection"
)

// guardFilter is the out-of-order guard expressed as a match condition: the
// record either has no high-water mark yet or its mark is at or before the
// incoming event's timestamp. Writes with no timestamp skip the guard and
// match on identity alone.
func guardFilter(externalUserID string, occurredAt *time.Time) bson.M {
	filter := bson.M{"_id": externalUserID}
	if occurredAt == nil {
		return filter
	}

	filter["$or"] = bson.A{
		bson.M{"last_event_occurred_at": bson.M{"$exists": false}},
		bson.M{"last_event_occurred_at": nil},
		bson.M{"last_event_occurred_at": bson.M{"$lte": *occurredAt}},
	}
	return filter
}

// ApplyUpsert creates or updates a user record behind the out-of-order
// guard, writing only the fields present in the upsert.
//
// The guard rides on the upsert itself: when the record exists but fails
// the guard, the filter matches nothing and the upsert attempts an insert,
// which the _id (external user id) uniqueness rejects. That duplicate-key
// error is the stale signal, not a failure.
func (s *Store) ApplyUpsert(ctx context.Context, up projection.Upsert) (bool, error) {
	t := now()

	set := bson.M{"updated_at": t}
	if up.Name != nil {
		set["name"] = *up.Name
	}
	if up.Email != nil {
		set["email"] = *up.Email
	}
	if up.Phone != nil {
		set["phone"] = *up.Phone
	}
	if up.AvatarURL != nil {
		set["avatar_url"] = *up.AvatarURL
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"deleted":      false,
			"pii_scrubbed": false,
			"created_at":   t,
		},
	}
	if up.OccurredAt != nil {
		update["$max"] = bson.M{"last_event_occurred_at": *up.OccurredAt}
	}

	_, err := s.mdb.Collection(colUsers).UpdateOne(ctx,
		guardFilter(up.ExternalUserID, up.OccurredAt),
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return false, nil
		}

		return false, fmt.Errorf("prism/mongo: apply upsert: %w", err)
	}

	return true, nil
}

// ApplyTombstone marks a user deleted, unsets every PII field, and retains
// the identity key and deletion time. Same guard mechanics as ApplyUpsert.
func (s *Store) ApplyTombstone(ctx context.Context, ts projection.Tombstone) (bool, error) {
	t := now()

	update := bson.M{
		"$set": bson.M{
			"deleted":      true,
			"pii_scrubbed": true,
			"deleted_at":   ts.DeletedAt,
			"updated_at":   t,
		},
		"$unset": bson.M{
			"name":       "",
			"email":      "",
			"phone":      "",
			"avatar_url": "",
		},
		"$setOnInsert": bson.M{
			"created_at": t,
		},
	}
	if ts.OccurredAt != nil {
		update["$max"] = bson.M{"last_event_occurred_at": *ts.OccurredAt}
	}

	_, err := s.mdb.Collection(colUsers).UpdateOne(ctx,
		guardFilter(ts.ExternalUserID, ts.OccurredAt),
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return false, nil
		}

		return false, fmt.Errorf("prism/mongo: apply tombstone: %w", err)
	}

	return true, nil
}

// GetUser returns a user by external id.
func (s *Store) GetUser(ctx context.Context, externalUserID string) (*projection.User, error) {
	var m projectedUserModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": externalUserID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, prism.ErrUserNotFound
		}

		return nil, fmt.Errorf("prism/mongo: get user: %w", err)
	}

	return fromProjectedUserModel(&m), nil
}

// ListUsers returns projected users.
func (s *Store) ListUsers(ctx context.Context, opts projection.ListOpts) ([]*projection.User, error) {
	var models []projectedUserModel

	filter := bson.M{}
	if opts.Deleted != nil {
		filter["deleted"] = *opts.Deleted
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("prism/mongo: list users: %w", err)
	}

	result := make([]*projection.User, 0, len(models))
	for i := range models {
		result = append(result, fromProjectedUserModel(&models[i]))
	}

	return result, nil
}
