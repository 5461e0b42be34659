package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	prism "github.com/nexlead/prism"
	"github.com/nexlead/prism/id"
	"github.com/nexlead/prism/inbox"
)

// Ingest upserts an event by its provider event id. First delivery inserts
// the record with attempts = 1; redelivery increments attempts and
// refreshes received_at without touching the processing or processed
// flags. The upsert is the dedup: concurrent redeliveries of the same id
// collapse onto one record.
func (s *Store) Ingest(ctx context.Context, evt *inbox.Event) (inbox.IngestOutcome, error) {
	t := now()

	recordID := evt.ID
	if recordID.IsNil() {
		recordID = id.NewInboxRecordID()
	}

	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":           recordID.String(),
			"delivery_id":   evt.DeliveryID,
			"event_type":    evt.EventType,
			"source":        evt.Source,
			"payload":       evt.Payload,
			"occurred_at":   evt.OccurredAt,
			"processing":    false,
			"processed":     false,
			"dead_lettered": false,
			"created_at":    t,
		},
		"$set": bson.M{
			"received_at": t,
			"updated_at":  t,
		},
		"$inc": bson.M{"attempts": 1},
	}

	res, err := s.mdb.Collection(colInbox).UpdateOne(ctx,
		bson.M{"event_id": evt.EventID},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("prism/mongo: ingest: %w", err)
	}

	if res.UpsertedCount > 0 {
		return inbox.OutcomeCreated, nil
	}

	return inbox.OutcomeDuplicate, nil
}

// claimableFilter matches events that may be claimed: unprocessed, not
// dead-lettered, and either unclaimed or holding a lease that went silent
// before the expiry instant.
func claimableFilter(leaseExpiredBefore time.Time) bson.M {
	return bson.M{
		"processed":     false,
		"dead_lettered": false,
		"$or": bson.A{
			bson.M{"processing": bson.M{"$ne": true}},
			bson.M{"last_heartbeat": bson.M{"$lt": leaseExpiredBefore}},
			bson.M{
				"last_heartbeat":        nil,
				"processing_started_at": bson.M{"$lt": leaseExpiredBefore},
			},
		},
	}
}

// ClaimOne atomically claims the oldest claimable event. FindOneAndUpdate
// is the mutual-exclusion primitive: two concurrent claimers can never
// both match-and-flip the same document.
func (s *Store) ClaimOne(ctx context.Context, leaseExpiredBefore time.Time) (*inbox.Event, error) {
	t := now()

	update := bson.M{
		"$set": bson.M{
			"processing":            true,
			"processing_started_at": t,
			"last_heartbeat":        t,
			"updated_at":            t,
		},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "received_at", Value: 1}})

	var m inboxEventModel

	err := s.mdb.Collection(colInbox).
		FindOneAndUpdate(ctx, claimableFilter(leaseExpiredBefore), update, opts).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("prism/mongo: claim: %w", err)
	}

	return fromInboxEventModel(&m)
}

// Heartbeat refreshes the lease liveness signal. Filtering on processing
// makes the update a no-op once the event was reclaimed or finalized.
func (s *Store) Heartbeat(ctx context.Context, eventID string) error {
	t := now()

	_, err := s.mdb.Collection(colInbox).UpdateOne(ctx,
		bson.M{"event_id": eventID, "processing": true},
		bson.M{"$set": bson.M{"last_heartbeat": t, "updated_at": t}},
	)
	if err != nil {
		return fmt.Errorf("prism/mongo: heartbeat: %w", err)
	}

	return nil
}

// MarkProcessed records terminal success. Idempotent: repeated calls for
// the same event id leave the first processed_at in place.
func (s *Store) MarkProcessed(ctx context.Context, eventID string) error {
	t := now()

	res, err := s.mdb.Collection(colInbox).UpdateOne(ctx,
		bson.M{"event_id": eventID},
		bson.A{
			bson.M{"$set": bson.M{
				"processing": false,
				"processed":  true,
				"processed_at": bson.M{
					"$ifNull": bson.A{"$processed_at", t},
				},
				"updated_at": t,
			}},
		},
	)
	if err != nil {
		return fmt.Errorf("prism/mongo: mark processed: %w", err)
	}

	if res.MatchedCount == 0 {
		return prism.ErrEventNotFound
	}

	return nil
}

// MarkFailed releases the claim, records the error message, and increments
// attempts. Returns the post-update event so the caller can apply the
// dead-letter threshold.
func (s *Store) MarkFailed(ctx context.Context, eventID, cause string) (*inbox.Event, error) {
	t := now()

	update := bson.M{
		"$set": bson.M{
			"processing": false,
			"last_error": cause,
			"updated_at": t,
		},
		"$inc": bson.M{"attempts": 1},
	}

	var m inboxEventModel

	err := s.mdb.Collection(colInbox).
		FindOneAndUpdate(ctx, bson.M{"event_id": eventID}, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, prism.ErrEventNotFound
		}

		return nil, fmt.Errorf("prism/mongo: mark failed: %w", err)
	}

	return fromInboxEventModel(&m)
}

// MarkDeadLettered parks the event in the terminal failure state.
func (s *Store) MarkDeadLettered(ctx context.Context, eventID string) error {
	t := now()

	res, err := s.mdb.Collection(colInbox).UpdateOne(ctx,
		bson.M{"event_id": eventID},
		bson.M{"$set": bson.M{
			"dead_lettered": true,
			"processing":    false,
			"updated_at":    t,
		}},
	)
	if err != nil {
		return fmt.Errorf("prism/mongo: mark dead-lettered: %w", err)
	}

	if res.MatchedCount == 0 {
		return prism.ErrEventNotFound
	}

	return nil
}

// ReclaimStale releases every claimed, unprocessed event whose lease went
// silent before the cutoff, incrementing attempts on each.
func (s *Store) ReclaimStale(ctx context.Context, abandonedBefore time.Time) (int64, error) {
	t := now()

	filter := bson.M{
		"processing": true,
		"processed":  false,
		"$or": bson.A{
			bson.M{"last_heartbeat": bson.M{"$lt": abandonedBefore}},
			bson.M{
				"last_heartbeat":        nil,
				"processing_started_at": bson.M{"$lt": abandonedBefore},
			},
		},
	}

	update := bson.M{
		"$set": bson.M{"processing": false, "updated_at": t},
		"$inc": bson.M{"attempts": 1},
	}

	res, err := s.mdb.Collection(colInbox).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("prism/mongo: reclaim stale: %w", err)
	}

	return res.ModifiedCount, nil
}

// Replay resets a dead-lettered event into the claimable pool.
func (s *Store) Replay(ctx context.Context, eventID string) error {
	t := now()

	res, err := s.mdb.Collection(colInbox).UpdateOne(ctx,
		bson.M{"event_id": eventID, "dead_lettered": true},
		bson.M{"$set": bson.M{
			"dead_lettered": false,
			"processing":    false,
			"attempts":      0,
			"last_error":    "",
			"updated_at":    t,
		}},
	)
	if err != nil {
		return fmt.Errorf("prism/mongo: replay: %w", err)
	}

	if res.MatchedCount == 0 {
		// Distinguish missing from merely not dead-lettered.
		if _, getErr := s.GetEvent(ctx, eventID); getErr != nil {
			return getErr
		}
		return prism.ErrNotDeadLettered
	}

	return nil
}

// GetEvent returns an event by its provider event id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*inbox.Event, error) {
	var m inboxEventModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"event_id": eventID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, prism.ErrEventNotFound
		}

		return nil, fmt.Errorf("prism/mongo: get event: %w", err)
	}

	return fromInboxEventModel(&m)
}

// ListEvents returns inbox records, newest receipt first.
func (s *Store) ListEvents(ctx context.Context, opts inbox.ListOpts) ([]*inbox.Event, error) {
	var models []inboxEventModel

	filter := bson.M{}
	if opts.Type != "" {
		filter["event_type"] = opts.Type
	}

	switch opts.State {
	case inbox.StatePending:
		filter["processed"] = false
		filter["dead_lettered"] = false
		filter["processing"] = false
	case inbox.StateProcessing:
		filter["processed"] = false
		filter["dead_lettered"] = false
		filter["processing"] = true
	case inbox.StateProcessed:
		filter["processed"] = true
	case inbox.StateDeadLettered:
		filter["dead_lettered"] = true
	}

	if opts.From != nil || opts.To != nil {
		dateFilter := bson.M{}
		if opts.From != nil {
			dateFilter["$gte"] = *opts.From
		}

		if opts.To != nil {
			dateFilter["$lte"] = *opts.To
		}

		filter["received_at"] = dateFilter
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "received_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("prism/mongo: list events: %w", err)
	}

	result := make([]*inbox.Event, 0, len(models))

	for i := range models {
		evt, err := fromInboxEventModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, evt)
	}

	return result, nil
}

// CountEvents summarizes the inbox by lifecycle state.
func (s *Store) CountEvents(ctx context.Context) (inbox.Counts, error) {
	col := s.mdb.Collection(colInbox)

	var c inbox.Counts
	var err error

	if c.Pending, err = col.CountDocuments(ctx, bson.M{
		"processed": false, "dead_lettered": false, "processing": false,
	}); err != nil {
		return c, fmt.Errorf("prism/mongo: count pending: %w", err)
	}

	if c.Processing, err = col.CountDocuments(ctx, bson.M{
		"processed": false, "dead_lettered": false, "processing": true,
	}); err != nil {
		return c, fmt.Errorf("prism/mongo: count processing: %w", err)
	}

	if c.Processed, err = col.CountDocuments(ctx, bson.M{"processed": true}); err != nil {
		return c, fmt.Errorf("prism/mongo: count processed: %w", err)
	}

	if c.DeadLettered, err = col.CountDocuments(ctx, bson.M{"dead_lettered": true}); err != nil {
		return c, fmt.Errorf("prism/mongo: count dead-lettered: %w", err)
	}

	var oldest inboxEventModel

	findErr := s.mdb.NewFind(&oldest).
		Filter(bson.M{"processed": false, "dead_lettered": false}).
		Sort(bson.D{{Key: "received_at", Value: 1}}).
		Scan(ctx)
	if findErr == nil {
		t := oldest.ReceivedAt
		c.OldestUnprocessed = &t
	} else if !isNoDocuments(findErr) {
		return c, fmt.Errorf("prism/mongo: oldest unprocessed: %w", findErr)
	}

	return c, nil
}

// PurgeProcessed deletes processed events older than the cutoff.
func (s *Store) PurgeProcessed(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.Collection(colInbox).DeleteMany(ctx, bson.M{
		"processed":    true,
		"processed_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("prism/mongo: purge processed: %w", err)
	}

	return res.DeletedCount, nil
}
