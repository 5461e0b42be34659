// Package memory provides an in-memory Store implementation for unit
// testing. One mutex stands in for the document store's per-document
// atomicity: every method is a single critical section, so claim semantics
// match the production backend under concurrent callers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	prism "github.com/nexlead/prism"
	"github.com/nexlead/prism/id"
	"github.com/nexlead/prism/inbox"
	"github.com/nexlead/prism/projection"
	prismstore "github.com/nexlead/prism/store"
)

// compile-time interface check.
var _ prismstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.Mutex

	events map[string]*inbox.Event     // keyed by provider event id
	users  map[string]*projection.User // keyed by external user id

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		events: make(map[string]*inbox.Event),
		users:  make(map[string]*projection.User),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return prism.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// inbox.Store
// ──────────────────────────────────────────────────

// Ingest upserts by provider event id. Redelivery increments attempts and
// refreshes the receipt time without touching processing state.
func (s *Store) Ingest(_ context.Context, evt *inbox.Event) (inbox.IngestOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", prism.ErrStoreClosed
	}

	now := time.Now().UTC()

	if existing, ok := s.events[evt.EventID]; ok {
		existing.Attempts++
		existing.ReceivedAt = now
		existing.UpdatedAt = now
		return inbox.OutcomeDuplicate, nil
	}

	stored := *evt
	if stored.ID.IsNil() {
		stored.ID = id.NewInboxRecordID()
	}
	stored.ReceivedAt = now
	stored.Attempts = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.events[evt.EventID] = &stored

	return inbox.OutcomeCreated, nil
}

// ClaimOne flips the oldest claimable event to claimed.
func (s *Store) ClaimOne(_ context.Context, leaseExpiredBefore time.Time) (*inbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, prism.ErrStoreClosed
	}

	var oldest *inbox.Event
	for _, evt := range s.events {
		if !evt.Claimable(leaseExpiredBefore) {
			continue
		}
		if oldest == nil || evt.ReceivedAt.Before(oldest.ReceivedAt) {
			oldest = evt
		}
	}

	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.Processing = true
	oldest.ProcessingStartedAt = &now
	hb := now
	oldest.LastHeartbeat = &hb
	oldest.UpdatedAt = now

	return copyEvent(oldest), nil
}

// Heartbeat refreshes the lease; a no-op when the event is not claimed.
func (s *Store) Heartbeat(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return prism.ErrStoreClosed
	}

	evt, ok := s.events[eventID]
	if !ok || !evt.Processing {
		return nil
	}

	now := time.Now().UTC()
	evt.LastHeartbeat = &now
	evt.UpdatedAt = now
	return nil
}

// MarkProcessed records terminal success. Idempotent.
func (s *Store) MarkProcessed(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return prism.ErrStoreClosed
	}

	evt, ok := s.events[eventID]
	if !ok {
		return prism.ErrEventNotFound
	}

	now := time.Now().UTC()
	evt.Processed = true
	evt.Processing = false
	if evt.ProcessedAt == nil {
		evt.ProcessedAt = &now
	}
	evt.UpdatedAt = now
	return nil
}

// MarkFailed releases the claim, records the error, increments attempts.
func (s *Store) MarkFailed(_ context.Context, eventID, cause string) (*inbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, prism.ErrStoreClosed
	}

	evt, ok := s.events[eventID]
	if !ok {
		return nil, prism.ErrEventNotFound
	}

	evt.Processing = false
	evt.LastError = cause
	evt.Attempts++
	evt.UpdatedAt = time.Now().UTC()

	return copyEvent(evt), nil
}

// MarkDeadLettered records terminal failure.
func (s *Store) MarkDeadLettered(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return prism.ErrStoreClosed
	}

	evt, ok := s.events[eventID]
	if !ok {
		return prism.ErrEventNotFound
	}

	evt.DeadLettered = true
	evt.Processing = false
	evt.UpdatedAt = time.Now().UTC()
	return nil
}

// ReclaimStale releases abandoned leases.
func (s *Store) ReclaimStale(_ context.Context, abandonedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, prism.ErrStoreClosed
	}

	var n int64
	for _, evt := range s.events {
		if !evt.Processing || evt.Processed {
			continue
		}

		stale := false
		if evt.LastHeartbeat != nil {
			stale = evt.LastHeartbeat.Before(abandonedBefore)
		} else if evt.ProcessingStartedAt != nil {
			stale = evt.ProcessingStartedAt.Before(abandonedBefore)
		}
		if !stale {
			continue
		}

		evt.Processing = false
		evt.Attempts++
		evt.UpdatedAt = time.Now().UTC()
		n++
	}

	return n, nil
}

// Replay resets a dead-lettered event into the claimable pool.
func (s *Store) Replay(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return prism.ErrStoreClosed
	}

	evt, ok := s.events[eventID]
	if !ok {
		return prism.ErrEventNotFound
	}
	if !evt.DeadLettered {
		return prism.ErrNotDeadLettered
	}

	evt.DeadLettered = false
	evt.Processing = false
	evt.Attempts = 0
	evt.LastError = ""
	evt.UpdatedAt = time.Now().UTC()
	return nil
}

// GetEvent returns an event by provider event id.
func (s *Store) GetEvent(_ context.Context, eventID string) (*inbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, prism.ErrStoreClosed
	}

	evt, ok := s.events[eventID]
	if !ok {
		return nil, prism.ErrEventNotFound
	}
	return copyEvent(evt), nil
}

// ListEvents returns inbox records, newest receipt first.
func (s *Store) ListEvents(_ context.Context, opts inbox.ListOpts) ([]*inbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, prism.ErrStoreClosed
	}

	matched := make([]*inbox.Event, 0, len(s.events))
	for _, evt := range s.events {
		if opts.State != "" && evt.State() != opts.State {
			continue
		}
		if opts.Type != "" && evt.EventType != opts.Type {
			continue
		}
		if opts.From != nil && evt.ReceivedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && evt.ReceivedAt.After(*opts.To) {
			continue
		}
		matched = append(matched, evt)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	matched = paginate(matched, opts.Offset, opts.Limit)

	out := make([]*inbox.Event, len(matched))
	for i, evt := range matched {
		out[i] = copyEvent(evt)
	}
	return out, nil
}

// CountEvents summarizes the inbox by lifecycle state.
func (s *Store) CountEvents(_ context.Context) (inbox.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return inbox.Counts{}, prism.ErrStoreClosed
	}

	var c inbox.Counts
	for _, evt := range s.events {
		switch evt.State() {
		case inbox.StateDeadLettered:
			c.DeadLettered++
		case inbox.StateProcessed:
			c.Processed++
		case inbox.StateProcessing:
			c.Processing++
		default:
			c.Pending++
		}

		if !evt.Processed && !evt.DeadLettered {
			if c.OldestUnprocessed == nil || evt.ReceivedAt.Before(*c.OldestUnprocessed) {
				t := evt.ReceivedAt
				c.OldestUnprocessed = &t
			}
		}
	}
	return c, nil
}

// PurgeProcessed deletes processed events older than the cutoff.
func (s *Store) PurgeProcessed(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, prism.ErrStoreClosed
	}

	var n int64
	for key, evt := range s.events {
		if evt.Processed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
			delete(s.events, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// projection.Store
// ──────────────────────────────────────────────────

// ApplyUpsert creates or updates a user record behind the out-of-order
// guard.
func (s *Store) ApplyUpsert(_ context.Context, up projection.Upsert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, prism.ErrStoreClosed
	}

	now := time.Now().UTC()

	user, ok := s.users[up.ExternalUserID]
	if !ok {
		user = &projection.User{ExternalUserID: up.ExternalUserID}
		user.CreatedAt = now
		s.users[up.ExternalUserID] = user
	} else if stale(user, up.OccurredAt) {
		return false, nil
	}

	if up.Name != nil {
		user.Name = cloneString(up.Name)
	}
	if up.Email != nil {
		user.Email = cloneString(up.Email)
	}
	if up.Phone != nil {
		user.Phone = cloneString(up.Phone)
	}
	if up.AvatarURL != nil {
		user.AvatarURL = cloneString(up.AvatarURL)
	}

	advanceWatermark(user, up.OccurredAt)
	user.UpdatedAt = now

	return true, nil
}

// ApplyTombstone marks a user deleted and scrubs PII behind the guard.
func (s *Store) ApplyTombstone(_ context.Context, ts projection.Tombstone) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, prism.ErrStoreClosed
	}

	now := time.Now().UTC()

	user, ok := s.users[ts.ExternalUserID]
	if !ok {
		user = &projection.User{ExternalUserID: ts.ExternalUserID}
		user.CreatedAt = now
		s.users[ts.ExternalUserID] = user
	} else if stale(user, ts.OccurredAt) {
		return false, nil
	}

	user.Deleted = true
	user.PIIScrubbed = true
	deletedAt := ts.DeletedAt
	user.DeletedAt = &deletedAt
	user.Name = nil
	user.Email = nil
	user.Phone = nil
	user.AvatarURL = nil

	advanceWatermark(user, ts.OccurredAt)
	user.UpdatedAt = now

	return true, nil
}

// GetUser returns a user by external id.
func (s *Store) GetUser(_ context.Context, externalUserID string) (*projection.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, prism.ErrStoreClosed
	}

	user, ok := s.users[externalUserID]
	if !ok {
		return nil, prism.ErrUserNotFound
	}
	return copyUser(user), nil
}

// ListUsers returns projected users.
func (s *Store) ListUsers(_ context.Context, opts projection.ListOpts) ([]*projection.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, prism.ErrStoreClosed
	}

	matched := make([]*projection.User, 0, len(s.users))
	for _, user := range s.users {
		if opts.Deleted != nil && user.Deleted != *opts.Deleted {
			continue
		}
		matched = append(matched, user)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ExternalUserID < matched[j].ExternalUserID
	})

	matched = paginate(matched, opts.Offset, opts.Limit)

	out := make([]*projection.User, len(matched))
	for i, user := range matched {
		out[i] = copyUser(user)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────

// stale applies the out-of-order guard: a write with a timestamp strictly
// before the stored high-water mark is rejected; a write with no timestamp
// is always accepted.
func stale(user *projection.User, occurredAt *time.Time) bool {
	return occurredAt != nil &&
		user.LastEventOccurredAt != nil &&
		occurredAt.Before(*user.LastEventOccurredAt)
}

func advanceWatermark(user *projection.User, occurredAt *time.Time) {
	if occurredAt == nil {
		return
	}
	if user.LastEventOccurredAt == nil || occurredAt.After(*user.LastEventOccurredAt) {
		t := *occurredAt
		user.LastEventOccurredAt = &t
	}
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func copyEvent(evt *inbox.Event) *inbox.Event {
	c := *evt
	return &c
}

func copyUser(user *projection.User) *projection.User {
	c := *user
	c.Name = cloneString(user.Name)
	c.Email = cloneString(user.Email)
	c.Phone = cloneString(user.Phone)
	c.AvatarURL = cloneString(user.AvatarURL)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
