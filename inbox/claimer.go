package inbox

import (
	"context"
	"time"
)

// Claimer acquires exclusive, time-bounded leases on batches of unprocessed
// events. It holds no state of its own: the store's atomic conditional update
// is the sole source of mutual exclusion, so any number of Claimer instances
// may run concurrently without coordination.
type Claimer struct {
	store        Store
	leaseTimeout time.Duration
	parallel     int
}

// NewClaimer creates a claimer. leaseTimeout is how long a claim may go
// without a heartbeat before it counts as abandoned; parallel is the number
// of concurrent claim attempts issued up front to cut tail latency.
func NewClaimer(store Store, leaseTimeout time.Duration, parallel int) *Claimer {
	if parallel < 1 {
		parallel = 1
	}
	return &Claimer{
		store:        store,
		leaseTimeout: leaseTimeout,
		parallel:     parallel,
	}
}

// ClaimBatch claims up to maxSize events, oldest receipt first. The first
// wave of claims runs in parallel, then sequential claims fill the remainder.
// The parallel wave is a latency optimization only; a purely sequential
// claimer is equally correct.
//
// Two concurrent ClaimBatch calls can never return the same event in both
// batches. Returns an empty slice, not an error, when nothing is claimable.
func (c *Claimer) ClaimBatch(ctx context.Context, maxSize int) ([]*Event, error) {
	if maxSize <= 0 {
		return nil, nil
	}

	expiredBefore := time.Now().UTC().Add(-c.leaseTimeout)

	wave := c.parallel
	if wave > maxSize {
		wave = maxSize
	}

	type attempt struct {
		evt *Event
		err error
	}

	results := make(chan attempt, wave)
	for range wave {
		go func() {
			evt, err := c.store.ClaimOne(ctx, expiredBefore)
			results <- attempt{evt: evt, err: err}
		}()
	}

	batch := make([]*Event, 0, maxSize)
	drained := false

	var errs []error
	for range wave {
		a := <-results
		if a.err != nil {
			errs = append(errs, a.err)
			continue
		}
		if a.evt == nil {
			// The pool ran dry during the parallel wave; no point
			// issuing sequential follow-ups.
			drained = true
			continue
		}
		batch = append(batch, a.evt)
	}

	if len(errs) > 0 && len(batch) == 0 {
		return nil, errs[0]
	}

	for !drained && len(batch) < maxSize {
		evt, err := c.store.ClaimOne(ctx, expiredBefore)
		if err != nil {
			// Events already claimed stay claimed; the reclaimer
			// recovers them if this worker never finishes.
			if len(batch) > 0 {
				break
			}
			return nil, err
		}
		if evt == nil {
			break
		}
		batch = append(batch, evt)
	}

	sortByReceivedAt(batch)

	return batch, nil
}

// sortByReceivedAt restores oldest-first order after the parallel wave, which
// claims atomically but completes in arbitrary order. Approximate FIFO only:
// concurrent claimers interleave freely.
func sortByReceivedAt(batch []*Event) {
	for i := 1; i < len(batch); i++ {
		for j := i; j > 0 && batch[j].ReceivedAt.Before(batch[j-1].ReceivedAt); j-- {
			batch[j], batch[j-1] = batch[j-1], batch[j]
		}
	}
}
