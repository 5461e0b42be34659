package prism

import "time"

// Config holds the configuration for a Prism instance.
//
// The dead-letter threshold and reclaim cutoff defaults mirror what the
// surrounding product shipped with; neither is tuned for any particular
// event volume, so both are deliberately configurable.
type Config struct {
	// BatchSize is the maximum number of events claimed per projector cycle.
	BatchSize int

	// MaxParallelClaims is the number of concurrent atomic claim attempts
	// issued at the start of a batch before falling back to sequential
	// claims. A latency optimization only; 1 is equally correct.
	MaxParallelClaims int

	// ReclaimCutoff is how long a claim may go without a heartbeat before
	// the reclaimer treats it as abandoned.
	ReclaimCutoff time.Duration

	// DeadLetterThreshold is the attempts count at which a failing event
	// is dead-lettered and removed from the retry pool.
	DeadLetterThreshold int

	// CycleInterval is the backstop ticker for the trigger runner; cycles
	// also run immediately on advisory kicks after ingest.
	CycleInterval time.Duration

	// SignatureTolerance is the replay window around server time within
	// which a webhook timestamp is accepted.
	SignatureTolerance time.Duration

	// MaxBodyBytes caps the accepted webhook body size.
	MaxBodyBytes int64

	// IngestRateLimit is the per-source ingestion rate in events per
	// second. Zero disables rate limiting.
	IngestRateLimit int

	// StoreRetries and StoreRetryBackoff bound the fixed retry applied to
	// transient store failures on the hot paths (ingest, finalize).
	StoreRetries      int
	StoreRetryBackoff []time.Duration

	// NotifyTimeout bounds the best-effort dead-letter alert call.
	NotifyTimeout time.Duration
}

// DefaultConfig returns a Config with the defaults the product ships with.
func DefaultConfig() Config {
	return Config{
		BatchSize:           25,
		MaxParallelClaims:   4,
		ReclaimCutoff:       90 * time.Second,
		DeadLetterThreshold: 5,
		CycleInterval:       30 * time.Second,
		SignatureTolerance:  5 * time.Minute,
		MaxBodyBytes:        200 << 10,
		IngestRateLimit:     0,
		StoreRetries:        3,
		StoreRetryBackoff:   []time.Duration{50 * time.Millisecond, 250 * time.Millisecond},
		NotifyTimeout:       10 * time.Second,
	}
}
