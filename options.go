package prism

import (
	"log/slog"
	"time"

	"github.com/nexlead/prism/deadletter"
	"github.com/nexlead/prism/observability"
	"github.com/nexlead/prism/store"
	"github.com/nexlead/prism/trigger"
)

// WithStore sets the persistence backend for the Prism instance.
func WithStore(s store.Store) Option {
	return func(p *Prism) error {
		p.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Prism instance.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prism) error {
		p.logger = logger
		return nil
	}
}

// WithTriggerBus sets the advisory wake-up bus. Defaults to an in-process
// bus; use trigger.NewRedisBus to fan kicks out across workers.
func WithTriggerBus(bus trigger.Bus) Option {
	return func(p *Prism) error {
		p.bus = bus
		return nil
	}
}

// WithNotifier sets the dead-letter alert channel.
func WithNotifier(n deadletter.Notifier) Option {
	return func(p *Prism) error {
		p.notifier = n
		return nil
	}
}

// WithAlertWebhook wires a webhook dead-letter alert channel targeting the
// given URL.
func WithAlertWebhook(url string) Option {
	return func(p *Prism) error {
		p.notifier = deadletter.NewWebhookNotifier(url, p.config.NotifyTimeout)
		return nil
	}
}

// WithMetrics sets the metrics instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Prism) error {
		p.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Prism) error {
		p.tracer = t
		return nil
	}
}

// WithBatchSize sets the maximum number of events claimed per cycle.
func WithBatchSize(n int) Option {
	return func(p *Prism) error {
		p.config.BatchSize = n
		return nil
	}
}

// WithMaxParallelClaims sets the number of concurrent claim attempts
// issued at the start of a batch.
func WithMaxParallelClaims(n int) Option {
	return func(p *Prism) error {
		p.config.MaxParallelClaims = n
		return nil
	}
}

// WithReclaimCutoff sets how long a claim may go without a heartbeat
// before it counts as abandoned.
func WithReclaimCutoff(d time.Duration) Option {
	return func(p *Prism) error {
		p.config.ReclaimCutoff = d
		return nil
	}
}

// WithDeadLetterThreshold sets the attempts count at which a failing
// event is dead-lettered.
func WithDeadLetterThreshold(n int) Option {
	return func(p *Prism) error {
		p.config.DeadLetterThreshold = n
		return nil
	}
}

// WithCycleInterval sets the trigger runner's backstop ticker period.
func WithCycleInterval(d time.Duration) Option {
	return func(p *Prism) error {
		p.config.CycleInterval = d
		return nil
	}
}

// WithSignatureTolerance sets the replay window around server time within
// which a webhook timestamp is accepted.
func WithSignatureTolerance(d time.Duration) Option {
	return func(p *Prism) error {
		p.config.SignatureTolerance = d
		return nil
	}
}

// WithMaxBodyBytes caps the accepted webhook body size.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Prism) error {
		p.config.MaxBodyBytes = n
		return nil
	}
}

// WithIngestRateLimit sets the per-source ingestion rate in events per
// second. Zero disables rate limiting.
func WithIngestRateLimit(perSec int) Option {
	return func(p *Prism) error {
		p.config.IngestRateLimit = perSec
		return nil
	}
}

// WithStoreRetry sets the fixed retry applied to transient store failures
// on the hot paths.
func WithStoreRetry(attempts int, backoff ...time.Duration) Option {
	return func(p *Prism) error {
		p.config.StoreRetries = attempts
		if len(backoff) > 0 {
			p.config.StoreRetryBackoff = backoff
		}
		return nil
	}
}
