// Command prismd runs the Prism ingestion daemon: the webhook API, the
// background projector, and optional retention purging, backed by MongoDB
// or the in-memory store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	gu "github.com/xraph/go-utils/metrics"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	prism "github.com/nexlead/prism"
	"github.com/nexlead/prism/api"
	"github.com/nexlead/prism/observability"
	"github.com/nexlead/prism/store"
	"github.com/nexlead/prism/store/memory"
	mongostore "github.com/nexlead/prism/store/mongo"
	"github.com/nexlead/prism/trigger"
)

type config struct {
	ListenAddr string `env:"PRISM_LISTEN_ADDR" envDefault:":8080"`

	// StoreDriver selects the persistence backend: "mongo" or "memory".
	// The memory driver exists for local development; it loses the inbox
	// on restart.
	StoreDriver   string `env:"PRISM_STORE_DRIVER" envDefault:"mongo"`
	MongoURI      string `env:"PRISM_MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"PRISM_MONGO_DATABASE" envDefault:"prism"`

	// RedisURL enables the cross-instance projector kick bus. Empty
	// keeps kicks process-local.
	RedisURL string `env:"PRISM_REDIS_URL"`

	WebhookSecret  string `env:"PRISM_WEBHOOK_SECRET,required"`
	ProjectorToken string `env:"PRISM_PROJECTOR_TOKEN,required"`
	Source         string `env:"PRISM_SOURCE" envDefault:"identity"`

	BatchSize           int           `env:"PRISM_BATCH_SIZE" envDefault:"25"`
	ReclaimCutoff       time.Duration `env:"PRISM_RECLAIM_CUTOFF" envDefault:"90s"`
	DeadLetterThreshold int           `env:"PRISM_DEAD_LETTER_THRESHOLD" envDefault:"5"`
	CycleInterval       time.Duration `env:"PRISM_CYCLE_INTERVAL" envDefault:"30s"`
	IngestRateLimit     int           `env:"PRISM_INGEST_RATE_LIMIT" envDefault:"0"`
	AlertWebhookURL     string        `env:"PRISM_ALERT_WEBHOOK_URL"`

	// RetentionMaxAge prunes processed events older than this. Zero
	// disables pruning.
	RetentionMaxAge   time.Duration `env:"PRISM_RETENTION_MAX_AGE" envDefault:"0"`
	RetentionInterval time.Duration `env:"PRISM_RETENTION_INTERVAL" envDefault:"1h"`

	ShutdownTimeout time.Duration `env:"PRISM_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        slog.Level    `env:"PRISM_LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "prismd:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []prism.Option{
		prism.WithStore(st),
		prism.WithLogger(logger),
		prism.WithBatchSize(cfg.BatchSize),
		prism.WithReclaimCutoff(cfg.ReclaimCutoff),
		prism.WithDeadLetterThreshold(cfg.DeadLetterThreshold),
		prism.WithCycleInterval(cfg.CycleInterval),
		prism.WithIngestRateLimit(cfg.IngestRateLimit),
		prism.WithMetrics(observability.NewMetrics(gu.NewMetricsCollector("prism"))),
		prism.WithTracer(observability.NewTracer()),
	}

	if cfg.AlertWebhookURL != "" {
		opts = append(opts, prism.WithAlertWebhook(cfg.AlertWebhookURL))
	}

	var bus *trigger.RedisBus
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		bus = trigger.NewRedisBus(ctx, redis.NewClient(redisOpts), trigger.DefaultChannel)
		defer bus.Close()
		opts = append(opts, prism.WithTriggerBus(bus))
	}

	p, err := prism.New(opts...)
	if err != nil {
		return fmt.Errorf("init prism: %w", err)
	}

	if err := p.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	p.Start(ctx)
	defer p.Stop(context.Background())

	if cfg.RetentionMaxAge > 0 {
		go purgeLoop(ctx, p, cfg.RetentionMaxAge, cfg.RetentionInterval, logger)
	}

	handler := api.NewHandler(p, api.Config{
		WebhookSecret:  cfg.WebhookSecret,
		ProjectorToken: cfg.ProjectorToken,
		Source:         cfg.Source,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("prismd listening", "addr", cfg.ListenAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		return memory.New(), func() {}, nil
	case "mongo":
		mdb := mongodriver.New()
		if err := mdb.Open(ctx, cfg.MongoURI, mongodriver.WithDatabase(cfg.MongoDatabase)); err != nil {
			return nil, nil, fmt.Errorf("open mongo: %w", err)
		}
		db, err := grove.Open(mdb)
		if err != nil {
			_ = mdb.Close()
			return nil, nil, fmt.Errorf("open mongo: %w", err)
		}
		return mongostore.New(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// purgeLoop prunes old processed events on a fixed interval.
func purgeLoop(ctx context.Context, p *prism.Prism, maxAge, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeProcessed(ctx, maxAge)
			if err != nil {
				logger.Error("retention purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("retention purge", "removed", n)
			}
		}
	}
}
