package auth

import (
	"context"
	"time"

	"github.com/shopcore/authcore/internal/clock"
	"github.com/shopcore/authcore/internal/logger"
	"github.com/shopcore/authcore/internal/repository"
)

const defaultJanitorInterval = time.Hour

// Retention window for terminal token rows. Keeping them around for a
// while preserves the reuse detection audit trail.
const defaultJanitorRetention = 30 * 24 * time.Hour

type JanitorConfig struct {
	// How often to run the cleanup pass
	Interval time.Duration

	// How long expired rows are retained before deletion
	Retention time.Duration

	Clock clock.Clock

	Logger logger.Logger
}

// Janitor periodically deletes refresh tokens that expired longer than
// the retention window ago. Expired tokens are already unusable, this
// only keeps the table from growing without bound.
type Janitor struct {
	storage   repository.Storage
	interval  time.Duration
	retention time.Duration
	clock     clock.Clock
	log       logger.Logger
}

func NewJanitor(cfg JanitorConfig, storage repository.Storage) *Janitor {
	if cfg.Interval == 0 {
		cfg.Interval = defaultJanitorInterval
	}
	if cfg.Retention == 0 {
		cfg.Retention = defaultJanitorRetention
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Janitor{
		storage:   storage,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		clock:     cfg.Clock,
		log:       cfg.Logger.With("component", "token-janitor"),
	}
}

// Run blocks until the context is canceled, sweeping on every tick.
// Errors are logged and the loop keeps going.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info("token janitor started", "interval", j.interval.String())

	for {
		select {
		case <-ctx.Done():
			j.log.Info("token janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := j.clock.Now().Add(-j.retention)

	deleted, err := j.storage.Refresh().DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		j.log.Error("error while deleting expired refresh tokens", "error", err)
		return
	}

	if deleted > 0 {
		j.log.Info("expired refresh tokens deleted", "count", deleted)
	}
}
