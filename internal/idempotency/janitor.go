package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// Janitor purges expired keys on an interval.
type Janitor struct {
	store    *Store
	logger   *slog.Logger
	interval time.Duration
}

func NewJanitor(store *Store, logger *slog.Logger, interval time.Duration) *Janitor {
	return &Janitor{store: store, logger: logger, interval: interval}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("idempotency janitor started", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("idempotency janitor stopped")
			return
		case <-ticker.C:
			n, err := j.store.Purge(ctx)
			if err != nil {
				j.logger.Error("failed to purge idempotency keys", "error", err)
				continue
			}
			if n > 0 {
				j.logger.Info("purged expired idempotency keys", "count", n)
			}
		}
	}
}
