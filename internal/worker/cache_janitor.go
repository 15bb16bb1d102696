package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is anything that can drop its expired entries on demand.
type Sweeper interface {
	PurgeExpired() int
}

// CacheJanitor periodically purges expired entries from in-process caches.
// Reads already skip expired entries; the janitor keeps memory from growing
// with keys that are never read again.
type CacheJanitor struct {
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
}

// NewCacheJanitor creates a new cache janitor
func NewCacheJanitor(sweeper Sweeper, logger *slog.Logger, interval time.Duration) *CacheJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheJanitor{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the janitor loop. It runs until ctx is cancelled.
func (j *CacheJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("cache janitor started", slog.Duration("interval", j.interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cache janitor stopped")
			return
		case <-ticker.C:
			if purged := j.sweeper.PurgeExpired(); purged > 0 {
				j.logger.Debug("purged expired cache entries", slog.Int("count", purged))
			}
		}
	}
}
