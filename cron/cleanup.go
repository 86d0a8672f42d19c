package cron

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner removes finished notifications past retention.
type Cleaner interface {
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
}

// CleanupWorker applies the retention policy on a fixed interval.
type CleanupWorker struct {
	cleaner       Cleaner
	retentionDays int
	interval      time.Duration
	logger        *zap.Logger
}

func NewCleanupWorker(cleaner Cleaner, retentionDays int, interval time.Duration, logger *zap.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &CleanupWorker{cleaner: cleaner, retentionDays: retentionDays, interval: interval, logger: logger}
}

// Start blocks until ctx is cancelled. A non-positive retention disables it.
func (w *CleanupWorker) Start(ctx context.Context) {
	if w.retentionDays <= 0 {
		w.logger.Info("[Cleanup] Retention disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *CleanupWorker) RunOnce(ctx context.Context) int64 {
	deleted, err := w.cleaner.CleanupOlderThan(ctx, w.retentionDays)
	if err != nil {
		w.logger.Error("[Cleanup] Retention run failed", zap.Error(err))
		return 0
	}
	return deleted
}
