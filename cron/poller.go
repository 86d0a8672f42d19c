package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tripnotify/models"
	"tripnotify/utils"

	"go.uber.org/zap"
)

// PollerConfig controls how often and how much the poller claims.
type PollerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// Poller periodically claims due notifications and delivers them.
type Poller struct {
	svc       Dispatcher
	reminders ReminderChecker
	cfg       PollerConfig
	logger    *zap.Logger
}

func NewPoller(svc Dispatcher, reminders ReminderChecker, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Poller{svc: svc, reminders: reminders, cfg: cfg, logger: logger}
}

// Start ticks until ctx is cancelled. It blocks.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	p.logger.Info("[Poller] Started", zap.Duration("interval", p.cfg.Interval), zap.Int("batchSize", p.cfg.BatchSize))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("[Poller] Stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick claims one batch and delivers it with bounded concurrency. It returns
// the number of notifications handed to delivery. Errors and panics from
// single items are logged and never escape.
func (p *Poller) Tick(ctx context.Context) int {
	claimed := p.claim(ctx)
	if len(claimed) == 0 {
		return 0
	}
	utils.SchedulerClaimed.Add(float64(len(claimed)))

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	for i := range claimed {
		n := &claimed[i]
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if p.processOne(ctx, n) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p.logger.Debug("[Poller] Tick finished", zap.Int("claimed", len(claimed)), zap.Int("delivered", delivered))
	return delivered
}

func (p *Poller) claim(ctx context.Context) (claimed []models.Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("[Poller] Panic while claiming",
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
			claimed = nil
		}
	}()
	claimed, err := p.svc.ClaimDue(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("[Poller] Claim failed", zap.Error(err))
	}
	return claimed
}

func (p *Poller) processOne(ctx context.Context, n *models.Notification) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("[Poller] Panic while delivering notification",
				zap.String("notificationId", n.ID),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
			ok = false
		}
	}()
	return deliverClaimed(ctx, p.svc, p.reminders, n, p.logger)
}
