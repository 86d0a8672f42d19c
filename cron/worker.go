package cron

import (
	"context"
	"fmt"
	"time"

	"tripnotify/models"
	"tripnotify/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Dispatcher is the part of the notification service background workers drive.
type Dispatcher interface {
	ClaimDue(ctx context.Context, limit int) ([]models.Notification, error)
	ClaimNotification(ctx context.Context, id string) (*models.Notification, error)
	ProcessClaimed(ctx context.Context, n *models.Notification) models.DeliveryResult
	DiscardClaimed(ctx context.Context, n *models.Notification, reason string) error
}

// ReminderChecker decides whether a booking reminder is still wanted.
type ReminderChecker interface {
	IsReminderEligible(ctx context.Context, orderID string) (bool, error)
}

const reminderIneligible = "order no longer eligible for reminder"

// deliverClaimed runs the reminder guard and then delivers. It reports false
// when the notification was left alone or discarded.
func deliverClaimed(ctx context.Context, svc Dispatcher, reminders ReminderChecker, n *models.Notification, logger *zap.Logger) bool {
	if n.Type == models.TypeBookingReminder && n.OrderID != "" && reminders != nil {
		ok, err := reminders.IsReminderEligible(ctx, n.OrderID)
		if err != nil {
			// claim expires after the lease and the reminder is re-checked then
			logger.Warn("Reminder eligibility check failed", zap.String("notificationId", n.ID), zap.Error(err))
			return false
		}
		if !ok {
			if err := svc.DiscardClaimed(ctx, n, reminderIneligible); err != nil {
				logger.Error("Failed to discard reminder", zap.String("notificationId", n.ID), zap.Error(err))
			}
			return false
		}
	}
	svc.ProcessClaimed(ctx, n)
	return true
}

// DispatchWorker consumes notification:dispatch tasks scheduled for retries.
type DispatchWorker struct {
	server    *asynq.Server
	svc       Dispatcher
	reminders ReminderChecker
	logger    *zap.Logger
}

func NewDispatchWorker(redisOpt asynq.RedisClientOpt, concurrency int, svc Dispatcher, reminders ReminderChecker, logger *zap.Logger) *DispatchWorker {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)
	return &DispatchWorker{server: srv, svc: svc, reminders: reminders, logger: logger}
}

// Start runs the worker until ctx is cancelled, retrying startup a few times.
func (w *DispatchWorker) Start(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDispatchNotification, w.HandleDispatchTask)

	const maxAttempts = 5
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.server.Start(mux); err == nil {
			break
		}
		w.logger.Warn("[DispatchWorker] Failed to start worker",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*2) * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("dispatch worker did not start: %w", err)
	}

	w.logger.Info("[DispatchWorker] Started")
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
		w.logger.Info("[DispatchWorker] Stopped")
	}()
	return nil
}

// HandleDispatchTask delivers the notification named by the task if it can
// still be claimed. Tasks for notifications handled elsewhere are dropped.
func (w *DispatchWorker) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	p, err := tasks.ParseDispatchPayload(task)
	if err != nil {
		w.logger.Error("[DispatchWorker] Invalid payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	n, err := w.svc.ClaimNotification(ctx, p.NotificationID)
	if err != nil {
		w.logger.Warn("[DispatchWorker] Claim failed", zap.String("notificationId", p.NotificationID), zap.Error(err))
		return nil
	}
	if n == nil {
		w.logger.Debug("[DispatchWorker] Notification not claimable, skipping",
			zap.String("notificationId", p.NotificationID),
			zap.Int("attempt", p.Attempt),
		)
		return nil
	}
	deliverClaimed(ctx, w.svc, w.reminders, n, w.logger)
	return nil
}
