package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	notificationRepo "tripnotify/database/repository/notification"
	userRepo "tripnotify/database/repository/user"
	"tripnotify/models"
	"tripnotify/services/channels"
	"tripnotify/services/notification"
	"tripnotify/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var start = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

type eligibility map[string]bool

func (e eligibility) IsReminderEligible(_ context.Context, orderID string) (bool, error) {
	return e[orderID], nil
}

func newService(t *testing.T, clock *time.Time) *notification.DefaultNotificationService {
	t.Helper()
	store := notificationRepo.NewMemoryStore()
	svc, err := notification.NewDefaultNotificationService(notification.Deps{
		Notifications: store,
		Templates:     store,
		Configs:       store,
		Users:         userRepo.NewMemoryUserRepo(),
		Adapters:      channels.NewRegistry(channels.NewInAppAdapter()),
		Logger:        zaptest.NewLogger(t),
	}, notification.Config{Owner: "poller-test", Lease: time.Minute})
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return *clock })
	return svc
}

func schedule(t *testing.T, svc *notification.DefaultNotificationService, typ models.NotificationType, orderID string, at time.Time) string {
	t.Helper()
	res, err := svc.Dispatch(context.Background(), notification.CreateNotificationRequest{
		UserID:      "u-1",
		OrderID:     orderID,
		Type:        typ,
		Channel:     models.ChannelInApp,
		Title:       "Heads up",
		Content:     "Your tour starts tomorrow",
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, res.Status)
	return res.NotificationID
}

func TestPollerDeliversOnlyDueNotifications(t *testing.T) {
	clock := start
	svc := newService(t, &clock)
	ctx := context.Background()
	due := schedule(t, svc, models.TypeSystemAnnouncement, "", start.Add(time.Minute))
	later := schedule(t, svc, models.TypeSystemAnnouncement, "", start.Add(time.Hour))

	p := NewPoller(svc, nil, PollerConfig{BatchSize: 10, Concurrency: 2}, zaptest.NewLogger(t))
	assert.Zero(t, p.Tick(ctx))

	clock = start.Add(2 * time.Minute)
	assert.Equal(t, 1, p.Tick(ctx))

	n, err := svc.GetNotification(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, n.Status)
	n, err = svc.GetNotification(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, n.Status)

	// already sent, nothing left to claim
	assert.Zero(t, p.Tick(ctx))
}

func TestPollerDiscardsIneligibleReminders(t *testing.T) {
	clock := start
	svc := newService(t, &clock)
	ctx := context.Background()
	keep := schedule(t, svc, models.TypeBookingReminder, "o-live", start.Add(time.Second))
	drop := schedule(t, svc, models.TypeBookingReminder, "o-cancelled", start.Add(time.Second))

	clock = start.Add(2 * time.Second)
	p := NewPoller(svc, eligibility{"o-live": true}, PollerConfig{}, zaptest.NewLogger(t))
	assert.Equal(t, 1, p.Tick(ctx))

	n, _ := svc.GetNotification(ctx, keep)
	assert.Equal(t, models.StatusSent, n.Status)
	n, _ = svc.GetNotification(ctx, drop)
	assert.Equal(t, models.StatusCancelled, n.Status)
	assert.Equal(t, reminderIneligible, n.ErrorMessage)
}

type panickyDispatcher struct {
	processed atomic.Int32
}

func (d *panickyDispatcher) ClaimDue(context.Context, int) ([]models.Notification, error) {
	return []models.Notification{{ID: "boom"}, {ID: "fine"}}, nil
}

func (d *panickyDispatcher) ClaimNotification(context.Context, string) (*models.Notification, error) {
	return nil, nil
}

func (d *panickyDispatcher) ProcessClaimed(_ context.Context, n *models.Notification) models.DeliveryResult {
	if n.ID == "boom" {
		panic("adapter exploded")
	}
	d.processed.Add(1)
	return models.DeliveryResult{Success: true}
}

func (d *panickyDispatcher) DiscardClaimed(context.Context, *models.Notification, string) error {
	return nil
}

func TestPollerRecoversFromPanics(t *testing.T) {
	d := &panickyDispatcher{}
	p := NewPoller(d, nil, PollerConfig{Concurrency: 1}, zaptest.NewLogger(t))
	assert.NotPanics(t, func() {
		assert.Equal(t, 1, p.Tick(context.Background()))
	})
	assert.Equal(t, int32(1), d.processed.Load())
}

// claimPanicDispatcher blows up inside the claim query itself.
type claimPanicDispatcher struct {
	panickyDispatcher
}

func (d *claimPanicDispatcher) ClaimDue(context.Context, int) ([]models.Notification, error) {
	panic("cursor exploded")
}

func TestPollerSurvivesPanicInClaim(t *testing.T) {
	d := &claimPanicDispatcher{}
	p := NewPoller(d, nil, PollerConfig{}, zaptest.NewLogger(t))
	assert.NotPanics(t, func() {
		assert.Zero(t, p.Tick(context.Background()))
	})
	assert.Zero(t, d.processed.Load())
}

func TestDispatchTaskDeliversClaimable(t *testing.T) {
	clock := start
	svc := newService(t, &clock)
	ctx := context.Background()
	id := schedule(t, svc, models.TypeSystemAnnouncement, "", start.Add(time.Minute))

	w := &DispatchWorker{svc: svc, logger: zaptest.NewLogger(t)}
	task, _, err := tasks.NewDispatchTask(tasks.DispatchPayload{NotificationID: id, Attempt: 1}, start.Add(time.Minute))
	require.NoError(t, err)

	// early delivery of the task is ignored
	require.NoError(t, w.HandleDispatchTask(ctx, task))
	n, _ := svc.GetNotification(ctx, id)
	assert.Equal(t, models.StatusPending, n.Status)

	clock = start.Add(time.Minute)
	require.NoError(t, w.HandleDispatchTask(ctx, task))
	n, _ = svc.GetNotification(ctx, id)
	assert.Equal(t, models.StatusSent, n.Status)

	// a duplicate after delivery is a no-op
	require.NoError(t, w.HandleDispatchTask(ctx, task))
}

func TestDispatchTaskRejectsBadPayload(t *testing.T) {
	w := &DispatchWorker{svc: &panickyDispatcher{}, logger: zaptest.NewLogger(t)}
	err := w.HandleDispatchTask(context.Background(), asynq.NewTask(tasks.TypeDispatchNotification, []byte("nope")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

type countingCleaner struct {
	days int
}

func (c *countingCleaner) CleanupOlderThan(_ context.Context, days int) (int64, error) {
	c.days = days
	return 7, nil
}

func TestCleanupRunOnce(t *testing.T) {
	c := &countingCleaner{}
	w := NewCleanupWorker(c, 30, time.Hour, zaptest.NewLogger(t))
	assert.Equal(t, int64(7), w.RunOnce(context.Background()))
	assert.Equal(t, 30, c.days)
}
