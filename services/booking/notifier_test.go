package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	notificationRepo "tripnotify/database/repository/notification"
	orderRepo "tripnotify/database/repository/order"
	userRepo "tripnotify/database/repository/user"
	"tripnotify/models"
	"tripnotify/services/channels"
	"tripnotify/services/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var now = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func confirmedOrder() models.Order {
	return models.Order{
		ID:                 "o-1",
		UserID:             "u-1",
		ConfirmationNumber: "TRP-1001",
		ServiceName:        "Li River cruise",
		ServiceType:        "TOUR",
		BookingDate:        "2024-07-10",
		TotalAmount:        480,
		Currency:           "CNY",
		Status:             models.OrderConfirmed,
		ContactPhone:       "+8613800000000",
	}
}

type failingEmail struct{}

func (failingEmail) Channel() models.Channel { return models.ChannelEmail }

func (failingEmail) Send(context.Context, *models.Notification, string, string, models.Recipient) (channels.Receipt, error) {
	return channels.Receipt{}, &channels.DeliveryError{Channel: models.ChannelEmail, Permanent: true, Reason: "bounced"}
}

type recordingSMS struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSMS) Channel() models.Channel { return models.ChannelSMS }

func (r *recordingSMS) Send(_ context.Context, n *models.Notification, _ string, content string, _ models.Recipient) (channels.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, content)
	return channels.Receipt{ExternalID: "sms-" + n.ID, Provider: "fake"}, nil
}

type fixture struct {
	svc    *DefaultBookingNotificationService
	notify *notification.DefaultNotificationService
	store  *notificationRepo.MemoryStore
	orders *orderRepo.MemoryOrderRepo
	sms    *recordingSMS
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  notificationRepo.NewMemoryStore(),
		orders: orderRepo.NewMemoryOrderRepo(confirmedOrder()),
		sms:    &recordingSMS{},
	}
	users := userRepo.NewMemoryUserRepo(models.UserContact{ID: "u-1", Name: "Li Wei", Email: "li@example.com"})
	notify, err := notification.NewDefaultNotificationService(notification.Deps{
		Notifications: f.store,
		Templates:     f.store,
		Configs:       f.store,
		Users:         users,
		Adapters:      channels.NewRegistry(channels.NewInAppAdapter(), failingEmail{}, f.sms),
		Logger:        zaptest.NewLogger(t),
	}, notification.Config{Owner: "test"})
	require.NoError(t, err)
	clock := func() time.Time { return now }
	notify.SetClock(clock)
	f.notify = notify

	f.svc = NewDefaultBookingNotificationService(notify, f.orders, users, Options{}, zaptest.NewLogger(t))
	f.svc.SetClock(clock)
	return f
}

func TestConfirmationFansOutPerChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.svc.SendMultiChannelConfirmation(ctx, ConfirmationRequest{OrderID: "o-1"},
		[]models.Channel{models.ChannelInApp, models.ChannelEmail, models.ChannelSMS, models.ChannelSMS})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.StatusSent, results[models.ChannelInApp].Status)
	assert.Equal(t, models.StatusSent, results[models.ChannelSMS].Status)
	assert.Equal(t, models.StatusFailed, results[models.ChannelEmail].Status)
	assert.Contains(t, results[models.ChannelEmail].ErrorMessage, "bounced")

	require.Len(t, f.sms.texts, 1)
	assert.Contains(t, f.sms.texts[0], "TRP-1001")
	assert.Contains(t, f.sms.texts[0], "480.00 CNY")

	n, err := f.notify.GetNotification(ctx, results[models.ChannelInApp].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, models.TypeBookingConfirmed, n.Type)
	assert.Equal(t, "Li Wei", n.Metadata[models.MetaCustomerName])
	assert.Equal(t, "+8613800000000", n.Metadata[models.MetaCustomerPhone])
}

func TestStoredTemplateWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.notify.CreateTemplate(ctx, notification.TemplateRequest{
		Name:    "sms-confirm",
		Type:    models.TypeBookingConfirmed,
		Channel: models.ChannelSMS,
		Content: "[Trip] {{confirmationNumber}} confirmed",
	})
	require.NoError(t, err)

	_, err = f.svc.SendMultiChannelConfirmation(ctx, ConfirmationRequest{OrderID: "o-1"}, []models.Channel{models.ChannelSMS})
	require.NoError(t, err)
	require.Len(t, f.sms.texts, 1)
	assert.Equal(t, "[Trip] TRP-1001 confirmed", f.sms.texts[0])
}

func TestStatusChangeTypeMapping(t *testing.T) {
	cases := map[models.OrderStatus]models.NotificationType{
		models.OrderCancelled:     models.TypeOrderCancelled,
		models.OrderRefunded:      models.TypeOrderRefunded,
		models.OrderPaymentFailed: models.TypePaymentFailed,
		models.OrderConfirmed:     models.TypeOrderConfirmed,
		models.OrderCompleted:     models.TypeOrderConfirmed,
	}
	for status, want := range cases {
		assert.Equal(t, want, statusChangeType(status), status)
	}
}

func TestRefundUsesOrderTotalByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.svc.SendMultiChannelStatusChange(ctx, StatusChangeRequest{
		OrderID:   "o-1",
		OldStatus: models.OrderConfirmed,
		NewStatus: models.OrderRefunded,
	}, []models.Channel{models.ChannelInApp})
	require.NoError(t, err)

	n, err := f.notify.GetNotification(ctx, results[models.ChannelInApp].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, models.TypeOrderRefunded, n.Type)
	assert.Equal(t, "480.00", n.Metadata[models.MetaRefundAmount])
	assert.Contains(t, n.Content, "480.00 CNY")
}

func TestReminderIsScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.svc.SendMultiChannelReminder(ctx, ReminderRequest{OrderID: "o-1", OffsetMinutes: 90}, []models.Channel{models.ChannelInApp})
	require.NoError(t, err)
	res := results[models.ChannelInApp]
	assert.Equal(t, models.StatusPending, res.Status)

	n, err := f.notify.GetNotification(ctx, res.NotificationID)
	require.NoError(t, err)
	require.NotNil(t, n.ScheduledAt)
	assert.True(t, n.ScheduledAt.Equal(now.Add(90*time.Minute)))
	assert.Equal(t, "90", n.Metadata[models.MetaReminderOffset])
}

func TestReminderRequiresConfirmedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := confirmedOrder()
	o.Status = models.OrderCancelled
	f.orders.Put(o)

	_, err := f.svc.SendMultiChannelReminder(ctx, ReminderRequest{OrderID: "o-1"}, []models.Channel{models.ChannelInApp})
	assert.ErrorIs(t, err, ErrNotEligible)

	ok, err := f.svc.IsReminderEligible(ctx, "o-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.IsReminderEligible(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownOrderAndEmptyChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendMultiChannelConfirmation(ctx, ConfirmationRequest{OrderID: "nope"}, []models.Channel{models.ChannelInApp})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.SendMultiChannelConfirmation(ctx, ConfirmationRequest{OrderID: "o-1"}, nil)
	assert.ErrorIs(t, err, ErrNoChannels)
}

// slowDispatcher blocks on one channel until its context expires.
type slowDispatcher struct {
	slow models.Channel
}

func (d slowDispatcher) Dispatch(ctx context.Context, req notification.CreateNotificationRequest) (models.DeliveryResult, error) {
	if req.Channel == d.slow {
		<-ctx.Done()
		return models.DeliveryResult{}, ctx.Err()
	}
	return models.DeliveryResult{Success: true, NotificationID: "n-" + string(req.Channel), Status: models.StatusSent}, nil
}

func (slowDispatcher) FindActiveTemplate(context.Context, models.NotificationType, models.Channel) (*models.NotificationTemplate, error) {
	return nil, notification.ErrTemplateNotFound
}

func TestSlowChannelTimesOutAlone(t *testing.T) {
	orders := orderRepo.NewMemoryOrderRepo(confirmedOrder())
	svc := NewDefaultBookingNotificationService(slowDispatcher{slow: models.ChannelEmail}, orders,
		userRepo.NewMemoryUserRepo(), Options{ChannelTimeout: 20 * time.Millisecond, SendTimeout: 10 * time.Millisecond}, zaptest.NewLogger(t))

	results, err := svc.SendMultiChannelConfirmation(context.Background(), ConfirmationRequest{OrderID: "o-1"},
		[]models.Channel{models.ChannelEmail, models.ChannelPush})
	require.NoError(t, err)
	assert.True(t, results[models.ChannelPush].Success)
	assert.False(t, results[models.ChannelEmail].Success)
	assert.Contains(t, results[models.ChannelEmail].ErrorMessage, "deadline exceeded")
}

func TestChannelTimeoutCoversSendTimeout(t *testing.T) {
	orders := orderRepo.NewMemoryOrderRepo()
	users := userRepo.NewMemoryUserRepo()

	svc := NewDefaultBookingNotificationService(slowDispatcher{}, orders, users, Options{ChannelTimeout: 10 * time.Second}, nil)
	assert.Equal(t, 20*time.Second, svc.opts.ChannelTimeout)

	svc = NewDefaultBookingNotificationService(slowDispatcher{}, orders, users, Options{ChannelTimeout: 5 * time.Second, SendTimeout: 30 * time.Second}, nil)
	assert.Equal(t, 40*time.Second, svc.opts.ChannelTimeout)

	svc = NewDefaultBookingNotificationService(slowDispatcher{}, orders, users, Options{ChannelTimeout: time.Minute}, nil)
	assert.Equal(t, time.Minute, svc.opts.ChannelTimeout)
}

func TestDisabledChannelIsSkippedNotFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disabled := false
	_, err := f.notify.UpdateUserConfig(ctx, "u-1", models.ChannelSMS, notification.ConfigUpdate{IsEnabled: &disabled})
	require.NoError(t, err)

	results, err := f.svc.SendMultiChannelConfirmation(ctx, ConfirmationRequest{OrderID: "o-1"},
		[]models.Channel{models.ChannelInApp, models.ChannelSMS})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSent, results[models.ChannelInApp].Status)
	sms := results[models.ChannelSMS]
	assert.True(t, sms.Skipped)
	assert.False(t, sms.Success)
	assert.NotEqual(t, models.StatusFailed, sms.Status)
	assert.Empty(t, sms.NotificationID)
	assert.Empty(t, f.sms.texts)
}
