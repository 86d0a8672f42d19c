package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	notificationRepo "tripnotify/database/repository/notification"
	userRepo "tripnotify/database/repository/user"
	"tripnotify/models"
	"tripnotify/services/channels"
	"tripnotify/services/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scriptedAdapter returns the scripted errors in order, then succeeds.
type scriptedAdapter struct {
	channel models.Channel
	mu      sync.Mutex
	script  []error
	calls   int
	last    models.Recipient
	onSend  func(n *models.Notification)
}

func (a *scriptedAdapter) Channel() models.Channel { return a.channel }

func (a *scriptedAdapter) Send(_ context.Context, n *models.Notification, _, _ string, r models.Recipient) (channels.Receipt, error) {
	a.mu.Lock()
	a.calls++
	a.last = r
	var err error
	if len(a.script) > 0 {
		err = a.script[0]
		a.script = a.script[1:]
	}
	hook := a.onSend
	a.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return channels.Receipt{}, err
	}
	return channels.Receipt{ExternalID: "ext-" + n.ID, Provider: "fake"}, nil
}

func (a *scriptedAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recordedRetry struct {
	id      string
	attempt int
	at      time.Time
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	retries []recordedRetry
}

func (f *fakeEnqueuer) EnqueueDispatch(_ context.Context, id string, attempt int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, recordedRetry{id, attempt, at})
	return nil
}

type fixture struct {
	svc   *DefaultNotificationService
	store *notificationRepo.MemoryStore
	users *userRepo.MemoryUserRepo
	email *scriptedAdapter
	sms   *scriptedAdapter
	queue *fakeEnqueuer
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: notificationRepo.NewMemoryStore(),
		users: userRepo.NewMemoryUserRepo(models.UserContact{ID: "u-1", Name: "Ana", Email: "ana@example.com", Phone: "13800000000"}),
		email: &scriptedAdapter{channel: models.ChannelEmail},
		sms:   &scriptedAdapter{channel: models.ChannelSMS},
		queue: &fakeEnqueuer{},
		clock: &fakeClock{t: t0},
	}
	svc, err := NewDefaultNotificationService(Deps{
		Notifications: f.store,
		Templates:     f.store,
		Configs:       f.store,
		Users:         f.users,
		Adapters:      channels.NewRegistry(f.email, f.sms, channels.NewInAppAdapter()),
		Retries:       f.queue,
		Logger:        zaptest.NewLogger(t),
	}, Config{MaxRetries: 3, RetryBaseDelay: 30 * time.Second, RetryMaxDelay: 10 * time.Minute, Owner: "test"})
	require.NoError(t, err)
	svc.SetClock(f.clock.Now)
	f.svc = svc
	return f
}

func emailRequest() CreateNotificationRequest {
	return CreateNotificationRequest{
		UserID:  "u-1",
		OrderID: "o-1",
		Type:    models.TypeBookingConfirmed,
		Channel: models.ChannelEmail,
		Title:   "Booking confirmed",
		Content: "See you soon",
	}
}

func transientErr() error {
	return &channels.DeliveryError{Channel: models.ChannelEmail, Reason: "smtp deferred"}
}

func TestInAppIsSentWithoutGateway(t *testing.T) {
	f := newFixture(t)
	req := emailRequest()
	req.Channel = models.ChannelInApp

	id, err := f.svc.CreateAndSendNotification(context.Background(), req)
	require.NoError(t, err)

	n, err := f.svc.GetNotification(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.Empty(t, n.ClaimedBy)
	assert.Zero(t, f.email.Calls()+f.sms.Calls())
}

func TestTransientFailuresStopAtRetryCap(t *testing.T) {
	f := newFixture(t)
	f.email.script = []error{transientErr(), transientErr(), transientErr(), transientErr()}
	ctx := context.Background()

	res, err := f.svc.Dispatch(ctx, emailRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)
	id := res.NotificationID

	n, _ := f.svc.GetNotification(ctx, id)
	assert.Equal(t, 1, n.RetryCount)
	assert.True(t, n.ScheduledAt.Equal(t0.Add(30*time.Second)))

	// not due yet
	res, err = f.svc.SendNotification(ctx, id)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, f.email.Calls())

	f.clock.Advance(31 * time.Second)
	_, err = f.svc.SendNotification(ctx, id)
	require.NoError(t, err)
	n, _ = f.svc.GetNotification(ctx, id)
	assert.Equal(t, 2, n.RetryCount)
	assert.True(t, n.ScheduledAt.Equal(t0.Add(31*time.Second+60*time.Second)))

	f.clock.Advance(2 * time.Minute)
	res, err = f.svc.SendNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)

	n, _ = f.svc.GetNotification(ctx, id)
	assert.Equal(t, models.StatusFailed, n.Status)
	assert.Equal(t, 3, n.RetryCount)
	assert.NotEmpty(t, n.ErrorMessage)
	assert.Equal(t, 3, f.email.Calls())

	require.Len(t, f.queue.retries, 2)
	assert.Equal(t, 1, f.queue.retries[0].attempt)
	assert.Equal(t, 2, f.queue.retries[1].attempt)
}

func TestTransientTwiceThenSuccess(t *testing.T) {
	f := newFixture(t)
	f.email.script = []error{transientErr(), transientErr()}
	ctx := context.Background()

	id, err := f.svc.CreateAndSendNotification(ctx, emailRequest())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		f.clock.Advance(time.Hour)
		_, err := f.svc.SendNotification(ctx, id)
		require.NoError(t, err)
	}

	n, _ := f.svc.GetNotification(ctx, id)
	assert.Equal(t, models.StatusSent, n.Status)
	assert.Equal(t, 2, n.RetryCount)
	assert.Empty(t, n.ErrorMessage)
	assert.Equal(t, "ext-"+id, n.Metadata[models.MetaExternalID])
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	f := newFixture(t)
	f.email.script = []error{&channels.DeliveryError{Channel: models.ChannelEmail, Permanent: true, Reason: "mailbox unavailable"}}

	res, err := f.svc.Dispatch(context.Background(), emailRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)

	n, _ := f.svc.GetNotification(context.Background(), res.NotificationID)
	assert.Equal(t, models.StatusFailed, n.Status)
	assert.Zero(t, n.RetryCount)
	assert.Contains(t, n.ErrorMessage, "mailbox unavailable")
	assert.Empty(t, f.queue.retries)
}

func TestCancelDuringDeliveryWins(t *testing.T) {
	f := newFixture(t)
	f.email.onSend = func(n *models.Notification) {
		_, err := f.svc.CancelNotification(context.Background(), n.ID)
		require.NoError(t, err)
	}

	res, err := f.svc.Dispatch(context.Background(), emailRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.Status)

	n, _ := f.svc.GetNotification(context.Background(), res.NotificationID)
	assert.Equal(t, models.StatusCancelled, n.Status)
	assert.Nil(t, n.SentAt)
}

// ctxCheckingStore fails outcome writes once ctx is done, as the mongo driver does.
type ctxCheckingStore struct {
	*notificationRepo.MemoryStore
}

func (s ctxCheckingStore) Apply(ctx context.Context, id string, cond notificationRepo.UpdateCondition, patch notificationRepo.NotificationPatch) (*models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Apply(ctx, id, cond, patch)
}

// hangingAdapter holds the send until the caller's context is done. With
// deliver set the message still counts as delivered.
type hangingAdapter struct {
	deliver bool
}

func (hangingAdapter) Channel() models.Channel { return models.ChannelEmail }

func (a hangingAdapter) Send(ctx context.Context, n *models.Notification, _, _ string, _ models.Recipient) (channels.Receipt, error) {
	<-ctx.Done()
	if a.deliver {
		return channels.Receipt{ExternalID: "ext-" + n.ID, Provider: "fake"}, nil
	}
	return channels.Receipt{}, &channels.DeliveryError{Channel: models.ChannelEmail, Reason: "gateway timeout", Err: ctx.Err()}
}

func newCtxCheckingService(t *testing.T, adapter channels.Adapter) (*DefaultNotificationService, *notificationRepo.MemoryStore) {
	t.Helper()
	store := notificationRepo.NewMemoryStore()
	svc, err := NewDefaultNotificationService(Deps{
		Notifications: ctxCheckingStore{store},
		Templates:     store,
		Configs:       store,
		Users:         userRepo.NewMemoryUserRepo(models.UserContact{ID: "u-1", Email: "ana@example.com"}),
		Adapters:      channels.NewRegistry(adapter),
		Logger:        zaptest.NewLogger(t),
	}, Config{MaxRetries: 3, Owner: "w"})
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return t0 })
	return svc, store
}

func TestOutcomeRecordedAfterCallerGivesUp(t *testing.T) {
	t.Run("failed send schedules a retry", func(t *testing.T) {
		svc, store := newCtxCheckingService(t, hangingAdapter{})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		res, err := svc.Dispatch(ctx, emailRequest())
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, res.Status)

		n, err := store.GetByID(context.Background(), res.NotificationID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, n.Status)
		assert.Equal(t, 1, n.RetryCount)
		assert.Contains(t, n.ErrorMessage, "gateway timeout")
		assert.Empty(t, n.ClaimedBy)
	})

	t.Run("delivered message is recorded as sent", func(t *testing.T) {
		svc, store := newCtxCheckingService(t, hangingAdapter{deliver: true})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		res, err := svc.Dispatch(ctx, emailRequest())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, models.StatusSent, res.Status)

		n, err := store.GetByID(context.Background(), res.NotificationID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSent, n.Status)
		require.NotNil(t, n.SentAt)
		assert.Empty(t, n.ClaimedBy)
	})
}

func TestCancelBeatsScheduledRetry(t *testing.T) {
	f := newFixture(t)
	f.email.script = []error{transientErr()}
	ctx := context.Background()

	id, err := f.svc.CreateAndSendNotification(ctx, emailRequest())
	require.NoError(t, err)
	_, err = f.svc.CancelNotification(ctx, id)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.svc.SendNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.Status)
	assert.Equal(t, 1, f.email.Calls())

	_, err = f.svc.CancelNotification(ctx, id)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestDisabledChannelPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disabled := false
	_, err := f.svc.UpdateUserConfig(ctx, "u-1", models.ChannelEmail, ConfigUpdate{IsEnabled: &disabled})
	require.NoError(t, err)

	_, err = f.svc.CreateAndSendNotification(ctx, emailRequest())
	assert.ErrorIs(t, err, ErrChannelDisabled)

	page, err := f.svc.ListNotifications(ctx, models.NotificationFilter{UserID: "u-1"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := emailRequest()
	req.Title = ""
	_, err := f.svc.CreateAndSendNotification(ctx, req)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))

	req = emailRequest()
	req.Channel = "FAX"
	_, err = f.svc.CreateAndSendNotification(ctx, req)
	require.True(t, errors.As(err, &vErr))

	req = emailRequest()
	req.Metadata = models.Metadata{"favouriteColour": "blue"}
	_, err = f.svc.CreateAndSendNotification(ctx, req)
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Error(), "favouriteColour")
}

func TestTemplateRendering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.svc.CreateTemplate(ctx, TemplateRequest{
		Name:    "booking-email",
		Type:    models.TypeBookingConfirmed,
		Channel: models.ChannelEmail,
		Title:   "Booking {{confirmationNumber}}",
		Content: "Hi {{customerName}}, your {{serviceName}} is confirmed.",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"confirmationNumber", "customerName", "serviceName"}, tpl.Variables)

	req := CreateNotificationRequest{
		UserID:     "u-1",
		Type:       models.TypeBookingConfirmed,
		Channel:    models.ChannelEmail,
		TemplateID: tpl.ID,
		Metadata: models.Metadata{
			models.MetaConfirmationNumber: "TRP-42",
			models.MetaCustomerName:       "Ana",
			models.MetaServiceName:        "Great Wall tour",
		},
	}
	id, err := f.svc.CreateAndSendNotification(ctx, req)
	require.NoError(t, err)
	n, _ := f.svc.GetNotification(ctx, id)
	assert.Equal(t, "Booking TRP-42", n.Title)
	assert.Equal(t, "Hi Ana, your Great Wall tour is confirmed.", n.Content)

	delete(req.Metadata, models.MetaServiceName)
	_, err = f.svc.CreateAndSendNotification(ctx, req)
	var tErr *TemplateError
	require.True(t, errors.As(err, &tErr))
	var rErr *template.RenderError
	require.True(t, errors.As(err, &rErr))
	assert.Equal(t, []string{"serviceName"}, rErr.Missing)
}

func TestTemplateVariablesMustBeMetadataKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := TemplateRequest{
		Name:    "promo-sms",
		Type:    models.TypePromotional,
		Channel: models.ChannelSMS,
		Content: "Use {{promoCode}} before {{expiresAt}} on {{serviceName}} or {{discount}}",
	}

	_, err := f.svc.CreateTemplate(ctx, req)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Len(t, vErr.Problems, 1)
	assert.Contains(t, vErr.Problems[0], "discount, serviceName")

	req.Content = "Use {{promoCode}} before {{expiresAt}}"
	tpl, err := f.svc.CreateTemplate(ctx, req)
	require.NoError(t, err)

	req.Content = "Hi {{customerName}}, {{confirmationNumber}}"
	_, err = f.svc.UpdateTemplate(ctx, tpl.ID, req)
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Problems[0], "confirmationNumber")
}

func TestTemplateSyntaxIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateTemplate(context.Background(), TemplateRequest{
		Name: "bad", Type: models.TypePromotional, Channel: models.ChannelSMS, Content: "Use {{code",
	})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
}

func TestScheduledNotificationWaits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := t0.Add(time.Hour)
	req := emailRequest()
	req.ScheduledAt = &at

	res, err := f.svc.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Zero(t, f.email.Calls())

	claimed, err := f.svc.ClaimDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	f.clock.Advance(time.Hour)
	claimed, err = f.svc.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	out := f.svc.ProcessClaimed(ctx, &claimed[0])
	assert.True(t, out.Success)
}

func TestMetadataContactOverridesProfile(t *testing.T) {
	f := newFixture(t)
	req := emailRequest()
	req.Channel = models.ChannelSMS
	req.Metadata = models.Metadata{models.MetaCustomerPhone: "+8613911112222"}

	_, err := f.svc.CreateAndSendNotification(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "+8613911112222", f.sms.last.Phone)
	assert.Equal(t, "ana@example.com", f.sms.last.Email)
}

func TestUnknownUserFailsPermanently(t *testing.T) {
	f := newFixture(t)
	req := emailRequest()
	req.UserID = "ghost"

	res, err := f.svc.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Zero(t, f.email.Calls())
}

func TestAdminRetryResetsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.email.script = []error{&channels.DeliveryError{Channel: models.ChannelEmail, Permanent: true, Reason: "rejected"}}

	id, err := f.svc.CreateAndSendNotification(ctx, emailRequest())
	require.NoError(t, err)

	count, err := f.svc.RetryNotifications(ctx, []string{id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	res, err := f.svc.SendNotification(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestUpdateStatusReceipts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.CreateAndSendNotification(ctx, emailRequest())
	require.NoError(t, err)

	n, err := f.svc.UpdateStatus(ctx, id, models.StatusDelivered, "")
	require.NoError(t, err)
	assert.NotNil(t, n.DeliveredAt)

	_, err = f.svc.UpdateStatus(ctx, id, models.StatusPending, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetUserConfigsCreatesDefaults(t *testing.T) {
	f := newFixture(t)
	cfgs, err := f.svc.GetUserConfigs(context.Background(), "u-9")
	require.NoError(t, err)
	require.Len(t, cfgs, len(models.AllChannels))
	for _, c := range cfgs {
		assert.True(t, c.IsEnabled)
	}
}

func TestBackoffDelay(t *testing.T) {
	base, ceiling := 30*time.Second, 5*time.Minute
	assert.Equal(t, 30*time.Second, backoffDelay(1, base, ceiling))
	assert.Equal(t, 60*time.Second, backoffDelay(2, base, ceiling))
	assert.Equal(t, 120*time.Second, backoffDelay(3, base, ceiling))
	assert.Equal(t, ceiling, backoffDelay(10, base, ceiling))
}
