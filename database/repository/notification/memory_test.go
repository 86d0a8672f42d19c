package notificationRepo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tripnotify/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *MemoryStore, id string, mutate func(n *models.Notification)) {
	t.Helper()
	n := &models.Notification{
		ID:        id,
		UserID:    "u-1",
		Type:      models.TypeBookingConfirmed,
		Channel:   models.ChannelEmail,
		Priority:  models.PriorityNormal,
		Status:    models.StatusPending,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	if mutate != nil {
		mutate(n)
	}
	require.NoError(t, s.Create(context.Background(), n))
}

func TestClaimDueRespectsScheduleAndLease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	future := t0.Add(time.Hour)
	seed(t, s, "due", nil)
	seed(t, s, "future", func(n *models.Notification) { n.ScheduledAt = &future })
	seed(t, s, "sent", func(n *models.Notification) { n.Status = models.StatusSent })

	claimed, err := s.ClaimDue(ctx, t0, time.Minute, "poller-a", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "due", claimed[0].ID)
	assert.Equal(t, "poller-a", claimed[0].ClaimedBy)

	// a second poller cannot take a live lease
	claimed, err = s.ClaimDue(ctx, t0.Add(30*time.Second), time.Minute, "poller-b", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// but can after the lease expires
	claimed, err = s.ClaimDue(ctx, t0.Add(2*time.Minute), time.Minute, "poller-b", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "poller-b", claimed[0].ClaimedBy)
}

func TestClaimByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "n", nil)

	_, err := s.ClaimByID(ctx, "missing", t0, time.Minute, "w")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.ClaimByID(ctx, "n", t0, time.Minute, "w")
	require.NoError(t, err)
	assert.Equal(t, "w", n.ClaimedBy)

	_, err = s.ClaimByID(ctx, "n", t0, time.Minute, "other")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConcurrentClaimDueHandsOutEachRowOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	const rows = 200
	for i := 0; i < rows; i++ {
		seed(t, s, fmt.Sprintf("n-%03d", i), nil)
	}

	const workers = 16
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		owners = make(map[string][]string)
	)
	for w := 0; w < workers; w++ {
		owner := fmt.Sprintf("worker-%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := s.ClaimDue(ctx, t0, time.Minute, owner, 7)
				if !assert.NoError(t, err) || len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, n := range claimed {
					owners[n.ID] = append(owners[n.ID], owner)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, owners, rows)
	for id, got := range owners {
		assert.Len(t, got, 1, "%s claimed by %v", id, got)
		stored, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, got[0], stored.ClaimedBy)
	}
}

func TestConcurrentClaimByIDHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "n", nil)

	const workers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
	)
	for w := 0; w < workers; w++ {
		owner := fmt.Sprintf("worker-%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ClaimByID(ctx, "n", t0, time.Minute, owner)
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, ErrConflict):
				losers.Add(1)
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
	assert.EqualValues(t, workers-1, losers.Load())
}

func TestApplyIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "n", nil)
	_, err := s.ClaimByID(ctx, "n", t0, time.Minute, "owner")
	require.NoError(t, err)

	sent := models.StatusSent
	_, err = s.Apply(ctx, "n", UpdateCondition{Statuses: []models.NotificationStatus{models.StatusPending}, ClaimedBy: "intruder"},
		NotificationPatch{Status: &sent})
	assert.ErrorIs(t, err, ErrConflict)

	n, err := s.Apply(ctx, "n", UpdateCondition{Statuses: []models.NotificationStatus{models.StatusPending}, ClaimedBy: "owner"},
		NotificationPatch{Status: &sent, SentAt: &t0, Metadata: models.Metadata{models.MetaExternalID: "x"}, ReleaseClaim: true, At: t0})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, n.Status)
	assert.Equal(t, "x", n.Metadata[models.MetaExternalID])
	assert.Empty(t, n.ClaimedBy)
	assert.Nil(t, n.ClaimedAt)
}

func TestCancelBeatsClaimOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "n", nil)
	_, err := s.ClaimByID(ctx, "n", t0, time.Minute, "owner")
	require.NoError(t, err)

	n, err := s.Cancel(ctx, "n", t0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, n.Status)

	failed := models.StatusFailed
	_, err = s.Apply(ctx, "n", UpdateCondition{Statuses: []models.NotificationStatus{models.StatusPending}, ClaimedBy: "owner"},
		NotificationPatch{Status: &failed})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Cancel(ctx, "n", t0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "n", func(n *models.Notification) { n.Status = models.StatusSent })

	n, err := s.UpdateStatus(ctx, "n", models.StatusDelivered, "", t0)
	require.NoError(t, err)
	require.NotNil(t, n.DeliveredAt)

	_, err = s.UpdateStatus(ctx, "n", models.StatusFailed, "bounced", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.UpdateStatus(ctx, "n", models.StatusPending, "", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkReadOnlyInAppUnread(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "inapp", func(n *models.Notification) { n.Channel = models.ChannelInApp; n.Status = models.StatusSent })
	seed(t, s, "email", nil)
	seed(t, s, "other-user", func(n *models.Notification) { n.Channel = models.ChannelInApp; n.UserID = "u-2" })

	count, err := s.MarkRead(ctx, "u-1", []string{"inapp", "email", "other-user"}, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = s.MarkRead(ctx, "u-1", []string{"inapp"}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)

	n, _ := s.GetByID(ctx, "inapp")
	assert.True(t, n.ReadAt.Equal(t0))
}

func TestRetryFailedResetsCounters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "f", func(n *models.Notification) {
		n.Status = models.StatusFailed
		n.RetryCount = 3
		n.ErrorMessage = "boom"
	})
	seed(t, s, "p", nil)

	count, err := s.RetryFailed(ctx, []string{"f", "p"}, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	n, _ := s.GetByID(ctx, "f")
	assert.Equal(t, models.StatusPending, n.Status)
	assert.Zero(t, n.RetryCount)
	assert.Empty(t, n.ErrorMessage)
}

func TestFindPaginatesAndSorts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 25; i++ {
		created := t0.Add(time.Duration(i) * time.Minute)
		seed(t, s, fmt.Sprintf("n-%02d", i), func(n *models.Notification) { n.CreatedAt = created })
	}

	page, err := s.Find(ctx, models.NotificationFilter{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Total)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, "n-24", page.Items[0].ID)

	page, err = s.Find(ctx, models.NotificationFilter{Page: 2, Limit: 500, SortAsc: true})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Empty(t, page.Items)
}

func TestStatsAndRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "a", func(n *models.Notification) { n.Status = models.StatusSent })
	seed(t, s, "b", func(n *models.Notification) { n.Status = models.StatusFailed; n.Channel = models.ChannelSMS })
	seed(t, s, "c", nil)

	stats, err := s.Stats(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.ByChannelStatus[models.ChannelSMS][models.StatusFailed])
	assert.Equal(t, int64(2), stats.ByChannel[models.ChannelEmail])

	deleted, err := s.DeleteOlderThan(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	_, err = s.GetByID(ctx, "c")
	assert.NoError(t, err, "pending rows survive retention")
}

func TestEnsureConfigCreatesDefaultOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cfg, err := s.EnsureConfig(ctx, "u-1", models.ChannelSMS, t0)
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled)

	cfg.IsEnabled = false
	require.NoError(t, s.UpsertConfig(ctx, cfg))

	again, err := s.EnsureConfig(ctx, "u-1", models.ChannelSMS, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, again.IsEnabled)
	assert.True(t, again.CreatedAt.Equal(t0))
}

func TestReserveIsInsertUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ev := &models.ProcessedWebhookEvent{Key: "alipay:T1:PAYMENT_SUCCESS", CreatedAt: t0, ReservedAt: t0}
	staleBefore := t0.Add(-time.Minute)

	ok, held, err := s.Reserve(ctx, ev, staleBefore)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, held)

	ok, held, err = s.Reserve(ctx, ev, staleBefore)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, held)
	assert.Equal(t, models.WebhookEventProcessing, held.Status)

	require.NoError(t, s.Release(ctx, ev.Key, t0))
	ok, _, err = s.Reserve(ctx, ev, staleBefore)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Complete(ctx, ev.Key, t0))
	require.NoError(t, s.Release(ctx, ev.Key, t0))
	ok, held, _ = s.Reserve(ctx, ev, t0.Add(time.Hour))
	assert.False(t, ok, "completed events are neither released nor taken over")
	require.NotNil(t, held)
	assert.Equal(t, models.WebhookEventCompleted, held.Status)
}

func TestStaleReservationIsTakenOver(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := "generic:txn-9:PAYMENT_SUCCESS"

	ok, _, err := s.Reserve(ctx, &models.ProcessedWebhookEvent{Key: key, ReservedAt: t0}, t0.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	later := t0.Add(2 * time.Minute)
	ok, _, err = s.Reserve(ctx, &models.ProcessedWebhookEvent{Key: key, ReservedAt: later}, later.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// the first holder's late release must not drop the new reservation
	require.NoError(t, s.Release(ctx, key, t0))
	ok, held, err := s.Reserve(ctx, &models.ProcessedWebhookEvent{Key: key, ReservedAt: later}, later.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, held)
	assert.True(t, held.ReservedAt.Equal(later))

	require.NoError(t, s.Release(ctx, key, later))
	ok, _, err = s.Reserve(ctx, &models.ProcessedWebhookEvent{Key: key, ReservedAt: later}, later.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTemplatesAreCopiedOut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTemplate(ctx, &models.NotificationTemplate{
		ID: "tpl-1", Name: "confirm-sms", Type: models.TypeBookingConfirmed, Channel: models.ChannelSMS,
		Variables: []string{"confirmationNumber", "serviceName"}, IsActive: true, UpdatedAt: t0,
	}))

	got, err := s.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	got.Variables[0] = "tampered"

	list, err := s.FindTemplates(ctx, models.TemplateFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	list[0].Variables[1] = "tampered"

	active, err := s.FindActiveTemplate(ctx, models.TypeBookingConfirmed, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, []string{"confirmationNumber", "serviceName"}, active.Variables)
	active.Variables[0] = "tampered"

	again, err := s.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"confirmationNumber", "serviceName"}, again.Variables)
}
