package notificationRepo

import (
	"context"
	"errors"
	"time"

	"tripnotify/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the record exists but did not satisfy the update condition.
	ErrConflict          = errors.New("update condition not met")
	ErrDuplicate         = errors.New("duplicate key")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// UpdateCondition guards a conditional update. Empty fields match anything.
type UpdateCondition struct {
	Statuses  []models.NotificationStatus
	ClaimedBy string
}

// NotificationPatch is the explicit set of mutable fields. Nil pointers are left untouched.
type NotificationPatch struct {
	Status       *models.NotificationStatus
	Title        *string
	Content      *string
	RetryCount   *int
	ScheduledAt  *time.Time
	SentAt       *time.Time
	DeliveredAt  *time.Time
	ReadAt       *time.Time
	ErrorMessage *string
	// ClearError removes errorMessage. Ignored when ErrorMessage is set.
	ClearError bool
	// Metadata entries are merged key by key into the stored metadata.
	Metadata models.Metadata
	// ReleaseClaim drops the scheduler lease.
	ReleaseClaim bool
	// At stamps updatedAt; zero means time.Now().
	At time.Time
}

func (p NotificationPatch) updatedAt() time.Time {
	if p.At.IsZero() {
		return time.Now()
	}
	return p.At
}

// NotificationRepository stores notifications and the scheduler lease on them.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	Find(ctx context.Context, filter models.NotificationFilter) (*models.NotificationPage, error)

	// ClaimDue leases up to limit due PENDING notifications to owner. A lease
	// older than lease may be taken over.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, owner string, limit int) ([]models.Notification, error)
	// ClaimByID leases a single notification if it is due and unclaimed.
	ClaimByID(ctx context.Context, id string, now time.Time, lease time.Duration, owner string) (*models.Notification, error)

	// Apply performs a conditional update and returns the stored result.
	Apply(ctx context.Context, id string, cond UpdateCondition, patch NotificationPatch) (*models.Notification, error)
	// UpdateStatus applies a delivery-state change allowed by the state machine.
	UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, errorMessage string, now time.Time) (*models.Notification, error)
	MarkRead(ctx context.Context, userID string, ids []string, now time.Time) (int64, error)
	RetryFailed(ctx context.Context, ids []string, now time.Time) (int64, error)
	Cancel(ctx context.Context, id string, now time.Time) (*models.Notification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, from, to *time.Time) (*models.NotificationStats, error)
}

// TemplateRepository stores notification templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *models.NotificationTemplate) error
	UpdateTemplate(ctx context.Context, t *models.NotificationTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.NotificationTemplate, error)
	FindTemplates(ctx context.Context, filter models.TemplateFilter) ([]models.NotificationTemplate, error)
	// FindActiveTemplate returns the newest active template for the pair.
	FindActiveTemplate(ctx context.Context, typ models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error)
}

// ConfigRepository stores per-user channel settings.
type ConfigRepository interface {
	GetConfigs(ctx context.Context, userID string) ([]models.NotificationConfig, error)
	// EnsureConfig returns the stored config, creating the default atomically if absent.
	EnsureConfig(ctx context.Context, userID string, channel models.Channel, now time.Time) (*models.NotificationConfig, error)
	UpsertConfig(ctx context.Context, cfg *models.NotificationConfig) error
}

// WebhookEventRepository records processed gateway events.
type WebhookEventRepository interface {
	// Reserve inserts the event if its key is new, or takes over a processing
	// reservation made before staleBefore. When the key stays with another
	// holder it returns false and that holder's record.
	Reserve(ctx context.Context, ev *models.ProcessedWebhookEvent, staleBefore time.Time) (bool, *models.ProcessedWebhookEvent, error)
	Complete(ctx context.Context, key string, now time.Time) error
	// Release deletes the unfinished reservation taken at reservedAt so a
	// redelivery can retry it. A reservation since taken over is left alone.
	Release(ctx context.Context, key string, reservedAt time.Time) error
}

// statusPatch builds the conditional update for a delivery-state change.
func statusPatch(status models.NotificationStatus, errorMessage string, now time.Time) (UpdateCondition, NotificationPatch, error) {
	if !status.Valid() {
		return UpdateCondition{}, NotificationPatch{}, ErrInvalidTransition
	}
	var from []models.NotificationStatus
	for _, s := range models.AllStatuses {
		if models.CanTransition(s, status) {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		return UpdateCondition{}, NotificationPatch{}, ErrInvalidTransition
	}

	patch := NotificationPatch{Status: &status, At: now}
	switch status {
	case models.StatusSent:
		patch.SentAt = &now
		patch.ReleaseClaim = true
	case models.StatusDelivered:
		patch.DeliveredAt = &now
	case models.StatusFailed, models.StatusCancelled:
		patch.ReleaseClaim = true
	}
	if errorMessage != "" {
		patch.ErrorMessage = &errorMessage
	}
	return UpdateCondition{Statuses: from}, patch, nil
}

// retentionStatuses are the statuses eligible for cleanup. PENDING rows are kept.
var retentionStatuses = []models.NotificationStatus{
	models.StatusSent, models.StatusDelivered, models.StatusFailed, models.StatusCancelled,
}
