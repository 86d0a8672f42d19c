package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	notificationRepo "tripnotify/database/repository/notification"
	"tripnotify/models"

	"go.uber.org/zap"
)

func (s *DefaultNotificationService) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if errors.Is(err, notificationRepo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "GetNotification", Err: err}
	}
	return n, nil
}

func (s *DefaultNotificationService) ListNotifications(ctx context.Context, filter models.NotificationFilter) (*models.NotificationPage, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	page, err := s.notifications.Find(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "ListNotifications", Err: err}
	}
	return page, nil
}

// CancelNotification stops a pending notification. It wins over any in-flight
// delivery or scheduled retry.
func (s *DefaultNotificationService) CancelNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.notifications.Cancel(ctx, id, s.now())
	switch {
	case errors.Is(err, notificationRepo.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, notificationRepo.ErrConflict):
		return nil, fmt.Errorf("CancelNotification: %s: %w", id, ErrNotCancellable)
	case err != nil:
		return nil, &PersistenceError{Op: "CancelNotification", Err: err}
	}
	s.logger.Info("Notification cancelled", zap.String("notificationId", id))
	return n, nil
}

// RetryNotifications moves FAILED notifications back to PENDING with a fresh
// retry budget. Ids that are not FAILED are skipped.
func (s *DefaultNotificationService) RetryNotifications(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, newValidationError("ids must not be empty")
	}
	count, err := s.notifications.RetryFailed(ctx, ids, s.now())
	if err != nil {
		return 0, &PersistenceError{Op: "RetryNotifications", Err: err}
	}
	s.logger.Info("Failed notifications reset for retry", zap.Int("requested", len(ids)), zap.Int64("reset", count))
	return count, nil
}

func (s *DefaultNotificationService) MarkAsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if userID == "" || len(ids) == 0 {
		return 0, newValidationError("userId and ids are required")
	}
	count, err := s.notifications.MarkRead(ctx, userID, ids, s.now())
	if err != nil {
		return 0, &PersistenceError{Op: "MarkAsRead", Err: err}
	}
	return count, nil
}

// UpdateStatus records a delivery-state change reported from outside the
// pipeline, such as a provider delivery receipt.
func (s *DefaultNotificationService) UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, errorMessage string) (*models.Notification, error) {
	if !status.Valid() {
		return nil, newValidationError(fmt.Sprintf("unknown status %q", status))
	}
	n, err := s.notifications.UpdateStatus(ctx, id, status, errorMessage, s.now())
	switch {
	case errors.Is(err, notificationRepo.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, notificationRepo.ErrInvalidTransition):
		return nil, fmt.Errorf("UpdateStatus: %s to %s: %w", id, status, ErrInvalidTransition)
	case err != nil:
		return nil, &PersistenceError{Op: "UpdateStatus", Err: err}
	}
	return n, nil
}

func (s *DefaultNotificationService) GetStats(ctx context.Context, from, to *time.Time) (*models.NotificationStats, error) {
	if from != nil && to != nil && !from.Before(*to) {
		return nil, newValidationError("from must be before to")
	}
	stats, err := s.notifications.Stats(ctx, from, to)
	if err != nil {
		return nil, &PersistenceError{Op: "GetStats", Err: err}
	}
	return stats, nil
}

// CleanupOlderThan deletes finished notifications created more than days ago.
func (s *DefaultNotificationService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, newValidationError("olderThanDays must be positive")
	}
	cutoff := s.now().AddDate(0, 0, -days)
	deleted, err := s.notifications.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "CleanupOlderThan", Err: err}
	}
	s.logger.Info("Old notifications removed", zap.Int("olderThanDays", days), zap.Int64("deleted", deleted))
	return deleted, nil
}
