package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	notificationRepo "tripnotify/database/repository/notification"
	userRepo "tripnotify/database/repository/user"
	"tripnotify/models"
	"tripnotify/services/channels"
	"tripnotify/services/template"
	"tripnotify/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateAndSendNotification validates, persists and, when due, delivers a
// notification. Delivery failures are recorded on the notification and do not
// surface as an error.
func (s *DefaultNotificationService) CreateAndSendNotification(ctx context.Context, req CreateNotificationRequest) (string, error) {
	res, err := s.Dispatch(ctx, req)
	if err != nil {
		return "", err
	}
	return res.NotificationID, nil
}

// Dispatch is CreateAndSendNotification returning the delivery outcome.
func (s *DefaultNotificationService) Dispatch(ctx context.Context, req CreateNotificationRequest) (models.DeliveryResult, error) {
	if err := req.validate(); err != nil {
		return models.DeliveryResult{}, err
	}

	title, content := req.Title, req.Content
	if req.TemplateID != "" {
		rendered, err := s.renderTemplate(ctx, req)
		if err != nil {
			return models.DeliveryResult{}, err
		}
		title, content = rendered.Title, rendered.Content
	}

	now := s.now()
	cfg, err := s.configs.EnsureConfig(ctx, req.UserID, req.Channel, now)
	if err != nil {
		return models.DeliveryResult{}, &PersistenceError{Op: "CreateAndSendNotification", Err: err}
	}
	if !cfg.IsEnabled {
		return models.DeliveryResult{}, fmt.Errorf("CreateAndSendNotification: %s for user %s: %w", req.Channel, req.UserID, ErrChannelDisabled)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	n := &models.Notification{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		Type:        req.Type,
		Channel:     req.Channel,
		Priority:    priority,
		Title:       title,
		Content:     content,
		TemplateID:  req.TemplateID,
		Metadata:    req.Metadata.Clone(),
		Status:      models.StatusPending,
		ScheduledAt: req.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	immediate := n.IsDue(now)
	if immediate {
		// persisted already claimed so the poller cannot pick it up mid-send
		claimedAt := now
		n.ClaimedBy = s.cfg.Owner
		n.ClaimedAt = &claimedAt
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return models.DeliveryResult{}, &PersistenceError{Op: "CreateAndSendNotification", Err: err}
	}

	s.logger.Info("Notification created",
		zap.String("notificationId", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("channel", string(n.Channel)),
		zap.Bool("immediate", immediate),
	)

	if !immediate {
		return models.DeliveryResult{Success: true, NotificationID: n.ID, Status: models.StatusPending}, nil
	}
	return s.ProcessClaimed(ctx, n), nil
}

func (s *DefaultNotificationService) renderTemplate(ctx context.Context, req CreateNotificationRequest) (template.Rendered, error) {
	var out template.Rendered

	tpl, err := s.templates.GetTemplate(ctx, req.TemplateID)
	if errors.Is(err, notificationRepo.ErrNotFound) {
		return out, &TemplateError{TemplateID: req.TemplateID, Reason: "not found", Err: ErrTemplateNotFound}
	}
	if err != nil {
		return out, &PersistenceError{Op: "CreateAndSendNotification", Err: err}
	}
	switch {
	case !tpl.IsActive:
		return out, &TemplateError{TemplateID: tpl.ID, Reason: "template is inactive"}
	case tpl.Channel != req.Channel:
		return out, &TemplateError{TemplateID: tpl.ID, Reason: fmt.Sprintf("template channel %s does not match %s", tpl.Channel, req.Channel)}
	case tpl.Type != req.Type:
		return out, &TemplateError{TemplateID: tpl.ID, Reason: fmt.Sprintf("template type %s does not match %s", tpl.Type, req.Type)}
	}

	out, err = s.engine.Render(tpl.Title, tpl.Content, req.Metadata.Vars())
	if err != nil {
		return out, &TemplateError{TemplateID: tpl.ID, Reason: "render failed", Err: err}
	}
	return out, nil
}

// SendNotification claims a stored notification and delivers it if it is due.
// A notification that is not claimable (not pending, not due, or leased
// elsewhere) is reported as not sent without an error.
func (s *DefaultNotificationService) SendNotification(ctx context.Context, id string) (models.DeliveryResult, error) {
	n, err := s.ClaimNotification(ctx, id)
	if err != nil {
		return models.DeliveryResult{}, err
	}
	if n == nil {
		current, err := s.GetNotification(ctx, id)
		if err != nil {
			return models.DeliveryResult{}, err
		}
		return models.DeliveryResult{NotificationID: id, Status: current.Status, ErrorMessage: "not claimable"}, nil
	}
	return s.ProcessClaimed(ctx, n), nil
}

func (s *DefaultNotificationService) ClaimDue(ctx context.Context, limit int) ([]models.Notification, error) {
	claimed, err := s.notifications.ClaimDue(ctx, s.now(), s.cfg.Lease, s.cfg.Owner, limit)
	if err != nil {
		return claimed, &PersistenceError{Op: "ClaimDue", Err: err}
	}
	return claimed, nil
}

// ClaimNotification leases one notification to this process. It returns nil
// without an error when the notification exists but is not claimable.
func (s *DefaultNotificationService) ClaimNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.notifications.ClaimByID(ctx, id, s.now(), s.cfg.Lease, s.cfg.Owner)
	switch {
	case errors.Is(err, notificationRepo.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, notificationRepo.ErrConflict):
		return nil, nil
	case err != nil:
		return nil, &PersistenceError{Op: "ClaimNotification", Err: err}
	}
	return n, nil
}

// DiscardClaimed cancels a claimed notification that must no longer be sent.
func (s *DefaultNotificationService) DiscardClaimed(ctx context.Context, n *models.Notification, reason string) error {
	status := models.StatusCancelled
	_, err := s.notifications.Apply(ctx, n.ID, s.ownedPending(), notificationRepo.NotificationPatch{
		Status:       &status,
		ErrorMessage: &reason,
		ReleaseClaim: true,
		At:           s.now(),
	})
	if err != nil && !errors.Is(err, notificationRepo.ErrConflict) {
		return &PersistenceError{Op: "DiscardClaimed", Err: err}
	}
	utils.DispatchTotal.WithLabelValues(string(n.Channel), utils.OutcomeCancelled).Inc()
	s.logger.Info("Notification discarded", zap.String("notificationId", n.ID), zap.String("reason", reason))
	return nil
}

func (s *DefaultNotificationService) ownedPending() notificationRepo.UpdateCondition {
	return notificationRepo.UpdateCondition{
		Statuses:  []models.NotificationStatus{models.StatusPending},
		ClaimedBy: s.cfg.Owner,
	}
}

// ProcessClaimed delivers a notification this process has claimed and records
// the outcome. Every write is conditional on the claim, so a concurrent cancel wins.
func (s *DefaultNotificationService) ProcessClaimed(ctx context.Context, n *models.Notification) models.DeliveryResult {
	recipient, err := s.resolveRecipient(ctx, n)
	if err != nil {
		return s.recordFailure(ctx, n, err)
	}

	adapter, ok := s.adapters.Get(n.Channel)
	if !ok {
		return s.recordFailure(ctx, n, &channels.DeliveryError{Channel: n.Channel, Permanent: true, Reason: "no adapter configured"})
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	start := time.Now()
	receipt, err := adapter.Send(sendCtx, n, n.Title, n.Content, recipient)
	cancel()
	utils.DispatchDuration.WithLabelValues(string(n.Channel)).Observe(time.Since(start).Seconds())
	if err != nil {
		return s.recordFailure(ctx, n, err)
	}
	return s.recordSuccess(ctx, n, receipt)
}

func (s *DefaultNotificationService) resolveRecipient(ctx context.Context, n *models.Notification) (models.Recipient, error) {
	recipient := models.Recipient{UserID: n.UserID}
	if n.Channel == models.ChannelInApp {
		return recipient, nil
	}

	contact, err := s.users.GetContact(ctx, n.UserID)
	switch {
	case errors.Is(err, userRepo.ErrUserNotFound):
		if n.Metadata.Get(models.MetaCustomerEmail) == "" && n.Metadata.Get(models.MetaCustomerPhone) == "" {
			return recipient, &channels.DeliveryError{Channel: n.Channel, Permanent: true, Reason: "recipient not found"}
		}
	case err != nil:
		return recipient, &channels.DeliveryError{Channel: n.Channel, Reason: "user lookup failed", Err: err}
	default:
		recipient.Name = contact.Name
		recipient.Email = contact.Email
		recipient.Phone = contact.Phone
		recipient.DeviceToken = contact.FCMToken
	}

	// booking contact details override the account profile
	if v := n.Metadata.Get(models.MetaCustomerEmail); v != "" {
		recipient.Email = v
	}
	if v := n.Metadata.Get(models.MetaCustomerPhone); v != "" {
		recipient.Phone = v
	}
	if v := n.Metadata.Get(models.MetaCustomerName); v != "" {
		recipient.Name = v
	}
	return recipient, nil
}

// outcomeWriteTimeout bounds recording a delivery outcome once the send is over.
const outcomeWriteTimeout = 10 * time.Second

// outcomeContext detaches outcome writes from the caller. A message that went
// out must be recorded even after the request or fan-out deadline is gone.
func outcomeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
}

func (s *DefaultNotificationService) recordSuccess(ctx context.Context, n *models.Notification, receipt channels.Receipt) models.DeliveryResult {
	ctx, cancel := outcomeContext(ctx)
	defer cancel()
	now := s.now()
	status := models.StatusSent
	meta := models.Metadata{}
	if receipt.ExternalID != "" {
		meta[models.MetaExternalID] = receipt.ExternalID
	}
	if receipt.Provider != "" {
		meta[models.MetaProvider] = receipt.Provider
	}

	updated, err := s.notifications.Apply(ctx, n.ID, s.ownedPending(), notificationRepo.NotificationPatch{
		Status:       &status,
		SentAt:       &now,
		Metadata:     meta,
		ClearError:   true,
		ReleaseClaim: true,
		At:           now,
	})
	if err != nil {
		return s.lostClaim(ctx, n, err, receipt.ExternalID)
	}

	utils.DispatchTotal.WithLabelValues(string(n.Channel), utils.OutcomeSent).Inc()
	s.logger.Info("Notification sent",
		zap.String("notificationId", n.ID),
		zap.String("channel", string(n.Channel)),
		zap.String("externalId", receipt.ExternalID),
		zap.Int("retryCount", updated.RetryCount),
	)
	return models.DeliveryResult{
		Success:        true,
		NotificationID: n.ID,
		Status:         models.StatusSent,
		ExternalID:     receipt.ExternalID,
	}
}

// recordFailure schedules a retry or marks the notification FAILED. Its writes
// run on a detached context, markFailed's included.
func (s *DefaultNotificationService) recordFailure(ctx context.Context, n *models.Notification, sendErr error) models.DeliveryResult {
	ctx, cancel := outcomeContext(ctx)
	defer cancel()
	now := s.now()
	reason := sendErr.Error()

	if channels.IsPermanent(sendErr) {
		return s.markFailed(ctx, n, n.RetryCount, reason, now)
	}

	attempt := n.RetryCount + 1
	if attempt >= s.cfg.MaxRetries {
		return s.markFailed(ctx, n, s.cfg.MaxRetries, reason, now)
	}

	next := now.Add(backoffDelay(attempt, s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay))
	_, err := s.notifications.Apply(ctx, n.ID, s.ownedPending(), notificationRepo.NotificationPatch{
		RetryCount:   &attempt,
		ScheduledAt:  &next,
		ErrorMessage: &reason,
		ReleaseClaim: true,
		At:           now,
	})
	if err != nil {
		return s.lostClaim(ctx, n, err, "")
	}

	utils.DispatchTotal.WithLabelValues(string(n.Channel), utils.OutcomeRetry).Inc()
	s.logger.Warn("Notification delivery failed, retry scheduled",
		zap.String("notificationId", n.ID),
		zap.String("channel", string(n.Channel)),
		zap.Int("retryCount", attempt),
		zap.Time("nextAttempt", next),
		zap.Error(sendErr),
	)

	if s.retries != nil {
		if err := s.retries.EnqueueDispatch(ctx, n.ID, attempt, next); err != nil {
			// the poller still picks it up once due
			s.logger.Warn("Failed to enqueue retry task", zap.String("notificationId", n.ID), zap.Error(err))
		}
	}
	return models.DeliveryResult{
		NotificationID: n.ID,
		Status:         models.StatusPending,
		ErrorMessage:   reason,
	}
}

func (s *DefaultNotificationService) markFailed(ctx context.Context, n *models.Notification, retryCount int, reason string, now time.Time) models.DeliveryResult {
	status := models.StatusFailed
	_, err := s.notifications.Apply(ctx, n.ID, s.ownedPending(), notificationRepo.NotificationPatch{
		Status:       &status,
		RetryCount:   &retryCount,
		ErrorMessage: &reason,
		ReleaseClaim: true,
		At:           now,
	})
	if err != nil {
		return s.lostClaim(ctx, n, err, "")
	}

	utils.DispatchTotal.WithLabelValues(string(n.Channel), utils.OutcomeFailed).Inc()
	s.logger.Error("Notification delivery failed",
		zap.String("notificationId", n.ID),
		zap.String("channel", string(n.Channel)),
		zap.Int("retryCount", retryCount),
		zap.String("reason", reason),
	)
	return models.DeliveryResult{
		NotificationID: n.ID,
		Status:         models.StatusFailed,
		ErrorMessage:   reason,
	}
}

// lostClaim handles an outcome write that no longer matched: the notification
// was cancelled or re-claimed while the send was in flight.
func (s *DefaultNotificationService) lostClaim(ctx context.Context, n *models.Notification, err error, externalID string) models.DeliveryResult {
	if !errors.Is(err, notificationRepo.ErrConflict) {
		s.logger.Error("Failed to record delivery outcome", zap.String("notificationId", n.ID), zap.Error(err))
		return models.DeliveryResult{NotificationID: n.ID, Status: models.StatusPending, ExternalID: externalID, ErrorMessage: err.Error()}
	}

	current, getErr := s.notifications.GetByID(ctx, n.ID)
	status := models.StatusCancelled
	if getErr == nil {
		status = current.Status
	}
	s.logger.Warn("Notification changed during delivery, outcome discarded",
		zap.String("notificationId", n.ID),
		zap.String("status", string(status)),
	)
	if status == models.StatusCancelled {
		utils.DispatchTotal.WithLabelValues(string(n.Channel), utils.OutcomeCancelled).Inc()
	}
	return models.DeliveryResult{
		NotificationID: n.ID,
		Status:         status,
		ExternalID:     externalID,
		ErrorMessage:   strings.ToLower(string(status)) + " during delivery",
	}
}
