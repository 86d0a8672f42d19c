package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	orderRepo "tripnotify/database/repository/order"
	userRepo "tripnotify/database/repository/user"
	"tripnotify/models"
	"tripnotify/services/notification"
	"tripnotify/services/template"

	"go.uber.org/zap"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotEligible is returned when a reminder is requested for an order that is not confirmed.
	ErrNotEligible = errors.New("order is not eligible for a reminder")
	ErrNoChannels  = errors.New("at least one channel is required")
)

// Dispatcher is the part of the notification service booking notifications need.
type Dispatcher interface {
	Dispatch(ctx context.Context, req notification.CreateNotificationRequest) (models.DeliveryResult, error)
	FindActiveTemplate(ctx context.Context, typ models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error)
}

// ConfirmationRequest asks for a booking confirmation. Type may be
// ORDER_CONFIRMED; it defaults to BOOKING_CONFIRMED.
type ConfirmationRequest struct {
	OrderID       string                  `json:"-"`
	Type          models.NotificationType `json:"type,omitempty"`
	TransactionID string                  `json:"transactionId,omitempty"`
	Provider      string                  `json:"paymentProvider,omitempty"`
}

type StatusChangeRequest struct {
	OrderID      string             `json:"-"`
	OldStatus    models.OrderStatus `json:"oldStatus" binding:"required"`
	NewStatus    models.OrderStatus `json:"newStatus" binding:"required"`
	Reason       string             `json:"reason,omitempty"`
	RefundAmount *float64           `json:"refundAmount,omitempty"`
}

// ReminderRequest schedules a reminder OffsetMinutes from now.
type ReminderRequest struct {
	OrderID       string `json:"-"`
	OffsetMinutes int    `json:"offsetMinutes,omitempty"`
}

// ChannelResults holds one outcome per requested channel.
type ChannelResults map[models.Channel]models.DeliveryResult

// BookingNotificationService sends booking lifecycle notifications on several channels at once.
type BookingNotificationService interface {
	SendMultiChannelConfirmation(ctx context.Context, req ConfirmationRequest, channels []models.Channel) (ChannelResults, error)
	SendMultiChannelStatusChange(ctx context.Context, req StatusChangeRequest, channels []models.Channel) (ChannelResults, error)
	SendMultiChannelReminder(ctx context.Context, req ReminderRequest, channels []models.Channel) (ChannelResults, error)
	IsReminderEligible(ctx context.Context, orderID string) (bool, error)
}

// Options tunes the fan-out.
type Options struct {
	// ChannelTimeout is raised to at least SendTimeout plus a third, so a
	// channel's deadline never cuts a send short.
	ChannelTimeout        time.Duration
	// SendTimeout is the dispatcher's per-send timeout.
	SendTimeout           time.Duration
	DefaultReminderOffset time.Duration
}

type DefaultBookingNotificationService struct {
	dispatcher Dispatcher
	orders     orderRepo.OrderRepository
	users      userRepo.UserRepository
	engine     *template.Engine
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

func NewDefaultBookingNotificationService(dispatcher Dispatcher, orders orderRepo.OrderRepository, users userRepo.UserRepository, opts Options, logger *zap.Logger) *DefaultBookingNotificationService {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = notification.DefaultSendTimeout
	}
	if floor := opts.SendTimeout + opts.SendTimeout/3; opts.ChannelTimeout < floor {
		opts.ChannelTimeout = floor
	}
	if opts.DefaultReminderOffset <= 0 {
		opts.DefaultReminderOffset = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultBookingNotificationService{
		dispatcher: dispatcher,
		orders:     orders,
		users:      users,
		engine:     template.NewEngine(),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (s *DefaultBookingNotificationService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *DefaultBookingNotificationService) SendMultiChannelConfirmation(ctx context.Context, req ConfirmationRequest, channels []models.Channel) (ChannelResults, error) {
	typ := req.Type
	switch typ {
	case "":
		typ = models.TypeBookingConfirmed
	case models.TypeBookingConfirmed, models.TypeOrderConfirmed:
	default:
		return nil, fmt.Errorf("SendMultiChannelConfirmation: type %s is not a confirmation", typ)
	}

	order, data, err := s.load(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	meta := data.Metadata()
	if req.TransactionID != "" {
		meta[models.MetaTransactionID] = req.TransactionID
	}
	if req.Provider != "" {
		meta[models.MetaPaymentProvider] = req.Provider
	}
	return s.fanOut(ctx, order, typ, models.PriorityHigh, meta, nil, channels)
}

func (s *DefaultBookingNotificationService) SendMultiChannelStatusChange(ctx context.Context, req StatusChangeRequest, channels []models.Channel) (ChannelResults, error) {
	if !req.OldStatus.Valid() || !req.NewStatus.Valid() {
		return nil, fmt.Errorf("SendMultiChannelStatusChange: invalid status %q to %q", req.OldStatus, req.NewStatus)
	}
	order, data, err := s.load(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "status updated"
	}
	meta := data.Metadata()
	meta[models.MetaOldStatus] = string(req.OldStatus)
	meta[models.MetaNewStatus] = string(req.NewStatus)
	meta[models.MetaChangeReason] = reason
	if req.RefundAmount != nil {
		meta[models.MetaRefundAmount] = formatAmount(*req.RefundAmount)
	} else if req.NewStatus == models.OrderRefunded {
		meta[models.MetaRefundAmount] = formatAmount(order.TotalAmount)
	}
	return s.fanOut(ctx, order, statusChangeType(req.NewStatus), models.PriorityHigh, meta, nil, channels)
}

func (s *DefaultBookingNotificationService) SendMultiChannelReminder(ctx context.Context, req ReminderRequest, channels []models.Channel) (ChannelResults, error) {
	order, data, err := s.load(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderConfirmed {
		return nil, fmt.Errorf("SendMultiChannelReminder: order %s is %s: %w", order.ID, order.Status, ErrNotEligible)
	}

	offset := s.opts.DefaultReminderOffset
	if req.OffsetMinutes > 0 {
		offset = time.Duration(req.OffsetMinutes) * time.Minute
	}
	at := s.now().Add(offset)

	meta := data.Metadata()
	meta[models.MetaReminderOffset] = fmt.Sprintf("%d", int(offset/time.Minute))
	return s.fanOut(ctx, order, models.TypeBookingReminder, models.PriorityNormal, meta, &at, channels)
}

// IsReminderEligible reports whether a reminder for the order should still go out.
func (s *DefaultBookingNotificationService) IsReminderEligible(ctx context.Context, orderID string) (bool, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, orderRepo.ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsReminderEligible: %w", err)
	}
	return order.Status == models.OrderConfirmed, nil
}

func (s *DefaultBookingNotificationService) load(ctx context.Context, orderID string) (*models.Order, BookingData, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, orderRepo.ErrOrderNotFound) {
		return nil, BookingData{}, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, BookingData{}, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	contact, err := s.users.GetContact(ctx, order.UserID)
	if err != nil {
		if !errors.Is(err, userRepo.ErrUserNotFound) {
			return nil, BookingData{}, fmt.Errorf("failed to load user %s: %w", order.UserID, err)
		}
		contact = nil
	}
	return order, newBookingData(order, contact), nil
}

// fanOut dispatches one notification per channel concurrently. Each channel
// gets its own timeout and a failure on one never affects the others.
func (s *DefaultBookingNotificationService) fanOut(ctx context.Context, order *models.Order, typ models.NotificationType, priority models.Priority, meta models.Metadata, scheduledAt *time.Time, channels []models.Channel) (ChannelResults, error) {
	channels = dedupe(channels)
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	for _, ch := range channels {
		if !ch.Valid() {
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
	}

	results := make(ChannelResults, len(channels))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch models.Channel) {
			defer wg.Done()
			chCtx, cancel := context.WithTimeout(ctx, s.opts.ChannelTimeout)
			defer cancel()

			res := s.sendOne(chCtx, order, typ, priority, meta.Clone(), scheduledAt, ch)
			mu.Lock()
			results[ch] = res
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	s.logger.Info("Booking notifications dispatched",
		zap.String("orderId", order.ID),
		zap.String("type", string(typ)),
		zap.Int("channels", len(channels)),
	)
	return results, nil
}

func (s *DefaultBookingNotificationService) sendOne(ctx context.Context, order *models.Order, typ models.NotificationType, priority models.Priority, meta models.Metadata, scheduledAt *time.Time, ch models.Channel) models.DeliveryResult {
	req := notification.CreateNotificationRequest{
		UserID:      order.UserID,
		OrderID:     order.ID,
		Type:        typ,
		Channel:     ch,
		Priority:    priority,
		Metadata:    meta,
		ScheduledAt: scheduledAt,
	}

	tpl, err := s.dispatcher.FindActiveTemplate(ctx, typ, ch)
	switch {
	case err == nil:
		req.TemplateID = tpl.ID
	case errors.Is(err, notification.ErrTemplateNotFound):
		rendered, rerr := s.renderDefault(typ, meta)
		if rerr != nil {
			return models.DeliveryResult{Status: models.StatusFailed, ErrorMessage: rerr.Error()}
		}
		req.Title, req.Content = rendered.Title, rendered.Content
	default:
		return models.DeliveryResult{Status: models.StatusFailed, ErrorMessage: err.Error()}
	}

	res, err := s.dispatcher.Dispatch(ctx, req)
	if errors.Is(err, notification.ErrChannelDisabled) {
		s.logger.Info("Booking notification skipped, channel disabled by user",
			zap.String("orderId", order.ID),
			zap.String("channel", string(ch)),
		)
		return models.DeliveryResult{Skipped: true, ErrorMessage: "channel disabled by user preference"}
	}
	if err != nil {
		s.logger.Warn("Booking notification not dispatched",
			zap.String("orderId", order.ID),
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
		return models.DeliveryResult{NotificationID: res.NotificationID, Status: models.StatusFailed, ErrorMessage: err.Error()}
	}
	return res
}

func (s *DefaultBookingNotificationService) renderDefault(typ models.NotificationType, meta models.Metadata) (template.Rendered, error) {
	def, ok := defaultTemplates[typ]
	if !ok {
		return template.Rendered{}, fmt.Errorf("no default template for %s", typ)
	}
	return s.engine.Render(def.Title, def.Content, meta.Vars())
}

func dedupe(channels []models.Channel) []models.Channel {
	seen := make(map[models.Channel]bool, len(channels))
	out := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

var _ BookingNotificationService = (*DefaultBookingNotificationService)(nil)
