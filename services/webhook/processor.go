package webhook

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	notificationRepo "tripnotify/database/repository/notification"
	orderRepo "tripnotify/database/repository/order"
	"tripnotify/models"
	"tripnotify/services/booking"
	"tripnotify/utils"

	"go.uber.org/zap"
)

// amountTolerance absorbs float rounding between cents and decimal amounts.
const amountTolerance = 0.005

const (
	// DefaultReservationLease is how long an unfinished reservation blocks
	// redeliveries before another attempt may take the event over.
	DefaultReservationLease = 2 * time.Minute
	settleTimeout           = 5 * time.Second
)

// Result is the outcome reported back to the gateway.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Duplicate bool   `json:"-"`
}

// StatusNotifier sends the customer-facing notification for an order status change.
type StatusNotifier interface {
	SendMultiChannelStatusChange(ctx context.Context, req booking.StatusChangeRequest, channels []models.Channel) (booking.ChannelResults, error)
}

// Processor verifies payment callbacks, applies them to orders exactly once
// and notifies the customer.
type Processor struct {
	verifiers map[string]Verifier
	events    notificationRepo.WebhookEventRepository
	orders    orderRepo.OrderRepository
	notifier  StatusNotifier
	channels  []models.Channel
	logger    *zap.Logger
	now       func() time.Time
	lease     time.Duration
}

func NewProcessor(events notificationRepo.WebhookEventRepository, orders orderRepo.OrderRepository, notifier StatusNotifier, channels []models.Channel, logger *zap.Logger, verifiers ...Verifier) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		verifiers: make(map[string]Verifier, len(verifiers)),
		events:    events,
		orders:    orders,
		notifier:  notifier,
		channels:  channels,
		logger:    logger,
		now:       time.Now,
		lease:     DefaultReservationLease,
	}
	for _, v := range verifiers {
		if v != nil {
			p.verifiers[v.Provider()] = v
		}
	}
	return p
}

// SetClock overrides the time source.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// SetReservationLease overrides DefaultReservationLease.
func (p *Processor) SetReservationLease(d time.Duration) {
	if d > 0 {
		p.lease = d
	}
}

// settleContext outlives the request so a client hang-up cannot strand a
// reservation in processing.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// ProcessWebhook handles one gateway callback. A duplicate of an event that was
// already applied is reported as success without side effects. A duplicate of
// an event still in flight is refused so the gateway delivers it again.
func (p *Processor) ProcessWebhook(ctx context.Context, provider string, body []byte, signature string, headers http.Header) Result {
	verifier, ok := p.verifiers[provider]
	if !ok {
		utils.WebhooksTotal.WithLabelValues(provider, "unknown_provider").Inc()
		return Result{Message: ErrUnknownProvider.Error()}
	}

	event, err := verifier.Verify(body, signature, headers)
	if err != nil {
		var sigErr *SignatureError
		label := "invalid_payload"
		if errors.As(err, &sigErr) {
			label = "bad_signature"
		}
		utils.WebhooksTotal.WithLabelValues(provider, label).Inc()
		p.logger.Warn("Webhook rejected", zap.String("provider", provider), zap.Error(err))
		return Result{Message: err.Error()}
	}

	key := event.IdempotencyKey()
	logger := p.logger.With(
		zap.String("provider", provider),
		zap.String("orderId", event.OrderID),
		zap.String("eventType", string(event.EventType)),
		zap.String("idempotencyKey", key),
	)

	// mongo keeps milliseconds; Release matches on this value
	reservedAt := p.now().UTC().Truncate(time.Millisecond)
	reserved, held, err := p.events.Reserve(ctx, &models.ProcessedWebhookEvent{
		Key:                   key,
		Provider:              provider,
		OrderID:               event.OrderID,
		EventType:             event.EventType,
		ExternalTransactionID: event.ExternalTransactionID,
		Amount:                event.Amount,
		CreatedAt:             reservedAt,
		ReservedAt:            reservedAt,
	}, reservedAt.Add(-p.lease))
	if err != nil {
		utils.WebhooksTotal.WithLabelValues(provider, "error").Inc()
		logger.Error("Failed to reserve webhook event", zap.Error(err))
		return Result{Message: "temporarily unable to process event"}
	}
	if !reserved {
		if held != nil && held.Status == models.WebhookEventCompleted {
			utils.WebhooksTotal.WithLabelValues(provider, "duplicate").Inc()
			logger.Info("Duplicate webhook ignored")
			return Result{Success: true, Message: "already processed", Duplicate: true}
		}
		utils.WebhooksTotal.WithLabelValues(provider, "in_flight").Inc()
		logger.Info("Webhook event still in flight, gateway will redeliver")
		return Result{Message: "event is being processed, retry later", Duplicate: true}
	}

	msg, err := p.apply(ctx, event, logger)
	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err != nil {
		if relErr := p.events.Release(settleCtx, key, reservedAt); relErr != nil {
			logger.Error("Failed to release webhook reservation", zap.Error(relErr))
		}
		utils.WebhooksTotal.WithLabelValues(provider, "error").Inc()
		logger.Error("Webhook processing failed", zap.Error(err))
		return Result{Message: err.Error()}
	}

	if err := p.events.Complete(settleCtx, key, p.now()); err != nil {
		logger.Error("Failed to mark webhook event completed", zap.Error(err))
	}
	utils.WebhooksTotal.WithLabelValues(provider, "processed").Inc()
	return Result{Success: true, Message: msg}
}

// targetStatus maps a payment event to the order status it leads to.
func targetStatus(t models.PaymentEventType) (models.OrderStatus, bool) {
	switch t {
	case models.PaymentEventSuccess:
		return models.OrderConfirmed, true
	case models.PaymentEventFailed:
		return models.OrderPaymentFailed, true
	case models.PaymentEventRefund:
		return models.OrderRefunded, true
	case models.PaymentEventCancelled:
		return models.OrderCancelled, true
	}
	return "", false
}

func (p *Processor) apply(ctx context.Context, event *models.PaymentEvent, logger *zap.Logger) (string, error) {
	target, ok := targetStatus(event.EventType)
	if !ok {
		return "", fmt.Errorf("unsupported event type %s", event.EventType)
	}

	order, err := p.orders.GetOrder(ctx, event.OrderID)
	if err != nil {
		return "", fmt.Errorf("failed to load order %s: %w", event.OrderID, err)
	}
	if err := checkAmount(event, order); err != nil {
		return "", err
	}
	if order.Status == target {
		return "order already " + string(target), nil
	}

	updated, err := p.orders.UpdateStatus(ctx, order.ID, models.OrderSourceStatuses(target), target, event.ExternalTransactionID, p.now())
	if errors.Is(err, orderRepo.ErrStatusConflict) {
		// e.g. a late PAYMENT_FAILED after the order was confirmed
		logger.Warn("Order not in a state this event applies to", zap.String("orderStatus", string(order.Status)))
		return "event does not apply to order in status " + string(order.Status), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	logger.Info("Order status updated", zap.String("from", string(order.Status)), zap.String("to", string(updated.Status)))

	p.notify(ctx, event, order.Status, target, logger)
	return "order " + string(target), nil
}

func checkAmount(event *models.PaymentEvent, order *models.Order) error {
	switch event.EventType {
	case models.PaymentEventSuccess:
		if math.Abs(event.Amount-order.TotalAmount) > amountTolerance {
			return fmt.Errorf("order %s expects %.2f, event carries %.2f: %w", order.ID, order.TotalAmount, event.Amount, ErrAmountMismatch)
		}
	case models.PaymentEventRefund:
		if event.Amount-order.TotalAmount > amountTolerance {
			return fmt.Errorf("refund %.2f exceeds order %s total %.2f: %w", event.Amount, order.ID, order.TotalAmount, ErrAmountMismatch)
		}
	}
	return nil
}

// notify fans the status change out to customers. Its outcome never affects
// the webhook result.
func (p *Processor) notify(ctx context.Context, event *models.PaymentEvent, from, to models.OrderStatus, logger *zap.Logger) {
	if p.notifier == nil || len(p.channels) == 0 {
		return
	}
	req := booking.StatusChangeRequest{
		OrderID:   event.OrderID,
		OldStatus: from,
		NewStatus: to,
		Reason:    fmt.Sprintf("%s via %s", event.EventType, event.Provider),
	}
	if event.EventType == models.PaymentEventRefund {
		amount := event.Amount
		req.RefundAmount = &amount
	}
	results, err := p.notifier.SendMultiChannelStatusChange(ctx, req, p.channels)
	if err != nil {
		logger.Warn("Status change notification failed", zap.Error(err))
		return
	}
	for ch, res := range results {
		if res.Status == models.StatusFailed {
			logger.Warn("Status change notification not delivered", zap.String("channel", string(ch)), zap.String("error", res.ErrorMessage))
		}
	}
}
