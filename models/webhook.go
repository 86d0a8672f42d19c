package models

import "time"

// PaymentEventType is the normalized meaning of a gateway callback.
type PaymentEventType string

const (
	PaymentEventSuccess   PaymentEventType = "PAYMENT_SUCCESS"
	PaymentEventFailed    PaymentEventType = "PAYMENT_FAILED"
	PaymentEventRefund    PaymentEventType = "REFUND"
	PaymentEventCancelled PaymentEventType = "CANCELLED"
)

// PaymentEvent is a verified, provider-neutral webhook payload.
type PaymentEvent struct {
	Provider              string           `json:"provider"`
	OrderID               string           `json:"orderId"`
	EventType             PaymentEventType `json:"eventType"`
	Amount                float64          `json:"amount"`
	ExternalTransactionID string           `json:"transactionId"`
}

// IdempotencyKey identifies one gateway event across redeliveries.
func (e PaymentEvent) IdempotencyKey() string {
	return e.Provider + ":" + e.ExternalTransactionID + ":" + string(e.EventType)
}

const (
	WebhookEventProcessing = "processing"
	WebhookEventCompleted  = "completed"
)

// ProcessedWebhookEvent records that a gateway event has been (or is being) handled.
type ProcessedWebhookEvent struct {
	Key                   string           `bson:"key" json:"key"`
	Provider              string           `bson:"provider" json:"provider"`
	OrderID               string           `bson:"orderId" json:"orderId"`
	EventType             PaymentEventType `bson:"eventType" json:"eventType"`
	ExternalTransactionID string           `bson:"externalTransactionId" json:"externalTransactionId"`
	Amount                float64          `bson:"amount" json:"amount"`
	Status                string           `bson:"status" json:"status"`
	CreatedAt             time.Time        `bson:"createdAt" json:"createdAt"`
	// ReservedAt is when the current holder took the key. It moves forward
	// when a stale reservation is taken over.
	ReservedAt            time.Time        `bson:"reservedAt" json:"reservedAt"`
	CompletedAt           *time.Time       `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}
