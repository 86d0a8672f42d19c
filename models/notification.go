package models

import "time"

// NotificationType identifies the domain event a notification was produced for.
type NotificationType string

const (
	TypePaymentSuccess     NotificationType = "PAYMENT_SUCCESS"
	TypePaymentFailed      NotificationType = "PAYMENT_FAILED"
	TypeOrderConfirmed     NotificationType = "ORDER_CONFIRMED"
	TypeOrderCancelled     NotificationType = "ORDER_CANCELLED"
	TypeOrderRefunded      NotificationType = "ORDER_REFUNDED"
	TypeBookingReminder    NotificationType = "BOOKING_REMINDER"
	TypeSystemAnnouncement NotificationType = "SYSTEM_ANNOUNCEMENT"
	TypePromotional        NotificationType = "PROMOTIONAL"
	TypeSecurityAlert      NotificationType = "SECURITY_ALERT"
	TypeBookingConfirmed   NotificationType = "BOOKING_CONFIRMED"
)

var notificationTypes = map[NotificationType]bool{
	TypePaymentSuccess:     true,
	TypePaymentFailed:      true,
	TypeOrderConfirmed:     true,
	TypeOrderCancelled:     true,
	TypeOrderRefunded:      true,
	TypeBookingReminder:    true,
	TypeSystemAnnouncement: true,
	TypePromotional:        true,
	TypeSecurityAlert:      true,
	TypeBookingConfirmed:   true,
}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool { return notificationTypes[t] }

// Channel is one delivery mechanism.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelInApp Channel = "IN_APP"
	ChannelPush  Channel = "PUSH"
)

// AllChannels lists every channel in a stable order.
var AllChannels = []Channel{ChannelSMS, ChannelEmail, ChannelInApp, ChannelPush}

func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelInApp, ChannelPush:
		return true
	}
	return false
}

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// NotificationStatus is the delivery state of a notification.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "PENDING"
	StatusSent      NotificationStatus = "SENT"
	StatusDelivered NotificationStatus = "DELIVERED"
	StatusFailed    NotificationStatus = "FAILED"
	StatusCancelled NotificationStatus = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []NotificationStatus{StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusCancelled}

func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// statusTransitions holds the pipeline transitions. FAILED -> PENDING is only
// reachable through the administrative retry and is not listed here.
var statusTransitions = map[NotificationStatus][]NotificationStatus{
	StatusPending: {StatusSent, StatusFailed, StatusCancelled},
	StatusSent:    {StatusDelivered, StatusFailed},
}

// CanTransition reports whether the pipeline may move a notification from one status to another.
func CanTransition(from, to NotificationStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no pipeline transition leaves s.
func (s NotificationStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// Notification is a single message instance on one channel.
type Notification struct {
	ID           string             `bson:"id" json:"id"`
	UserID       string             `bson:"userId" json:"userId"`
	OrderID      string             `bson:"orderId,omitempty" json:"orderId,omitempty"`
	Type         NotificationType   `bson:"type" json:"type"`
	Channel      Channel            `bson:"channel" json:"channel"`
	Priority     Priority           `bson:"priority" json:"priority"`
	Title        string             `bson:"title" json:"title"`
	Content      string             `bson:"content" json:"content"`
	TemplateID   string             `bson:"templateId,omitempty" json:"templateId,omitempty"`
	Metadata     Metadata           `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Status       NotificationStatus `bson:"status" json:"status"`
	ScheduledAt  *time.Time         `bson:"scheduledAt,omitempty" json:"scheduledAt,omitempty"`
	SentAt       *time.Time         `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	DeliveredAt  *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	ReadAt       *time.Time         `bson:"readAt,omitempty" json:"readAt,omitempty"`
	RetryCount   int                `bson:"retryCount" json:"retryCount"`
	ErrorMessage string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Scheduler lease. A claim older than the lease timeout may be taken over.
	ClaimedBy string     `bson:"claimedBy,omitempty" json:"-"`
	ClaimedAt *time.Time `bson:"claimedAt,omitempty" json:"-"`
}

// IsDue reports whether the notification may be sent at now.
func (n *Notification) IsDue(now time.Time) bool {
	return n.ScheduledAt == nil || !n.ScheduledAt.After(now)
}

// Recipient is the resolved address of a notification on its channel.
type Recipient struct {
	UserID      string `json:"userId"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DeviceToken string `json:"-"`
}

// DeliveryResult is the per-channel outcome reported to callers.
type DeliveryResult struct {
	Success        bool               `json:"success"`
	NotificationID string             `json:"notificationId,omitempty"`
	Status         NotificationStatus `json:"status,omitempty"`
	ExternalID     string             `json:"externalId,omitempty"`
	ErrorMessage   string             `json:"errorMessage,omitempty"`
	// Skipped is set when nothing was created because the user turned the channel off.
	Skipped        bool               `json:"skipped,omitempty"`
}
