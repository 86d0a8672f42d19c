package channels

import (
	"context"

	"tripnotify/models"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// MessageSender is the part of *messaging.Client the push adapter needs.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushAdapter sends through Firebase Cloud Messaging.
type PushAdapter struct {
	client MessageSender
	logger *zap.Logger
}

func NewPushAdapter(client MessageSender, logger *zap.Logger) *PushAdapter {
	return &PushAdapter{client: client, logger: logger}
}

func (a *PushAdapter) Channel() models.Channel { return models.ChannelPush }

func (a *PushAdapter) Send(ctx context.Context, n *models.Notification, title, content string, recipient models.Recipient) (Receipt, error) {
	if recipient.DeviceToken == "" {
		return Receipt{}, permanent(models.ChannelPush, "recipient has no device token", nil)
	}
	if a.client == nil {
		return Receipt{}, transient(models.ChannelPush, "push client not configured", nil)
	}

	data := map[string]string{
		"notificationId": n.ID,
		"type":           string(n.Type),
	}
	if n.OrderID != "" {
		data["orderId"] = n.OrderID
	}

	msg := &messaging.Message{
		Token: recipient.DeviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  content,
		},
		Data: data,
	}
	if n.Priority == models.PriorityHigh || n.Priority == models.PriorityUrgent {
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority",
				Sound:     "default",
			},
		}
		msg.APNS = &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		}
	} else {
		msg.Android = &messaging.AndroidConfig{Priority: "normal"}
		msg.APNS = &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "5"},
		}
	}

	id, err := a.client.Send(ctx, msg)
	if err != nil {
		return Receipt{}, classifyFCMError(err)
	}
	a.logger.Debug("Push sent", zap.String("notificationId", n.ID), zap.String("messageId", id))
	return Receipt{ExternalID: id, Provider: "fcm"}, nil
}

func classifyFCMError(err error) *DeliveryError {
	switch {
	case messaging.IsUnregistered(err):
		return permanent(models.ChannelPush, "device token unregistered", err)
	case messaging.IsInvalidArgument(err), messaging.IsSenderIDMismatch(err):
		return permanent(models.ChannelPush, "message rejected", err)
	case messaging.IsQuotaExceeded(err), messaging.IsUnavailable(err), messaging.IsInternal(err):
		return transient(models.ChannelPush, "fcm temporarily unavailable", err)
	default:
		return transient(models.ChannelPush, "fcm send failed", err)
	}
}
