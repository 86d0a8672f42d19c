package booking

import "tripnotify/models"

type defaultTemplate struct {
	Title   string
	Content string
}

// Built-in texts used when no active stored template exists. Placeholders are
// restricted to keys BookingData.Metadata always sets, plus the status-change
// and reminder keys their requests always add.
var defaultTemplates = map[models.NotificationType]defaultTemplate{
	models.TypeBookingConfirmed: {
		Title:   "Booking confirmed: {{serviceName}}",
		Content: "Hi {{customerName}}, your booking {{confirmationNumber}} for {{serviceName}} on {{bookingDate}} is confirmed. Total paid: {{totalAmount}} {{currency}}.",
	},
	models.TypeOrderConfirmed: {
		Title:   "Order {{confirmationNumber}} confirmed",
		Content: "Hi {{customerName}}, your order {{confirmationNumber}} for {{serviceName}} on {{bookingDate}} is now confirmed.",
	},
	models.TypeOrderCancelled: {
		Title:   "Order {{confirmationNumber}} cancelled",
		Content: "Hi {{customerName}}, your order {{confirmationNumber}} for {{serviceName}} was cancelled ({{oldStatus}} to {{newStatus}}). Reason: {{changeReason}}.",
	},
	models.TypeOrderRefunded: {
		Title:   "Refund for order {{confirmationNumber}}",
		Content: "Hi {{customerName}}, a refund of {{refundAmount}} {{currency}} for {{serviceName}} has been issued. Reason: {{changeReason}}.",
	},
	models.TypePaymentFailed: {
		Title:   "Payment failed for {{confirmationNumber}}",
		Content: "Hi {{customerName}}, we could not collect {{totalAmount}} {{currency}} for {{serviceName}}. Please update your payment to keep the booking.",
	},
	models.TypeBookingReminder: {
		Title:   "Upcoming: {{serviceName}} on {{bookingDate}}",
		Content: "Hi {{customerName}}, a reminder that {{serviceName}} (booking {{confirmationNumber}}) takes place on {{bookingDate}}.",
	},
}

// statusChangeType maps the new order status to the notification type sent.
func statusChangeType(newStatus models.OrderStatus) models.NotificationType {
	switch newStatus {
	case models.OrderCancelled:
		return models.TypeOrderCancelled
	case models.OrderRefunded:
		return models.TypeOrderRefunded
	case models.OrderPaymentFailed:
		return models.TypePaymentFailed
	default:
		return models.TypeOrderConfirmed
	}
}
