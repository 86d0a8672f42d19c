package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Admin notification endpoints
	CreateNotificationHandler   gin.HandlerFunc
	ListNotificationsHandler    gin.HandlerFunc
	GetNotificationHandler      gin.HandlerFunc
	GetStatsHandler             gin.HandlerFunc
	RetryNotificationsHandler   gin.HandlerFunc
	CancelNotificationHandler   gin.HandlerFunc
	UpdateStatusHandler         gin.HandlerFunc
	CleanupNotificationsHandler gin.HandlerFunc

	// Template endpoints
	CreateTemplateHandler   gin.HandlerFunc
	ListTemplatesHandler    gin.HandlerFunc
	GetTemplateHandler      gin.HandlerFunc
	UpdateTemplateHandler   gin.HandlerFunc
	ValidateTemplateHandler gin.HandlerFunc

	// Booking notification endpoints
	SendConfirmationHandler gin.HandlerFunc
	SendStatusChangeHandler gin.HandlerFunc
	SendReminderHandler     gin.HandlerFunc

	// Traveller endpoints
	ListMyNotificationsHandler gin.HandlerFunc
	MarkAsReadHandler          gin.HandlerFunc
	GetPreferencesHandler      gin.HandlerFunc
	UpdatePreferenceHandler    gin.HandlerFunc

	// Gateway and operations endpoints
	PaymentWebhookHandler gin.HandlerFunc
	HealthHandler         gin.HandlerFunc
}

// NewHandlerBundle wires the handler methods into a bundle.
func NewHandlerBundle(n *NotificationHandler, b *BookingNotificationHandler, w *WebhookHandler, h *HealthHandler) *HandlerBundle {
	return &HandlerBundle{
		CreateNotificationHandler:   n.CreateNotification,
		ListNotificationsHandler:    n.ListNotifications,
		GetNotificationHandler:      n.GetNotification,
		GetStatsHandler:             n.GetStats,
		RetryNotificationsHandler:   n.RetryNotifications,
		CancelNotificationHandler:   n.CancelNotification,
		UpdateStatusHandler:         n.UpdateStatus,
		CleanupNotificationsHandler: n.CleanupNotifications,

		CreateTemplateHandler:   n.CreateTemplate,
		ListTemplatesHandler:    n.ListTemplates,
		GetTemplateHandler:      n.GetTemplate,
		UpdateTemplateHandler:   n.UpdateTemplate,
		ValidateTemplateHandler: n.ValidateTemplate,

		SendConfirmationHandler: b.SendConfirmation,
		SendStatusChangeHandler: b.SendStatusChange,
		SendReminderHandler:     b.SendReminder,

		ListMyNotificationsHandler: n.ListMyNotifications,
		MarkAsReadHandler:          n.MarkAsRead,
		GetPreferencesHandler:      n.GetPreferences,
		UpdatePreferenceHandler:    n.UpdatePreference,

		PaymentWebhookHandler: w.HandlePayment,
		HealthHandler:         h.Health,
	}
}
