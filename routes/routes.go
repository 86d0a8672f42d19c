package routes

import (
	"time"

	"tripnotify/handlers"
	"tripnotify/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterAdminNotificationRoutes registers notification administration endpoints.
func RegisterAdminNotificationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	admin := r.Group("/api/admin")
	admin.Use(middleware.JWTAuthAdminMiddleware())

	notifications := admin.Group("/notifications")
	{
		notifications.POST("", hb.CreateNotificationHandler)
		notifications.GET("", hb.ListNotificationsHandler)
		notifications.DELETE("", hb.CleanupNotificationsHandler)
		notifications.GET("/stats", hb.GetStatsHandler)
		notifications.POST("/retry", hb.RetryNotificationsHandler)
		notifications.GET("/:id", hb.GetNotificationHandler)
		notifications.POST("/:id/cancel", hb.CancelNotificationHandler)
		notifications.PATCH("/:id/status", hb.UpdateStatusHandler)
	}

	templates := admin.Group("/templates")
	{
		templates.POST("", hb.CreateTemplateHandler)
		templates.GET("", hb.ListTemplatesHandler)
		templates.POST("/validate", hb.ValidateTemplateHandler)
		templates.GET("/:id", hb.GetTemplateHandler)
		templates.PUT("/:id", hb.UpdateTemplateHandler)
	}

	bookings := admin.Group("/bookings/:orderId")
	{
		bookings.POST("/confirmation", hb.SendConfirmationHandler)
		bookings.POST("/status-change", hb.SendStatusChangeHandler)
		bookings.POST("/reminder", hb.SendReminderHandler)
	}
}

// RegisterUserNotificationRoutes registers the traveller inbox and preferences.
func RegisterUserNotificationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/notifications")
	{
		api.Use(middleware.JWTAuthUserMiddleware())
		api.GET("", hb.ListMyNotificationsHandler)
		api.POST("/read", hb.MarkAsReadHandler)
		api.GET("/preferences", hb.GetPreferencesHandler)
		api.PUT("/preferences/:channel", hb.UpdatePreferenceHandler)
	}
}

// RegisterWebhookRoutes registers payment gateway callbacks. Authentication is
// the provider signature, checked by the processor.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/webhooks/payment", hb.PaymentWebhookHandler)
}

// RegisterOpsRoutes registers health and metrics endpoints.
func RegisterOpsRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterAdminNotificationRoutes(r, hb)
	RegisterUserNotificationRoutes(r, hb)
	RegisterWebhookRoutes(r, hb)
	RegisterOpsRoutes(r, hb)
}
