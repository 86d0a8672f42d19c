package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tripnotify/models"
	"tripnotify/services/notification"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotificationHandler serves the admin and traveller notification endpoints.
type NotificationHandler struct {
	Service notification.NotificationService
}

func NewNotificationHandler(svc notification.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: svc}
}

// CreateNotification creates a notification and delivers it if it is due.
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req notification.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Service.Dispatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	getLogger(c).Info("Notification dispatched via API",
		zap.String("notificationId", res.NotificationID),
		zap.String("status", string(res.Status)),
	)
	c.JSON(http.StatusCreated, res)
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var filter models.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.Service.ListNotifications(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) GetNotification(c *gin.Context) {
	n, err := h.Service.GetNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// GetStats returns counts for the optional [from, to) window given as RFC 3339.
func (h *NotificationHandler) GetStats(c *gin.Context) {
	from, err := optionalTime(c, "from")
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := optionalTime(c, "to")
	if err != nil {
		badRequest(c, err)
		return
	}
	stats, err := h.Service.GetStats(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type idsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (h *NotificationHandler) RetryNotifications(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	count, err := h.Service.RetryNotifications(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": count})
}

func (h *NotificationHandler) CancelNotification(c *gin.Context) {
	n, err := h.Service.CancelNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

type statusRequest struct {
	Status       models.NotificationStatus `json:"status" binding:"required"`
	ErrorMessage string                    `json:"errorMessage,omitempty"`
}

// UpdateStatus records an externally reported delivery state.
func (h *NotificationHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.Service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.ErrorMessage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *NotificationHandler) CleanupNotifications(c *gin.Context) {
	days, err := strconv.Atoi(c.Query("olderThanDays"))
	if err != nil {
		badRequest(c, fmt.Errorf("olderThanDays must be an integer"))
		return
	}
	deleted, err := h.Service.CleanupOlderThan(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ListMyNotifications lists the authenticated traveller's notifications.
func (h *NotificationHandler) ListMyNotifications(c *gin.Context) {
	var filter models.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	filter.UserID = c.GetString("userID")
	page, err := h.Service.ListNotifications(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	count, err := h.Service.MarkAsRead(c.Request.Context(), c.GetString("userID"), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	cfgs, err := h.Service.GetUserConfigs(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfgs)
}

func (h *NotificationHandler) UpdatePreference(c *gin.Context) {
	var update notification.ConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err)
		return
	}
	cfg, err := h.Service.UpdateUserConfig(c.Request.Context(), c.GetString("userID"), models.Channel(c.Param("channel")), update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func optionalTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339: %w", key, err)
	}
	return &t, nil
}
