package handlers

import (
	"net/http"

	"tripnotify/models"
	"tripnotify/services/booking"

	"github.com/gin-gonic/gin"
)

// BookingNotificationHandler triggers booking lifecycle notifications for an order.
type BookingNotificationHandler struct {
	Service         booking.BookingNotificationService
	DefaultChannels []models.Channel
}

func NewBookingNotificationHandler(svc booking.BookingNotificationService, defaults []models.Channel) *BookingNotificationHandler {
	return &BookingNotificationHandler{Service: svc, DefaultChannels: defaults}
}

func (h *BookingNotificationHandler) channels(requested []models.Channel) []models.Channel {
	if len(requested) > 0 {
		return requested
	}
	return h.DefaultChannels
}

func (h *BookingNotificationHandler) SendConfirmation(c *gin.Context) {
	var body struct {
		booking.ConfirmationRequest
		Channels []models.Channel `json:"channels"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	body.OrderID = c.Param("orderId")
	results, err := h.Service.SendMultiChannelConfirmation(c.Request.Context(), body.ConfirmationRequest, h.channels(body.Channels))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": body.OrderID, "results": results})
}

func (h *BookingNotificationHandler) SendStatusChange(c *gin.Context) {
	var body struct {
		booking.StatusChangeRequest
		Channels []models.Channel `json:"channels"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	body.OrderID = c.Param("orderId")
	results, err := h.Service.SendMultiChannelStatusChange(c.Request.Context(), body.StatusChangeRequest, h.channels(body.Channels))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": body.OrderID, "results": results})
}

func (h *BookingNotificationHandler) SendReminder(c *gin.Context) {
	var body struct {
		booking.ReminderRequest
		Channels []models.Channel `json:"channels"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	body.OrderID = c.Param("orderId")
	results, err := h.Service.SendMultiChannelReminder(c.Request.Context(), body.ReminderRequest, h.channels(body.Channels))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": body.OrderID, "results": results})
}
