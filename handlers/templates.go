package handlers

import (
	"net/http"

	"tripnotify/models"
	"tripnotify/services/notification"

	"github.com/gin-gonic/gin"
)

func (h *NotificationHandler) CreateTemplate(c *gin.Context) {
	var req notification.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tpl, err := h.Service.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (h *NotificationHandler) UpdateTemplate(c *gin.Context) {
	var req notification.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tpl, err := h.Service.UpdateTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *NotificationHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.Service.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *NotificationHandler) ListTemplates(c *gin.Context) {
	filter := models.TemplateFilter{
		Type:       models.NotificationType(c.Query("type")),
		Channel:    models.Channel(c.Query("channel")),
		ActiveOnly: c.Query("active") == "true",
	}
	list, err := h.Service.ListTemplates(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ValidateTemplate checks placeholder syntax without storing anything.
func (h *NotificationHandler) ValidateTemplate(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Service.ValidateTemplate(req.Content))
}
