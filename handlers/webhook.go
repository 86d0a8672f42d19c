package handlers

import (
	"io"
	"net/http"

	"tripnotify/services/webhook"
	"tripnotify/utils"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds the callback body read into memory.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	Processor *webhook.Processor
}

func NewWebhookHandler(p *webhook.Processor) *WebhookHandler {
	return &WebhookHandler{Processor: p}
}

// HandlePayment verifies and applies a callback, answering in the shape the
// provider named by ?provider= expects.
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", "provider query parameter is required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		status, contentType, payload := webhook.Envelope(provider, webhook.Result{Message: "unreadable body"})
		c.Data(status, contentType, payload)
		return
	}

	res := h.Processor.ProcessWebhook(c.Request.Context(), provider, body, "", c.Request.Header)
	status, contentType, payload := webhook.Envelope(provider, res)
	c.Data(status, contentType, payload)
}
