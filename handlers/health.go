package handlers

import (
	"net/http"

	"tripnotify/services/monitor"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves the monitor's health report.
type HealthHandler struct {
	Monitor *monitor.Monitor
}

func NewHealthHandler(m *monitor.Monitor) *HealthHandler {
	return &HealthHandler{Monitor: m}
}

func (h *HealthHandler) Health(c *gin.Context) {
	report := h.Monitor.Report(c.Request.Context())
	status := http.StatusOK
	if report.Status == monitor.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
