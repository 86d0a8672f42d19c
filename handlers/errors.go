package handlers

import (
	"errors"
	"net/http"
	"strings"

	"tripnotify/services/booking"
	"tripnotify/services/notification"
	"tripnotify/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps service errors onto the standard error response.
func respondError(c *gin.Context, err error) {
	var validationErr *notification.ValidationError
	var templateErr *notification.TemplateError

	switch {
	case errors.As(err, &validationErr):
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", strings.Join(validationErr.Problems, "; "))
	case errors.As(err, &templateErr):
		utils.JSONError(c, http.StatusUnprocessableEntity, "Template cannot be used", templateErr.Error())
	case errors.Is(err, notification.ErrNotFound), errors.Is(err, notification.ErrTemplateNotFound),
		errors.Is(err, booking.ErrOrderNotFound):
		utils.JSONError(c, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, notification.ErrChannelDisabled), errors.Is(err, notification.ErrNotCancellable),
		errors.Is(err, notification.ErrInvalidTransition), errors.Is(err, booking.ErrNotEligible):
		utils.JSONError(c, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, booking.ErrNoChannels):
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		getLogger(c).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func badRequest(c *gin.Context, err error) {
	utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
}
