package orderRepo

import (
	"context"
	"errors"
	"time"

	"tripnotify/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict means the order was not in any of the expected source statuses.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// OrderRepository is the slice of the order store the notification subsystem uses.
type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// UpdateStatus moves an order to `to` only if it is currently in one of `from`.
	UpdateStatus(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus, transactionID string, now time.Time) (*models.Order, error)
}
