// Package channels holds the provider adapters that deliver a rendered
// notification over SMS, email, push or the in-app inbox.
package channels

import (
	"context"
	"errors"
	"fmt"

	"tripnotify/models"
)

// Receipt is what a provider hands back for an accepted message.
type Receipt struct {
	ExternalID string
	Provider   string
}

// Adapter delivers one notification on one channel. Every failure is a *DeliveryError.
type Adapter interface {
	Channel() models.Channel
	Send(ctx context.Context, n *models.Notification, title, content string, recipient models.Recipient) (Receipt, error)
}

// DeliveryError classifies a failed send. Permanent errors are never retried.
type DeliveryError struct {
	Channel   models.Channel
	Permanent bool
	Reason    string
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s delivery failed (%s): %s: %v", e.Channel, kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s delivery failed (%s): %s", e.Channel, kind, e.Reason)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func permanent(ch models.Channel, reason string, err error) *DeliveryError {
	return &DeliveryError{Channel: ch, Permanent: true, Reason: reason, Err: err}
}

func transient(ch models.Channel, reason string, err error) *DeliveryError {
	return &DeliveryError{Channel: ch, Permanent: false, Reason: reason, Err: err}
}

// IsPermanent reports whether err is a delivery error that must not be retried.
// Errors that are not *DeliveryError are treated as transient.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}

// Registry resolves the adapter for a channel.
type Registry struct {
	adapters map[models.Channel]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Channel]Adapter)}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Channel()] = a
		}
	}
	return r
}

// Get returns the adapter for ch, or false if none is registered.
func (r *Registry) Get(ch models.Channel) (Adapter, bool) {
	a, ok := r.adapters[ch]
	return a, ok
}
