package channels

import (
	"context"

	"tripnotify/models"
)

// InAppAdapter delivers by persistence alone: the stored record is the inbox entry.
type InAppAdapter struct{}

func NewInAppAdapter() *InAppAdapter { return &InAppAdapter{} }

func (a *InAppAdapter) Channel() models.Channel { return models.ChannelInApp }

func (a *InAppAdapter) Send(_ context.Context, n *models.Notification, _, _ string, _ models.Recipient) (Receipt, error) {
	return Receipt{ExternalID: n.ID, Provider: "inbox"}, nil
}
