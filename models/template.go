package models

import "time"

// NotificationTemplate is a reusable content definition bound to a (type, channel) pair.
type NotificationTemplate struct {
	ID        string           `bson:"id" json:"id"`
	Name      string           `bson:"name" json:"name"`
	Type      NotificationType `bson:"type" json:"type"`
	Channel   Channel          `bson:"channel" json:"channel"`
	Title     string           `bson:"title" json:"title"`
	Content   string           `bson:"content" json:"content"`
	Variables []string         `bson:"variables" json:"variables"`
	IsActive  bool             `bson:"isActive" json:"isActive"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	Type       NotificationType
	Channel    Channel
	ActiveOnly bool
}

// NotificationConfig holds a user's settings for a single channel.
type NotificationConfig struct {
	UserID      string            `bson:"userId" json:"userId"`
	Channel     Channel           `bson:"channel" json:"channel"`
	IsEnabled   bool              `bson:"isEnabled" json:"isEnabled"`
	Preferences map[string]string `bson:"preferences,omitempty" json:"preferences,omitempty"`
	CreatedAt   time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// DefaultNotificationConfig is the config a user gets for a channel on first read.
func DefaultNotificationConfig(userID string, channel Channel, now time.Time) NotificationConfig {
	return NotificationConfig{
		UserID:      userID,
		Channel:     channel,
		IsEnabled:   true,
		Preferences: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
