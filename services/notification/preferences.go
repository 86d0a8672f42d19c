package notification

import (
	"context"
	"fmt"

	"tripnotify/models"
)

// ConfigUpdate changes a user's settings for one channel. Nil fields are kept.
type ConfigUpdate struct {
	IsEnabled   *bool             `json:"isEnabled,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// GetUserConfigs returns one config per channel, creating defaults on first read.
func (s *DefaultNotificationService) GetUserConfigs(ctx context.Context, userID string) ([]models.NotificationConfig, error) {
	if userID == "" {
		return nil, newValidationError("userId is required")
	}
	now := s.now()
	out := make([]models.NotificationConfig, 0, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		cfg, err := s.configs.EnsureConfig(ctx, userID, ch, now)
		if err != nil {
			return nil, &PersistenceError{Op: "GetUserConfigs", Err: err}
		}
		out = append(out, *cfg)
	}
	return out, nil
}

func (s *DefaultNotificationService) UpdateUserConfig(ctx context.Context, userID string, channel models.Channel, update ConfigUpdate) (*models.NotificationConfig, error) {
	if userID == "" {
		return nil, newValidationError("userId is required")
	}
	if !channel.Valid() {
		return nil, newValidationError(fmt.Sprintf("unknown channel %q", channel))
	}
	now := s.now()
	cfg, err := s.configs.EnsureConfig(ctx, userID, channel, now)
	if err != nil {
		return nil, &PersistenceError{Op: "UpdateUserConfig", Err: err}
	}
	if update.IsEnabled != nil {
		cfg.IsEnabled = *update.IsEnabled
	}
	if update.Preferences != nil {
		cfg.Preferences = update.Preferences
	}
	cfg.UpdatedAt = now
	if err := s.configs.UpsertConfig(ctx, cfg); err != nil {
		return nil, &PersistenceError{Op: "UpdateUserConfig", Err: err}
	}
	return cfg, nil
}
