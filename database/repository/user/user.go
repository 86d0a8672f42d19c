package userRepo

import (
	"context"
	"errors"

	"tripnotify/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the read side of the user store that delivery needs.
type UserRepository interface {
	// GetContact retrieves the contact projection of a user by their unique ID.
	GetContact(ctx context.Context, id string) (*models.UserContact, error)
}
