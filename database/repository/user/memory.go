package userRepo

import (
	"context"
	"sync"

	"tripnotify/models"
)

// MemoryUserRepo is an in-process user store.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]models.UserContact
}

func NewMemoryUserRepo(users ...models.UserContact) *MemoryUserRepo {
	r := &MemoryUserRepo{users: make(map[string]models.UserContact)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// Put inserts or replaces a user.
func (r *MemoryUserRepo) Put(u models.UserContact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *MemoryUserRepo) GetContact(_ context.Context, id string) (*models.UserContact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
