// Package memory holds process-local repositories. They back the "memory"
// storage driver and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/google/uuid"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
	now   func() time.Time
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[uuid.UUID]model.User), now: time.Now}
}

func (r *UserRepo) CreateUser(_ context.Context, u model.User) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return uuid.Nil, customErrors.ErrConflict
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return uuid.Nil, customErrors.ErrConflict
		}
		if u.FederatedID != "" && existing.FederatedID == u.FederatedID {
			return uuid.Nil, customErrors.ErrConflict
		}
	}

	now := r.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	r.users[u.ID] = u
	return u.ID, nil
}

func (r *UserRepo) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r *UserRepo) GetUserByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, customErrors.ErrUserNotFound
	}
	return u, nil
}

func (r *UserRepo) GetUserByFederatedID(_ context.Context, federatedID string) (model.User, error) {
	if federatedID == "" {
		return model.User{}, customErrors.ErrUserNotFound
	}
	return r.find(func(u model.User) bool { return u.FederatedID == federatedID })
}

func (r *UserRepo) UpdateUser(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.users[u.ID]
	if !ok {
		return customErrors.ErrUserNotFound
	}
	for id, existing := range r.users {
		if id == u.ID {
			continue
		}
		if existing.Email == u.Email || (u.FederatedID != "" && existing.FederatedID == u.FederatedID) {
			return customErrors.ErrConflict
		}
	}

	u.RefreshToken = cur.RefreshToken
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = r.now()
	r.users[u.ID] = u
	return nil
}

func (r *UserRepo) DeleteUser(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return customErrors.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *UserRepo) SetRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return customErrors.ErrUserNotFound
	}
	u.RefreshToken = token
	r.users[id] = u
	return nil
}

func (r *UserRepo) CompareAndSetRefreshToken(_ context.Context, id uuid.UUID, expected, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return customErrors.ErrUserNotFound
	}
	if u.RefreshToken != expected {
		return customErrors.ErrRotationConflict
	}
	u.RefreshToken = next
	r.users[id] = u
	return nil
}

func (r *UserRepo) find(match func(model.User) bool) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, customErrors.ErrUserNotFound
}
