package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_CRUD(t *testing.T) {
	repo := NewUserRepo()
	ctx := context.Background()

	u := model.User{ID: uuid.New(), Email: "a@b.com", Name: "A", PasswordHash: "h", Role: model.RoleStandard}
	id, err := repo.CreateUser(ctx, u)
	require.NoError(t, err)
	require.Equal(t, u.ID, id)

	got, err := repo.GetUserByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.False(t, got.CreatedAt.IsZero())

	got.Name = "B"
	require.NoError(t, repo.UpdateUser(ctx, got))
	got, _ = repo.GetUserByID(ctx, u.ID)
	require.Equal(t, "B", got.Name)

	require.NoError(t, repo.DeleteUser(ctx, u.ID))
	_, err = repo.GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, customErrors.ErrUserNotFound)
	require.ErrorIs(t, repo.DeleteUser(ctx, u.ID), customErrors.ErrNotFound)
}

func TestUserRepo_Conflicts(t *testing.T) {
	repo := NewUserRepo()
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, model.User{ID: uuid.New(), Email: "a@b.com", FederatedID: "g-1"})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, model.User{ID: uuid.New(), Email: "a@b.com", PasswordHash: "h"})
	require.ErrorIs(t, err, customErrors.ErrConflict)

	_, err = repo.CreateUser(ctx, model.User{ID: uuid.New(), Email: "c@d.com", FederatedID: "g-1"})
	require.ErrorIs(t, err, customErrors.ErrConflict)

	// два пользователя без federated id не конфликтуют
	_, err = repo.CreateUser(ctx, model.User{ID: uuid.New(), Email: "e@f.com", PasswordHash: "h"})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, model.User{ID: uuid.New(), Email: "g@h.com", PasswordHash: "h"})
	require.NoError(t, err)
}

func TestUserRepo_UpdateKeepsRefreshToken(t *testing.T) {
	repo := NewUserRepo()
	ctx := context.Background()
	u := model.User{ID: uuid.New(), Email: "a@b.com", PasswordHash: "h"}
	_, _ = repo.CreateUser(ctx, u)
	require.NoError(t, repo.SetRefreshToken(ctx, u.ID, "r0"))

	u.Name = "changed"
	u.RefreshToken = "attacker"
	require.NoError(t, repo.UpdateUser(ctx, u))

	got, _ := repo.GetUserByID(ctx, u.ID)
	require.Equal(t, "r0", got.RefreshToken)
}

func TestUserRepo_CompareAndSet(t *testing.T) {
	repo := NewUserRepo()
	ctx := context.Background()
	u := model.User{ID: uuid.New(), Email: "a@b.com", PasswordHash: "h"}
	_, _ = repo.CreateUser(ctx, u)
	require.NoError(t, repo.SetRefreshToken(ctx, u.ID, "r0"))

	require.NoError(t, repo.CompareAndSetRefreshToken(ctx, u.ID, "r0", "r1"))
	require.ErrorIs(t, repo.CompareAndSetRefreshToken(ctx, u.ID, "r0", "r2"), customErrors.ErrRotationConflict)
	require.ErrorIs(t, repo.CompareAndSetRefreshToken(ctx, uuid.New(), "r1", "r2"), customErrors.ErrUserNotFound)
}

func TestUserRepo_CompareAndSetConcurrent(t *testing.T) {
	repo := NewUserRepo()
	ctx := context.Background()
	u := model.User{ID: uuid.New(), Email: "a@b.com", PasswordHash: "h"}
	_, _ = repo.CreateUser(ctx, u)
	_ = repo.SetRefreshToken(ctx, u.ID, "r0")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.CompareAndSetRefreshToken(ctx, u.ID, "r0", uuid.NewString()) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

func TestStateRepo_ConsumeOnce(t *testing.T) {
	s := NewStateRepo()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "st", time.Minute))

	ok, err := s.Consume(ctx, "st")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = s.Consume(ctx, "st")
	require.False(t, ok)
}
