package repo

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/google/uuid"
)

type UserRepo interface {
	CreateUser(ctx context.Context, u model.User) (uuid.UUID, error)

	GetUserByEmail(ctx context.Context, email string) (model.User, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)

	GetUserByFederatedID(ctx context.Context, federatedID string) (model.User, error)

	// UpdateUser writes profile, role and password fields. It never touches the
	// refresh token column.
	UpdateUser(ctx context.Context, u model.User) error

	DeleteUser(ctx context.Context, id uuid.UUID) error

	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error

	// CompareAndSetRefreshToken replaces the stored refresh token with next only
	// if it still equals expected. Returns ErrRotationConflict otherwise.
	CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error
}
