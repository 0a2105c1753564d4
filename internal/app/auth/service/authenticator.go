package service

import (
	"context"
	"strings"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/google/uuid"
)

type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

// Authenticator resolves the caller of a protected request from its
// Authorization header. Access tokens are not checked against the store.
type Authenticator struct {
	signer jwt.Signer
	users  UserFinder
}

func NewAuthenticator(signer jwt.Signer, users UserFinder) *Authenticator {
	return &Authenticator{signer: signer, users: users}
}

func (a *Authenticator) Authenticate(ctx context.Context, header string) (model.User, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return model.User{}, err
	}

	claims, err := a.signer.Verify(jwt.KindAccess, raw)
	if err != nil {
		return model.User{}, customErrors.ErrUnauthenticated
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.User{}, customErrors.ErrUnauthenticated
	}

	user, err := a.users.FindByID(ctx, uid)
	switch {
	case customErrors.IsNotFound(err):
		return model.User{}, customErrors.ErrUserNotFound
	case err != nil:
		return model.User{}, err
	}
	return user, nil
}

// BearerToken extracts the token from "<scheme> <token>". The scheme must be
// Bearer in any case; quotes around the token are dropped.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", customErrors.ErrUnauthenticated
	}
	token = strings.Trim(strings.TrimSpace(token), `"'`)
	if token == "" {
		return "", customErrors.ErrUnauthenticated
	}
	return token, nil
}

func RequireRole(user model.User, role model.Role) error {
	if user.Role != role {
		return customErrors.ErrForbidden
	}
	return nil
}
