// Package credentials implements the credential store: user lookups, creation
// with the identity-proof invariant, password checks and the refresh-token
// compare-and-set used by rotation.
package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/repo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, digest string) (bool, error)
	NeedsRehash(digest string) bool
}

type Store struct {
	users  repo.UserRepo
	hasher PasswordHasher
	v      *validator.Validate
	log    *zap.Logger

	// dummy is compared against when there is no real digest to check.
	dummy string
}

func New(users repo.UserRepo, hasher PasswordHasher, v *validator.Validate, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{users: users, hasher: hasher, v: v, log: log}
	d, err := hasher.Hash(uuid.NewString())
	if err != nil {
		log.Error("dummy digest", zap.Error(err))
	}
	s.dummy = d
	return s
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return s.users.GetUserByEmail(ctx, NormalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *Store) FindByFederatedID(ctx context.Context, federatedID string) (model.User, error) {
	return s.users.GetUserByFederatedID(ctx, federatedID)
}

func (s *Store) Create(ctx context.Context, d model.Draft) (model.User, error) {
	d.Email = NormalizeEmail(d.Email)
	d.FederatedID = strings.TrimSpace(d.FederatedID)

	if err := s.v.Struct(d); err != nil {
		return model.User{}, customErrors.NewInvalidArgument(err.Error())
	}
	if d.Password == "" && d.FederatedID == "" {
		return model.User{}, customErrors.NewInvalidArgument("missing identity proof: password or federatedId is required")
	}
	if d.Role == "" {
		d.Role = model.RoleStandard
	}
	if !d.Role.Valid() {
		return model.User{}, customErrors.NewInvalidArgument("unknown role " + string(d.Role))
	}

	var hash string
	if d.Password != "" {
		h, err := s.hasher.Hash(d.Password)
		if err != nil {
			return model.User{}, err
		}
		hash = h
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.New(),
		Email:        d.Email,
		Name:         d.Name,
		Surname:      d.Surname,
		Avatar:       d.Avatar,
		PasswordHash: hash,
		FederatedID:  d.FederatedID,
		Role:         d.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.users.CreateUser(ctx, user); err != nil {
		if customErrors.IsConflict(err) {
			return model.User{}, customErrors.ErrConflict
		}
		return model.User{}, customErrors.WrapInternal(err, "CreateUser")
	}
	return user, nil
}

// CheckPassword returns ErrCredentialMismatch for an unknown email, for an
// account without a password and for a wrong password alike. The hash cost is
// paid in every case.
func (s *Store) CheckPassword(ctx context.Context, email, plaintext string) (model.User, error) {
	user, err := s.FindByEmail(ctx, email)
	switch {
	case customErrors.IsNotFound(err):
		s.burn(plaintext)
		return model.User{}, customErrors.ErrCredentialMismatch
	case err != nil:
		return model.User{}, customErrors.WrapInternal(err, "CheckPassword")
	}

	if !user.HasPassword() {
		s.burn(plaintext)
		return model.User{}, customErrors.ErrCredentialMismatch
	}

	ok, err := s.hasher.Compare(plaintext, user.PasswordHash)
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		return model.User{}, customErrors.ErrCredentialMismatch
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, &user, plaintext)
	}
	return user, nil
}

func (s *Store) CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error {
	err := s.users.CompareAndSetRefreshToken(ctx, id, expected, next)
	switch {
	case err == nil:
		return nil
	case customErrors.IsRotationConflict(err), customErrors.IsNotFound(err):
		return err
	default:
		return customErrors.WrapInternal(err, "CompareAndSetRefreshToken")
	}
}

func (s *Store) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	err := s.users.SetRefreshToken(ctx, id, token)
	if err != nil && !customErrors.IsNotFound(err) {
		return customErrors.WrapInternal(err, "SetRefreshToken")
	}
	return err
}

// ChangePassword sets a new password and clears the stored refresh token, so
// sessions on other devices have to log in again. When the account already
// has a password the current one must match.
func (s *Store) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) (model.User, error) {
	if err := s.v.Var(next, "required,min=8,max=128"); err != nil {
		return model.User{}, customErrors.NewInvalidArgument("newPassword: " + err.Error())
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if user.HasPassword() {
		ok, err := s.hasher.Compare(current, user.PasswordHash)
		if err != nil {
			return model.User{}, err
		}
		if !ok {
			return model.User{}, customErrors.ErrCredentialMismatch
		}
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return model.User{}, err
	}
	user.PasswordHash = hash
	if err := s.Update(ctx, user); err != nil {
		return model.User{}, err
	}
	if err := s.SetRefreshToken(ctx, user.ID, ""); err != nil {
		return model.User{}, err
	}
	user.RefreshToken = ""
	return user, nil
}

func (s *Store) SetRole(ctx context.Context, id uuid.UUID, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, customErrors.NewInvalidArgument("unknown role " + string(role))
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	user.Role = role
	if err := s.Update(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Patch applies the non-nil fields of p to the stored user. A name may be
// changed but not cleared; an empty avatar removes the picture.
func (s *Store) Patch(ctx context.Context, id uuid.UUID, p model.UserPatch) (model.User, error) {
	if err := s.v.Struct(p); err != nil {
		return model.User{}, customErrors.NewInvalidArgument(err.Error())
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return model.User{}, customErrors.NewInvalidArgument("name must not be empty")
	}
	if p.Role != nil && !p.Role.Valid() {
		return model.User{}, customErrors.NewInvalidArgument("unknown role " + string(*p.Role))
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if p.Name != nil {
		user.Name = strings.TrimSpace(*p.Name)
	}
	if p.Surname != nil {
		user.Surname = strings.TrimSpace(*p.Surname)
	}
	if p.Avatar != nil {
		user.Avatar = strings.TrimSpace(*p.Avatar)
	}
	if p.Role != nil {
		user.Role = *p.Role
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.Update(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Update persists profile, role and password fields; the refresh token is
// left alone.
func (s *Store) Update(ctx context.Context, user model.User) error {
	err := s.users.UpdateUser(ctx, user)
	switch {
	case err == nil:
		return nil
	case customErrors.IsNotFound(err), customErrors.IsConflict(err):
		return err
	default:
		return customErrors.WrapInternal(err, "UpdateUser")
	}
}

// Delete removes the account and, with the row, its refresh token.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.users.DeleteUser(ctx, id)
	if err != nil && !customErrors.IsNotFound(err) {
		return customErrors.WrapInternal(err, "DeleteUser")
	}
	return err
}

func (s *Store) burn(plaintext string) {
	if s.dummy != "" {
		_, _ = s.hasher.Compare(plaintext, s.dummy)
	}
}

func (s *Store) rehash(ctx context.Context, user *model.User, plaintext string) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		s.log.Warn("rehash legacy digest", zap.Error(err))
		return
	}
	old := user.PasswordHash
	user.PasswordHash = hash
	if err := s.Update(ctx, *user); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("store rehashed digest", zap.String("user_id", user.ID.String()), zap.Error(err))
		user.PasswordHash = old
	}
}
