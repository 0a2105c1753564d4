package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/config"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// RefreshTokenStore is the part of the credential store that token issuance
// and rotation depend on.
type RefreshTokenStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (model.User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error
}

const (
	outcomeRotated  = "rotated"
	outcomeInvalid  = "invalid"
	outcomeReused   = "reused"
	outcomeConflict = "conflict"
	outcomeNoUser   = "user_not_found"
	outcomeError    = "error"
)

type Diagnostics struct {
	AccessValid  bool
	RefreshValid bool
}

type TokenService struct {
	signer     jwt.Signer
	store      RefreshTokenStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *zap.Logger
	rotations  *prometheus.CounterVec
}

// NewTokenService registers the rotation counter on reg when reg is not nil.
func NewTokenService(
	signer jwt.Signer,
	store RefreshTokenStore,
	cfg *config.Config,
	log *zap.Logger,
	reg prometheus.Registerer,
) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	rotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Refresh token rotations by outcome.",
	}, []string{"outcome"})
	if reg != nil {
		if err := reg.Register(rotations); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				rotations = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				log.Warn("register rotation counter", zap.Error(err))
			}
		}
	}
	return &TokenService{
		signer:     signer,
		store:      store,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		log:        log,
		rotations:  rotations,
	}
}

// Issue mints a fresh pair and unconditionally replaces the stored refresh
// token, which revokes whatever refresh token the user held before.
func (s *TokenService) Issue(ctx context.Context, user model.User) (model.TokenPair, error) {
	rt, _, err := s.signer.Sign(jwt.KindRefresh, user.ID, s.refreshTTL)
	if err != nil {
		return model.TokenPair{}, customErrors.WrapInternal(err, "sign refresh token")
	}
	if err := s.store.SetRefreshToken(ctx, user.ID, rt); err != nil {
		return model.TokenPair{}, err
	}
	at, _, err := s.signer.Sign(jwt.KindAccess, user.ID, s.accessTTL)
	if err != nil {
		return model.TokenPair{}, customErrors.WrapInternal(err, "sign access token")
	}

	s.log.Debug("tokens issued", zap.String("user_id", user.ID.String()))
	return s.pair(user.ID, at, rt), nil
}

// Rotate exchanges a refresh token for a new pair. Each refresh token rotates
// at most once; a concurrent loser gets ErrRotationConflict and the tokens it
// generated are discarded. Conflicts are returned to the caller as is.
func (s *TokenService) Rotate(ctx context.Context, presented string) (model.TokenPair, error) {
	claims, err := s.signer.Verify(jwt.KindRefresh, presented)
	if err != nil {
		s.observe(outcomeInvalid)
		return model.TokenPair{}, customErrors.ErrTokenInvalid
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.observe(outcomeInvalid)
		return model.TokenPair{}, customErrors.ErrTokenInvalid
	}

	user, err := s.store.FindByID(ctx, uid)
	switch {
	case customErrors.IsNotFound(err):
		s.observe(outcomeNoUser)
		return model.TokenPair{}, customErrors.ErrUserNotFound
	case err != nil:
		s.observe(outcomeError)
		return model.TokenPair{}, err
	}

	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(presented)) != 1 {
		s.observe(outcomeReused)
		s.log.Warn("refresh token reuse", zap.String("user_id", uid.String()))
		return model.TokenPair{}, customErrors.ErrTokenInvalid
	}

	rt, _, err := s.signer.Sign(jwt.KindRefresh, uid, s.refreshTTL)
	if err != nil {
		s.observe(outcomeError)
		return model.TokenPair{}, customErrors.WrapInternal(err, "sign refresh token")
	}
	at, _, err := s.signer.Sign(jwt.KindAccess, uid, s.accessTTL)
	if err != nil {
		s.observe(outcomeError)
		return model.TokenPair{}, customErrors.WrapInternal(err, "sign access token")
	}

	err = s.store.CompareAndSetRefreshToken(ctx, uid, presented, rt)
	switch {
	case err == nil:
	case customErrors.IsRotationConflict(err):
		s.observe(outcomeConflict)
		s.log.Info("refresh rotation lost race", zap.String("user_id", uid.String()))
		return model.TokenPair{}, customErrors.ErrRotationConflict
	case customErrors.IsNotFound(err):
		s.observe(outcomeNoUser)
		return model.TokenPair{}, customErrors.ErrUserNotFound
	default:
		s.observe(outcomeError)
		return model.TokenPair{}, err
	}

	s.observe(outcomeRotated)
	return s.pair(uid, at, rt), nil
}

// Revoke clears the stored refresh token. Access tokens already issued stay
// valid until they expire.
func (s *TokenService) Revoke(ctx context.Context, userID uuid.UUID) error {
	return s.store.SetRefreshToken(ctx, userID, "")
}

// VerifyBothForDiagnostics checks both signatures and expiries without
// touching the store.
func (s *TokenService) VerifyBothForDiagnostics(access, refresh string) Diagnostics {
	_, accessErr := s.signer.Verify(jwt.KindAccess, access)
	_, refreshErr := s.signer.Verify(jwt.KindRefresh, refresh)
	return Diagnostics{AccessValid: accessErr == nil, RefreshValid: refreshErr == nil}
}

func (s *TokenService) observe(outcome string) {
	s.rotations.WithLabelValues(outcome).Inc()
}

func (s *TokenService) pair(uid uuid.UUID, at, rt string) model.TokenPair {
	return model.TokenPair{
		AccessToken:  at,
		RefreshToken: rt,
		AccessTTL:    s.accessTTL,
		RefreshTTL:   s.refreshTTL,
		UserId:       uid,
	}
}
