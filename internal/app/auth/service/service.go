// Package service holds the credential and token lifecycle: issuing and
// rotating token pairs, federated sign-in and resolving the caller of a
// protected request.
package service

import (
	"context"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const StateTTL = 10 * time.Minute

type CredentialStore interface {
	Directory
	RefreshTokenStore
	CheckPassword(ctx context.Context, email, plaintext string) (model.User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) (model.User, error)
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) (model.User, error)
	Patch(ctx context.Context, id uuid.UUID, p model.UserPatch) (model.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Provider interface {
	AuthCodeURL(state string) string
	Profile(ctx context.Context, code string) (model.ProviderProfile, error)
}

type Service interface {
	Signup(ctx context.Context, d model.Draft) (model.User, model.TokenPair, error)
	Login(ctx context.Context, email, password string) (model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
	VerifyTokens(accessToken, refreshToken string) Diagnostics
	Authenticate(ctx context.Context, authorization string) (model.User, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	GetUser(ctx context.Context, userID uuid.UUID) (model.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, p model.UserPatch) (model.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, p model.UserPatch) (model.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
	SetRole(ctx context.Context, userID uuid.UUID, role model.Role) (model.User, error)
	FederatedLoginURL(ctx context.Context) (string, error)
	FederatedCallback(ctx context.Context, code, state string) (model.User, model.TokenPair, error)
}

type authService struct {
	creds     CredentialStore
	tokens    *TokenService
	federated *FederatedResolver
	auth      *Authenticator
	provider  Provider
	states    repo.StateRepo
	newState  func() (string, error)
	log       *zap.Logger
}

func New(
	creds CredentialStore,
	tokens *TokenService,
	auth *Authenticator,
	provider Provider,
	states repo.StateRepo,
	newState func() (string, error),
	log *zap.Logger,
) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &authService{
		creds:     creds,
		tokens:    tokens,
		federated: NewFederatedResolver(creds, tokens, log),
		auth:      auth,
		provider:  provider,
		states:    states,
		newState:  newState,
		log:       log,
	}
}

func (a *authService) Signup(ctx context.Context, d model.Draft) (model.User, model.TokenPair, error) {
	if d.Password == "" {
		return model.User{}, model.TokenPair{}, customErrors.NewInvalidArgument("password is required")
	}
	d.FederatedID = ""
	d.Role = model.RoleStandard

	user, err := a.creds.Create(ctx, d)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	tp, err := a.tokens.Issue(ctx, user)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	a.log.Info("user signed up", zap.String("user_id", user.ID.String()))
	return user, tp, nil
}

func (a *authService) Login(ctx context.Context, email, password string) (model.TokenPair, error) {
	user, err := a.creds.CheckPassword(ctx, email, password)
	if err != nil {
		return model.TokenPair{}, err
	}
	return a.tokens.Issue(ctx, user)
}

func (a *authService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	return a.tokens.Rotate(ctx, refreshToken)
}

func (a *authService) VerifyTokens(accessToken, refreshToken string) Diagnostics {
	return a.tokens.VerifyBothForDiagnostics(accessToken, refreshToken)
}

func (a *authService) Authenticate(ctx context.Context, authorization string) (model.User, error) {
	return a.auth.Authenticate(ctx, authorization)
}

func (a *authService) Logout(ctx context.Context, userID uuid.UUID) error {
	return a.tokens.Revoke(ctx, userID)
}

func (a *authService) GetUser(ctx context.Context, userID uuid.UUID) (model.User, error) {
	return a.creds.FindByID(ctx, userID)
}

// UpdateProfile is the self-service edit: the role cannot be changed here.
func (a *authService) UpdateProfile(ctx context.Context, userID uuid.UUID, p model.UserPatch) (model.User, error) {
	p.Role = nil
	return a.creds.Patch(ctx, userID, p)
}

func (a *authService) UpdateUser(ctx context.Context, userID uuid.UUID, p model.UserPatch) (model.User, error) {
	user, err := a.creds.Patch(ctx, userID, p)
	if err != nil {
		return model.User{}, err
	}
	a.log.Info("user updated by administrator", zap.String("user_id", userID.String()))
	return user, nil
}

func (a *authService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	_, err := a.creds.ChangePassword(ctx, userID, current, next)
	return err
}

func (a *authService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := a.creds.Delete(ctx, userID); err != nil {
		return err
	}
	a.log.Info("account deleted", zap.String("user_id", userID.String()))
	return nil
}

func (a *authService) SetRole(ctx context.Context, userID uuid.UUID, role model.Role) (model.User, error) {
	return a.creds.SetRole(ctx, userID, role)
}

// FederatedLoginURL stores a fresh state value and returns the provider
// consent URL carrying it.
func (a *authService) FederatedLoginURL(ctx context.Context) (string, error) {
	state, err := a.newState()
	if err != nil {
		return "", err
	}
	if err := a.states.Save(ctx, state, StateTTL); err != nil {
		return "", customErrors.WrapInternal(err, "save oauth state")
	}
	return a.provider.AuthCodeURL(state), nil
}

func (a *authService) FederatedCallback(ctx context.Context, code, state string) (model.User, model.TokenPair, error) {
	if state == "" {
		return model.User{}, model.TokenPair{}, customErrors.ErrUnauthenticated
	}
	ok, err := a.states.Consume(ctx, state)
	if err != nil {
		return model.User{}, model.TokenPair{}, customErrors.WrapInternal(err, "consume oauth state")
	}
	if !ok {
		return model.User{}, model.TokenPair{}, customErrors.ErrUnauthenticated
	}

	profile, err := a.provider.Profile(ctx, code)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	return a.federated.Resolve(ctx, profile)
}
