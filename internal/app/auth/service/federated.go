package service

import (
	"context"
	"strings"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"go.uber.org/zap"
)

type Directory interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByFederatedID(ctx context.Context, federatedID string) (model.User, error)
	Create(ctx context.Context, d model.Draft) (model.User, error)
	Update(ctx context.Context, user model.User) error
}

// FederatedResolver maps a provider profile onto a local account and issues
// tokens for it. It never hashes passwords.
type FederatedResolver struct {
	users  Directory
	tokens *TokenService
	log    *zap.Logger
}

func NewFederatedResolver(users Directory, tokens *TokenService, log *zap.Logger) *FederatedResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &FederatedResolver{users: users, tokens: tokens, log: log}
}

func (r *FederatedResolver) Resolve(ctx context.Context, p model.ProviderProfile) (model.User, model.TokenPair, error) {
	if p.Subject == "" {
		return model.User{}, model.TokenPair{}, customErrors.NewInvalidArgument("provider profile has no subject")
	}

	user, err := r.users.FindByFederatedID(ctx, p.Subject)
	switch {
	case err == nil:
		if refreshProfile(&user, p) {
			if err := r.users.Update(ctx, user); err != nil {
				return model.User{}, model.TokenPair{}, err
			}
		}
	case customErrors.IsNotFound(err):
		user, err = r.create(ctx, p)
		if err != nil {
			return model.User{}, model.TokenPair{}, err
		}
	default:
		return model.User{}, model.TokenPair{}, err
	}

	tp, err := r.tokens.Issue(ctx, user)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	return user, tp, nil
}

func (r *FederatedResolver) create(ctx context.Context, p model.ProviderProfile) (model.User, error) {
	if !p.EmailVerified {
		return model.User{}, customErrors.NewInvalidArgument("provider email is not verified")
	}

	// A password account with the same email is not linked implicitly.
	if existing, err := r.users.FindByEmail(ctx, p.Email); err == nil {
		if existing.FederatedID == p.Subject {
			return existing, nil
		}
		r.log.Info("federated email belongs to another account", zap.String("provider", p.Provider))
		return model.User{}, customErrors.ErrConflict
	} else if !customErrors.IsNotFound(err) {
		return model.User{}, err
	}

	user, err := r.users.Create(ctx, model.Draft{
		Email:       p.Email,
		Name:        displayName(p),
		Surname:     p.FamilyName,
		Avatar:      p.Picture,
		FederatedID: p.Subject,
		Role:        model.RoleStandard,
	})
	if customErrors.IsConflict(err) {
		// Lost a first-sight race for the same subject: use the winner.
		winner, lookupErr := r.users.FindByFederatedID(ctx, p.Subject)
		if lookupErr == nil {
			return winner, nil
		}
		return model.User{}, err
	}
	if err != nil {
		return model.User{}, err
	}

	r.log.Info("federated account created",
		zap.String("provider", p.Provider),
		zap.String("user_id", user.ID.String()))
	return user, nil
}

func refreshProfile(u *model.User, p model.ProviderProfile) (changed bool) {
	if p.GivenName != "" && u.Name != p.GivenName {
		u.Name, changed = p.GivenName, true
	}
	if p.FamilyName != "" && u.Surname != p.FamilyName {
		u.Surname, changed = p.FamilyName, true
	}
	if p.Picture != "" && u.Avatar != p.Picture {
		u.Avatar, changed = p.Picture, true
	}
	return
}

func displayName(p model.ProviderProfile) string {
	if p.GivenName != "" {
		return p.GivenName
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	return p.Provider + " user"
}
