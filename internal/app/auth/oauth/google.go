// Package oauth talks to the Google OAuth 2.0 / OpenID Connect endpoints.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ProviderGoogle      = "google"
	DefaultUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
	stateBytes          = 32
	maxUserInfoBodySize = 1 << 20
)

type Google struct {
	conf        *oauth2.Config
	userInfoURL string
}

type Option func(*Google)

// WithEndpoints points the provider at a different authorization server.
func WithEndpoints(authURL, tokenURL, userInfoURL string) Option {
	return func(g *Google) {
		g.conf.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
		g.userInfoURL = userInfoURL
	}
}

func NewGoogle(cfg *config.Config, opts ...Option) *Google {
	g := &Google{
		conf: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleCallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: DefaultUserInfoURL,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"))
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Profile exchanges the authorization code and reads the userinfo endpoint.
// A code the provider refuses is reported as ErrUnauthenticated.
func (g *Google) Profile(ctx context.Context, code string) (model.ProviderProfile, error) {
	if code == "" {
		return model.ProviderProfile{}, customErrors.ErrUnauthenticated
	}
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return model.ProviderProfile{}, fmt.Errorf("%w: code exchange: %v", customErrors.ErrUnauthenticated, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return model.ProviderProfile{}, customErrors.WrapInternal(err, "userinfo request")
	}
	resp, err := g.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return model.ProviderProfile{}, customErrors.WrapInternal(err, "userinfo")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ProviderProfile{}, customErrors.WrapInternal(
			fmt.Errorf("status %d", resp.StatusCode), "userinfo")
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBodySize)).Decode(&info); err != nil {
		return model.ProviderProfile{}, customErrors.WrapInternal(err, "decode userinfo")
	}
	if info.Sub == "" {
		return model.ProviderProfile{}, customErrors.WrapInternal(fmt.Errorf("empty sub"), "userinfo")
	}

	return model.ProviderProfile{
		Provider:      ProviderGoogle,
		Subject:       info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		Picture:       info.Picture,
	}, nil
}

// NewState returns an unguessable value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", customErrors.WrapInternal(err, "generate state")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
