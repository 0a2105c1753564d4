package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/db/memory"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/credentials"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/password"
	appsvc "github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/service"
	authErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/config"
	"github.com/alexedwards/argon2id"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

/* ──────────────────────────────── clock ──────────────────────────────── */

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

/* ──────────────────────────────── stubs ──────────────────────────────── */

type fakeProvider struct {
	profiles map[string]model.ProviderProfile
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (p *fakeProvider) Profile(_ context.Context, code string) (model.ProviderProfile, error) {
	prof, ok := p.profiles[code]
	if !ok {
		return model.ProviderProfile{}, authErrors.ErrUnauthenticated
	}
	return prof, nil
}

/* ───────────────────────────── helpers ───────────────────────────── */

type env struct {
	clock    *fakeClock
	users    *memory.UserRepo
	states   *memory.StateRepo
	creds    *credentials.Store
	signer   *jwt.JwtUtilImpl
	tokens   *appsvc.TokenService
	auth     *appsvc.Authenticator
	provider *fakeProvider
	svc      appsvc.Service
	reg      *prometheus.Registry
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		Issuer:             "blog-auth-test",
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testConfig()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	signer, err := jwt.NewJWTUtil(cfg, jwt.WithClock(clock.Now))
	require.NoError(t, err)

	users := memory.NewUserRepo()
	states := memory.NewStateRepo()
	hasher := password.New(&argon2id.Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	}, "")
	creds := credentials.New(users, hasher, validator.New(), nil)
	reg := prometheus.NewRegistry()
	tokens := appsvc.NewTokenService(signer, creds, cfg, nil, reg)
	auth := appsvc.NewAuthenticator(signer, creds)
	provider := &fakeProvider{profiles: map[string]model.ProviderProfile{}}

	n := 0
	newState := func() (string, error) {
		n++
		return fmt.Sprintf("state-%d", n), nil
	}

	return &env{
		clock:    clock,
		users:    users,
		states:   states,
		creds:    creds,
		signer:   signer,
		tokens:   tokens,
		auth:     auth,
		provider: provider,
		svc:      appsvc.New(creds, tokens, auth, provider, states, newState, nil),
		reg:      reg,
	}
}

func (e *env) signup(t *testing.T, email string) (model.User, model.TokenPair) {
	t.Helper()
	u, tp, err := e.svc.Signup(context.Background(), model.Draft{
		Email:    email,
		Password: "correct horse",
		Name:     "Ann",
	})
	require.NoError(t, err)
	return u, tp
}

func googleProfile(sub, email string) model.ProviderProfile {
	return model.ProviderProfile{
		Provider:      "google",
		Subject:       sub,
		Email:         email,
		EmailVerified: true,
		GivenName:     "Gus",
		FamilyName:    "Grey",
		Picture:       "https://example.com/gus.png",
	}
}
