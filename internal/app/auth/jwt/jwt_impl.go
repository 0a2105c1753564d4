package jwt

import (
	"errors"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	jwt2 "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JwtUtilImpl signs access and refresh tokens with two independent HMAC keys,
// so a token of one kind never verifies as the other.
type JwtUtilImpl struct {
	keys   map[jwt2.Kind][]byte
	issuer string
	now    func() time.Time
}

type Option func(*JwtUtilImpl)

// WithClock overrides the time source used for both signing and verification.
func WithClock(now func() time.Time) Option {
	return func(j *JwtUtilImpl) { j.now = now }
}

func NewJWTUtil(cfg *config.Config, opts ...Option) (*JwtUtilImpl, error) {
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		return nil, customErrors.NewInvalidArgument("token secrets must be set")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return nil, customErrors.NewInvalidArgument("access and refresh secrets must differ")
	}

	j := &JwtUtilImpl{
		keys: map[jwt2.Kind][]byte{
			jwt2.KindAccess:  []byte(cfg.AccessTokenSecret),
			jwt2.KindRefresh: []byte(cfg.RefreshTokenSecret),
		},
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

func (j *JwtUtilImpl) Sign(kind jwt2.Kind, subject uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	key, ok := j.keys[kind]
	if !ok {
		return "", time.Time{}, customErrors.NewInvalidArgument("unknown token kind")
	}

	now := j.now()
	claims := jwt2.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, customErrors.WrapInternal(err, "sign "+string(kind)+" token")
	}

	return signed, claims.ExpiresAt.Time, nil
}

func (j *JwtUtilImpl) Verify(kind jwt2.Kind, raw string) (jwt2.Claims, error) {
	key, ok := j.keys[kind]
	if !ok {
		return jwt2.Claims{}, customErrors.ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	var claims jwt2.Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)

	switch {
	case err == nil && token.Valid:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return jwt2.Claims{}, customErrors.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		// подпись уже проверена к этому моменту, просто истёк срок
		return jwt2.Claims{}, customErrors.ErrTokenExpired
	default:
		return jwt2.Claims{}, customErrors.ErrTokenInvalid
	}

	if claims.Kind != kind {
		return jwt2.Claims{}, customErrors.ErrTokenInvalid
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return jwt2.Claims{}, customErrors.ErrTokenInvalid
	}

	return claims, nil
}
