// Package password hashes and checks user passwords. New digests are argon2id;
// bcrypt digests imported from the previous user store are still accepted and
// reported as needing a rehash.
package password

import (
	"errors"
	"strings"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/config"
	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const bcryptPrefix = "$2"

var DefaultParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MiB
	Iterations:  2,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

type Hasher struct {
	params *argon2id.Params
	pepper string
}

func New(params *argon2id.Params, pepper string) *Hasher {
	if params == nil {
		params = DefaultParams
	}
	return &Hasher{params: params, pepper: pepper}
}

func NewFromConfig(cfg *config.Config) *Hasher {
	return New(&argon2id.Params{
		Memory:      cfg.ArgonMemoryKiB,
		Iterations:  cfg.ArgonIterations,
		Parallelism: cfg.ArgonParallelism,
		SaltLength:  DefaultParams.SaltLength,
		KeyLength:   DefaultParams.KeyLength,
	}, cfg.PasswordPepper)
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", customErrors.NewInvalidArgument("password must not be empty")
	}
	digest, err := argon2id.CreateHash(plaintext+h.pepper, h.params)
	if err != nil {
		return "", customErrors.WrapInternal(err, "hash password")
	}
	return digest, nil
}

func (h *Hasher) Compare(plaintext, digest string) (bool, error) {
	if strings.HasPrefix(digest, bcryptPrefix) {
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, customErrors.WrapInternal(err, "compare bcrypt digest")
		}
	}

	ok, err := argon2id.ComparePasswordAndHash(plaintext+h.pepper, digest)
	if err != nil {
		return false, customErrors.WrapInternal(err, "compare argon2id digest")
	}
	return ok, nil
}

// NeedsRehash reports digests that should be replaced after the next
// successful login.
func (h *Hasher) NeedsRehash(digest string) bool {
	return strings.HasPrefix(digest, bcryptPrefix)
}
