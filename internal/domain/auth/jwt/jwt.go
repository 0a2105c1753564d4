package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind selects the signing key and lifetime of a token.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"knd"`
}

// Signer produces and checks signed, time-bounded claim sets. Implementations
// hold no mutable state and are safe for concurrent use.
type Signer interface {
	Sign(kind Kind, subject uuid.UUID, ttl time.Duration) (token string, exp time.Time, err error)
	Verify(kind Kind, raw string) (Claims, error)
}
