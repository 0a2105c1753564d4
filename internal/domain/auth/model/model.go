package model

import (
	"github.com/google/uuid"
	"time"
)

type Role string

const (
	RoleStandard      Role = "standard"
	RoleAdministrator Role = "administrator"
)

func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdministrator
}

// User is the identity record. PasswordHash and RefreshToken never leave the
// service; responses go through an explicit public projection.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	Surname      string
	Avatar       string
	PasswordHash string `json:"-"`
	FederatedID  string
	Role         Role
	RefreshToken string `json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (u User) IsFederated() bool {
	return u.FederatedID != ""
}

// Draft describes a user that is about to be created. Password is plaintext and
// is hashed exactly once by the credential store.
type Draft struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"omitempty,min=8,max=128"`
	Name        string `validate:"required,max=100"`
	Surname     string `validate:"max=100"`
	Avatar      string `validate:"omitempty,url"`
	FederatedID string `validate:"max=255"`
	Role        Role
}

// UserPatch lists the profile fields a caller wants changed; nil leaves the
// field as it is. Role is honoured only on the administrator path.
type UserPatch struct {
	Name    *string `validate:"omitempty,max=100"`
	Surname *string `validate:"omitempty,max=100"`
	Avatar  *string `validate:"omitempty,url"`
	Role    *Role
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	UserId       uuid.UUID
}

// ProviderProfile is what an identity provider tells us about the user.
type ProviderProfile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Picture       string
}
