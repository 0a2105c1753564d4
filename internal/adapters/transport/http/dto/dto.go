package dto

import (
	"time"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
)

type SignupDTO struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name"     validate:"required,max=100"`
	Surname  string `json:"surname"  validate:"max=100"`
	Avatar   string `json:"avatar"   validate:"omitempty,url"`
}

func (d SignupDTO) Draft() model.Draft {
	return model.Draft{
		Email:    d.Email,
		Password: d.Password,
		Name:     d.Name,
		Surname:  d.Surname,
		Avatar:   d.Avatar,
	}
}

type LoginDTO struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshDTO struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// VerifyDTO is not validated: a missing token simply reports as invalid.
type VerifyDTO struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

type SetRoleDTO struct {
	Role string `json:"role" validate:"required,oneof=standard administrator"`
}

// UpdateProfileDTO is a partial update: omitted fields keep their value.
// The avatar is a URL; uploads are not handled here.
type UpdateProfileDTO struct {
	Name    *string `json:"name"    validate:"omitempty,max=100"`
	Surname *string `json:"surname" validate:"omitempty,max=100"`
	Avatar  *string `json:"avatar"  validate:"omitempty,url"`
}

func (d UpdateProfileDTO) Patch() model.UserPatch {
	return model.UserPatch{Name: d.Name, Surname: d.Surname, Avatar: d.Avatar}
}

type UpdateUserDTO struct {
	UpdateProfileDTO
	Role *string `json:"role" validate:"omitempty,oneof=standard administrator"`
}

func (d UpdateUserDTO) Patch() model.UserPatch {
	p := d.UpdateProfileDTO.Patch()
	if d.Role != nil {
		r := model.Role(*d.Role)
		p.Role = &r
	}
	return p
}

type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	UserID       string `json:"userId"`
}

func NewTokenPairResponse(tp model.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:  tp.AccessToken,
		RefreshToken: tp.RefreshToken,
		ExpiresIn:    int(tp.AccessTTL.Seconds()),
		UserID:       tp.UserId.String(),
	}
}

type VerifyResponse struct {
	IsValid bool `json:"isValid"`
}

// PublicUser is the only shape in which a user leaves the service.
type PublicUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Surname     string    `json:"surname,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Role        string    `json:"role"`
	Federated   bool      `json:"federated"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewPublicUser(u model.User) PublicUser {
	return PublicUser{
		ID:          u.ID.String(),
		Email:       u.Email,
		Name:        u.Name,
		Surname:     u.Surname,
		Avatar:      u.Avatar,
		Role:        string(u.Role),
		Federated:   u.IsFederated(),
		HasPassword: u.HasPassword(),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
