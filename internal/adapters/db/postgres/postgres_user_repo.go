package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// userRecord is the row layout of the users table (see infra/migrate).
type userRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	Surname      string    `gorm:"not null"`
	Avatar       string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	FederatedID  *string   `gorm:"uniqueIndex"`
	Role         string    `gorm:"not null"`
	RefreshToken string    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func toRecord(u model.User) userRecord {
	rec := userRecord{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Surname:      u.Surname,
		Avatar:       u.Avatar,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		RefreshToken: u.RefreshToken,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.FederatedID != "" {
		fid := u.FederatedID
		rec.FederatedID = &fid
	}
	return rec
}

func (r userRecord) toModel() model.User {
	u := model.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		Surname:      r.Surname,
		Avatar:       r.Avatar,
		PasswordHash: r.PasswordHash,
		Role:         model.Role(r.Role),
		RefreshToken: r.RefreshToken,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.FederatedID != nil {
		u.FederatedID = *r.FederatedID
	}
	return u
}

type PostgresUserRepo struct {
	db *gorm.DB
}

func NewPostgresUserRepo(db *gorm.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// AutoMigrate creates the users table through gorm. Production schema comes
// from infra/migrate; this is for sqlite-backed tests and local runs.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&userRecord{})
}

func (p *PostgresUserRepo) CreateUser(ctx context.Context, user model.User) (uuid.UUID, error) {
	rec := toRecord(user)
	res := p.db.WithContext(ctx).Create(&rec)
	if err := res.Error; err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, customErrors.ErrConflict
		}
		return uuid.Nil, customErrors.WrapInternal(err, "CreateUser")
	}
	return rec.ID, nil
}

func (p *PostgresUserRepo) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return p.first(ctx, "GetUserByEmail", "email = ?", email)
}

func (p *PostgresUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return p.first(ctx, "GetUserByID", "id = ?", id)
}

func (p *PostgresUserRepo) GetUserByFederatedID(ctx context.Context, federatedID string) (model.User, error) {
	if federatedID == "" {
		return model.User{}, customErrors.ErrUserNotFound
	}
	return p.first(ctx, "GetUserByFederatedID", "federated_id = ?", federatedID)
}

func (p *PostgresUserRepo) UpdateUser(ctx context.Context, user model.User) error {
	rec := toRecord(user)
	rec.UpdatedAt = time.Now()

	// refresh_token сознательно не входит в список: его меняют только Set/CAS.
	res := p.db.WithContext(ctx).
		Model(&userRecord{ID: user.ID}).
		Select("email", "name", "surname", "avatar", "password_hash", "federated_id", "role", "updated_at").
		Updates(&rec)
	if err := res.Error; err != nil {
		if isUniqueViolation(err) {
			return customErrors.ErrConflict
		}
		return customErrors.WrapInternal(err, "UpdateUser")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrUserNotFound
	}

	return nil
}

func (p *PostgresUserRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res := p.db.WithContext(ctx).Delete(&userRecord{}, "id = ?", id)
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "DeleteUser")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrUserNotFound
	}

	return nil
}

func (p *PostgresUserRepo) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	res := p.db.WithContext(ctx).
		Model(&userRecord{}).
		Where("id = ?", id).
		Update("refresh_token", token)
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "SetRefreshToken")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrUserNotFound
	}
	return nil
}

// CompareAndSetRefreshToken relies on the row lock taken by UPDATE: a second
// concurrent writer re-evaluates the WHERE clause after the first commits and
// matches nothing.
func (p *PostgresUserRepo) CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error {
	res := p.db.WithContext(ctx).
		Model(&userRecord{}).
		Where("id = ? AND refresh_token = ?", id, expected).
		Update("refresh_token", next)
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "CompareAndSetRefreshToken")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := p.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return customErrors.WrapInternal(err, "CompareAndSetRefreshToken")
	}
	if n == 0 {
		return customErrors.ErrUserNotFound
	}
	return customErrors.ErrRotationConflict
}

func (p *PostgresUserRepo) first(ctx context.Context, op, query string, arg any) (model.User, error) {
	var rec userRecord
	res := p.db.WithContext(ctx).Where(query, arg).First(&rec)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.User{}, customErrors.ErrUserNotFound
	}
	if err := res.Error; err != nil {
		return model.User{}, customErrors.WrapInternal(err, op)
	}

	return rec.toModel(), nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// sqlite без TranslateError
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
