package credentials

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/db/memory"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/password"
	customErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/alexedwards/argon2id"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type countingHasher struct {
	*password.Hasher
	hashes   atomic.Int32
	compares atomic.Int32
}

func (h *countingHasher) Hash(p string) (string, error) {
	h.hashes.Add(1)
	return h.Hasher.Hash(p)
}

func (h *countingHasher) Compare(p, d string) (bool, error) {
	h.compares.Add(1)
	return h.Hasher.Compare(p, d)
}

func newStore(t *testing.T) (*Store, *memory.UserRepo, *countingHasher) {
	t.Helper()
	users := memory.NewUserRepo()
	h := &countingHasher{Hasher: password.New(&argon2id.Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	}, "pepper")}
	s := New(users, h, validator.New(), nil)
	h.hashes.Store(0)
	h.compares.Store(0)
	return s, users, h
}

func TestCreate_HashesOnceAndNormalizesEmail(t *testing.T) {
	s, _, h := newStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, model.Draft{Email: "  Ann@Example.COM ", Password: "s3cretpass", Name: "Ann"})
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", u.Email)
	require.Equal(t, model.RoleStandard, u.Role)
	require.NotEqual(t, "s3cretpass", u.PasswordHash)
	require.EqualValues(t, 1, h.hashes.Load())

	got, err := s.FindByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
}

func TestCreate_Validation(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()

	cases := map[string]model.Draft{
		"bad email":      {Email: "nope", Password: "s3cretpass", Name: "A"},
		"short password": {Email: "a@b.com", Password: "short", Name: "A"},
		"no name":        {Email: "a@b.com", Password: "s3cretpass"},
		"bad role":       {Email: "a@b.com", Password: "s3cretpass", Name: "A", Role: "root"},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, d)
			require.True(t, customErrors.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestCreate_RequiresIdentityProof(t *testing.T) {
	s, _, _ := newStore(t)
	_, err := s.Create(context.Background(), model.Draft{Email: "a@b.com", Name: "A"})
	require.True(t, customErrors.IsInvalidArgument(err))
	require.Contains(t, err.Error(), "password or federatedId")
}

func TestCreate_FederatedWithoutPassword(t *testing.T) {
	s, _, h := newStore(t)
	u, err := s.Create(context.Background(), model.Draft{Email: "g@b.com", Name: "G", FederatedID: "google-1"})
	require.NoError(t, err)
	require.False(t, u.HasPassword())
	require.True(t, u.IsFederated())
	require.Zero(t, h.hashes.Load())
}

func TestCreate_Conflict(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, model.Draft{Email: "a@b.com", Password: "s3cretpass", Name: "A"})
	require.NoError(t, err)

	_, err = s.Create(ctx, model.Draft{Email: "A@B.com", Password: "otherpass", Name: "B"})
	require.ErrorIs(t, err, customErrors.ErrConflict)
}

func TestCheckPassword(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	u, err := s.Create(ctx, model.Draft{Email: "a@b.com", Password: "s3cretpass", Name: "A"})
	require.NoError(t, err)

	got, err := s.CheckPassword(ctx, "a@b.com", "s3cretpass")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = s.CheckPassword(ctx, "a@b.com", "wrongpass")
	require.ErrorIs(t, err, customErrors.ErrCredentialMismatch)
}

func TestCheckPassword_UnknownEmailIndistinguishable(t *testing.T) {
	s, _, h := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, model.Draft{Email: "a@b.com", Password: "s3cretpass", Name: "A"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Draft{Email: "g@b.com", Name: "G", FederatedID: "google-1"})
	require.NoError(t, err)

	before := h.compares.Load()
	_, wrongPw := s.CheckPassword(ctx, "a@b.com", "wrongpass")
	require.Equal(t, before+1, h.compares.Load())

	before = h.compares.Load()
	_, unknown := s.CheckPassword(ctx, "nobody@b.com", "wrongpass")
	require.Equal(t, before+1, h.compares.Load())

	before = h.compares.Load()
	_, noPw := s.CheckPassword(ctx, "g@b.com", "wrongpass")
	require.Equal(t, before+1, h.compares.Load())

	require.Equal(t, wrongPw, unknown)
	require.Equal(t, wrongPw, noPw)
	require.ErrorIs(t, unknown, customErrors.ErrCredentialMismatch)
}

func TestCheckPassword_UnknownEmailHashesNothing(t *testing.T) {
	s, _, h := newStore(t)
	ctx := context.Background()
	require.NotEmpty(t, s.dummy)

	_, err := s.CheckPassword(ctx, "nobody@b.com", "wrongpass")
	require.ErrorIs(t, err, customErrors.ErrCredentialMismatch)
	require.EqualValues(t, 0, h.hashes.Load())
	require.EqualValues(t, 1, h.compares.Load())
}

func TestPatch(t *testing.T) {
	s, users, _ := newStore(t)
	ctx := context.Background()
	u, err := s.Create(ctx, model.Draft{Email: "a@b.com", Password: "s3cretpass", Name: "A", Surname: "B"})
	require.NoError(t, err)
	require.NoError(t, s.SetRefreshToken(ctx, u.ID, "r0"))

	name, avatar := "  Ann ", "https://cdn.example.com/a.png"
	got, err := s.Patch(ctx, u.ID, model.UserPatch{Name: &name, Avatar: &avatar})
	require.NoError(t, err)
	require.Equal(t, "Ann", got.Name)
	require.Equal(t, "B", got.Surname)
	require.Equal(t, avatar, got.Avatar)
	require.Equal(t, u.PasswordHash, got.PasswordHash)

	stored, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann", stored.Name)
	require.Equal(t, "r0", stored.RefreshToken)

	role := model.RoleAdministrator
	got, err = s.Patch(ctx, u.ID, model.UserPatch{Role: &role})
	require.NoError(t, err)
	require.Equal(t, model.RoleAdministrator, got.Role)

	blank, badURL, badRole := " ", "not a url", model.Role("root")
	for _, p := range []model.UserPatch{{Name: &blank}, {Avatar: &badURL}, {Role: &badRole}} {
		_, err := s.Patch(ctx, u.ID, p)
		require.True(t, customErrors.IsInvalidArgument(err), "patch %+v: %v", p, err)
	}

	_, err = s.Patch(ctx, uuid.New(), model.UserPatch{Name: &name})
	require.ErrorIs(t, err, customErrors.ErrNotFound)
}

func TestCheckPassword_RehashesLegacyBcrypt(t *testing.T) {
	s, users, h := newStore(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.MinCost)
	require.NoError(t, err)
	id := uuid.New()
	_, err = users.CreateUser(ctx, model.User{ID: id, Email: "old@b.com", Name: "O", PasswordHash: string(legacy), Role: model.RoleStandard})
	require.NoError(t, err)

	_, err = s.CheckPassword(ctx, "old@b.com", "oldpassword")
	require.NoError(t, err)

	stored, err := users.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.False(t, h.NeedsRehash(stored.PasswordHash))

	_, err = s.CheckPassword(ctx, "old@b.com", "oldpassword")
	require.NoError(t, err)
}

func TestRefreshTokenCAS(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	u, err := s.Create(ctx, model.Draft{Email: "a@b.com", Password: "s3cretpass", Name: "A"})
	require.NoError(t, err)

	require.NoError(t, s.SetRefreshToken(ctx, u.ID, "r0"))
	require.NoError(t, s.CompareAndSetRefreshToken(ctx, u.ID, "r0", "r1"))
	require.ErrorIs(t, s.CompareAndSetRefreshToken(ctx, u.ID, "r0", "r2"), customErrors.ErrRotationConflict)
	require.ErrorIs(t, s.CompareAndSetRefreshToken(ctx, uuid.New(), "r1", "r2"), customErrors.ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	u, err := s.Create(ctx, model.Draft{Email: "a@b.com", Password: "s3cretpass", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, s.SetRefreshToken(ctx, u.ID, "r0"))

	_, err = s.ChangePassword(ctx, u.ID, "wrongpass", "newpassword")
	require.ErrorIs(t, err, customErrors.ErrCredentialMismatch)

	_, err = s.ChangePassword(ctx, u.ID, "s3cretpass", "short")
	require.True(t, customErrors.IsInvalidArgument(err))

	_, err = s.ChangePassword(ctx, u.ID, "s3cretpass", "newpassword")
	require.NoError(t, err)

	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, got.RefreshToken)

	_, err = s.CheckPassword(ctx, "a@b.com", "newpassword")
	require.NoError(t, err)
}

func TestChangePassword_FederatedAccountSetsFirstPassword(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	u, err := s.Create(ctx, model.Draft{Email: "g@b.com", Name: "G", FederatedID: "google-1"})
	require.NoError(t, err)

	got, err := s.ChangePassword(ctx, u.ID, "", "firstpassword")
	require.NoError(t, err)
	require.True(t, got.HasPassword())
}

func TestSetRoleAndDelete(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	u, err := s.Create(ctx, model.Draft{Email: "a@b.com", Password: "s3cretpass", Name: "A"})
	require.NoError(t, err)

	got, err := s.SetRole(ctx, u.ID, model.RoleAdministrator)
	require.NoError(t, err)
	require.Equal(t, model.RoleAdministrator, got.Role)

	_, err = s.SetRole(ctx, u.ID, "root")
	require.True(t, customErrors.IsInvalidArgument(err))

	require.NoError(t, s.Delete(ctx, u.ID))
	_, err = s.FindByID(ctx, u.ID)
	require.ErrorIs(t, err, customErrors.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, u.ID), customErrors.ErrNotFound)
}
