package auth_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/testutil"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "correct horse battery staple"

func init() {
	auth.HashCost = bcrypt.MinCost
}

func strPtr(s string) *string { return &s }

func TestHashAndCheck(t *testing.T) {
	hash, err := auth.HashPassword("secret-value")
	require.NoError(t, err)
	assert.NotEqual(t, "secret-value", hash)
	assert.True(t, auth.CheckPassword(hash, "secret-value"))
	assert.False(t, auth.CheckPassword(hash, "other"))
	assert.False(t, auth.CheckPassword("", "secret-value"))

	u := &models.UserProfile{}
	require.NoError(t, auth.SetPassword(u, "secret-value"))
	assert.True(t, auth.CheckPassword(u.Password, "secret-value"))
}

func TestValidatePassword(t *testing.T) {
	user := &models.UserProfile{Username: "metrolog", Email: strPtr("metrolog@example.com")}

	assert.Empty(t, auth.ValidatePassword(strongPassword, user))

	short := auth.ValidatePassword("Ab1!", nil)
	require.NotEmpty(t, short)
	assert.Contains(t, short[0], "8 символов")

	assert.Contains(t, auth.ValidatePassword("4815162342108", nil), "Введённый пароль состоит только из цифр.")
	assert.Contains(t, auth.ValidatePassword("metrolog2024", user), "Введённый пароль слишком похож на Логин.")
	assert.Contains(t, auth.ValidatePassword("password", nil), "Введённый пароль слишком широко распространён.")
	assert.Len(t, auth.PasswordHelp(), 4)
}

func TestDecodeLogin(t *testing.T) {
	form, problems, err := auth.DecodeLogin(url.Values{"username": {"admin"}, "password": {"x"}, "csrf": {"t"}})
	require.NoError(t, err)
	assert.Equal(t, "admin", form.Username)
	assert.Empty(t, problems)

	_, problems, err = auth.DecodeLogin(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Обязательное поле."}, problems["username"])
	assert.Equal(t, []string{"Обязательное поле."}, problems["password"])
}

func TestAuthenticate(t *testing.T) {
	repo := testutil.Repository(t)
	svc := auth.NewService(repo, nil)
	ctx := context.Background()

	user := &models.UserProfile{Username: "admin", LastName: strPtr("петров")}
	require.NoError(t, svc.CreateUser(ctx, user, strongPassword))
	require.NotZero(t, user.ID)

	got, err := svc.Authenticate(ctx, "admin", strongPassword)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.True(t, got.IsAuthenticated())

	_, err = svc.Authenticate(ctx, "nobody", strongPassword)
	assert.ErrorIs(t, err, auth.ErrUnknownUser)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, auth.ErrWrongPassword)

	require.NoError(t, repo.DB().Model(user).Update("is_active", false).Error)
	_, err = svc.Authenticate(ctx, "admin", strongPassword)
	assert.ErrorIs(t, err, auth.ErrInactiveUser)

	_, err = svc.User(ctx, user.ID)
	assert.ErrorIs(t, err, auth.ErrInactiveUser)
	_, err = svc.User(ctx, 999)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestCreateUserRejectsWeakPassword(t *testing.T) {
	svc := auth.NewService(testutil.Repository(t), nil)
	err := svc.CreateUser(context.Background(), &models.UserProfile{Username: "u"}, "123")
	assert.ErrorIs(t, err, types.ErrInvalidParam)
}

func TestChangePassword(t *testing.T) {
	repo := testutil.Repository(t)
	svc := auth.NewService(repo, nil)
	ctx := context.Background()

	user := &models.UserProfile{Username: "admin"}
	require.NoError(t, svc.CreateUser(ctx, user, strongPassword))

	problems := svc.ChangePassword(ctx, user, auth.PasswordChange{OldPassword: "bad", Password: "a", Password2: "b"})
	assert.Equal(t, []string{"Старый пароль неверен"}, problems["old_password"])
	assert.Contains(t, problems["password"], "Пароли не совпадают")

	next := "tangerine submarine quietly"
	problems = svc.ChangePassword(ctx, user, auth.PasswordChange{OldPassword: strongPassword, Password: next, Password2: next})
	assert.Empty(t, problems)

	_, err := svc.Authenticate(ctx, "admin", next)
	assert.NoError(t, err)
}

func TestAnonymous(t *testing.T) {
	var a auth.Anonymous
	assert.False(t, a.IsAuthenticated())
	assert.False(t, a.IsActive())
}
