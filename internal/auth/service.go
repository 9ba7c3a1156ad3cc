// Package auth authenticates accounts against locally stored bcrypt hashes
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/gorilla/schema"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/types"
	"go.uber.org/zap"
)

// SessionKey is the session entry holding the signed in account id
const SessionKey = "user_id"

// Login failures, worded for the login page
var (
	ErrUnknownUser   = fmt.Errorf("%w: Пользователя с таким логином не существует", types.ErrUnauthorized)
	ErrWrongPassword = fmt.Errorf("%w: неверный пароль", types.ErrUnauthorized)
	ErrInactiveUser  = fmt.Errorf("%w: Пользователь не активен", types.ErrUnauthorized)
)

// Anonymous is the visitor that has not signed in
type Anonymous struct{}

func (Anonymous) IsAuthenticated() bool { return false }
func (Anonymous) IsActive() bool        { return false }
func (Anonymous) ShortName() string     { return "" }

// LoginForm is the decoded login submission
type LoginForm struct {
	Username string `schema:"username"`
	Password string `schema:"password"`
	Next     string `schema:"next"`
}

// PasswordChange is the decoded change password submission
type PasswordChange struct {
	OldPassword string `schema:"old_password"`
	Password    string `schema:"password"`
	Password2   string `schema:"password2"`
}

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// DecodeLogin decodes a login form body and reports missing fields per name
func DecodeLogin(values url.Values) (LoginForm, map[string][]string, error) {
	var form LoginForm
	if err := decoder.Decode(&form, values); err != nil {
		return form, nil, types.InvalidParamf("login form: %v", err)
	}
	problems := map[string][]string{}
	if form.Username == "" {
		problems["username"] = append(problems["username"], "Обязательное поле.")
	}
	if form.Password == "" {
		problems["password"] = append(problems["password"], "Обязательное поле.")
	}
	return form, problems, nil
}

// DecodePasswordChange decodes a change password form body
func DecodePasswordChange(values url.Values) (PasswordChange, error) {
	var form PasswordChange
	if err := decoder.Decode(&form, values); err != nil {
		return form, types.InvalidParamf("password form: %v", err)
	}
	return form, nil
}

// Service resolves and verifies accounts
type Service struct {
	repo *repository.Repository
	log  *zap.Logger
}

// NewService creates an auth service over repo
func NewService(repo *repository.Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log.Named("auth")}
}

// Authenticate returns the active account matching username and password
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.UserProfile, error) {
	desc := s.repo.Registry().MustGet(models.UserProfileName)
	res, err := s.repo.Lookup(ctx, desc, map[string]any{"username": username})
	if err != nil {
		return nil, err
	}
	found, ok := res.(repository.Found)
	if !ok {
		s.log.Info("login rejected", zap.String("username", username), zap.String("reason", "unknown user"))
		return nil, ErrUnknownUser
	}
	user := found.Entity.(*models.UserProfile)
	if !CheckPassword(user.Password, password) {
		s.log.Info("login rejected", zap.String("username", username), zap.String("reason", "wrong password"))
		return nil, ErrWrongPassword
	}
	if !user.IsActive() {
		s.log.Info("login rejected", zap.String("username", username), zap.String("reason", "inactive"))
		return nil, ErrInactiveUser
	}
	s.log.Info("login", zap.String("username", username))
	return user, nil
}

// User loads the account stored in a session. Missing or inactive accounts are ErrUnauthorized.
func (s *Service) User(ctx context.Context, id uint) (*models.UserProfile, error) {
	desc := s.repo.Registry().MustGet(models.UserProfileName)
	user, err := repository.As[*models.UserProfile](s.repo.Get(ctx, desc, id))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %d no longer exists", types.ErrUnauthorized, id)
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// CreateUser stores a new account with a hashed password
func (s *Service) CreateUser(ctx context.Context, user *models.UserProfile, password string) error {
	if problems := ValidatePassword(password, user); len(problems) > 0 {
		return types.InvalidParamf("%s", problems[0])
	}
	if err := SetPassword(user, password); err != nil {
		return err
	}
	user.Active = true
	if err := s.repo.Add(ctx, user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}
	s.log.Info("user created", zap.String("username", user.Username))
	return nil
}

// ChangePassword verifies the old password and stores the new one
func (s *Service) ChangePassword(ctx context.Context, user *models.UserProfile, change PasswordChange) map[string][]string {
	problems := map[string][]string{}
	if !CheckPassword(user.Password, change.OldPassword) {
		problems["old_password"] = append(problems["old_password"], "Старый пароль неверен")
	}
	if change.Password != change.Password2 {
		problems["password"] = append(problems["password"], "Пароли не совпадают")
	}
	problems["password"] = append(problems["password"], ValidatePassword(change.Password, user)...)
	if len(problems["password"]) == 0 {
		delete(problems, "password")
	}
	if len(problems) > 0 {
		return problems
	}

	if err := SetPassword(user, change.Password); err != nil {
		return map[string][]string{"password": {err.Error()}}
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return map[string][]string{"password": {err.Error()}}
	}
	s.log.Info("password changed", zap.String("username", user.Username))
	return nil
}
