package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/middleware"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/localnerve/reestrsi/internal/utils"
	"github.com/localnerve/reestrsi/internal/views"
)

// safeNext keeps redirects on this site
func safeNext(next, fallback string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.Contains(next, "\\") {
		return next
	}
	return fallback
}

func loginFields() []fieldContext {
	return []fieldContext{
		{Name: "username", Label: "Логин", LabelClass: "required", Kind: "text", Required: true},
		{Name: "password", Label: "Пароль", LabelClass: "required", Kind: "password", Required: true},
	}
}

// Login handles GET and POST /account/login
// @Summary Sign in
// @Description Checks the credentials and stores the account in the session
// @Tags Account
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Login"
// @Param password formData string true "Password"
// @Param next formData string false "Where to go after signing in"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /account/login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	page := fiber.Map{"title": "Вход", "fields": loginFields(), "next": c.Query("next")}
	if c.Method() != fiber.MethodPost {
		return h.render(c, fiber.StatusOK, page)
	}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	form, problems, err := auth.DecodeLogin(sub.Values)
	if err != nil {
		return err
	}
	page["username"] = form.Username
	page["next"] = form.Next

	if len(problems) == 0 {
		user, err := h.Auth.Authenticate(c.UserContext(), form.Username, form.Password)
		switch {
		case err == nil:
			return h.signIn(c, user, form.Next)
		case errors.Is(err, auth.ErrWrongPassword):
			problems["password"] = []string{strings.TrimPrefix(err.Error(), types.ErrUnauthorized.Error()+": ")}
		case errors.Is(err, types.ErrUnauthorized):
			problems["username"] = []string{strings.TrimPrefix(err.Error(), types.ErrUnauthorized.Error()+": ")}
		default:
			return err
		}
	}

	page["errors"] = problems
	page["notice"] = views.Notice{Category: views.NoticeError, Message: views.MessageInvalid}
	return h.render(c, fiber.StatusUnprocessableEntity, page)
}

func (h *Handler) signIn(c *fiber.Ctx, user *models.UserProfile, next string) error {
	sess, err := h.Sessions.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(auth.SessionKey, user.ID)
	if err := sess.Save(); err != nil {
		return err
	}
	middleware.State(c).User = user
	return utils.MutationSuccessResponse(c, "Добро пожаловать, "+user.ShortName(), safeNext(next, h.url("si.list", nil)), nil)
}

// Logout handles GET /account/logout
// @Summary Sign out
// @Tags Account
// @Produce json
// @Success 200 {object} utils.SuccessResponseStruct
// @Router /account/logout [get]
func (h *Handler) Logout(c *fiber.Ctx) error {
	sess, err := h.Sessions.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Destroy(); err != nil {
		return err
	}
	return utils.MutationSuccessResponse(c, "Вы вышли из системы", h.url("device.list", nil), nil)
}

// PasswordChange handles GET and POST /account/password_change
// @Summary Change own password
// @Tags Account
// @Accept x-www-form-urlencoded
// @Produce json
// @Param old_password formData string true "Current password"
// @Param password formData string true "New password"
// @Param password2 formData string true "New password again"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /account/password_change [post]
func (h *Handler) PasswordChange(c *fiber.Ctx) error {
	user, ok := middleware.State(c).User.(*models.UserProfile)
	if !ok {
		return &types.CustomError{Code: fiber.StatusUnauthorized, Message: "Для доступа к этой странице необходимо войти", Type: "authorization"}
	}
	page := fiber.Map{
		"title":    "Изменить пароль",
		"object":   user.String(),
		"help":     auth.PasswordHelp(),
		"buttons":  fiber.Map{"change": true, "text": "Изменить пароль"},
		"password": []string{"old_password", "password", "password2"},
	}
	if c.Method() != fiber.MethodPost {
		return h.render(c, fiber.StatusOK, page)
	}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	change, err := auth.DecodePasswordChange(sub.Values)
	if err != nil {
		return err
	}
	if problems := h.Auth.ChangePassword(c.UserContext(), user, change); len(problems) > 0 {
		page["errors"] = problems
		page["notice"] = views.Notice{Category: views.NoticeError, Message: views.MessageInvalid}
		return h.render(c, fiber.StatusUnprocessableEntity, page)
	}
	return utils.MutationSuccessResponse(c, "Пароль успешно изменен.", h.url("si.list", nil), fiber.Map{"category": views.NoticeSuccess})
}
