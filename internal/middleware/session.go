package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/types"
	"go.uber.org/zap"
)

// LocalsUser holds the meta.User of the request
const LocalsUser = "user"

// Users loads the account stored in a session
type Users interface {
	User(ctx context.Context, id uint) (*models.UserProfile, error)
}

// State returns the request state, creating it on first use
func State(c *fiber.Ctx) *meta.Request {
	if r := meta.FromContext(c.UserContext()); r != nil {
		return r
	}
	r := &meta.Request{User: auth.Anonymous{}}
	c.SetUserContext(meta.WithRequest(c.UserContext(), r))
	return r
}

// CurrentUser loads the signed in account from the session.
// A session pointing at a removed or inactive account is signed out.
func CurrentUser(store *session.Store, users Users, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := State(c)
		sess, err := store.Get(c)
		if err != nil {
			return err
		}

		if id, ok := sess.Get(auth.SessionKey).(uint); ok {
			user, err := users.User(c.UserContext(), id)
			switch {
			case err == nil:
				req.User = user
			case errors.Is(err, types.ErrUnauthorized):
				log.Info("session signed out", zap.Uint("user", id), zap.Error(err))
				sess.Delete(auth.SessionKey)
				if err := sess.Save(); err != nil {
					return err
				}
			default:
				return err
			}
		}

		c.Locals(LocalsUser, req.User)
		return c.Next()
	}
}

// RequireUser rejects anonymous requests
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user := State(c).User; user == nil || !user.IsAuthenticated() || !user.IsActive() {
			return &types.CustomError{
				Code:    fiber.StatusUnauthorized,
				Message: "Для доступа к этой странице необходимо войти",
				Type:    "authorization",
			}
		}
		return c.Next()
	}
}

// Blueprint names the section serving the request; view only sections render read-only forms
func Blueprint(name string, viewOnly bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := State(c)
		req.Blueprint = name
		req.ViewOnly = viewOnly
		return c.Next()
	}
}
