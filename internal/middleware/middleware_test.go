package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type users map[uint]*models.UserProfile

func (u users) User(_ context.Context, id uint) (*models.UserProfile, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("%w: account %d no longer exists", types.ErrUnauthorized, id)
}

func newApp(store *session.Store, accounts users) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			ce := types.ToCustomError(err)
			return c.Status(ce.Code).SendString(ce.Type)
		},
	})
	app.Use(CurrentUser(store, accounts, zap.NewNop()))
	app.Get("/login/:id", func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return err
		}
		id, _ := c.ParamsInt("id")
		sess.Set(auth.SessionKey, uint(id))
		return sess.Save()
	})
	app.Get("/whoami", Blueprint("si", true), func(c *fiber.Ctx) error {
		req := meta.FromContext(c.UserContext())
		return c.SendString(fmt.Sprintf("%s|%s|%t", req.User.ShortName(), req.Blueprint, meta.IsViewOnly(c.UserContext())))
	})
	app.Get("/private", RequireUser(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func call(t *testing.T, app *fiber.App, target string, cookie *http.Cookie) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	return nil
}

func TestAnonymous(t *testing.T) {
	app := newApp(session.New(), users{})

	_, body := call(t, app, "/whoami", nil)
	assert.Equal(t, "|si|true", body)

	resp, body := call(t, app, "/private", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authorization", body)
}

func TestCurrentUser(t *testing.T) {
	admin := &models.UserProfile{Username: "admin", Active: true}
	admin.ID = 1
	accounts := users{1: admin}
	app := newApp(session.New(), accounts)

	resp, _ := call(t, app, "/login/1", nil)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)

	_, body := call(t, app, "/whoami", cookie)
	assert.Equal(t, "admin|si|true", body)

	resp, body = call(t, app, "/private", cookie)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	// a removed account signs the session out
	delete(accounts, 1)
	resp, _ = call(t, app, "/private", cookie)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	accounts[1] = admin
	resp, _ = call(t, app, "/private", cookie)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireActiveUser(t *testing.T) {
	inactive := &models.UserProfile{Username: "old"}
	inactive.ID = 2
	app := newApp(session.New(), users{2: inactive})

	resp, _ := call(t, app, "/login/2", nil)
	resp, _ = call(t, app, "/private", sessionCookie(resp))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestVersionMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(VersionMiddleware("1.0"))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("appVersion").(string))
	})

	resp, body := call(t, app, "/", nil)
	assert.Equal(t, "1.0.0", resp.Header.Get("X-App-Version"))
	assert.Equal(t, "1.0.0", body)
}
