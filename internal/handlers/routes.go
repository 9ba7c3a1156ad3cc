package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reestrsi/internal/middleware"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/utils"
)

// Routes mounts every page on app and names them in h.URLs
func (h *Handler) Routes(app fiber.Router) error {
	if h.URLs == nil {
		h.URLs = utils.NewRouter()
	}
	r := h.URLs
	app.Use(middleware.CurrentUser(h.Sessions, h.Auth, h.Log))

	login := middleware.RequireUser()
	section := func(name string) fiber.Handler { return middleware.Blueprint(name, false) }

	device := r.Blueprint(app, BlueprintDevice, "/", middleware.Blueprint(BlueprintDevice, true))
	device.Get("list", "/", h.DeviceList)

	source := r.Blueprint(app, "source", "/")
	source.Get("valuechange", "/valuechange", h.ValueChange)
	source.Get("health", "/health", h.Health)

	uploads := r.Blueprint(app, "uploads", "/uploads")
	uploads.Get("download", "/:upload/:filename", h.Download)

	account := r.Blueprint(app, "account", "/account", section("account"))
	account.Form("login", "/login", h.Login)
	account.Get("logout", "/logout", h.Logout)
	account.Form("password_change", "/password_change", login, h.PasswordChange)

	si := r.Blueprint(app, BlueprintSi, "/si", login, section(BlueprintSi))
	si.Get("list", "", h.SiList)
	si.Form("add", "/add", h.SiAdd)
	si.Form("change", "/:pk", h.SiChange)
	si.Form("delete", "/:pk/delete", h.SiDelete)
	si.Form("service", "/:pk/service", h.SiService)

	service := r.Blueprint(app, BlueprintService, "/service", login, section(BlueprintService))
	service.Get("list", "", h.ServiceList)
	service.Form("change", "/:pk", h.ServiceChange)
	service.Form("out", "/:pk/out", h.ServiceOut)
	service.Get("history", "/:pk/history", h.ServiceHistory)

	settings := r.Blueprint(app, BlueprintSettings, "/admin", login, section(BlueprintSettings))
	settings.Get("index", "", h.SettingsIndex)
	settings.Get("list", "/:model_name", h.AdminList)
	settings.Form("add", "/:model_name/add", h.AdminAdd)
	settings.Form("change", "/:model_name/:pk", h.AdminChange)
	settings.Form("delete", "/:model_name/:pk/delete", h.AdminDelete)

	users := r.Blueprint(app, BlueprintUsers, "/users", login, section(BlueprintUsers), fixedModel(models.UserProfileName))
	users.Get("list", "", h.AdminList)
	users.Form("add", "/add", h.AdminAdd)
	users.Form("change", "/:pk", h.AdminChange)
	users.Form("delete", "/:pk/delete", h.AdminDelete)
	users.Form("password", "/:pk/password", h.UserPassword)

	return errors.Join(device.Err(), source.Err(), uploads.Err(), account.Err(),
		si.Err(), service.Err(), settings.Err(), users.Err())
}
