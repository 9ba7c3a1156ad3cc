package handlers

import (
	"fmt"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/middleware"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/localnerve/reestrsi/internal/views"
)

// Blueprints serving the settings groups
const (
	BlueprintSettings = "settings"
	BlueprintUsers    = "users"
)

const localsModel = "model"

// fixedModel serves a blueprint for one model instead of the :model_name segment
func fixedModel(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(localsModel, name)
		return c.Next()
	}
}

func groupBlueprint(label string) string {
	if label == models.GroupUsers {
		return BlueprintUsers
	}
	return BlueprintSettings
}

// model resolves the model of a settings page. Only models of the blueprint's groups are served.
func (h *Handler) model(c *fiber.Ctx) (*meta.Descriptor, string, error) {
	blueprint := middleware.State(c).Blueprint
	name := c.Params("model_name")
	if fixed, ok := c.Locals(localsModel).(string); ok {
		name = fixed
	}

	reg := h.Repo.Registry()
	if desc, ok := reg.Get(name); ok {
		for _, g := range reg.Groups() {
			if groupBlueprint(g.Label) == blueprint && slices.Contains(g.Models, name) {
				return desc, blueprint, nil
			}
		}
	}
	return nil, "", &types.CustomError{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("Модель %q не найдена", name),
		Type:    "notFound",
	}
}

func buttons(deleteURL string) fiber.Map {
	btn := fiber.Map{"save": true, "saveAndContinue": true}
	if deleteURL != "" {
		btn["deleteUrl"] = deleteURL
	}
	return btn
}

// SettingsIndex handles GET /admin
// @Summary Settings index
// @Description List the settings groups with the list and add pages of each model
// @Tags Settings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /admin [get]
func (h *Handler) SettingsIndex(c *fiber.Ctx) error {
	reg := h.Repo.Registry()
	apps := make([]fiber.Map, 0, len(reg.Groups()))
	for _, g := range reg.Groups() {
		blueprint := groupBlueprint(g.Label)
		items := make([]fiber.Map, 0, len(g.Models))
		for _, name := range g.Models {
			desc := reg.MustGet(name)
			params := map[string]string{"model_name": name}
			items = append(items, fiber.Map{
				"name":    name,
				"title":   desc.VerboseNamePlural,
				"listUrl": h.url(views.RouteName(blueprint, views.RouteList), params),
				"addUrl":  h.url(views.RouteName(blueprint, views.RouteAdd), params),
			})
		}
		apps = append(apps, fiber.Map{"label": g.Label, "title": g.VerboseName, "models": items})
	}
	return h.render(c, fiber.StatusOK, fiber.Map{"title": "Настройки", "appList": apps})
}

// AdminList handles GET /admin/:model_name
// @Summary List objects
// @Description Paginated, filtered and searched listing of a settings model
// @Tags Settings
// @Produce json
// @Param model_name path string true "Model name"
// @Param page query int false "Page number"
// @Param q query string false "Search text"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /admin/{model_name} [get]
func (h *Handler) AdminList(c *fiber.Ctx) error {
	desc, blueprint, err := h.model(c)
	if err != nil {
		return err
	}
	page, err := h.list(desc, blueprint).Render(c.UserContext(), queryValues(c))
	if err != nil {
		return err
	}
	return h.render(c, fiber.StatusOK, fiber.Map{"title": page.Title, "list": page})
}

// AdminAdd handles GET and POST /admin/:model_name/add
// @Summary Add an object
// @Description Render the empty form on GET, create the object on POST
// @Tags Settings
// @Accept x-www-form-urlencoded,mpfd
// @Produce json
// @Param model_name path string true "Model name"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /admin/{model_name}/add [post]
func (h *Handler) AdminAdd(c *fiber.Ctx) error {
	desc, blueprint, err := h.model(c)
	if err != nil {
		return err
	}
	obj := h.object(desc, blueprint)
	if desc.Name == models.UserProfileName {
		obj.FormClass = "AddUserForm"
	}
	page := fiber.Map{"title": desc.VerboseName, "buttons": buttons("")}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		f, err := obj.Form(c.UserContext(), nil, sub)
		if err != nil {
			return err
		}
		page["form"] = formContext(f)
		return h.render(c, fiber.StatusOK, page)
	}

	res, err := obj.Save(c.UserContext(), views.ActionAdd, nil, sub)
	if err != nil {
		return err
	}
	return h.saved(c, res, page)
}

// AdminChange handles GET and POST /admin/:model_name/:pk
// @Summary Change an object
// @Description Render the bound form on GET, save the changes on POST
// @Tags Settings
// @Accept x-www-form-urlencoded,mpfd
// @Produce json
// @Param model_name path string true "Model name"
// @Param pk path int true "Object id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /admin/{model_name}/{pk} [post]
func (h *Handler) AdminChange(c *fiber.Ctx) error {
	desc, blueprint, err := h.model(c)
	if err != nil {
		return err
	}
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	obj := h.object(desc, blueprint)
	instance, err := obj.Get(c.UserContext(), fmt.Sprint(pk))
	if err != nil {
		return err
	}

	page := fiber.Map{"title": desc.VerboseName, "object": instance.String(), "buttons": buttons(obj.DeleteURL(instance))}
	if desc.Name == models.UserProfileName {
		page["passwordUrl"] = h.url(views.RouteName(blueprint, "password"), pkParams(pk))
	}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		f, err := obj.Form(c.UserContext(), instance, sub)
		if err != nil {
			return err
		}
		page["form"] = formContext(f)
		return h.render(c, fiber.StatusOK, page)
	}

	res, err := obj.Save(c.UserContext(), views.ActionChange, instance, sub)
	if err != nil {
		return err
	}
	return h.saved(c, res, page)
}

// AdminDelete handles GET and POST /admin/:model_name/:pk/delete
// @Summary Delete an object
// @Description Confirm on GET, delete the object and its stored files on POST
// @Tags Settings
// @Produce json
// @Param model_name path string true "Model name"
// @Param pk path int true "Object id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /admin/{model_name}/{pk}/delete [post]
func (h *Handler) AdminDelete(c *fiber.Ctx) error {
	desc, blueprint, err := h.model(c)
	if err != nil {
		return err
	}
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	obj := h.object(desc, blueprint)
	instance, err := obj.Get(c.UserContext(), fmt.Sprint(pk))
	if err != nil {
		return err
	}

	if c.Method() != fiber.MethodPost {
		return h.render(c, fiber.StatusOK, fiber.Map{
			"title":     desc.VerboseName,
			"object":    instance.String(),
			"files":     views.StoredFiles(desc, instance),
			"cancelUrl": obj.ObjectURL(instance),
		})
	}

	res, err := obj.Delete(c.UserContext(), instance)
	if err != nil {
		return err
	}
	return h.saved(c, res, nil)
}

// UserPassword handles GET and POST /users/:pk/password
// @Summary Set an account password
// @Description Set the password of any account without the old one
// @Tags Users
// @Accept x-www-form-urlencoded
// @Produce json
// @Param pk path int true "Account id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /users/{pk}/password [post]
func (h *Handler) UserPassword(c *fiber.Ctx) error {
	desc, blueprint, err := h.model(c)
	if err != nil {
		return err
	}
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	obj := h.object(desc, blueprint)
	obj.FormClass = "PasswordChangeForm"
	instance, err := obj.Get(c.UserContext(), fmt.Sprint(pk))
	if err != nil {
		return err
	}

	page := fiber.Map{"title": "Изменить пароль", "object": instance.String(), "buttons": fiber.Map{"change": true, "text": "Изменить пароль"}}
	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		f, err := obj.Form(c.UserContext(), instance, sub)
		if err != nil {
			return err
		}
		page["form"] = formContext(f)
		return h.render(c, fiber.StatusOK, page)
	}

	res, err := obj.Save(c.UserContext(), views.ActionChange, instance, sub)
	if err != nil {
		return err
	}
	if res.Saved {
		res.Redirect = obj.ObjectURL(instance)
	}
	return h.saved(c, res, page)
}
