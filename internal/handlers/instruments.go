package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reestrsi/internal/forms"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/services"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/localnerve/reestrsi/internal/utils"
	"github.com/localnerve/reestrsi/internal/views"
)

// Blueprints of the instrument pages
const (
	BlueprintDevice  = "device"
	BlueprintSi      = "si"
	BlueprintService = "service"
)

// publicDisplay are the columns of the public instrument list
var publicDisplay = []string{
	"group_si", "name_si", "type_si", "number", "description", "method", "service_type",
	"service_interval", "place", "control_vp", "employee", "division", "email",
	"date_last_service", "date_next_service", "certificate", "status_service",
}

var publicFilter = []string{
	"group_si", "name_si", "type_si", "service_type", "service_interval", "place",
	"control_vp", "employee", "employee.division", "date_last_service", "date_next_service", "is_service",
}

// lifecycleError maps lifecycle conflicts to 409
func lifecycleError(err error) error {
	switch {
	case errors.Is(err, services.ErrOnService):
		return &types.CustomError{Code: fiber.StatusConflict, Message: "СИ уже находится на обслуживании", Type: "conflict"}
	case errors.Is(err, services.ErrNotOnService):
		return &types.CustomError{Code: fiber.StatusConflict, Message: "СИ не находится на обслуживании", Type: "conflict"}
	}
	return err
}

func (h *Handler) instrument(ctx context.Context, pk uint) (*models.Instrument, error) {
	desc := h.Repo.Registry().MustGet(models.InstrumentName)
	return repository.As[*models.Instrument](h.Repo.Get(ctx, desc, pk))
}

func (h *Handler) serviceRecord(ctx context.Context, pk uint) (*models.ServiceRecord, error) {
	desc := h.Repo.Registry().MustGet(models.ServiceRecordName)
	return repository.As[*models.ServiceRecord](h.Repo.Get(ctx, desc, pk))
}

// renderForm answers a GET with the bound form
func (h *Handler) renderForm(c *fiber.Ctx, obj *views.Object, instance meta.Entity, sub forms.Submission, page fiber.Map, opts ...forms.Option) error {
	f, err := obj.Form(c.UserContext(), instance, sub, opts...)
	if err != nil {
		return err
	}
	page["form"] = formContext(f)
	return h.render(c, fiber.StatusOK, page)
}

// DeviceList handles GET /
// @Summary Public instrument list
// @Description Every instrument with its responsible person and service dates, without links
// @Tags Instruments
// @Produce json
// @Param page query int false "Page number"
// @Param q query string false "Search text"
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) DeviceList(c *fiber.Ctx) error {
	desc := h.Repo.Registry().MustGet(models.InstrumentName)
	l := h.list(desc, BlueprintDevice)
	l.FieldsDisplay = publicDisplay
	l.FieldsFilter = publicFilter
	l.FieldsLink = &meta.Links{Mode: meta.LinkNone}
	page, err := l.Render(c.UserContext(), queryValues(c))
	if err != nil {
		return err
	}
	return h.render(c, fiber.StatusOK, fiber.Map{"title": page.Title, "list": page})
}

// SiList handles GET /si
// @Summary Instrument list
// @Description Instruments with links to their edit pages
// @Tags Instruments
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /si [get]
func (h *Handler) SiList(c *fiber.Ctx) error {
	desc := h.Repo.Registry().MustGet(models.InstrumentName)
	page, err := h.list(desc, BlueprintSi).Render(c.UserContext(), queryValues(c))
	if err != nil {
		return err
	}
	return h.render(c, fiber.StatusOK, fiber.Map{"title": page.Title, "list": page})
}

// SiAdd handles GET and POST /si/add
// @Summary Add an instrument
// @Tags Instruments
// @Accept mpfd
// @Produce json
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /si/add [post]
func (h *Handler) SiAdd(c *fiber.Ctx) error {
	obj := h.object(h.Repo.Registry().MustGet(models.InstrumentName), BlueprintSi)
	obj.Persist = func(ctx context.Context, _ views.Action, f *forms.Form) error {
		return h.Lifecycle.CreateInstrument(ctx, f.Instance.(*models.Instrument), nil)
	}
	page := fiber.Map{"title": obj.Descriptor.VerboseName, "buttons": buttons("")}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		return h.renderForm(c, obj, nil, sub, page)
	}
	res, err := obj.Save(c.UserContext(), views.ActionAdd, nil, sub)
	if err != nil {
		return err
	}
	return h.saved(c, res, page)
}

// SiChange handles GET and POST /si/:pk
// @Summary Change an instrument
// @Description The page links to the service history and to the open service record or the send to service page
// @Tags Instruments
// @Accept mpfd
// @Produce json
// @Param pk path int true "Instrument id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /si/{pk} [post]
func (h *Handler) SiChange(c *fiber.Ctx) error {
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	inst, err := h.instrument(c.UserContext(), pk)
	if err != nil {
		return err
	}
	obj := h.object(h.Repo.Registry().MustGet(models.InstrumentName), BlueprintSi)

	page := fiber.Map{
		"title":      obj.Descriptor.VerboseName,
		"object":     inst.String(),
		"buttons":    buttons(obj.DeleteURL(inst)),
		"historyUrl": h.url("service.history", pkParams(pk)),
		"serviceUrl": h.url("si.service", pkParams(pk)),
		"linkText":   "Направить на обслуживание",
	}
	if inst.IsService {
		active, err := h.Lifecycle.ActiveService(c.UserContext(), pk)
		switch {
		case err == nil:
			page["serviceUrl"] = h.url("service.change", pkParams(active.ID))
			page["linkText"] = "Посмотреть в обслуживании"
		case errors.Is(err, types.ErrNotFound):
			page["serviceUrl"] = ""
		default:
			return err
		}
	}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		return h.renderForm(c, obj, inst, sub, page)
	}
	res, err := obj.Save(c.UserContext(), views.ActionChange, inst, sub)
	if err != nil {
		return err
	}
	return h.saved(c, res, page)
}

// SiDelete handles GET and POST /si/:pk/delete
// @Summary Delete an instrument
// @Description Deletes the instrument, its service history and every certificate they referenced
// @Tags Instruments
// @Produce json
// @Param pk path int true "Instrument id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /si/{pk}/delete [post]
func (h *Handler) SiDelete(c *fiber.Ctx) error {
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	inst, err := h.instrument(c.UserContext(), pk)
	if err != nil {
		return err
	}
	obj := h.object(h.Repo.Registry().MustGet(models.InstrumentName), BlueprintSi)

	if c.Method() != fiber.MethodPost {
		history, err := h.Lifecycle.History(c.UserContext(), pk)
		if err != nil {
			return err
		}
		return h.render(c, fiber.StatusOK, fiber.Map{
			"title":     obj.Descriptor.VerboseName,
			"object":    inst.String(),
			"history":   len(history),
			"cancelUrl": obj.ObjectURL(inst),
		})
	}

	removed, err := h.Lifecycle.DeleteInstrument(c.UserContext(), pk)
	if err != nil {
		return err
	}
	return utils.MutationSuccessResponse(c, obj.SuccessMessage(views.ActionDelete, inst, false), obj.ListURL(), fiber.Map{
		"category": views.NoticeSuccess,
		"removed":  removed,
	})
}

// SiService handles GET and POST /si/:pk/service
// @Summary Send an instrument to service
// @Tags Service
// @Accept x-www-form-urlencoded
// @Produce json
// @Param pk path int true "Instrument id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /si/{pk}/service [post]
func (h *Handler) SiService(c *fiber.Ctx) error {
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	inst, err := h.instrument(c.UserContext(), pk)
	if err != nil {
		return err
	}
	if inst.IsService {
		return lifecycleError(services.ErrOnService)
	}

	obj := h.object(h.Repo.Registry().MustGet(models.ServiceRecordName), BlueprintService)
	obj.FormClass = "AddServiceForm"
	obj.Persist = func(ctx context.Context, _ views.Action, f *forms.Form) error {
		rec := f.Instance.(*models.ServiceRecord)
		if err := h.Lifecycle.SendToService(ctx, pk, rec); err != nil {
			return err
		}
		rec.Si = inst
		return nil
	}
	page := fiber.Map{
		"title":        obj.Descriptor.VerboseName,
		"contentTitle": fmt.Sprintf("Прием на обслуживание: %s", inst),
		"buttons":      fiber.Map{"save": true},
	}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		return h.renderForm(c, obj, nil, sub, page)
	}
	res, err := obj.Save(c.UserContext(), views.ActionAdd, nil, sub)
	if err != nil {
		return lifecycleError(err)
	}
	if res.Saved {
		res.Redirect = h.url("si.list", nil)
	}
	return h.saved(c, res, page)
}

// ServiceList handles GET /service
// @Summary Open service records
// @Tags Service
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /service [get]
func (h *Handler) ServiceList(c *fiber.Ctx) error {
	desc := h.Repo.Registry().MustGet(models.ServiceRecordName)
	l := h.list(desc, BlueprintService)
	l.Filters = []query.Predicate{query.Eq("service.is_out", false)}
	page, err := l.Render(c.UserContext(), queryValues(c))
	if err != nil {
		return err
	}
	return h.render(c, fiber.StatusOK, fiber.Map{"title": page.Title, "list": page})
}

// ServiceChange handles GET and POST /service/:pk
// @Summary Change an open service record
// @Description The status name is copied onto the instrument. Closed records render read-only.
// @Tags Service
// @Accept mpfd
// @Produce json
// @Param pk path int true "Service record id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /service/{pk} [post]
func (h *Handler) ServiceChange(c *fiber.Ctx) error {
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	rec, err := h.serviceRecord(c.UserContext(), pk)
	if err != nil {
		return err
	}

	obj := h.object(h.Repo.Registry().MustGet(models.ServiceRecordName), BlueprintService)
	obj.FormClass = "ServiceForm"
	obj.Persist = func(ctx context.Context, _ views.Action, f *forms.Form) error {
		return h.Lifecycle.UpdateService(ctx, f.Instance.(*models.ServiceRecord))
	}

	page := fiber.Map{
		"title":        obj.Descriptor.VerboseName,
		"contentTitle": fmt.Sprintf("обслуживание средства измерения: %s", rec),
		"buttons":      buttons(""),
		"historyUrl":   h.url("service.history", pkParams(rec.SiID)),
		"serviceUrl":   "",
		"linkText":     "СИ не готово к выдачи",
	}
	if rec.IsReady && !rec.IsOut {
		page["serviceUrl"] = h.url("service.out", pkParams(pk))
		page["linkText"] = "Выдать СИ"
	}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		var opts []forms.Option
		if rec.IsOut {
			opts = append(opts, forms.WithViewOnly())
		}
		return h.renderForm(c, obj, rec, sub, page, opts...)
	}
	if rec.IsOut {
		return lifecycleError(services.ErrNotOnService)
	}
	res, err := obj.Save(c.UserContext(), views.ActionChange, rec, sub)
	if err != nil {
		return err
	}
	return h.saved(c, res, page)
}

// ServiceOut handles GET and POST /service/:pk/out
// @Summary Return an instrument from service
// @Description Closes the record and copies its dates and certificate onto the instrument in one transaction
// @Tags Service
// @Accept mpfd
// @Produce json
// @Param pk path int true "Service record id"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 422 {object} map[string]interface{}
// @Router /service/{pk}/out [post]
func (h *Handler) ServiceOut(c *fiber.Ctx) error {
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	rec, err := h.serviceRecord(c.UserContext(), pk)
	if err != nil {
		return err
	}
	if rec.IsOut {
		return lifecycleError(services.ErrNotOnService)
	}

	obj := h.object(h.Repo.Registry().MustGet(models.ServiceRecordName), BlueprintService)
	obj.FormClass = "OutServiceForm"
	obj.Persist = func(ctx context.Context, _ views.Action, f *forms.Form) error {
		return h.Lifecycle.FinalizeService(ctx, f.Instance.(*models.ServiceRecord))
	}
	page := fiber.Map{
		"title":        obj.Descriptor.VerboseName,
		"contentTitle": fmt.Sprintf("Выдача с обслуживания: %s", rec),
		"buttons":      fiber.Map{"save": true},
	}

	sub, err := submission(c)
	if err != nil {
		return err
	}
	if !sub.IsPost() {
		return h.renderForm(c, obj, rec, sub, page)
	}
	res, err := obj.Save(c.UserContext(), views.ActionChange, rec, sub)
	if err != nil {
		return lifecycleError(err)
	}
	if res.Saved {
		res.Redirect = obj.ListURL()
	}
	return h.saved(c, res, page)
}

// ServiceHistory handles GET /service/:pk/history
// @Summary Service history of an instrument
// @Tags Service
// @Produce json
// @Param pk path int true "Instrument id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /service/{pk}/history [get]
func (h *Handler) ServiceHistory(c *fiber.Ctx) error {
	pk, err := pkParam(c)
	if err != nil {
		return err
	}
	inst, err := h.instrument(c.UserContext(), pk)
	if err != nil {
		return err
	}

	desc := h.Repo.Registry().MustGet(models.ServiceRecordName)
	l := h.list(desc, BlueprintService)
	l.Filters = []query.Predicate{query.Eq("service.si_id", pk)}
	l.FieldsLink = &meta.Links{Mode: meta.LinkNone}
	l.ShowFilters = false
	page, err := l.Render(c.UserContext(), queryValues(c))
	if err != nil {
		return err
	}
	page.AddURL = ""
	return h.render(c, fiber.StatusOK, fiber.Map{
		"title":        page.Title,
		"contentTitle": fmt.Sprintf("История обслуживания: %s", inst),
		"list":         page,
	})
}
