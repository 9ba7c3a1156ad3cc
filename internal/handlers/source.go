package handlers

import (
	"errors"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reestrsi/internal/fields"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/services"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/localnerve/reestrsi/internal/utils"
)

// Elements answered by ValueChange
const (
	ElementEmployee          = "employee"
	ElementDescriptionMethod = "description_method"
)

var uploadName = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValueChange handles GET /valuechange
// @Summary Dependent field values
// @Description Values the instrument form shows next to a select: division and e-mail of an employee,
// @Description description and method of a description method. Unknown ids answer placeholders.
// @Tags Source
// @Produce json
// @Param element query string true "employee or description_method"
// @Param id query int true "Selected id"
// @Success 200 {object} map[string]interface{}
// @Router /valuechange [get]
func (h *Handler) ValueChange(c *fiber.Ctx) error {
	element := c.Query("element")
	id := c.Query("id")
	data := fiber.Map{}
	empty := fields.EmptyValue
	reg := h.Repo.Registry()

	switch element {
	case ElementEmployee:
		data["division"], data["email"] = empty, empty
		emp, err := repository.As[*models.Employee](h.Repo.Get(c.UserContext(), reg.MustGet(models.EmployeeName), id))
		if err != nil && !lookupMiss(err) {
			return err
		}
		if emp != nil {
			if emp.Division != nil && emp.Division.Name != "" {
				data["division"] = emp.Division.Name
			}
			if emp.Email != nil && *emp.Email != "" {
				data["email"] = *emp.Email
			}
		}
	case ElementDescriptionMethod:
		data["description"], data["method"] = empty, empty
		dm, err := repository.As[*models.DescriptionMethod](h.Repo.Get(c.UserContext(), reg.MustGet(models.DescriptionMethodName), id))
		if err != nil && !lookupMiss(err) {
			return err
		}
		if dm != nil {
			fm := h.formatter()
			if dm.Description != nil && *dm.Description != "" {
				data["description"] = fm.ForValue(dm.Description, false)
			}
			if dm.Method != nil && *dm.Method != "" {
				data["method"] = fm.ForValue(dm.Method, false)
			}
		}
	}

	return c.JSON(fiber.Map{"element": element, "data": data})
}

func lookupMiss(err error) bool {
	return errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidParam)
}

// Download handles GET /uploads/:upload/:filename
// @Summary Download a stored file
// @Tags Source
// @Produce octet-stream
// @Param upload path string true "Upload folder"
// @Param filename path string true "File name"
// @Success 200 {file} file
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /uploads/{upload}/{filename} [get]
func (h *Handler) Download(c *fiber.Ctx) error {
	upload, filename := c.Params("upload"), c.Params("filename")
	if !uploadName.MatchString(upload) || !h.Files.Exists(upload, filename) {
		return utils.NotFoundResponse(c, "Файл не найден")
	}
	return c.SendFile(h.Files.Path(upload, filename))
}

// Health handles GET /health
// @Summary Health check
// @Description Database connectivity and upload folder availability
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *Handler) Health(c *fiber.Ctx) error {
	res := services.HealthCheck(h.Config, h.DB, h.Log)
	status := fiber.StatusOK
	if !res.Healthy() {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(res)
}
