// common.go
//
// Measurement instrument registry with metrological service tracking
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reestrsi.
// reestrsi is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reestrsi is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reestrsi.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package handlers implements the HTTP pages of the registry. Every page answers with the JSON
// context a template would render.
package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/config"
	"github.com/localnerve/reestrsi/internal/fields"
	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/forms"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/middleware"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/services"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/localnerve/reestrsi/internal/utils"
	"github.com/localnerve/reestrsi/internal/views"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler carries what every page needs
type Handler struct {
	Config    *config.Config
	DB        *gorm.DB
	Repo      *repository.Repository
	Files     *files.Store
	Forms     *forms.Registry
	Auth      *auth.Service
	Lifecycle *services.Lifecycle
	Sessions  *session.Store
	URLs      *utils.Router
	Log       *zap.Logger
}

// queryValues collects the query string, keeping repeated keys
func queryValues(c *fiber.Ctx) url.Values {
	values := url.Values{}
	args := c.Context().QueryArgs()
	for key, value := range args.All() {
		values.Add(string(key), string(value))
	}
	return values
}

// submission reads the posted form, urlencoded or multipart
func submission(c *fiber.Ctx) (forms.Submission, error) {
	sub := forms.Submission{Method: c.Method(), Values: url.Values{}}
	if c.Method() != fiber.MethodPost {
		return sub, nil
	}

	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		mf, err := c.MultipartForm()
		if err != nil {
			return sub, types.InvalidParamf("multipart form: %v", err)
		}
		for key, values := range mf.Value {
			sub.Values[key] = values
		}
		sub.Files = make(map[string]*forms.Upload, len(mf.File))
		for key, headers := range mf.File {
			if len(headers) > 0 && headers[0].Filename != "" {
				sub.Files[key] = forms.UploadFromHeader(headers[0])
			}
		}
		return sub, nil
	}

	args := c.Request().PostArgs()
	for key, value := range args.All() {
		sub.Values.Add(string(key), string(value))
	}
	return sub, nil
}

// pkParam parses the :pk segment
func pkParam(c *fiber.Ctx) (uint, error) {
	pk, err := strconv.ParseUint(c.Params("pk"), 10, 64)
	if err != nil || pk == 0 {
		return 0, &types.CustomError{
			Code:    fiber.StatusNotFound,
			Message: fmt.Sprintf("Объект %q не найден", c.Params("pk")),
			Type:    "notFound",
		}
	}
	return uint(pk), nil
}

func (h *Handler) formatter() fields.Formatter {
	return fields.NewFormatter(files.DownloadURL)
}

func (h *Handler) list(desc *meta.Descriptor, blueprint string) *views.List {
	return &views.List{
		Descriptor:  desc,
		Blueprint:   blueprint,
		Repo:        h.Repo,
		URLs:        h.URLs,
		Formatter:   h.formatter(),
		PageSize:    h.Config.PageSize,
		ShowFilters: true,
	}
}

func (h *Handler) object(desc *meta.Descriptor, blueprint string) *views.Object {
	return &views.Object{
		Descriptor: desc,
		Blueprint:  blueprint,
		Repo:       h.Repo,
		Files:      h.Files,
		Forms:      h.Forms,
		URLs:       h.URLs,
		Log:        h.Log,
	}
}

func (h *Handler) url(name string, params map[string]string) string {
	return views.TryURL(h.URLs, name, params)
}

func pkParams(pk uint) map[string]string {
	return map[string]string{"pk": strconv.FormatUint(uint64(pk), 10)}
}

// site is the layout context shared by every page
func (h *Handler) site(c *fiber.Ctx) fiber.Map {
	user := middleware.State(c).User
	perm := user != nil && user.IsAuthenticated()

	menu := []fiber.Map{{"title": "Средства измерения", "url": h.url("device.list", nil)}}
	username := ""
	if perm {
		menu[0]["url"] = h.url("si.list", nil)
		menu = append(menu,
			fiber.Map{"title": "Обслуживание", "url": h.url("service.list", nil)},
			fiber.Map{"title": "Настройки", "url": h.url("settings.index", nil)},
		)
		username = user.ShortName()
	}

	return fiber.Map{
		"siteName":  h.Config.SiteName,
		"mainMenu":  menu,
		"perm":      perm,
		"username":  username,
		"loginUrl":  h.url("account.login", nil),
		"logoutUrl": h.url("account.logout", nil),
	}
}

// render answers with the page context merged over the site context
func (h *Handler) render(c *fiber.Ctx, status int, page fiber.Map) error {
	ctx := h.site(c)
	for k, v := range page {
		ctx[k] = v
	}
	return c.Status(status).JSON(ctx)
}

// fieldContext is one input of a rendered form
type fieldContext struct {
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	LabelClass  string        `json:"labelClass,omitempty"`
	Kind        string        `json:"kind"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	ReadOnly    bool          `json:"readOnly"`
	Value       string        `json:"value"`
	Contents    string        `json:"contents,omitempty"`
	Choices     []meta.Choice `json:"choices,omitempty"`
	Stored      string        `json:"stored,omitempty"`
	DownloadURL string        `json:"downloadUrl,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
}

func formContext(f *forms.Form) fiber.Map {
	out := make([]fieldContext, 0, len(f.Fields))
	for _, fl := range f.Fields {
		fc := fieldContext{
			Name:        fl.Name,
			Label:       fl.Label,
			LabelClass:  fl.LabelClass,
			Kind:        fl.Spec.Kind.String(),
			Description: fl.Description,
			Required:    fl.Required,
			ReadOnly:    fl.ReadOnly,
			Choices:     fl.Choices,
			Stored:      fl.Stored,
			DownloadURL: fl.DownloadURL,
			Errors:      fl.Errors,
		}
		if fl.Spec.Kind != forms.Password {
			fc.Value = fl.Raw
		}
		if fl.ReadOnly {
			fc.Contents = f.Contents(fl.Name)
		}
		out = append(out, fc)
	}
	return fiber.Map{
		"fields":    out,
		"multipart": f.Multipart,
		"viewOnly":  f.ViewOnly,
	}
}

// saved answers a submission: the form again when it was rejected, otherwise the notice and
// where to go next
func (h *Handler) saved(c *fiber.Ctx, res *views.Result, page fiber.Map) error {
	if !res.Valid {
		if page == nil {
			page = fiber.Map{}
		}
		page["form"] = formContext(res.Form)
		page["notice"] = res.Notice
		return h.render(c, fiber.StatusUnprocessableEntity, page)
	}
	return utils.MutationSuccessResponse(c, res.Notice.Message, res.Redirect, fiber.Map{
		"category": res.Notice.Category,
		"removed":  res.Removed,
	})
}
