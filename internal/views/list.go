package views

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/localnerve/reestrsi/internal/fields"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/types"
)

const (
	// PageParam is the page number parameter
	PageParam = "page"
	// DefaultPageSize applies when a list sets none
	DefaultPageSize = 20
)

// List renders a paginated, filterable and searchable listing of one model.
// Nil override slices fall back to the descriptor.
type List struct {
	Descriptor *meta.Descriptor
	Blueprint  string
	Repo       *repository.Repository
	URLs       URLBuilder
	Formatter  fields.Formatter

	FieldsDisplay []string
	FieldsFilter  []string
	FieldsSearch  []string
	FieldsLink    *meta.Links

	PageSize    int
	Filters     []query.Predicate // always applied
	Joins       []string
	ShowFilters bool
}

// Header is one column title
type Header struct {
	Text string `json:"text"`
}

// Pagination is the pager state of a listing
type Pagination struct {
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
	Total   int64  `json:"total"`
	Pages   int    `json:"pages"`
	Message string `json:"message"`
}

// Search is the search box of a listing
type Search struct {
	Name     string            `json:"name"`
	Query    string            `json:"query"`
	HelpText string            `json:"helpText"`
	Params   map[string]string `json:"params"`
}

// ListPage is everything a list template needs
type ListPage struct {
	Title          string        `json:"title"`
	Headers        []Header      `json:"headers"`
	Rows           [][]string    `json:"rows"`
	Objects        []meta.Entity `json:"-"`
	Pagination     Pagination    `json:"pagination"`
	Filters        []FilterSpec  `json:"filters,omitempty"`
	ResetFilterURL string        `json:"resetFilterUrl,omitempty"`
	AddURL         string        `json:"addUrl,omitempty"`
	Search         *Search       `json:"search,omitempty"`
}

func (l *List) display() []string {
	if l.FieldsDisplay != nil {
		return l.FieldsDisplay
	}
	return l.Descriptor.FieldsDisplay
}

func (l *List) filterFields() []string {
	if l.FieldsFilter != nil {
		return l.FieldsFilter
	}
	return l.Descriptor.FieldsFilter
}

func (l *List) searchFields() []string {
	if l.FieldsSearch != nil {
		return l.FieldsSearch
	}
	return l.Descriptor.FieldsSearch
}

func (l *List) links() meta.Links {
	if l.FieldsLink != nil {
		return *l.FieldsLink
	}
	return l.Descriptor.FieldsLink
}

func (l *List) pageSize() int {
	if l.PageSize > 0 {
		return l.PageSize
	}
	return DefaultPageSize
}

func (l *List) formatter() fields.Formatter {
	if l.Formatter.EmptyValue == "" {
		return fields.NewFormatter(nil)
	}
	return l.Formatter
}

// Page reads the page number from params; anything invalid is the first page
func Page(params url.Values) int {
	page, err := strconv.Atoi(params.Get(PageParam))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Query builds the page query: the list's own predicates and pagination combined with the request filters and search
func (l *List) Query(params url.Values) (*query.Query, error) {
	size := l.pageSize()
	base, err := query.New(l.Descriptor,
		query.WithFilters(l.Filters...),
		query.WithJoins(l.Joins...),
		query.WithLimit(size),
		query.WithOffset((Page(params)-1)*size),
	)
	if err != nil {
		return nil, err
	}

	rest := url.Values{}
	for k, v := range params {
		if k != PageParam {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		return base, nil
	}
	req, err := query.New(l.Descriptor,
		query.WithParams(rest),
		query.WithFieldsFilter(l.filterFields()),
		query.WithFieldsSearch(l.searchFields()),
	)
	if err != nil {
		return nil, err
	}
	return query.Combine(base, req)
}

// Render runs the list pipeline for one request
func (l *List) Render(ctx context.Context, params url.Values) (*ListPage, error) {
	display := l.display()
	if len(display) == 0 {
		return nil, types.Configf("no display fields for model %s", l.Descriptor.Name)
	}

	page := &ListPage{
		Title:  l.Descriptor.VerboseNamePlural,
		AddURL: TryURL(l.URLs, RouteName(l.Blueprint, RouteAdd), modelParams(l.Descriptor)),
	}

	filters := l.filterFields()
	if err := CheckFilters(l.Repo.Registry(), l.Descriptor, filters); err != nil {
		return nil, err
	}
	if l.ShowFilters && len(filters) > 0 {
		specs, err := BuildFilters(ctx, l.Repo, l.Descriptor, filters, params)
		if err != nil {
			return nil, err
		}
		page.Filters = specs
		page.ResetFilterURL = TryURL(l.URLs, RouteName(l.Blueprint, RouteList), modelParams(l.Descriptor))
	}

	q, err := l.Query(params)
	if err != nil {
		return nil, err
	}
	total, err := l.Repo.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := l.Repo.List(ctx, q)
	if err != nil {
		return nil, err
	}

	page.Pagination = paginate(Page(params), q.Limit, total, len(rows))
	for _, name := range display {
		page.Headers = append(page.Headers, Header{Text: l.label(name)})
	}
	page.Objects = rows
	for _, e := range rows {
		page.Rows = append(page.Rows, l.row(e, display))
	}

	if search := l.searchFields(); len(search) > 0 {
		page.Search = &Search{
			Name:     query.SearchParam,
			Query:    params.Get(query.SearchParam),
			HelpText: l.searchHelp(search),
			Params:   map[string]string{},
		}
		for k := range params {
			if k != PageParam {
				page.Search.Params[k] = params.Get(k)
			}
		}
	}
	return page, nil
}

func paginate(page, perPage int, total int64, shown int) Pagination {
	p := Pagination{Page: page, PerPage: perPage, Total: total}
	if perPage > 0 {
		p.Pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	start, end := 0, 0
	if shown > 0 {
		start = (page-1)*perPage + 1
		end = start + shown - 1
	}
	p.Message = fmt.Sprintf("показано <b>%d - %d</b> записей из <b>%d</b>", start, end, total)
	return p
}

// label degrades to the raw name; unknown display fields still get a column
func (l *List) label(name string) string {
	label, err := fields.Label(l.Descriptor, name)
	if err != nil {
		return name
	}
	return label
}

func (l *List) searchHelp(search []string) string {
	var labels []string
	seen := map[string]bool{}
	for _, path := range search {
		quoted := `"` + l.label(meta.SplitPath(path)[0]) + `"`
		if !seen[quoted] {
			seen[quoted] = true
			labels = append(labels, quoted)
		}
	}
	return "Поиск по: " + strings.Join(labels, ", ") + "."
}

// cell renders one display field. Resolution failures become the empty placeholder.
func (l *List) cell(e meta.Entity, name string) (string, bool) {
	fm := l.formatter()
	r, err := fields.Resolve(l.Descriptor, name, e)
	if err != nil {
		return fm.ForValue(nil, false), false
	}
	switch v := r.(type) {
	case fields.Column:
		return fm.ForField(v.Value, v.Field), v.Field.Kind == meta.KindDate
	case fields.Relation:
		if v.Value == nil {
			return fm.ForValue(nil, false), false
		}
		return html.EscapeString(fields.Text(v.Value)), false
	case fields.Computed:
		_, isTime := v.Value.(time.Time)
		return fm.ForValue(v.Value, v.Attr.Boolean), isTime
	}
	return fm.ForValue(nil, false), false
}

func (l *List) row(e meta.Entity, display []string) []string {
	links := l.links()
	changeURL := TryURL(l.URLs, RouteName(l.Blueprint, RouteChange), objectParams(l.Descriptor, e))
	out := make([]string, 0, len(display))
	first := true

	for _, name := range display {
		repr, nowrap := l.cell(e, name)
		classes := "field-" + name
		if nowrap {
			classes += " nowrap"
		}

		if !links.Linked(first, name) {
			out = append(out, fmt.Sprintf(`<td class="%s">%s</td>`, classes, repr))
			continue
		}

		tag := "td"
		if first {
			tag = "th"
		}
		first = false

		content := repr
		if changeURL != "" {
			attr := ""
			if repr == "" {
				attr = ` class="empty"`
				repr = html.EscapeString(l.label(name) + " отсутствует")
			}
			content = fmt.Sprintf(`<a href="%s"%s>%s</a>`, html.EscapeString(changeURL), attr, repr)
		}
		out = append(out, fmt.Sprintf(`<%s class="%s">%s</%s>`, tag, classes, content, tag))
	}
	return out
}
