package query_test

import (
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fxDivision struct {
	ID   uint
	Name string
}

func (fxDivision) TableName() string { return "fx_division" }
func (d fxDivision) PrimaryKey() uint { return d.ID }
func (d fxDivision) String() string { return d.Name }

type fxGroup struct {
	ID   uint
	Name string
}

func (fxGroup) TableName() string { return "fx_group" }
func (g fxGroup) PrimaryKey() uint { return g.ID }
func (g fxGroup) String() string { return g.Name }

type fxInstrument struct {
	ID         uint
	Name       string
	Etalon     bool
	DivisionID *uint
	Division   *fxDivision
	GroupID    *uint
	Group      *fxGroup
}

func (fxInstrument) TableName() string { return "instrument" }
func (i fxInstrument) PrimaryKey() uint { return i.ID }
func (i fxInstrument) String() string { return i.Name }

func fixture(t *testing.T) *meta.Descriptor {
	t.Helper()
	d := &meta.Descriptor{
		Name:          "instrument",
		Model:         &fxInstrument{},
		FieldsDisplay: []string{"name"},
		FieldsSearch:  []string{"name", "group.name"},
		FieldsFilter:  []string{"division", "etalon"},
		Ordering:      []string{"-name", "unknown"},
	}
	require.NoError(t, meta.NewRegistry().Register(d))
	return d
}

func instruments(t *testing.T) *meta.Descriptor {
	t.Helper()
	reg, err := models.NewRegistry()
	require.NoError(t, err)
	return reg.MustGet(models.InstrumentName)
}

func keys(q *query.Query) []string {
	out := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		out = append(out, f.Key())
	}
	sort.Strings(out)
	return out
}

func joinPaths(q *query.Query) []string {
	out := make([]string, 0, len(q.Joins))
	for _, j := range q.Joins {
		out = append(out, j.Path)
	}
	return out
}

func TestRelationAndBooleanFilter(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d, query.WithParams(url.Values{"division": {"3"}, "etalon": {"1"}}))
	require.NoError(t, err)

	require.Len(t, q.Filters, 2)
	assert.Equal(t, query.Predicate{SQL: "instrument.division_id = ?", Args: []any{3}}, q.Filters[0])
	assert.Equal(t, query.Predicate{SQL: "instrument.etalon = ?", Args: []any{true}}, q.Filters[1])

	require.Len(t, q.Joins, 1)
	assert.Equal(t, "division", q.Joins[0].Path)
	assert.Equal(t, "LEFT JOIN fx_division j_division ON instrument.division_id = j_division.id", q.Joins[0].Clause())
}

func TestQuotedSearchTerm(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d, query.WithParams(url.Values{"q": {`"acme" calibrator`}}))
	require.NoError(t, err)

	require.Len(t, q.Filters, 2)
	sql := "(LOWER(instrument.name) LIKE ? ESCAPE '!' OR LOWER(j_group.name) LIKE ? ESCAPE '!')"
	assert.Equal(t, query.Predicate{SQL: sql, Args: []any{"%acme%", "%acme%"}}, q.Filters[0])
	assert.Equal(t, query.Predicate{SQL: sql, Args: []any{"%calibrator%", "%calibrator%"}}, q.Filters[1])
	assert.Equal(t, []string{"group"}, joinPaths(q))
}

func TestShortSearchIgnored(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d, query.WithParams(url.Values{"q": {"ab"}}))
	require.NoError(t, err)
	assert.Empty(t, q.Filters)
	assert.Empty(t, q.Joins)
}

func TestSearchFolding(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d, query.WithParams(url.Values{"q": {"МАНОМЕТР"}}))
	require.NoError(t, err)
	require.Len(t, q.Filters, 1)
	assert.Equal(t, "%манометр%", q.Filters[0].Args[0])
}

func TestSearchWildcardsLiteral(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d, query.WithParams(url.Values{"q": {"50_1 10% [a]!"}}))
	require.NoError(t, err)
	require.Len(t, q.Filters, 3)
	assert.Equal(t, "%50!_1%", q.Filters[0].Args[0])
	assert.Equal(t, "%10!%%", q.Filters[1].Args[0])
	assert.Equal(t, "%![a]!!%", q.Filters[2].Args[0])
}

func TestTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`one two`, []string{"one", "two"}},
		{`"acme corp" calibrator`, []string{"acme corp", "calibrator"}},
		{`'single quoted' x`, []string{"single quoted", "x"}},
		{`"say \"hi\""`, []string{`say "hi"`}},
		{`"unterminated`, []string{`"unterminated`}},
		{`   `, []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, query.Terms(tt.in), tt.in)
	}
}

func TestOrdering(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d)
	require.NoError(t, err)
	assert.Equal(t, []query.Order{{Column: "instrument.name", Desc: true}}, q.Ordering)

	q, err = query.New(d, query.WithOrdering("etalon", "-id"))
	require.NoError(t, err)
	assert.Equal(t, []query.Order{{Column: "instrument.etalon"}, {Column: "instrument.id", Desc: true}}, q.Ordering)
}

func TestDontCareAndEmpty(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d, query.WithParams(url.Values{"division": {"all"}, "etalon": {""}, "page": {"2"}}))
	require.NoError(t, err)
	assert.Empty(t, q.Filters)

	q, err = query.New(d, query.WithParams(url.Values{"division__filter": {""}}))
	require.NoError(t, err)
	assert.Equal(t, []query.Predicate{query.IsNull("instrument.division_id")}, q.Filters)
}

func TestNestedRelationFilter(t *testing.T) {
	d := instruments(t)
	q, err := query.New(d, query.WithParams(url.Values{"employee__division": {"7"}}))
	require.NoError(t, err)

	assert.Equal(t, []query.Predicate{query.Eq("j_employee.division_id", 7)}, q.Filters)
	assert.Equal(t, []string{"employee", "employee.division"}, joinPaths(q))
	assert.Equal(t, "si.employee_id = j_employee.id", q.Joins[0].On)
	assert.Equal(t, "j_employee.division_id = j_employee__division.id", q.Joins[1].On)
}

func TestDateRange(t *testing.T) {
	d := instruments(t)
	params := url.Values{
		query.BeginKey("date_next_service"): {"2025-01-01"},
		query.EndKey("date_next_service"):   {"31.12.2025"},
	}
	q, err := query.New(d, query.WithParams(params))
	require.NoError(t, err)

	begin := datatypes.Date(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	end := datatypes.Date(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	require.Len(t, q.Filters, 2)
	// sorted keys put __begin before __end
	assert.Equal(t, query.Predicate{SQL: "si.date_next_service >= ?", Args: []any{begin}}, q.Filters[0])
	assert.Equal(t, query.Predicate{SQL: "si.date_next_service <= ?", Args: []any{end}}, q.Filters[1])

	q, err = query.New(d, query.WithParams(url.Values{query.BeginKey("date_next_service"): {""}}))
	require.NoError(t, err)
	assert.Empty(t, q.Filters)

	history := append([]string{"services.date_next_service"}, d.FieldsFilter...)
	q, err = query.New(d, query.WithFieldsFilter(history),
		query.WithParams(url.Values{query.BeginKey("services.date_next_service"): {"2025-01-01"}}))
	require.NoError(t, err)
	assert.Equal(t, "j_services.date_next_service >= ?", q.Filters[0].SQL)
	assert.Equal(t, "si.id = j_services.si_id", q.Joins[0].On)
}

func TestFilterErrors(t *testing.T) {
	d := instruments(t)

	_, err := query.New(d, query.WithParams(url.Values{"group_si": {"x"}}))
	assert.ErrorIs(t, err, types.ErrInvalidParam)

	_, err = query.New(d, query.WithParams(url.Values{"etalon": {"yes"}}))
	assert.ErrorIs(t, err, types.ErrInvalidParam)

	_, err = query.New(d, query.WithParams(url.Values{query.BeginKey("date_next_service"): {"2025-13-45"}}))
	assert.ErrorIs(t, err, types.ErrInvalidParam)

	_, err = query.New(d, query.WithFieldsFilter([]string{"warehouse"}), query.WithParams(url.Values{"warehouse__filter": {"1"}}))
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = query.New(d, query.WithJoins("employee.room"))
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = query.New(d, query.WithFieldsSearch([]string{"year_production"}), query.WithParams(url.Values{"q": {"2019"}}))
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestUnfilterableColumnSkipped(t *testing.T) {
	d := instruments(t)
	q, err := query.New(d, query.WithParams(url.Values{"number__filter": {"A-1"}}))
	require.NoError(t, err)
	assert.Empty(t, q.Filters)
}

func TestUndeclaredFilterIgnored(t *testing.T) {
	d := instruments(t)
	params := url.Values{
		"bogus__filter":            {"1"},
		"services__is_out__filter": {"0"},
		"employee__room__filter":   {"3"},
		query.BeginKey("services.date_in_service"): {"2025-01-01"},
	}
	q, err := query.New(d, query.WithParams(params))
	require.NoError(t, err)
	assert.Empty(t, q.Filters)
	assert.Empty(t, q.Joins)

	// declared paths still filter through either key form
	q, err = query.New(d, query.WithParams(url.Values{"employee__division__filter": {"7"}}))
	require.NoError(t, err)
	assert.Equal(t, []query.Predicate{query.Eq("j_employee.division_id", 7)}, q.Filters)
}

func TestCombine(t *testing.T) {
	d := fixture(t)
	a, err := query.New(d,
		query.WithFilters(query.Eq("instrument.id", 1), query.Eq("instrument.etalon", true)),
		query.WithLimit(10), query.WithOffset(20))
	require.NoError(t, err)
	b, err := query.New(d,
		query.WithFilters(query.Eq("instrument.etalon", true), query.IsNull("instrument.group_id")),
		query.WithJoins("group"), query.WithOrdering("id"))
	require.NoError(t, err)

	ab, err := query.Combine(a, b)
	require.NoError(t, err)
	ba, err := query.Combine(b, a)
	require.NoError(t, err)

	assert.Len(t, ab.Filters, 3)
	assert.Equal(t, keys(ab), keys(ba))
	assert.Equal(t, []string{"group"}, joinPaths(ab))
	assert.Equal(t, a.Ordering, ab.Ordering)
	assert.Equal(t, 10, ab.Limit)
	assert.Equal(t, 20, ab.Offset)
	assert.Equal(t, b.Ordering, ba.Ordering)
	assert.Zero(t, ba.Limit)

	// associativity on filter sets
	c, err := query.New(d, query.WithFilters(query.Eq("instrument.name", "x")))
	require.NoError(t, err)
	left, err := query.Combine(ab, c)
	require.NoError(t, err)
	bc, err := query.Combine(b, c)
	require.NoError(t, err)
	right, err := query.Combine(a, bc)
	require.NoError(t, err)
	assert.Equal(t, keys(left), keys(right))
}

func TestCombineDifferentModels(t *testing.T) {
	a, err := query.New(fixture(t))
	require.NoError(t, err)
	b, err := query.New(instruments(t))
	require.NoError(t, err)
	_, err = query.Combine(a, b)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestUnpaged(t *testing.T) {
	d := fixture(t)
	q, err := query.New(d, query.WithLimit(5), query.WithOffset(5), query.WithParams(url.Values{"etalon": {"0"}}))
	require.NoError(t, err)
	u := q.Unpaged()
	assert.Zero(t, u.Limit)
	assert.Zero(t, u.Offset)
	assert.Empty(t, u.Ordering)
	assert.Equal(t, q.Filters, u.Filters)
	assert.Equal(t, 5, q.Limit)
}

func TestUnregisteredModel(t *testing.T) {
	_, err := query.New(&meta.Descriptor{Name: "x", Model: &fxGroup{}})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}
