package repository_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/testutil"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	repo *repository.Repository
	fx   *testutil.Fixtures
	si   *meta.Descriptor
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.OpenDB(t)
	repo := repository.New(db, testutil.Registry(t), zap.NewNop())
	fx := testutil.SeedFixtures(t, db)

	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	fx.CreateInstrument(t, db, "A-1", day)
	etalon := fx.Instrument("B-2", day.AddDate(0, 1, 0))
	etalon.Etalon = true
	require.NoError(t, db.Create(etalon).Error)
	fx.CreateInstrument(t, db, "C-3", day.AddDate(0, 2, 0))

	return &env{repo: repo, fx: fx, si: repo.Registry().MustGet(models.InstrumentName)}
}

func numbers(rows []meta.Entity) []string {
	out := make([]string, 0, len(rows))
	for _, e := range rows {
		out = append(out, e.String())
	}
	return out
}

func TestListOrderingAndPaging(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	q, err := query.New(e.si)
	require.NoError(t, err)
	rows, err := e.repo.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "B-2", "C-3"}, numbers(rows))

	q, err = query.New(e.si, query.WithOrdering("-number"), query.WithLimit(2), query.WithOffset(1))
	require.NoError(t, err)
	rows, err = e.repo.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"B-2", "A-1"}, numbers(rows))
}

func TestListEagerLoads(t *testing.T) {
	e := setup(t)
	q, err := query.New(e.si, query.WithLimit(1))
	require.NoError(t, err)

	inst, err := repository.As[*models.Instrument](e.repo.First(context.Background(), q))
	require.NoError(t, err)
	require.NotNil(t, inst.Employee)
	require.NotNil(t, inst.Employee.Division)
	assert.Equal(t, "Лаборатория", inst.Employee.Division.Name)
	require.NotNil(t, inst.GroupSi)
	assert.Equal(t, e.fx.GroupSi.Name, inst.GroupSi.Name)
	assert.Nil(t, inst.Place)
}

func TestInvalidEagerPath(t *testing.T) {
	e := setup(t)
	broken := *e.si
	broken.SelectRelated = []string{"employee.warehouse"}

	_, err := repository.Plan(&broken)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	q, err := query.New(&broken)
	require.NoError(t, err)
	_, err = e.repo.List(context.Background(), q)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestPlan(t *testing.T) {
	e := setup(t)
	plan, err := repository.Plan(e.si)
	require.NoError(t, err)
	assert.Empty(t, plan.Joins)
	assert.Contains(t, plan.Preloads, "Employee.Division")
	assert.Contains(t, plan.Preloads, "RoomUseEtalon")

	service := e.repo.Registry().MustGet(models.ServiceRecordName)
	plan, err = repository.Plan(service)
	require.NoError(t, err)
	assert.Equal(t, []string{"StatusService"}, plan.Joins)
	assert.Equal(t, []string{"Si.NameSi", "Si.TypeSi", "Si.Employee.Division"}, plan.Preloads)

	// to-many joined paths stay on Preload
	fanout := *e.si
	fanout.JoinedRelated = []string{"services"}
	plan, err = repository.Plan(&fanout)
	require.NoError(t, err)
	assert.Empty(t, plan.Joins)
	assert.Contains(t, plan.Preloads, "Services")
}

func TestJoinedRelatedLoads(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	db := e.repo.DB()
	service := e.repo.Registry().MustGet(models.ServiceRecordName)

	var inst models.Instrument
	require.NoError(t, db.Where("number = ?", "A-1").First(&inst).Error)
	rec := &models.ServiceRecord{SiID: inst.ID, DateInService: models.Date(2025, 2, 1), StatusServiceID: &e.fx.StatusService.ID}
	require.NoError(t, db.Create(rec).Error)

	q, err := query.New(service, query.WithParams(url.Values{"is_ready": {"0"}}))
	require.NoError(t, err)
	got, err := repository.As[*models.ServiceRecord](e.repo.First(ctx, q))
	require.NoError(t, err)
	require.NotNil(t, got.StatusService)
	assert.Equal(t, "На обслуживании", got.StatusService.Name)
	require.NotNil(t, got.Si)
	assert.Equal(t, "A-1", got.Si.Number)
}

func TestCountMatchesList(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	cases := []url.Values{
		{},
		{"etalon": {"1"}},
		{"etalon": {"0"}},
		{"q": {"b-2"}},
		{"q": {"иван"}},
		{"employee__division": {"1"}},
		{query.BeginKey("date_next_service"): {"2025-02-01"}},
		{query.EndKey("date_next_service"): {"10.02.2025"}, "etalon": {"1"}},
		{"place": {""}},
	}
	for _, params := range cases {
		q, err := query.New(e.si, query.WithParams(params))
		require.NoError(t, err)
		rows, err := e.repo.List(ctx, q)
		require.NoError(t, err)
		n, err := e.repo.Count(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, int64(len(rows)), n, params.Encode())
	}

	q, err := query.New(e.si, query.WithParams(url.Values{"etalon": {"1"}}))
	require.NoError(t, err)
	rows, err := e.repo.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"B-2"}, numbers(rows))
}

func TestSearchIgnoresCase(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// the fixture relations are stored capitalised
	for _, term := range []string{"Манометр", "манометр", "МАНОМЕТР", "Измерения", "мп-100", "ИВАНОВ", "b-2"} {
		q, err := query.New(e.si, query.WithParams(url.Values{query.SearchParam: {term}}))
		require.NoError(t, err)
		rows, err := e.repo.List(ctx, q)
		require.NoError(t, err)
		if term == "b-2" {
			assert.Equal(t, []string{"B-2"}, numbers(rows), term)
			continue
		}
		assert.Len(t, rows, 3, term)
	}

	q, err := query.New(e.si, query.WithParams(url.Values{query.SearchParam: {"Термометр"}}))
	require.NoError(t, err)
	rows, err := e.repo.List(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSearchWildcardsLiteral(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fx.CreateInstrument(t, e.repo.DB(), "50_1", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	e.fx.CreateInstrument(t, e.repo.DB(), "5001", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	q, err := query.New(e.si, query.WithParams(url.Values{query.SearchParam: {"50_1"}}))
	require.NoError(t, err)
	rows, err := e.repo.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"50_1"}, numbers(rows))
}

func TestHasManyFilterPagesByRoot(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	db := e.repo.DB()

	open := map[string]int{"A-1": 3, "B-2": 1}
	for number, n := range open {
		var inst models.Instrument
		require.NoError(t, db.Where("number = ?", number).First(&inst).Error)
		for d := 1; d <= n; d++ {
			require.NoError(t, db.Create(&models.ServiceRecord{SiID: inst.ID, DateInService: models.Date(2025, 1, d)}).Error)
		}
	}

	page := func(offset int) *query.Query {
		q, err := query.New(e.si, query.WithFieldsFilter([]string{"services.is_out"}),
			query.WithParams(url.Values{"services__is_out__filter": {"0"}}),
			query.WithLimit(2), query.WithOffset(offset))
		require.NoError(t, err)
		return q
	}

	rows, err := e.repo.List(ctx, page(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "B-2"}, numbers(rows))

	rows, err = e.repo.List(ctx, page(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"B-2"}, numbers(rows))

	rows, err = e.repo.List(ctx, page(2))
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err := e.repo.Count(ctx, page(0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// eager loads survive the id page
	first, err := repository.As[*models.Instrument](e.repo.First(ctx, page(0)))
	require.NoError(t, err)
	require.NotNil(t, first.Employee)
	assert.NotNil(t, first.Employee.Division)
}

func TestJoinDuplicatesRemoved(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	db := e.repo.DB()

	var inst models.Instrument
	require.NoError(t, db.Where("number = ?", "A-1").First(&inst).Error)
	for _, d := range []int{1, 2} {
		rec := &models.ServiceRecord{
			SiID:            inst.ID,
			DateInService:   models.Date(2024, time.Month(d), 1),
			DateNextService: models.DatePtr(2025, 6, 1),
		}
		require.NoError(t, db.Create(rec).Error)
	}

	q, err := query.New(e.si, query.WithFieldsFilter([]string{"services.date_next_service"}),
		query.WithParams(url.Values{query.BeginKey("services.date_next_service"): {"2025-01-01"}}))
	require.NoError(t, err)
	rows, err := e.repo.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, numbers(rows))

	n, err := e.repo.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetVariants(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	first, err := e.repo.Get(ctx, e.si, 1)
	require.NoError(t, err)
	assert.Equal(t, "A-1", first.String())

	byUint, err := e.repo.Get(ctx, e.si, uint(2))
	require.NoError(t, err)
	assert.Equal(t, "B-2", byUint.String())

	byString, err := e.repo.Get(ctx, e.si, "3")
	require.NoError(t, err)
	assert.Equal(t, "C-3", byString.String())

	byMap, err := e.repo.Get(ctx, e.si, map[string]any{"number": "B-2", "etalon": true})
	require.NoError(t, err)
	assert.Equal(t, uint(2), byMap.PrimaryKey())

	_, err = e.repo.Get(ctx, e.si, 99)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = e.repo.Get(ctx, e.si, "abc")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// several matches are not a single object
	res, err := e.repo.Lookup(ctx, e.si, map[string]any{"etalon": false})
	require.NoError(t, err)
	assert.Equal(t, repository.NotFound{Matches: 2}, res)

	_, err = e.repo.Get(ctx, e.si, map[string]any{"colour": "red"})
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = e.repo.Get(ctx, e.si, 1.5)
	assert.ErrorIs(t, err, types.ErrInvalidParam)
}

func TestMutations(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	rooms := e.repo.Registry().MustGet(models.RoomName)

	room := &models.Room{Named: models.Named{Name: "101"}}
	require.NoError(t, e.repo.Save(ctx, room))
	require.NotZero(t, room.ID)

	room.Name = "102"
	require.NoError(t, e.repo.Save(ctx, room))
	got, err := repository.As[*models.Room](e.repo.Get(ctx, rooms, room.ID))
	require.NoError(t, err)
	assert.Equal(t, "102", got.Name)

	exists, err := e.repo.Exists(ctx, rooms, query.Eq("room.name", "102"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, e.repo.Delete(ctx, rooms, room.ID))
	exists, err = e.repo.Exists(ctx, rooms, query.Eq("room.name", "102"))
	require.NoError(t, err)
	assert.False(t, exists)

	err = e.repo.Delete(ctx, rooms, room)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.True(t, repository.IsNotFound(err))

	assert.ErrorIs(t, e.repo.Update(ctx, &models.Room{}), types.ErrInvalidParam)

	// unique index violation rolls back and surfaces the driver error
	err = e.repo.Add(ctx, &models.Room{Named: models.Named{Name: e.fx.Room.Name}})
	assert.Error(t, err)
}

func TestAtomicRollback(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	rooms := e.repo.Registry().MustGet(models.RoomName)
	boom := errors.New("boom")

	err := e.repo.Atomic(ctx, func(tx *repository.Repository) error {
		if err := tx.Add(ctx, &models.Room{Named: models.Named{Name: "501"}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := e.repo.Exists(ctx, rooms, query.Eq("room.name", "501"))
	require.NoError(t, err)
	assert.False(t, exists)

	err = e.repo.Atomic(ctx, func(tx *repository.Repository) error {
		return tx.Add(ctx, &models.Room{Named: models.Named{Name: "502"}})
	})
	require.NoError(t, err)
	exists, err = e.repo.Exists(ctx, rooms, query.Eq("room.name", "502"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBulkInsertIfEmpty(t *testing.T) {
	repo := testutil.Repository(t)
	ctx := context.Background()
	places := repo.Registry().MustGet(models.PlaceName)

	rows := []*models.Place{{Named: models.Named{Name: "А"}}, {Named: models.Named{Name: "Б"}}}
	ok, err := repo.BulkInsertIfEmpty(ctx, places, rows)
	require.NoError(t, err)
	assert.True(t, ok)

	again := []*models.Place{{Named: models.Named{Name: "В"}}}
	ok, err = repo.BulkInsertIfEmpty(ctx, places, again)
	require.NoError(t, err)
	assert.False(t, ok)

	q, err := query.New(places)
	require.NoError(t, err)
	n, err := repo.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.BulkInsertIfEmpty(ctx, places, "nope")
	assert.ErrorIs(t, err, types.ErrInvalidParam)
}

func TestChoices(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	rooms := e.repo.Registry().MustGet(models.RoomName)
	require.NoError(t, e.repo.Add(ctx, &models.Room{Named: models.Named{Name: "082"}}))

	choices, err := e.repo.Choices(ctx, rooms)
	require.NoError(t, err)
	require.Len(t, choices, 2)
	assert.Equal(t, "082", choices[0].Label)
	assert.Equal(t, meta.Choice{Value: "1", Label: "283"}, choices[1])
}

func TestAsWrongType(t *testing.T) {
	_, err := repository.As[*models.Room](&models.Place{}, nil)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	boom := errors.New("boom")
	_, err = repository.As[*models.Room](nil, boom)
	assert.ErrorIs(t, err, boom)
}
