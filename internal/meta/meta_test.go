package meta_test

import (
	"context"
	"testing"
	"time"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *meta.Registry {
	t.Helper()
	reg, err := models.NewRegistry()
	require.NoError(t, err)
	return reg
}

func TestRegistryLookup(t *testing.T) {
	reg := newRegistry(t)

	d, ok := reg.Get("SI")
	require.True(t, ok)
	assert.Equal(t, "si", d.Table())
	assert.Equal(t, "Средство измерения", d.TitleChange())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
	assert.Panics(t, func() { reg.MustGet("missing") })

	names := reg.Names()
	assert.Equal(t, models.GroupSiName, names[0])
	assert.Contains(t, names, models.UserProfileName)
}

func TestRegisterTwice(t *testing.T) {
	reg := meta.NewRegistry()
	require.NoError(t, reg.Register(&meta.Descriptor{Name: "room", Model: &models.Room{}, FieldsDisplay: []string{"name"}}))
	err := reg.Register(&meta.Descriptor{Name: "Room", Model: &models.Room{}})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		desc *meta.Descriptor
	}{
		{"unknown display field", &meta.Descriptor{Name: "a", Model: &models.Room{}, FieldsDisplay: []string{"nope"}}},
		{"search on int column", &meta.Descriptor{Name: "b", Model: &models.ServiceInterval{}, FieldsSearch: []string{"name"}}},
		{"search through missing relation", &meta.Descriptor{Name: "c", Model: &models.Employee{}, FieldsSearch: []string{"depot.name"}}},
		{"eager load of a column", &meta.Descriptor{Name: "d", Model: &models.Employee{}, SelectRelated: []string{"email"}}},
		{"eager load with bad segment", &meta.Descriptor{Name: "e", Model: &models.Instrument{}, JoinedRelated: []string{"employee.depot"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := meta.NewRegistry().Register(tt.desc)
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}
}

func TestSchemaBinding(t *testing.T) {
	reg := newRegistry(t)
	d := reg.MustGet(models.InstrumentName)

	f, ok := d.Field("date_next_service")
	require.True(t, ok)
	assert.Equal(t, meta.KindDate, f.Kind)
	assert.False(t, f.Nullable)
	assert.Equal(t, "Дата следующего обслуживания", f.Label)

	f, ok = d.Field("certificate")
	require.True(t, ok)
	assert.Equal(t, meta.KindFile, f.Kind)
	assert.Equal(t, models.CertificateUpload, f.Upload)

	f, ok = d.Field("etalon")
	require.True(t, ok)
	assert.Equal(t, meta.KindBool, f.Kind)

	f, ok = d.Field("YearProduction")
	require.True(t, ok)
	assert.Equal(t, "year_production", f.Name)
	assert.True(t, f.Nullable)

	rel, ok := d.Relation("room_delivery")
	require.True(t, ok)
	assert.Equal(t, meta.BelongsTo, rel.Kind)
	assert.Equal(t, "room", rel.Target.Table)
	assert.Equal(t, []meta.JoinRef{{From: "room_delivery_id", To: "id"}}, rel.Refs)

	rel, ok = d.Relation("services")
	require.True(t, ok)
	assert.True(t, rel.Many())
	assert.Equal(t, []meta.JoinRef{{From: "id", To: "si_id"}}, rel.Refs)
}

func TestResolvePath(t *testing.T) {
	reg := newRegistry(t)
	m := reg.MustGet(models.InstrumentName).Bound()

	target, err := meta.ResolvePath(m, "employee__division__name")
	require.NoError(t, err)
	require.Len(t, target.Relations, 2)
	assert.Equal(t, "division", target.Model.Table)
	require.NotNil(t, target.Field)
	assert.Equal(t, "name", target.Field.Name)

	target, err = meta.ResolvePath(m, "employee.division")
	require.NoError(t, err)
	assert.NotNil(t, target.Relation)
	assert.Len(t, target.Relations, 1)

	_, err = meta.ResolvePath(m, "number.name")
	assert.Error(t, err)

	path, err := meta.RelationPath(m, "employee.division")
	require.NoError(t, err)
	assert.Equal(t, "Employee.Division", path)
}

func TestFieldValueRoundTrip(t *testing.T) {
	reg := newRegistry(t)
	d := reg.MustGet(models.InstrumentName)
	inst := &models.Instrument{}

	year, _ := d.Field("year_production")
	assert.Nil(t, year.Value(inst))
	require.NoError(t, year.SetValue(inst, int64(2019)))
	assert.Equal(t, int64(2019), year.Value(inst))
	require.NoError(t, year.SetValue(inst, nil))
	assert.Nil(t, inst.YearProduction)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	next, _ := d.Field("date_next_service")
	require.NoError(t, next.SetValue(inst, day))
	assert.Equal(t, day, next.Value(inst))

	group, _ := d.Field("group_si_id")
	require.NoError(t, group.SetValue(inst, int64(4)))
	assert.Equal(t, uint64(4), group.Value(inst))
	assert.Error(t, group.SetValue(inst, int64(-1)))
	assert.Error(t, group.SetValue(inst, "x"))

	rel, _ := d.Relation("group_si")
	assert.Nil(t, rel.Value(inst))
	inst.GroupSi = &models.GroupSi{Named: models.Named{Name: "Давление"}}
	assert.NotNil(t, rel.Value(inst))
	rel.Clear(inst)
	assert.Nil(t, inst.GroupSi)
}

func TestLinks(t *testing.T) {
	first := meta.Links{}
	assert.True(t, first.Linked(true, "number"))
	assert.False(t, first.Linked(false, "number"))

	none := meta.Links{Mode: meta.LinkNone}
	assert.False(t, none.Linked(true, "number"))

	named := meta.Links{Mode: meta.LinkFields, Fields: []string{"number"}}
	assert.True(t, named.Linked(false, "number"))
	assert.False(t, named.Linked(true, "group_si"))
}

func TestGroupsSortedByPlural(t *testing.T) {
	reg := newRegistry(t)
	groups := reg.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, models.GroupDatasource, groups[0].Label)
	// "Виды ..." sorts before "Группы СИ"
	assert.Equal(t, models.ServiceTypeName, groups[0].Models[0])

	err := reg.AddGroup(meta.Group{Label: "x", Models: []string{"unknown"}})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestRequestContext(t *testing.T) {
	assert.Nil(t, meta.FromContext(context.Background()))
	assert.False(t, meta.IsViewOnly(context.Background()))

	req := &meta.Request{ViewOnly: true}
	ctx := meta.WithRequest(context.Background(), req)
	assert.Same(t, req, meta.FromContext(ctx))
	assert.True(t, meta.IsViewOnly(ctx))
}

func TestNewSlice(t *testing.T) {
	reg := newRegistry(t)
	d := reg.MustGet(models.RoomName)
	slice := d.NewSlice()
	rooms, ok := slice.(*[]*models.Room)
	require.True(t, ok)
	*rooms = append(*rooms, &models.Room{Named: models.Named{Name: "101"}})
	entities := meta.Entities(slice)
	require.Len(t, entities, 1)
	assert.Equal(t, "101", entities[0].String())
	assert.IsType(t, &models.Room{}, d.New())
}
