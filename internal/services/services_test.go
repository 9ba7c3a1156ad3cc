package services_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/localnerve/reestrsi/internal/config"
	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/services"
	"github.com/localnerve/reestrsi/internal/testutil"
	"github.com/localnerve/reestrsi/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type env struct {
	cfg   *config.Config
	db    *gorm.DB
	fx    *testutil.Fixtures
	store *files.Store
	lc    *services.Lifecycle
}

func setup(t *testing.T) *env {
	t.Helper()
	cfg := testutil.Config(t)
	db := testutil.OpenDB(t)
	store := files.NewStore(cfg.UploadFolder, cfg.AllowedExtensions, nil)
	repo := repository.New(db, testutil.Registry(t), zap.NewNop())
	return &env{
		cfg:   cfg,
		db:    db,
		fx:    testutil.SeedFixtures(t, db),
		store: store,
		lc:    services.NewLifecycle(repo, store, zap.NewNop()),
	}
}

func due() time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
}

func (e *env) reload(t *testing.T, inst *models.Instrument) *models.Instrument {
	t.Helper()
	var out models.Instrument
	require.NoError(t, e.db.First(&out, inst.ID).Error)
	return &out
}

func (e *env) reloadRecord(t *testing.T, rec *models.ServiceRecord) *models.ServiceRecord {
	t.Helper()
	var out models.ServiceRecord
	require.NoError(t, e.db.First(&out, rec.ID).Error)
	return &out
}

func strPtr(s string) *string { return &s }

func TestCreateInstrument(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	plain := e.fx.Instrument("A-1", due())
	require.NoError(t, e.lc.CreateInstrument(ctx, plain, nil))
	assert.NotZero(t, plain.ID)
	assert.False(t, e.reload(t, plain).IsService)

	inst := e.fx.Instrument("A-2", due())
	initial := &models.ServiceRecord{DateInService: models.Date(2025, 1, 10), StatusServiceID: &e.fx.StatusService.ID}
	require.NoError(t, e.lc.CreateInstrument(ctx, inst, initial))

	stored := e.reload(t, inst)
	assert.True(t, stored.IsService)
	require.NotNil(t, stored.StatusService)
	assert.Equal(t, "На обслуживании", *stored.StatusService)
	assert.Equal(t, inst.ID, e.reloadRecord(t, initial).SiID)

	// a failing record leaves no instrument behind
	bad := e.fx.Instrument("A-3", due())
	missing := uint(999)
	err := e.lc.CreateInstrument(ctx, bad, &models.ServiceRecord{DateInService: models.Date(2025, 1, 10), StatusServiceID: &missing})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	var n int64
	require.NoError(t, e.db.Model(&models.Instrument{}).Where("number = ?", "A-3").Count(&n).Error)
	assert.Zero(t, n)
}

func TestSendToService(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	inst := e.fx.CreateInstrument(t, e.db, "A-1", due())

	rec := &models.ServiceRecord{DateInService: models.Date(2025, 2, 20), StatusServiceID: &e.fx.StatusService.ID}
	require.NoError(t, e.lc.SendToService(ctx, inst.ID, rec))

	stored := e.reloadRecord(t, rec)
	assert.Equal(t, inst.ID, stored.SiID)
	require.NotNil(t, stored.DateLastService)
	assert.Equal(t, due(), time.Time(*stored.DateLastService).UTC())

	si := e.reload(t, inst)
	assert.True(t, si.IsService)
	assert.Equal(t, "На обслуживании", *si.StatusService)

	active, err := e.lc.ActiveService(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, active.ID)

	err = e.lc.SendToService(ctx, inst.ID, &models.ServiceRecord{DateInService: models.Date(2025, 2, 21)})
	assert.ErrorIs(t, err, services.ErrOnService)

	err = e.lc.SendToService(ctx, 999, &models.ServiceRecord{DateInService: models.Date(2025, 2, 21)})
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestUpdateService(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	inst := e.fx.CreateInstrument(t, e.db, "A-1", due())
	rec := &models.ServiceRecord{DateInService: models.Date(2025, 2, 20)}
	require.NoError(t, e.lc.SendToService(ctx, inst.ID, rec))
	assert.Nil(t, e.reload(t, inst).StatusService)

	ready := &models.StatusService{Named: models.Named{Name: "Готово"}}
	require.NoError(t, e.db.Create(ready).Error)
	rec.StatusServiceID = &ready.ID
	rec.IsReady = true
	require.NoError(t, e.lc.UpdateService(ctx, rec))

	assert.True(t, e.reloadRecord(t, rec).IsReady)
	si := e.reload(t, inst)
	require.NotNil(t, si.StatusService)
	assert.Equal(t, "Готово", *si.StatusService)
	assert.True(t, si.IsService)
}

func TestFinalizeService(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	inst := e.fx.CreateInstrument(t, e.db, "A-1", due())
	rec := &models.ServiceRecord{DateInService: models.Date(2025, 2, 20)}
	require.NoError(t, e.lc.SendToService(ctx, inst.ID, rec))

	next := models.Date(2026, 3, 1)
	rec.DateNextService = &next
	rec.Certificate = strPtr("cert.pdf")
	rec.CertificateHash = strPtr("abc")
	require.NoError(t, e.lc.FinalizeService(ctx, rec))

	assert.True(t, e.reloadRecord(t, rec).IsOut)
	si := e.reload(t, inst)
	assert.False(t, si.IsService)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Time(si.DateNextService).UTC())
	require.NotNil(t, si.DateLastService)
	assert.Equal(t, due(), time.Time(*si.DateLastService).UTC())
	require.NotNil(t, si.Certificate)
	assert.Equal(t, "cert.pdf", *si.Certificate)

	_, err := e.lc.ActiveService(ctx, inst.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	assert.ErrorIs(t, e.lc.FinalizeService(ctx, rec), services.ErrNotOnService)
}

func TestFinalizeServiceIsAtomic(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	inst := e.fx.CreateInstrument(t, e.db, "A-1", due())
	rec := &models.ServiceRecord{DateInService: models.Date(2025, 2, 20)}
	require.NoError(t, e.lc.SendToService(ctx, inst.ID, rec))

	// fail the instrument write, after the record write
	boom := errors.New("disk full")
	require.NoError(t, e.db.Callback().Update().Before("gorm:update").Register("test:fail_si", func(tx *gorm.DB) {
		if tx.Statement.Table == "si" {
			_ = tx.AddError(boom)
		}
	}))

	next := models.Date(2026, 3, 1)
	rec.DateNextService = &next
	err := e.lc.FinalizeService(ctx, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, rec.IsOut)

	stored := e.reloadRecord(t, rec)
	assert.False(t, stored.IsOut)
	assert.Nil(t, stored.DateNextService)
	si := e.reload(t, inst)
	assert.True(t, si.IsService)
	assert.Equal(t, due(), time.Time(si.DateNextService).UTC())
}

func TestHistory(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	inst := e.fx.CreateInstrument(t, e.db, "A-1", due())
	other := e.fx.CreateInstrument(t, e.db, "B-1", due())
	for i, d := range []int{2022, 2024, 2023} {
		rec := &models.ServiceRecord{SiID: inst.ID, DateInService: models.Date(d, 1, 1), IsOut: true}
		require.NoError(t, e.db.Create(rec).Error, i)
	}
	require.NoError(t, e.db.Create(&models.ServiceRecord{SiID: other.ID, DateInService: models.Date(2025, 1, 1)}).Error)

	history, err := e.lc.History(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	var years []int
	for _, rec := range history {
		years = append(years, time.Time(rec.DateInService).Year())
	}
	assert.Equal(t, []int{2024, 2023, 2022}, years)
}

func TestDeleteInstrument(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	inst := e.fx.CreateInstrument(t, e.db, "A-1", due())

	var names []string
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("cert-%d.pdf", i)
		_, err := e.store.Save(models.CertificateUpload, name, strings.NewReader(name))
		require.NoError(t, err)
		rec := &models.ServiceRecord{SiID: inst.ID, DateInService: models.Date(2020+i, 1, 1), Certificate: strPtr(name), IsOut: true}
		require.NoError(t, e.db.Create(rec).Error)
		names = append(names, name)
	}
	// the instrument carries the certificate of its last service
	inst.Certificate = strPtr("cert-3.pdf")
	require.NoError(t, e.db.Save(inst).Error)

	removed, err := e.lc.DeleteInstrument(ctx, inst.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, names, removed)
	for _, name := range names {
		assert.False(t, e.store.Exists(models.CertificateUpload, name), name)
	}

	var n int64
	require.NoError(t, e.db.Model(&models.ServiceRecord{}).Where("si_id = ?", inst.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, e.db.Model(&models.Instrument{}).Where("id = ?", inst.ID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = e.lc.DeleteInstrument(ctx, inst.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestHealthCheck(t *testing.T) {
	e := setup(t)

	res := services.HealthCheck(e.cfg, e.db, nil)
	assert.False(t, res.Healthy())
	assert.Equal(t, "ok", res.Database)
	assert.Equal(t, "unreachable", res.Uploads)

	require.NoError(t, os.MkdirAll(e.cfg.UploadFolder, 0o755))
	res = services.HealthCheck(e.cfg, e.db, nil)
	assert.True(t, res.Healthy(), res.ErrorMessage)
	assert.Equal(t, "sqlite-purego", res.Details["database_type"])

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	e.cfg.UploadFolder = file
	res = services.HealthCheck(e.cfg, e.db, nil)
	assert.Equal(t, "error", res.Uploads)
	assert.Contains(t, res.ErrorMessage, "is not a directory")
}
