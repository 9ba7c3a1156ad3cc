// testutil.go
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

// Package testutil sets up throwaway databases and fixtures for package tests
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/reestrsi/internal/config"
	"github.com/localnerve/reestrsi/internal/database"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config returns a configuration pointing at a temporary sqlite file and upload folder
func Config(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:              "3000",
		SiteName:          "Средства измерения",
		DBType:            "sqlite-purego",
		DBDatabase:        filepath.Join(dir, "test.db"),
		DBConnectionLimit: 1,
		SecretKey:         "test-secret",
		UploadFolder:      filepath.Join(dir, "uploads"),
		AllowedExtensions: []string{"pdf", "jpg", "jpeg", "png"},
		PageSize:          20,
		LogLevel:          "error",
		LogFormat:         "console",
	}
}

// OpenDB opens a migrated pure-Go sqlite database in a temp directory.
// A file is used instead of :memory: so every pooled connection sees the same data.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), 1, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// Registry returns the application model registry
func Registry(t *testing.T) *meta.Registry {
	t.Helper()
	reg, err := models.NewRegistry()
	require.NoError(t, err)
	return reg
}

// Repository returns a repository over a fresh database
func Repository(t *testing.T) *repository.Repository {
	t.Helper()
	return repository.New(OpenDB(t), Registry(t), zap.NewNop())
}

// Fixtures holds one row of every reference table
type Fixtures struct {
	GroupSi         *models.GroupSi
	NameSi          *models.NameSi
	TypeSi          *models.TypeSi
	ServiceType     *models.ServiceType
	ServiceInterval *models.ServiceInterval
	Place           *models.Place
	Room            *models.Room
	Division        *models.Division
	StatusService   *models.StatusService
	Employee        *models.Employee
}

func named(name string) models.Named {
	return models.Named{Name: name}
}

func strPtr(s string) *string { return &s }

// SeedFixtures creates one row in every reference table
func SeedFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	t.Helper()
	f := &Fixtures{
		GroupSi:         &models.GroupSi{Named: named("Измерения давления")},
		NameSi:          &models.NameSi{Named: named("Манометр")},
		TypeSi:          &models.TypeSi{Named: named("МП-100")},
		ServiceType:     &models.ServiceType{Named: named("Поверка")},
		ServiceInterval: &models.ServiceInterval{Name: 12},
		Place:           &models.Place{Named: named("Собственная база")},
		Room:            &models.Room{Named: named("283")},
		Division:        &models.Division{Named: named("Лаборатория")},
		StatusService:   &models.StatusService{Named: named("На обслуживании")},
	}
	for _, row := range []any{f.GroupSi, f.NameSi, f.TypeSi, f.ServiceType, f.ServiceInterval, f.Place, f.Room, f.Division, f.StatusService} {
		require.NoError(t, db.Create(row).Error)
	}

	f.Employee = &models.Employee{
		LastName:   strPtr("иванов"),
		FirstName:  "иван",
		MiddleName: strPtr("иванович"),
		Email:      strPtr("ivanov@example.com"),
		DivisionID: f.Division.ID,
	}
	require.NoError(t, db.Create(f.Employee).Error)
	return f
}

// Instrument builds an unsaved instrument wired to the fixtures
func (f *Fixtures) Instrument(number string, next time.Time) *models.Instrument {
	return &models.Instrument{
		GroupSiID:         f.GroupSi.ID,
		NameSiID:          f.NameSi.ID,
		TypeSiID:          f.TypeSi.ID,
		Number:            number,
		ServiceTypeID:     f.ServiceType.ID,
		ServiceIntervalID: f.ServiceInterval.ID,
		RoomDeliveryID:    f.Room.ID,
		EmployeeID:        f.Employee.ID,
		DateNextService:   models.Date(next.Year(), next.Month(), next.Day()),
	}
}

// CreateInstrument saves an instrument wired to the fixtures
func (f *Fixtures) CreateInstrument(t *testing.T, db *gorm.DB, number string, next time.Time) *models.Instrument {
	t.Helper()
	inst := f.Instrument(number, next)
	require.NoError(t, db.WithContext(context.Background()).Create(inst).Error)
	return inst
}
