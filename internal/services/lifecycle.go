// lifecycle.go
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

// Package services implements the composite instrument and service record operations
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrOnService means the instrument already has an open service record
	ErrOnService = errors.New("instrument is already on service")
	// ErrNotOnService means the instrument has no open service record
	ErrNotOnService = errors.New("instrument is not on service")
)

// Lifecycle moves instruments in and out of metrological service.
// Every operation writes the instrument and its service record in one transaction.
type Lifecycle struct {
	repo  *repository.Repository
	files *files.Store
	log   *zap.Logger
}

// NewLifecycle creates the lifecycle service
func NewLifecycle(repo *repository.Repository, store *files.Store, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{repo: repo, files: store, log: log}
}

func (l *Lifecycle) descriptor(name string) *meta.Descriptor {
	return l.repo.Registry().MustGet(name)
}

// lockInstrument reads the instrument row for update inside tx
func lockInstrument(tx *gorm.DB, id uint) (*models.Instrument, error) {
	var inst models.Instrument
	err := tx.Session(&gorm.Session{Logger: tx.Logger.LogMode(logger.Silent)}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inst, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: si %d", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func statusName(tx *gorm.DB, id *uint) (*string, error) {
	if id == nil {
		return nil, nil
	}
	var status models.StatusService
	if err := tx.First(&status, *id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: statusservice %d", types.ErrNotFound, *id)
		}
		return nil, err
	}
	return &status.Name, nil
}

// CreateInstrument adds an instrument. With an initial record the instrument starts on service.
func (l *Lifecycle) CreateInstrument(ctx context.Context, inst *models.Instrument, initial *models.ServiceRecord) error {
	return l.repo.Atomic(ctx, func(tx *repository.Repository) error {
		if initial != nil {
			status, err := statusName(tx.DB(), initial.StatusServiceID)
			if err != nil {
				return err
			}
			inst.IsService = true
			inst.StatusService = status
		}
		if err := tx.Add(ctx, inst); err != nil {
			return err
		}
		if initial == nil {
			return nil
		}
		initial.SiID = inst.ID
		if initial.DateLastService == nil && inst.DateLastService != nil {
			last := *inst.DateLastService
			initial.DateLastService = &last
		}
		return tx.Add(ctx, initial)
	})
}

// SendToService opens a service record for the instrument. The record starts from the
// instrument's due date and the instrument takes the record's status.
func (l *Lifecycle) SendToService(ctx context.Context, instrumentID uint, rec *models.ServiceRecord) error {
	err := l.repo.Atomic(ctx, func(tx *repository.Repository) error {
		inst, err := lockInstrument(tx.DB(), instrumentID)
		if err != nil {
			return err
		}
		if inst.IsService {
			return fmt.Errorf("%w: %s", ErrOnService, inst)
		}
		status, err := statusName(tx.DB(), rec.StatusServiceID)
		if err != nil {
			return err
		}

		rec.SiID = inst.ID
		due := inst.DateNextService
		rec.DateLastService = &due
		if err := tx.Add(ctx, rec); err != nil {
			return err
		}

		inst.IsService = true
		inst.StatusService = status
		return tx.Update(ctx, inst)
	})
	if err != nil {
		return err
	}
	l.log.Info("instrument sent to service", zap.Uint("si", instrumentID), zap.Uint("service", rec.ID))
	return nil
}

// UpdateService saves an open record and copies its status name onto the instrument
func (l *Lifecycle) UpdateService(ctx context.Context, rec *models.ServiceRecord) error {
	return l.repo.Atomic(ctx, func(tx *repository.Repository) error {
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		status, err := statusName(tx.DB(), rec.StatusServiceID)
		if err != nil {
			return err
		}
		inst, err := lockInstrument(tx.DB(), rec.SiID)
		if err != nil {
			return err
		}
		inst.StatusService = status
		return tx.Update(ctx, inst)
	})
}

// FinalizeService closes the record and returns the instrument from service with the
// record's dates and certificate.
func (l *Lifecycle) FinalizeService(ctx context.Context, rec *models.ServiceRecord) error {
	if rec.IsOut {
		return fmt.Errorf("%w: service %d is closed", ErrNotOnService, rec.ID)
	}
	err := l.repo.Atomic(ctx, func(tx *repository.Repository) error {
		inst, err := lockInstrument(tx.DB(), rec.SiID)
		if err != nil {
			return err
		}

		rec.IsOut = true
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}

		inst.IsService = false
		inst.DateLastService = rec.DateLastService
		if rec.DateNextService != nil {
			inst.DateNextService = *rec.DateNextService
		}
		inst.Certificate = rec.Certificate
		inst.CertificateHash = rec.CertificateHash
		return tx.Update(ctx, inst)
	})
	if err != nil {
		rec.IsOut = false
		return err
	}
	l.log.Info("instrument returned from service", zap.Uint("si", rec.SiID), zap.Uint("service", rec.ID))
	return nil
}

// ActiveService returns the open record of an instrument, types.ErrNotFound when there is none
func (l *Lifecycle) ActiveService(ctx context.Context, instrumentID uint) (*models.ServiceRecord, error) {
	q, err := query.New(l.descriptor(models.ServiceRecordName), query.WithFilters(
		query.Eq("service.si_id", instrumentID),
		query.Eq("service.is_out", false),
	))
	if err != nil {
		return nil, err
	}
	return repository.As[*models.ServiceRecord](l.repo.First(ctx, q))
}

// History lists every record of an instrument, newest first
func (l *Lifecycle) History(ctx context.Context, instrumentID uint) ([]*models.ServiceRecord, error) {
	q, err := query.New(l.descriptor(models.ServiceRecordName), query.WithFilters(
		query.Eq("service.si_id", instrumentID),
	))
	if err != nil {
		return nil, err
	}
	rows, err := l.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ServiceRecord, 0, len(rows))
	for _, e := range rows {
		out = append(out, e.(*models.ServiceRecord))
	}
	return out, nil
}

// DeleteInstrument deletes the instrument with its service history, then every certificate
// they referenced. It returns the names of the removed files.
func (l *Lifecycle) DeleteInstrument(ctx context.Context, id uint) ([]string, error) {
	var certificates []string
	seen := map[string]bool{}
	collect := func(name *string) {
		if name != nil && *name != "" && !seen[*name] {
			seen[*name] = true
			certificates = append(certificates, *name)
		}
	}

	err := l.repo.Atomic(ctx, func(tx *repository.Repository) error {
		inst, err := lockInstrument(tx.DB(), id)
		if err != nil {
			return err
		}
		var history []models.ServiceRecord
		if err := tx.DB().Where("si_id = ?", id).Order("id").Find(&history).Error; err != nil {
			return err
		}
		for i := range history {
			collect(history[i].Certificate)
		}
		collect(inst.Certificate)

		if err := tx.DB().Where("si_id = ?", id).Delete(&models.ServiceRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(ctx, l.descriptor(models.InstrumentName), inst)
	})
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range certificates {
		ok, err := l.files.Remove(models.CertificateUpload, name)
		if err != nil {
			l.log.Warn("failed to remove certificate", zap.String("file", name), zap.Error(err))
			continue
		}
		if ok {
			removed = append(removed, name)
		}
	}
	l.log.Info("instrument deleted", zap.Uint("si", id), zap.Strings("files", removed))
	return removed, nil
}
