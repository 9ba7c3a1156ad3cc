package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result is the outcome of a lookup: Found or NotFound
type Result interface {
	result()
}

// Found carries the single matching row
type Found struct {
	Entity meta.Entity
}

// NotFound reports zero or several matching rows
type NotFound struct {
	Matches int
}

func (Found) result()    {}
func (NotFound) result() {}

// Lookup finds exactly one row of desc. id is an integer, a numeric string or a column → value map.
// The error return is reserved for configuration and database failures.
func (r *Repository) Lookup(ctx context.Context, desc *meta.Descriptor, id any) (Result, error) {
	tx, err := preload(r.session(ctx, desc), desc)
	if err != nil {
		return nil, err
	}

	table := desc.Table()
	pk := clause.Column{Table: table, Name: desc.Bound().PrimaryKey()}
	switch v := id.(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return NotFound{}, nil
		}
		tx = tx.Where(clause.Eq{Column: pk, Value: n})
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			f, ok := desc.Field(name)
			if !ok {
				return nil, types.Configf("%s: lookup on unknown column %q", desc.Name, name)
			}
			tx = tx.Where(clause.Eq{Column: clause.Column{Table: table, Name: f.Name}, Value: v[name]})
		}
	default:
		rv := reflect.ValueOf(id)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			tx = tx.Where(clause.Eq{Column: pk, Value: id})
		default:
			return nil, types.InvalidParamf("%s: unsupported identifier %T", desc.Name, id)
		}
	}

	dest := desc.NewSlice()
	if err := tx.Limit(2).Find(dest).Error; err != nil {
		return nil, fmt.Errorf("get %s: %w", desc.Name, err)
	}
	rows := meta.Entities(dest)
	if len(rows) != 1 {
		return NotFound{Matches: len(rows)}, nil
	}
	return Found{Entity: rows[0]}, nil
}

// Get is Lookup with NotFound mapped to types.ErrNotFound
func (r *Repository) Get(ctx context.Context, desc *meta.Descriptor, id any) (meta.Entity, error) {
	res, err := r.Lookup(ctx, desc, id)
	if err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case Found:
		return v.Entity, nil
	case NotFound:
		return nil, fmt.Errorf("%w: %s %v (%d matches)", types.ErrNotFound, desc.Name, id, v.Matches)
	}
	return nil, fmt.Errorf("%w: %s %v", types.ErrNotFound, desc.Name, id)
}

// Add inserts e in its own transaction. Associations are not written.
func (r *Repository) Add(ctx context.Context, e meta.Entity) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(e).Error
	})
	if err != nil {
		return fmt.Errorf("add %T: %w", e, err)
	}
	r.log.Debug("added", zap.String("entity", fmt.Sprintf("%T", e)), zap.Uint("id", e.PrimaryKey()))
	return nil
}

// Update writes every column of e in its own transaction. Associations are not written.
func (r *Repository) Update(ctx context.Context, e meta.Entity) error {
	if e.PrimaryKey() == 0 {
		return types.InvalidParamf("update %T without primary key", e)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Save(e).Error
	})
	if err != nil {
		return fmt.Errorf("update %T: %w", e, err)
	}
	r.log.Debug("updated", zap.String("entity", fmt.Sprintf("%T", e)), zap.Uint("id", e.PrimaryKey()))
	return nil
}

// Save adds e when it has no primary key yet, otherwise updates it
func (r *Repository) Save(ctx context.Context, e meta.Entity) error {
	if e.PrimaryKey() == 0 {
		return r.Add(ctx, e)
	}
	return r.Update(ctx, e)
}

// Delete removes an entity, or the row of desc with the given id, in its own transaction
func (r *Repository) Delete(ctx context.Context, desc *meta.Descriptor, entityOrID any) error {
	var target meta.Entity
	switch v := entityOrID.(type) {
	case meta.Entity:
		target = v
	default:
		res, err := r.Lookup(ctx, desc, entityOrID)
		if err != nil {
			return err
		}
		found, ok := res.(Found)
		if !ok {
			return fmt.Errorf("%w: %s %v", types.ErrNotFound, desc.Name, entityOrID)
		}
		target = found.Entity
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(target)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s %d", types.ErrNotFound, desc.Name, target.PrimaryKey())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", desc.Name, err)
	}
	r.log.Debug("deleted", zap.String("model", desc.Name), zap.Uint("id", target.PrimaryKey()))
	return nil
}

// Atomic runs fn with a repository bound to one transaction. Any error rolls everything back.
// Single mutations inside fn become savepoints of the outer transaction.
func (r *Repository) Atomic(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, registry: r.registry, log: r.log})
	})
}

// BulkInsertIfEmpty inserts rows (a slice of models) only when the table of desc has no rows.
// It reports whether anything was inserted.
func (r *Repository) BulkInsertIfEmpty(ctx context.Context, desc *meta.Descriptor, rows any) (bool, error) {
	rv := reflect.Indirect(reflect.ValueOf(rows))
	if rv.Kind() != reflect.Slice {
		return false, types.InvalidParamf("bulk insert into %s expects a slice, got %T", desc.Name, rows)
	}
	if rv.Len() == 0 {
		return false, nil
	}

	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(desc.New()).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := tx.Omit(clause.Associations).Create(rows).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed %s: %w", desc.Name, err)
	}
	if inserted {
		r.log.Info("seeded", zap.String("model", desc.Name), zap.Int("rows", rv.Len()))
	}
	return inserted, nil
}

// IsNotFound reports whether err means a lookup matched nothing
func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
