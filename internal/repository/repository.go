// repository.go
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

package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// Repository executes queries and mutations against the database.
// Every call opens its own session on the context; nothing is cached between calls.
type Repository struct {
	db       *gorm.DB
	registry *meta.Registry
	log      *zap.Logger
}

// New creates a repository over db
func New(db *gorm.DB, registry *meta.Registry, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{db: db, registry: registry, log: log.Named("repository")}
}

// DB exposes the underlying handle, scoped to the current transaction inside Atomic
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Registry returns the model registry the repository was built with
func (r *Repository) Registry() *meta.Registry {
	return r.registry
}

func (r *Repository) session(ctx context.Context, desc *meta.Descriptor) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(desc.New()).
		Clauses(hints.CommentBefore("select", "reestrsi:"+desc.Name))
}

// scoped applies joins and filters of q
func (r *Repository) scoped(ctx context.Context, q *query.Query) *gorm.DB {
	tx := r.session(ctx, q.Descriptor)
	for _, j := range q.Joins {
		tx = tx.Joins(j.Clause())
	}
	for _, f := range q.Filters {
		tx = tx.Where(f.SQL, f.Args...)
	}
	return tx
}

// LoadPlan is the eager-load plan of a model: single-segment to-one JoinedRelated paths load in the
// same statement through Joins, every other path through nested Preload.
type LoadPlan struct {
	Joins    []string
	Preloads []string
}

// Plan converts the eager-load paths of desc into GORM association paths
func Plan(desc *meta.Descriptor) (LoadPlan, error) {
	var plan LoadPlan
	seen := make(map[string]struct{})
	add := func(path string, joined bool) error {
		goPath, err := meta.RelationPath(desc.Bound(), path)
		if err != nil {
			return types.Configf("%s: eager-load %v", desc.Name, err)
		}
		if _, dup := seen[goPath]; dup {
			return nil
		}
		seen[goPath] = struct{}{}
		if joined {
			plan.Joins = append(plan.Joins, goPath)
		} else {
			plan.Preloads = append(plan.Preloads, goPath)
		}
		return nil
	}

	for _, path := range desc.JoinedRelated {
		if err := add(path, joinable(desc.Bound(), path)); err != nil {
			return LoadPlan{}, err
		}
	}
	for _, path := range desc.SelectRelated {
		if err := add(path, false); err != nil {
			return LoadPlan{}, err
		}
	}
	return plan, nil
}

func joinable(m *meta.Model, path string) bool {
	if len(meta.SplitPath(path)) != 1 {
		return false
	}
	rel, ok := m.Relation(path)
	return ok && !rel.Many()
}

func preload(tx *gorm.DB, desc *meta.Descriptor) (*gorm.DB, error) {
	plan, err := Plan(desc)
	if err != nil {
		return nil, err
	}
	for _, name := range plan.Joins {
		tx = tx.Joins(name)
	}
	for _, path := range plan.Preloads {
		tx = tx.Preload(path)
	}
	return tx, nil
}

func order(tx *gorm.DB, q *query.Query) *gorm.DB {
	for _, o := range q.Ordering {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column, Raw: true}, Desc: o.Desc})
	}
	return tx
}

func paginate(tx *gorm.DB, q *query.Query) *gorm.DB {
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx
}

// fansOut reports whether a join of q can repeat root rows
func fansOut(q *query.Query) bool {
	for _, j := range q.Joins {
		if j.Relation != nil && j.Relation.Many() {
			return true
		}
	}
	return false
}

// List returns the rows matching q with their eager-load plan hydrated, deduplicated by primary key
func (r *Repository) List(ctx context.Context, q *query.Query) ([]meta.Entity, error) {
	if fansOut(q) && (q.Limit > 0 || q.Offset > 0) {
		return r.listPage(ctx, q)
	}

	tx, err := preload(r.scoped(ctx, q), q.Descriptor)
	if err != nil {
		return nil, err
	}
	dest := q.Descriptor.NewSlice()
	if err := paginate(order(tx, q), q).Find(dest).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Descriptor.Name, err)
	}
	return dedupe(meta.Entities(dest)), nil
}

// listPage pages over the distinct root ids of q, then loads those rows in page order
func (r *Repository) listPage(ctx context.Context, q *query.Query) ([]meta.Entity, error) {
	ids, err := r.pageIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []meta.Entity{}, nil
	}

	pk := q.Column(q.Descriptor.Bound().PrimaryKey())
	tx, err := preload(r.session(ctx, q.Descriptor).Where(pk+" IN ?", ids), q.Descriptor)
	if err != nil {
		return nil, err
	}
	dest := q.Descriptor.NewSlice()
	if err := tx.Find(dest).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Descriptor.Name, err)
	}

	position := make(map[uint]int, len(ids))
	for i, id := range ids {
		position[id] = i
	}
	rows := dedupe(meta.Entities(dest))
	sort.SliceStable(rows, func(i, j int) bool {
		return position[rows[i].PrimaryKey()] < position[rows[j].PrimaryKey()]
	})
	return rows, nil
}

// pageIDs selects one page of distinct root ids. Ordering columns are selected too, as DISTINCT requires.
func (r *Repository) pageIDs(ctx context.Context, q *query.Query) ([]uint, error) {
	pk := q.Column(q.Descriptor.Bound().PrimaryKey())
	columns := []any{pk}
	selected := map[string]struct{}{pk: {}}
	for _, o := range q.Ordering {
		if _, ok := selected[o.Column]; !ok {
			selected[o.Column] = struct{}{}
			columns = append(columns, o.Column)
		}
	}

	rows, err := paginate(order(r.scoped(ctx, q.Unpaged()).Distinct(columns...), q), q).Rows()
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", q.Descriptor.Name, err)
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		dest := make([]any, len(columns))
		dest[0] = &id
		for i := 1; i < len(dest); i++ {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("page %s: %w", q.Descriptor.Name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("page %s: %w", q.Descriptor.Name, err)
	}
	return ids, nil
}

func dedupe(rows []meta.Entity) []meta.Entity {
	seen := make(map[uint]struct{}, len(rows))
	out := rows[:0]
	for _, e := range rows {
		if _, dup := seen[e.PrimaryKey()]; dup {
			continue
		}
		seen[e.PrimaryKey()] = struct{}{}
		out = append(out, e)
	}
	return out
}

// First returns the first row of q
func (r *Repository) First(ctx context.Context, q *query.Query) (meta.Entity, error) {
	limited := *q
	limited.Limit = 1
	rows, err := r.List(ctx, &limited)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, q.Descriptor.Name)
	}
	return rows[0], nil
}

// Count returns the number of distinct root rows matching q, ignoring ordering and pagination
func (r *Repository) Count(ctx context.Context, q *query.Query) (int64, error) {
	var n int64
	pk := q.Column(q.Descriptor.Bound().PrimaryKey())
	if err := r.scoped(ctx, q.Unpaged()).Distinct(pk).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Descriptor.Name, err)
	}
	return n, nil
}

// Exists reports whether any row of desc matches every predicate
func (r *Repository) Exists(ctx context.Context, desc *meta.Descriptor, preds ...query.Predicate) (bool, error) {
	tx := r.session(ctx, desc)
	for _, p := range preds {
		tx = tx.Where(p.SQL, p.Args...)
	}
	var n int64
	if err := tx.Limit(1).Count(&n).Error; err != nil {
		return false, fmt.Errorf("exists %s: %w", desc.Name, err)
	}
	return n > 0, nil
}

// Choices lists (id, label) pairs of desc in its default ordering, for relation selects
func (r *Repository) Choices(ctx context.Context, desc *meta.Descriptor) ([]meta.Choice, error) {
	q, err := query.New(desc)
	if err != nil {
		return nil, err
	}
	rows, err := r.List(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]meta.Choice, 0, len(rows))
	for _, e := range rows {
		out = append(out, meta.Choice{Value: fmt.Sprint(e.PrimaryKey()), Label: e.String()})
	}
	return out, nil
}

// As narrows an entity returned by the repository to its concrete type
func As[T meta.Entity](e meta.Entity, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", types.ErrConfiguration, e, zero)
	}
	return t, nil
}
