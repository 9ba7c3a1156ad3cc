// query.go
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

package query

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/types"
)

// Predicate is one SQL condition with its bind arguments. Predicates are compared by value.
type Predicate struct {
	SQL  string
	Args []any
}

// Key identifies the predicate for deduplication
func (p Predicate) Key() string {
	return p.SQL + "|" + fmt.Sprint(p.Args...)
}

// Eq builds column = value
func Eq(column string, value any) Predicate {
	return Predicate{SQL: column + " = ?", Args: []any{value}}
}

// IsNull builds column IS NULL
func IsNull(column string) Predicate {
	return Predicate{SQL: column + " IS NULL"}
}

// Join is a LEFT JOIN registered for a relation path
type Join struct {
	Path     string // dotted relation path from the root model
	Alias    string
	Table    string
	On       string
	Relation *meta.Relation
}

// Clause renders the join for gorm's Joins
func (j Join) Clause() string {
	return fmt.Sprintf("LEFT JOIN %s %s ON %s", j.Table, j.Alias, j.On)
}

// Order is one sort key
type Order struct {
	Column string // qualified column
	Desc   bool
}

// Query is a composable retrieval specification for one model.
// Filters are ANDed; joins are unique by path and kept in registration order.
type Query struct {
	Descriptor *meta.Descriptor
	Filters    []Predicate
	Joins      []Join
	Ordering   []Order
	Limit      int // 0 means no limit
	Offset     int

	fieldsFilter []string
	fieldsSearch []string
	params       url.Values
	ordering     []string
	orderingSet  bool
	joinPaths    []string
	seen         map[string]struct{}
}

// Option configures a Query
type Option func(*Query)

// WithParams applies request parameters: search and filters
func WithParams(params url.Values) Option {
	return func(q *Query) { q.params = params }
}

// WithFilters adds predicates
func WithFilters(filters ...Predicate) Option {
	return func(q *Query) {
		for _, f := range filters {
			q.addFilter(f)
		}
	}
}

// WithJoins registers relation paths to join
func WithJoins(paths ...string) Option {
	return func(q *Query) { q.joinPaths = append(q.joinPaths, paths...) }
}

// WithOrdering overrides the descriptor ordering
func WithOrdering(ordering ...string) Option {
	return func(q *Query) {
		q.ordering = ordering
		q.orderingSet = true
	}
}

// WithFieldsFilter overrides the declared filter fields
func WithFieldsFilter(fields []string) Option {
	return func(q *Query) { q.fieldsFilter = fields }
}

// WithFieldsSearch overrides the declared search fields
func WithFieldsSearch(fields []string) Option {
	return func(q *Query) { q.fieldsSearch = fields }
}

// WithLimit sets the page size
func WithLimit(n int) Option {
	return func(q *Query) { q.Limit = n }
}

// WithOffset sets the number of rows to skip
func WithOffset(n int) Option {
	return func(q *Query) { q.Offset = n }
}

// New builds a query for the described model
func New(desc *meta.Descriptor, opts ...Option) (*Query, error) {
	if desc == nil || desc.Bound() == nil {
		return nil, types.Configf("query on an unregistered model")
	}

	q := &Query{
		Descriptor:   desc,
		fieldsFilter: desc.FieldsFilter,
		fieldsSearch: desc.FieldsSearch,
		seen:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	if !q.orderingSet {
		q.ordering = desc.Ordering
	}
	q.applyOrdering()

	for _, path := range q.joinPaths {
		if _, err := q.resolve(path); err != nil {
			return nil, err
		}
	}

	if q.params != nil {
		if err := q.applyParams(q.params); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Table is the root alias used to qualify columns
func (q *Query) Table() string {
	return q.Descriptor.Table()
}

// Column qualifies a root column name
func (q *Query) Column(name string) string {
	return q.Table() + "." + name
}

func (q *Query) addFilter(p Predicate) {
	if q.seen == nil {
		q.seen = make(map[string]struct{})
	}
	key := p.Key()
	if _, dup := q.seen[key]; dup {
		return
	}
	q.seen[key] = struct{}{}
	q.Filters = append(q.Filters, p)
}

func (q *Query) addJoin(j Join) {
	for _, existing := range q.Joins {
		if existing.Path == j.Path {
			return
		}
	}
	q.Joins = append(q.Joins, j)
}

func (q *Query) applyOrdering() {
	m := q.Descriptor.Bound()
	for _, token := range q.ordering {
		desc := strings.HasPrefix(token, "-")
		name := strings.TrimPrefix(token, "-")
		f, ok := m.Field(name)
		if !ok {
			continue
		}
		q.Ordering = append(q.Ordering, Order{Column: q.Column(f.Name), Desc: desc})
	}
}

// resolved is a path walked from the root with its joins registered
type resolved struct {
	target *meta.PathTarget
	alias  string // alias of the model owning the final segment
}

// resolve walks path, registering a join for every traversed relation
func (q *Query) resolve(path string) (*resolved, error) {
	target, err := meta.ResolvePath(q.Descriptor.Bound(), path)
	if err != nil {
		return nil, types.Configf("%s: %v", q.Descriptor.Name, err)
	}

	alias := q.Table()
	segments := make([]string, 0, len(target.Relations)+1)
	for _, rel := range target.Relations {
		segments = append(segments, rel.Name)
		alias = q.join(alias, segments, rel)
	}
	// a path that ends on a relation joins it as well
	if target.Relation != nil {
		q.join(alias, append(segments, target.Relation.Name), target.Relation)
	}
	return &resolved{target: target, alias: alias}, nil
}

func (q *Query) join(parentAlias string, segments []string, rel *meta.Relation) string {
	path := strings.Join(segments, ".")
	alias := "j_" + strings.Join(segments, "__")

	conds := make([]string, 0, len(rel.Refs))
	for _, ref := range rel.Refs {
		conds = append(conds, fmt.Sprintf("%s.%s = %s.%s", parentAlias, ref.From, alias, ref.To))
	}
	q.addJoin(Join{
		Path:     path,
		Alias:    alias,
		Table:    rel.Target.Table,
		On:       strings.Join(conds, " AND "),
		Relation: rel,
	})
	return alias
}

// Combine merges two queries of the same model: filters and joins are unioned without duplicates,
// ordering and pagination come from a.
func Combine(a, b *Query) (*Query, error) {
	if a.Table() != b.Table() {
		return nil, types.Configf("cannot combine queries on %s and %s", a.Table(), b.Table())
	}

	out := &Query{
		Descriptor:   a.Descriptor,
		Ordering:     append([]Order(nil), a.Ordering...),
		Limit:        a.Limit,
		Offset:       a.Offset,
		fieldsFilter: a.fieldsFilter,
		fieldsSearch: a.fieldsSearch,
		seen:         make(map[string]struct{}),
	}
	for _, src := range []*Query{a, b} {
		for _, f := range src.Filters {
			out.addFilter(f)
		}
		for _, j := range src.Joins {
			out.addJoin(j)
		}
	}
	return out, nil
}

// Unpaged copies the query without ordering, limit and offset, for counting
func (q *Query) Unpaged() *Query {
	out := *q
	out.Ordering = nil
	out.Limit = 0
	out.Offset = 0
	return &out
}
