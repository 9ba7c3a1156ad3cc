// model.go
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

package meta

import (
	"reflect"
	"strings"

	"gorm.io/gorm/schema"
)

// FieldKind classifies a persisted column for display, filtering and form binding
type FieldKind int

const (
	KindOther FieldKind = iota
	KindString
	KindInt
	KindBool
	KindDate
	KindFile
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindFile:
		return "file"
	}
	return "other"
}

// Field describes one persisted column of a model
type Field struct {
	Name     string // column name, e.g. date_next_service
	GoName   string
	Kind     FieldKind
	Nullable bool
	Unique   bool
	Label    string // from the `label` struct tag
	Upload   string // upload subdirectory, from the `upload` struct tag
	Schema   *schema.Field
}

// RelationKind mirrors the GORM relationship types the engine understands
type RelationKind int

const (
	BelongsTo RelationKind = iota
	HasOne
	HasMany
	ManyToMany
)

// JoinRef is one column pair of a join: parent.From = related.To
type JoinRef struct {
	From string
	To   string
}

// Relation describes an association of a model
type Relation struct {
	Name   string // snake case, e.g. group_si
	GoName string // e.g. GroupSi, used for Preload paths
	Kind   RelationKind
	Label  string
	Target *Model
	Refs   []JoinRef
	Schema *schema.Relationship
}

// Many reports whether the relation can produce more than one related row
func (r *Relation) Many() bool {
	return r.Kind == HasMany || r.Kind == ManyToMany
}

// Model is the schema level view of a persistent entity type
type Model struct {
	Type      reflect.Type // struct type
	Table     string
	Schema    *schema.Schema
	fields    map[string]*Field
	order     []*Field
	relations map[string]*Relation
}

// Field looks up a column by column name or Go field name
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Fields returns the columns in declaration order
func (m *Model) Fields() []*Field {
	return m.order
}

// Relation looks up an association by snake case or Go name
func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// PrimaryKey returns the primary key column name
func (m *Model) PrimaryKey() string {
	if m.Schema.PrioritizedPrimaryField != nil {
		return m.Schema.PrioritizedPrimaryField.DBName
	}
	return "id"
}

// New allocates a blank instance of the model
func (m *Model) New() any {
	return reflect.New(m.Type).Interface()
}

// SplitPath splits a dotted relation path. The lookup separator "__" is accepted as well.
func SplitPath(path string) []string {
	path = strings.ReplaceAll(path, "__", ".")
	return strings.Split(path, ".")
}

// binder turns parsed GORM schemas into Models, sharing instances across relations
type binder struct {
	namer  schema.NamingStrategy
	models map[reflect.Type]*Model
}

func (b *binder) bind(s *schema.Schema) *Model {
	if m, ok := b.models[s.ModelType]; ok {
		return m
	}

	m := &Model{
		Type:      s.ModelType,
		Table:     s.Table,
		Schema:    s,
		fields:    make(map[string]*Field),
		relations: make(map[string]*Relation),
	}
	// Registered before walking relations so cycles terminate
	b.models[s.ModelType] = m

	for _, sf := range s.Fields {
		if sf.DBName == "" {
			continue
		}
		f := &Field{
			Name:     sf.DBName,
			GoName:   sf.Name,
			Kind:     fieldKind(sf),
			Nullable: sf.FieldType.Kind() == reflect.Ptr,
			Unique:   sf.Unique,
			Label:    sf.Tag.Get("label"),
			Upload:   sf.Tag.Get("upload"),
			Schema:   sf,
		}
		if f.Upload != "" {
			f.Kind = KindFile
		}
		m.fields[f.Name] = f
		m.fields[f.GoName] = f
		m.order = append(m.order, f)
	}

	for goName, rel := range s.Relationships.Relations {
		r := &Relation{
			Name:   b.namer.ColumnName("", goName),
			GoName: goName,
			Kind:   relationKind(rel.Type),
			Label:  rel.Field.Tag.Get("label"),
			Schema: rel,
		}
		for _, ref := range rel.References {
			if ref.PrimaryKey == nil || ref.ForeignKey == nil {
				continue
			}
			if ref.OwnPrimaryKey {
				r.Refs = append(r.Refs, JoinRef{From: ref.PrimaryKey.DBName, To: ref.ForeignKey.DBName})
			} else {
				r.Refs = append(r.Refs, JoinRef{From: ref.ForeignKey.DBName, To: ref.PrimaryKey.DBName})
			}
		}
		m.relations[r.Name] = r
		m.relations[r.GoName] = r
		r.Target = b.bind(rel.FieldSchema)
	}

	return m
}

func fieldKind(f *schema.Field) FieldKind {
	switch f.DataType {
	case schema.String:
		return KindString
	case schema.Int, schema.Uint:
		return KindInt
	case schema.Bool:
		return KindBool
	case schema.Time, "date":
		return KindDate
	}
	return KindOther
}

func relationKind(t schema.RelationshipType) RelationKind {
	switch t {
	case schema.HasOne:
		return HasOne
	case schema.HasMany:
		return HasMany
	case schema.Many2Many:
		return ManyToMany
	}
	return BelongsTo
}
