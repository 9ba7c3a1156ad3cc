// Package fields resolves display fields of an entity to values and labels
package fields

import (
	"fmt"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/types"
)

// ErrUnknownField is returned for a name that is neither a column, a relation nor a computed attribute
var ErrUnknownField = fmt.Errorf("%w: unknown field", types.ErrConfiguration)

// Resolved is the outcome of Resolve: Column, Relation or Computed
type Resolved interface {
	Raw() any
}

// Column is a persisted column and its current value
type Column struct {
	Field *meta.Field
	Value any
}

// Relation is an association and the loaded related value
type Relation struct {
	Relation *meta.Relation
	Value    any
}

// Computed is a derived attribute and its result. Its own Boolean hint decides the rendering.
type Computed struct {
	Attr  *meta.Computed
	Value any
}

func (c Column) Raw() any   { return c.Value }
func (r Relation) Raw() any { return r.Value }
func (c Computed) Raw() any { return c.Value }

// Resolve looks name up on desc and reads it from e. Columns win over relations, relations over
// computed attributes. The __str__ sentinel is the entity's own String().
func Resolve(desc *meta.Descriptor, name string, e meta.Entity) (Resolved, error) {
	if name == meta.StrField {
		return Computed{
			Attr:  &meta.Computed{ShortDescription: desc.VerboseName},
			Value: e.String(),
		}, nil
	}
	if f, ok := desc.Field(name); ok {
		return Column{Field: f, Value: f.Value(e)}, nil
	}
	if rel, ok := desc.Relation(name); ok {
		return Relation{Relation: rel, Value: rel.Value(e)}, nil
	}
	if c, ok := desc.ComputedAttr(name); ok {
		var v any
		if c.Func != nil {
			v = c.Func(e)
		}
		return Computed{Attr: c, Value: v}, nil
	}
	return nil, fmt.Errorf("%w %q on %s", ErrUnknownField, name, desc.Name)
}

// Display renders one display field of e. Unknown names degrade to the empty placeholder.
func (fm Formatter) Display(desc *meta.Descriptor, name string, e meta.Entity) string {
	r, err := Resolve(desc, name, e)
	if err != nil {
		return fm.ForValue(nil, false)
	}
	switch v := r.(type) {
	case Column:
		return fm.ForField(v.Value, v.Field)
	case Computed:
		return fm.ForValue(v.Value, v.Attr.Boolean)
	}
	return fm.ForValue(r.Raw(), false)
}
