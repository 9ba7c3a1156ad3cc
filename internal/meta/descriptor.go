package meta

import (
	"reflect"
)

// StrField is the sentinel display field rendering the entity itself
const StrField = "__str__"

// LinkMode selects which list columns link to the detail page
type LinkMode int

const (
	// LinkFirst links the first display column
	LinkFirst LinkMode = iota
	// LinkNone renders every column as plain text
	LinkNone
	// LinkFields links only the named columns
	LinkFields
)

// Links is the link policy of a list view
type Links struct {
	Mode   LinkMode
	Fields []string
}

// Linked reports whether the column at a position links to the detail page
func (l Links) Linked(first bool, field string) bool {
	switch l.Mode {
	case LinkNone:
		return false
	case LinkFields:
		for _, name := range l.Fields {
			if name == field {
				return true
			}
		}
		return false
	}
	return first
}

// Descriptor is the declarative metadata of one entity type.
// It is built once at startup and treated as immutable afterwards.
type Descriptor struct {
	Name              string // registry key, e.g. "si"
	Model             Entity // prototype, e.g. &models.Instrument{}
	VerboseName       string
	VerboseNamePlural string
	VerboseNameChange string
	ActionSuffix      string

	FieldsDisplay []string
	FieldsSearch  []string
	FieldsFilter  []string
	FieldsLink    Links
	Ordering      []string

	SelectRelated []string
	JoinedRelated []string

	Computed map[string]*Computed

	model *Model
}

// Bound returns the schema binding. It is nil until the descriptor is registered.
func (d *Descriptor) Bound() *Model {
	return d.model
}

// Table returns the table name of the model
func (d *Descriptor) Table() string {
	return d.model.Table
}

// New allocates a blank entity of the described type
func (d *Descriptor) New() Entity {
	return reflect.New(reflect.TypeOf(d.Model).Elem()).Interface().(Entity)
}

// NewSlice allocates a pointer to an empty []*T for the described type
func (d *Descriptor) NewSlice() any {
	elem := reflect.TypeOf(d.Model)
	return reflect.New(reflect.SliceOf(elem)).Interface()
}

// Field looks up a column of the model
func (d *Descriptor) Field(name string) (*Field, bool) {
	return d.model.Field(name)
}

// Relation looks up an association of the model
func (d *Descriptor) Relation(name string) (*Relation, bool) {
	return d.model.Relation(name)
}

// ComputedAttr looks up a derived attribute
func (d *Descriptor) ComputedAttr(name string) (*Computed, bool) {
	c, ok := d.Computed[name]
	return c, ok
}

// TitleChange is the title used on change pages
func (d *Descriptor) TitleChange() string {
	if d.VerboseNameChange != "" {
		return d.VerboseNameChange
	}
	return d.VerboseName
}

// Entities converts a *[]*T produced by NewSlice into entities
func Entities(slice any) []Entity {
	rv := reflect.Indirect(reflect.ValueOf(slice))
	out := make([]Entity, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if e, ok := rv.Index(i).Interface().(Entity); ok {
			out = append(out, e)
		}
	}
	return out
}
