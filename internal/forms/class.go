// Package forms binds, validates and diffs edit forms against entity instances
package forms

import (
	"context"
	"sort"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/types"
)

// CSRFField is the reserved anti-forgery field, never bound to an instance
const CSRFField = "csrf_token"

// ClearSuffix marks the "remove this file" checkbox of a file field
const ClearSuffix = "_clear"

// HashSuffix names the column holding the content hash of a file column
const HashSuffix = "_hash"

// Kind is the input type of a form field
type Kind int

const (
	Text Kind = iota
	Textarea
	Integer
	Boolean
	Date
	Select
	File
	Password
	Email
)

func (k Kind) String() string {
	switch k {
	case Textarea:
		return "textarea"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case Select:
		return "select"
	case File:
		return "file"
	case Password:
		return "password"
	case Email:
		return "email"
	}
	return "text"
}

// FieldSpec declares one field of a form class
type FieldSpec struct {
	Name        string
	Kind        Kind
	Label       string // overrides the label derived from the model
	Description string
	Related     string // model of a select; defaults to the target of the relation
	Upload      string // upload subdirectory of a file; defaults to the `upload` tag of the column
	Validators  []Validator
}

// Class is a named form declaration for one model
type Class struct {
	Name     string
	Model    string
	Fields   []FieldSpec
	Exclude  []string
	ReadOnly []string

	// ReadOnlyFunc adds read-only fields depending on the instance being edited
	ReadOnlyFunc func(instance meta.Entity) []string

	// PostValidate checks whole-form rules after the instance was written.
	// It reports problems with Form.AddError and returns false to reject the form.
	PostValidate func(ctx context.Context, f *Form) bool
}

// Spec returns the declaration of a field
func (c *Class) Spec(name string) (FieldSpec, bool) {
	for _, s := range c.Fields {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// Registry maps model names to their default form class and keeps the named classes
type Registry struct {
	classes  map[string]*Class
	defaults map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{classes: map[string]*Class{}, defaults: map[string]string{}}
}

// Register adds a class. The first class registered for a model becomes its default.
func (r *Registry) Register(c *Class) error {
	if c.Name == "" || c.Model == "" {
		return types.Configf("form class needs a name and a model")
	}
	if _, dup := r.classes[c.Name]; dup {
		return types.Configf("form class %q registered twice", c.Name)
	}
	r.classes[c.Name] = c
	if _, ok := r.defaults[c.Model]; !ok {
		r.defaults[c.Model] = c.Name
	}
	return nil
}

// Get returns a class by name
func (r *Registry) Get(name string) (*Class, error) {
	c, ok := r.classes[name]
	if !ok {
		return nil, types.Configf("form class %q is not registered", name)
	}
	return c, nil
}

// For returns the default class of a model
func (r *Registry) For(model string) (*Class, error) {
	name, ok := r.defaults[model]
	if !ok {
		return nil, types.Configf("no form class for model %q", model)
	}
	return r.classes[name], nil
}

// Names lists the registered class names, sorted
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.classes))
	for name := range r.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
