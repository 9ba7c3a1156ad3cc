package meta

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/localnerve/reestrsi/internal/types"
	"gorm.io/gorm/schema"
)

// Group is a named set of models shown together on the settings index
type Group struct {
	Label       string
	VerboseName string
	Models      []string
}

// Registry maps logical model names to descriptors. It is populated at startup and read afterwards.
type Registry struct {
	descriptors map[string]*Descriptor
	byType      map[reflect.Type]*Descriptor
	names       []string
	groups      []Group
	binder      *binder
	cache       *sync.Map
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		byType:      make(map[reflect.Type]*Descriptor),
		binder:      &binder{models: make(map[reflect.Type]*Model)},
		cache:       &sync.Map{},
	}
}

// Register binds the descriptor to the GORM schema of its model and validates its field lists
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return types.Configf("descriptor without name for %T", d.Model)
	}
	d.Name = strings.ToLower(d.Name)
	if _, dup := r.descriptors[d.Name]; dup {
		return types.Configf("model %q registered twice", d.Name)
	}

	s, err := schema.Parse(d.Model, r.cache, r.binder.namer)
	if err != nil {
		return types.Configf("parse schema of %s: %v", d.Name, err)
	}
	d.model = r.binder.bind(s)

	if err := validate(d); err != nil {
		return err
	}

	r.descriptors[d.Name] = d
	r.byType[d.model.Type] = d
	r.names = append(r.names, d.Name)
	return nil
}

// MustRegister panics when registration fails; for static descriptor tables
func (r *Registry) MustRegister(descriptors ...*Descriptor) *Registry {
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Get returns the descriptor registered under name
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.descriptors[strings.ToLower(name)]
	return d, ok
}

// MustGet returns the descriptor or panics; for names known at compile time
func (r *Registry) MustGet(name string) *Descriptor {
	d, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("model %q is not registered", name))
	}
	return d
}

// ForModel finds the descriptor registered for a schema binding
func (r *Registry) ForModel(m *Model) (*Descriptor, bool) {
	d, ok := r.byType[m.Type]
	return d, ok
}

// Names lists registered model names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// AddGroup declares a settings group; every model must already be registered
func (r *Registry) AddGroup(g Group) error {
	for _, name := range g.Models {
		if _, ok := r.Get(name); !ok {
			return types.Configf("group %s: model %q is not registered", g.Label, name)
		}
	}
	r.groups = append(r.groups, g)
	return nil
}

// Groups returns the settings groups, each with models sorted by plural verbose name
func (r *Registry) Groups() []Group {
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		models := append([]string(nil), g.Models...)
		sort.SliceStable(models, func(i, j int) bool {
			a, b := r.descriptors[models[i]], r.descriptors[models[j]]
			return strings.ToLower(a.VerboseNamePlural) < strings.ToLower(b.VerboseNamePlural)
		})
		g.Models = models
		out = append(out, g)
	}
	return out
}

// validate fails loudly on metadata that cannot be satisfied by the model
func validate(d *Descriptor) error {
	m := d.model

	for _, name := range d.FieldsDisplay {
		if name == StrField {
			continue
		}
		if _, ok := d.Computed[name]; ok {
			continue
		}
		if _, ok := m.Field(name); ok {
			continue
		}
		if _, ok := m.Relation(name); ok {
			continue
		}
		return types.Configf("%s: display field %q is neither a column nor a computed attribute", d.Name, name)
	}

	for _, path := range d.FieldsSearch {
		f, err := ResolvePath(m, path)
		if err != nil {
			return types.Configf("%s: search field: %v", d.Name, err)
		}
		if f.Field == nil || f.Field.Kind != KindString {
			return types.Configf("%s: search field %q is not a text column", d.Name, path)
		}
	}

	for _, path := range append(append([]string(nil), d.SelectRelated...), d.JoinedRelated...) {
		if _, err := RelationPath(m, path); err != nil {
			return types.Configf("%s: eager-load %v", d.Name, err)
		}
	}
	return nil
}

// PathTarget is the result of walking a dotted path
type PathTarget struct {
	Relations []*Relation // relations traversed, in order
	Model     *Model      // model owning the final segment
	Name      string      // final segment
	Field     *Field      // set when the final segment is a column
	Relation  *Relation   // set when the final segment is a relation
}

// ResolvePath walks a dotted path through relations. Every segment but the last must be a relation.
func ResolvePath(m *Model, path string) (*PathTarget, error) {
	segments := SplitPath(path)
	t := &PathTarget{Model: m}

	for i, seg := range segments {
		last := i == len(segments)-1
		if rel, ok := t.Model.Relation(seg); ok {
			if last {
				t.Name, t.Relation = seg, rel
				return t, nil
			}
			t.Relations = append(t.Relations, rel)
			t.Model = rel.Target
			continue
		}
		if f, ok := t.Model.Field(seg); ok && last {
			t.Name, t.Field = seg, f
			return t, nil
		}
		return nil, fmt.Errorf("path %q: %q is not a relation of %s", path, seg, t.Model.Table)
	}
	return nil, fmt.Errorf("path %q is empty", path)
}

// RelationPath converts a snake case relation path into the Go association path used by Preload
func RelationPath(m *Model, path string) (string, error) {
	segments := SplitPath(path)
	goNames := make([]string, 0, len(segments))
	current := m
	for _, seg := range segments {
		rel, ok := current.Relation(seg)
		if !ok {
			return "", fmt.Errorf("path %q: %q is not a relation of %s", path, seg, current.Table)
		}
		goNames = append(goNames, rel.GoName)
		current = rel.Target
	}
	return strings.Join(goNames, "."), nil
}
