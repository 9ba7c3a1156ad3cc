package fields

import (
	"fmt"

	"github.com/localnerve/reestrsi/internal/meta"
)

// Label returns the human label of a display or form field. Precedence:
// column label, then the label of the name+"_id" column, then the verbose name for __str__,
// then the short description of a computed attribute, then the raw name.
func Label(desc *meta.Descriptor, name string) (string, error) {
	known := false

	if f, ok := desc.Field(name); ok {
		known = true
		if f.Label != "" {
			return f.Label, nil
		}
	}
	if rel, ok := desc.Relation(name); ok {
		known = true
		if rel.Label != "" {
			return rel.Label, nil
		}
	}
	if f, ok := desc.Field(name + "_id"); ok {
		known = true
		if f.Label != "" {
			return f.Label, nil
		}
	}
	if name == meta.StrField {
		return desc.VerboseName, nil
	}
	if c, ok := desc.ComputedAttr(name); ok {
		known = true
		if c.ShortDescription != "" {
			return c.ShortDescription, nil
		}
	}
	if !known {
		return "", fmt.Errorf("%w %q on %s", ErrUnknownField, name, desc.Name)
	}
	return name, nil
}

// Labels returns the labels of names, in order
func Labels(desc *meta.Descriptor, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		label, err := Label(desc, name)
		if err != nil {
			return nil, err
		}
		out = append(out, label)
	}
	return out, nil
}
