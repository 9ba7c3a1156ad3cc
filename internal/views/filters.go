package views

import (
	"context"
	"net/url"
	"strings"

	"github.com/localnerve/reestrsi/internal/fields"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/types"
)

// Filter input types
const (
	FilterSelect  = "select"
	FilterBoolean = "boolean"
	FilterDate    = "date"
)

// AnyChoice keeps a filter inactive
var AnyChoice = meta.Choice{Value: query.DontCare, Label: "Все"}

// FilterInput is one rendered input of a filter
type FilterInput struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Data string `json:"data"`
}

// FilterSpec describes one list filter of the sidebar
type FilterSpec struct {
	Field   string        `json:"field"`
	Type    string        `json:"type"`
	Title   string        `json:"title"`
	Input   FilterInput   `json:"input"`
	Choices []meta.Choice `json:"choices,omitempty"`
	Begin   *FilterInput  `json:"begin,omitempty"`
	End     *FilterInput  `json:"end,omitempty"`
}

func inputID(path string) string {
	return strings.ReplaceAll(path, ".", "__") + "__id"
}

func input(name, path string, params url.Values) FilterInput {
	return FilterInput{Name: name, ID: inputID(path), Data: params.Get(name)}
}

// filterType classifies a filter path. A path that is neither a relation, a boolean nor a date
// column is a configuration error.
func filterType(reg *meta.Registry, desc *meta.Descriptor, path string) (string, *meta.PathTarget, error) {
	target, err := meta.ResolvePath(desc.Bound(), path)
	if err != nil {
		return "", nil, types.Configf("%s: %v", desc.Name, err)
	}
	switch {
	case target.Relation != nil:
		if _, ok := reg.ForModel(target.Relation.Target); !ok {
			return "", nil, types.Configf("%s: filter %s targets an unregistered model", desc.Name, path)
		}
		return FilterSelect, target, nil
	case target.Field != nil && target.Field.Kind == meta.KindBool:
		return FilterBoolean, target, nil
	case target.Field != nil && target.Field.Kind == meta.KindDate:
		return FilterDate, target, nil
	}
	return "", nil, types.Configf("no filter available for field %s", path)
}

// CheckFilters verifies that every path can be rendered as a filter, without loading choices
func CheckFilters(reg *meta.Registry, desc *meta.Descriptor, paths []string) error {
	for _, path := range paths {
		if _, _, err := filterType(reg, desc, path); err != nil {
			return err
		}
	}
	return nil
}

// BuildFilters creates one filter per path: relations first, then booleans, then date ranges
func BuildFilters(ctx context.Context, repo *repository.Repository, desc *meta.Descriptor, paths []string, params url.Values) ([]FilterSpec, error) {
	var relations, booleans, dates []FilterSpec
	reg := repo.Registry()

	for _, path := range paths {
		kind, target, err := filterType(reg, desc, path)
		if err != nil {
			return nil, err
		}

		title := target.Name
		if owner, ok := reg.ForModel(target.Model); ok {
			if label, err := fields.Label(owner, target.Name); err == nil {
				title = label
			}
		}
		spec := FilterSpec{Field: path, Type: kind, Title: title, Input: input(query.FilterKey(path), path, params)}

		switch kind {
		case FilterSelect:
			related, _ := reg.ForModel(target.Relation.Target)
			choices, err := repo.Choices(ctx, related)
			if err != nil {
				return nil, err
			}
			spec.Choices = append([]meta.Choice{AnyChoice}, choices...)
			relations = append(relations, spec)
		case FilterBoolean:
			spec.Choices = []meta.Choice{AnyChoice, {Value: "1", Label: "Да"}, {Value: "0", Label: "Нет"}}
			booleans = append(booleans, spec)
		case FilterDate:
			begin := input(query.BeginKey(path), path+".begin", params)
			end := input(query.EndKey(path), path+".end", params)
			spec.Begin, spec.End = &begin, &end
			dates = append(dates, spec)
		}
	}

	out := make([]FilterSpec, 0, len(paths))
	out = append(out, relations...)
	out = append(out, booleans...)
	return append(out, dates...), nil
}
