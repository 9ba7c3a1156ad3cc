package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/types"
	"gorm.io/datatypes"
)

const (
	// SearchParam is the free text search key
	SearchParam = "q"
	// FilterSuffix marks a filter key
	FilterSuffix = "__filter"
	// BeginSuffix marks the lower bound of a date range filter
	BeginSuffix = "__begin"
	// EndSuffix marks the upper bound of a date range filter
	EndSuffix = "__end"
	// DontCare is the filter value meaning "no filter"
	DontCare = "all"
	// MinSearchLength is the search length at or below which the search is ignored
	MinSearchLength = 2
)

// Date layouts accepted by range filters
var dateLayouts = []string{"2006-01-02", "02.01.2006"}

// FilterKey is the request parameter name of a filter on path
func FilterKey(path string) string {
	return strings.ReplaceAll(path, ".", "__") + FilterSuffix
}

// BeginKey is the request parameter name of the lower bound of a date range on path
func BeginKey(path string) string {
	return strings.ReplaceAll(path, ".", "__") + BeginSuffix + FilterSuffix
}

// EndKey is the request parameter name of the upper bound of a date range on path
func EndKey(path string) string {
	return strings.ReplaceAll(path, ".", "__") + EndSuffix + FilterSuffix
}

func (q *Query) applyParams(params url.Values) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(params.Get(key))
		if key == SearchParam {
			if utf8.RuneCountInString(value) > MinSearchLength {
				if err := q.applySearch(value); err != nil {
					return err
				}
			}
			continue
		}

		path, bound, ok := q.filterPath(key)
		if !ok || value == DontCare {
			continue
		}
		if err := q.applyFilter(path, bound, value); err != nil {
			return err
		}
	}
	return nil
}

type rangeBound int

const (
	noBound rangeBound = iota
	lowerBound
	upperBound
)

// filterPath decodes a parameter key into a declared filter path and an optional range bound.
// Keys naming anything else are not filters.
func (q *Query) filterPath(key string) (string, rangeBound, bool) {
	path, bound := key, noBound
	if name, ok := strings.CutSuffix(key, FilterSuffix); ok {
		path = name
		if p, ok := strings.CutSuffix(name, BeginSuffix); ok {
			path, bound = p, lowerBound
		} else if p, ok := strings.CutSuffix(name, EndSuffix); ok {
			path, bound = p, upperBound
		}
	}

	normalized := strings.ReplaceAll(path, "__", ".")
	for _, declared := range q.fieldsFilter {
		if strings.ReplaceAll(declared, "__", ".") == normalized {
			return path, bound, true
		}
	}
	return "", noBound, false
}

func (q *Query) applyFilter(path string, bound rangeBound, value string) error {
	r, err := q.resolve(path)
	if err != nil {
		return err
	}

	if bound != noBound {
		if value == "" {
			return nil
		}
		if r.target.Field == nil {
			return types.Configf("%s: range filter %q is not a column", q.Descriptor.Name, path)
		}
		day, err := ParseDate(value)
		if err != nil {
			return err
		}
		op := " >= ?"
		if bound == upperBound {
			op = " <= ?"
		}
		column := r.alias + "." + r.target.Field.Name
		q.addFilter(Predicate{SQL: column + op, Args: []any{datatypes.Date(day)}})
		return nil
	}

	if fk, ok := r.target.Model.Field(r.target.Name + "_id"); ok {
		column := r.alias + "." + fk.Name
		if value == "" {
			q.addFilter(IsNull(column))
			return nil
		}
		id, err := strconv.Atoi(value)
		if err != nil {
			return types.InvalidParamf("filter %s: %q is not an integer", path, value)
		}
		q.addFilter(Eq(column, id))
		return nil
	}

	if f := r.target.Field; f != nil && f.Kind == meta.KindBool {
		if value == "" {
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return types.InvalidParamf("filter %s: %q is not an integer", path, value)
		}
		q.addFilter(Eq(r.alias+"."+f.Name, n != 0))
	}
	return nil
}

// ParseDate parses a filter date in ISO or DD.MM.YYYY form, as a UTC day
func ParseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, types.InvalidParamf("%q is not a date", value)
}
