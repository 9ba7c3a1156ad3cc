// Package views implements the generic list, filter and object pipelines of the admin pages
package views

import (
	"strconv"

	"github.com/localnerve/reestrsi/internal/meta"
)

// URLBuilder reverses a named route with its parameters
type URLBuilder interface {
	URL(name string, params map[string]string) (string, error)
}

// Route names relative to a blueprint
const (
	RouteList   = "list"
	RouteAdd    = "add"
	RouteChange = "change"
	RouteDelete = "delete"
)

// RouteName qualifies a route with its blueprint, e.g. "settings.change"
func RouteName(blueprint, route string) string {
	if blueprint == "" {
		return route
	}
	return blueprint + "." + route
}

// TryURL reverses a route, returning "" when it cannot be built
func TryURL(b URLBuilder, name string, params map[string]string) string {
	if b == nil {
		return ""
	}
	u, err := b.URL(name, params)
	if err != nil {
		return ""
	}
	return u
}

func modelParams(desc *meta.Descriptor) map[string]string {
	return map[string]string{"model_name": desc.Name}
}

func objectParams(desc *meta.Descriptor, e meta.Entity) map[string]string {
	return map[string]string{"model_name": desc.Name, "pk": strconv.FormatUint(uint64(e.PrimaryKey()), 10)}
}
