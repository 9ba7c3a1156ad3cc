package utils

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reestrsi/internal/types"
)

// Router keeps the named routes of the app so handlers and views can reverse them
type Router struct {
	mu     sync.RWMutex
	routes map[string]string
}

// NewRouter creates an empty route table
func NewRouter() *Router {
	return &Router{routes: make(map[string]string)}
}

// Register names a path pattern such as /settings/:model_name/:pk
func (r *Router) Register(name, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.routes[name]; ok && existing != path {
		return types.Configf("route %q registered twice (%s, %s)", name, existing, path)
	}
	r.routes[name] = path
	return nil
}

// Path returns the pattern of a named route
func (r *Router) Path(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.routes[name]
	return p, ok
}

// URL reverses a named route. Params fill the :name segments; optional segments may be omitted.
func (r *Router) URL(name string, params map[string]string) (string, error) {
	pattern, ok := r.Path(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrRouteNotFound, name)
	}

	segments := strings.Split(pattern, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			out = append(out, seg)
			continue
		}
		key := strings.TrimPrefix(seg, ":")
		optional := strings.HasSuffix(key, "?")
		key = strings.TrimSuffix(key, "?")
		value, ok := params[key]
		if !ok || value == "" {
			if optional {
				continue
			}
			return "", types.InvalidParamf("route %s needs parameter %s", name, key)
		}
		out = append(out, url.PathEscape(value))
	}

	u := strings.Join(out, "/")
	if u == "" {
		u = "/"
	}
	return u, nil
}

// Blueprint groups the routes of one section under a prefix; route names are "<blueprint>.<route>".
// The blueprint handlers run in front of each of its routes only.
type Blueprint struct {
	Name     string
	prefix   string
	group    fiber.Router
	handlers []fiber.Handler
	router   *Router
	err      error
}

// Blueprint mounts a named route group on app
func (r *Router) Blueprint(app fiber.Router, name, prefix string, handlers ...fiber.Handler) *Blueprint {
	prefix = strings.TrimSuffix(prefix, "/")
	return &Blueprint{
		Name:     name,
		prefix:   prefix,
		group:    app.Group(prefix),
		handlers: handlers,
		router:   r,
	}
}

// Handle registers the handlers for the methods and names the route
func (b *Blueprint) Handle(route, path string, methods []string, handlers ...fiber.Handler) {
	full := b.prefix + path
	if full == "" {
		full = "/"
	}
	if err := b.router.Register(b.Name+"."+route, full); err != nil && b.err == nil {
		b.err = err
	}
	chain := append(append([]fiber.Handler(nil), b.handlers...), handlers...)
	for _, m := range methods {
		b.group.Add(m, path, chain...)
	}
}

// Get registers a GET route
func (b *Blueprint) Get(route, path string, handlers ...fiber.Handler) {
	b.Handle(route, path, []string{fiber.MethodGet}, handlers...)
}

// Form registers a page that renders on GET and submits on POST
func (b *Blueprint) Form(route, path string, handlers ...fiber.Handler) {
	b.Handle(route, path, []string{fiber.MethodGet, fiber.MethodPost}, handlers...)
}

// Err returns the first registration error
func (b *Blueprint) Err() error {
	return b.err
}
