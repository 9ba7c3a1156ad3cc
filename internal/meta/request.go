package meta

import "context"

type requestKey struct{}

// User is the authenticated principal as seen by the engine
type User interface {
	IsAuthenticated() bool
	IsActive() bool
	ShortName() string
}

// Request carries the per-request state the views operate on.
// One value exists per HTTP request and it never outlives it.
type Request struct {
	Descriptor *Descriptor
	Object     Entity
	Form       any
	User       User
	ViewOnly   bool
	Blueprint  string
}

// WithRequest stores the request state on ctx
func WithRequest(ctx context.Context, r *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// FromContext returns the request state stored on ctx, or nil
func FromContext(ctx context.Context) *Request {
	if ctx == nil {
		return nil
	}
	r, _ := ctx.Value(requestKey{}).(*Request)
	return r
}

// IsViewOnly reports whether forms of this request render read-only
func IsViewOnly(ctx context.Context) bool {
	if r := FromContext(ctx); r != nil {
		return r.ViewOnly
	}
	return false
}
