package admission

import "context"

// Role is the privilege level resolved for a request.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// RequestContext is the per-request identity produced by the session
// authenticator. It is derived fresh on every request and carried through
// the handler chain explicitly, never through response headers.
type RequestContext struct {
	IsAuthenticated bool
	UserID          int64
	Role            Role
}

// Guest is the default unauthenticated context.
func Guest() RequestContext {
	return RequestContext{IsAuthenticated: false, UserID: 0, Role: RoleGuest}
}

// HasRole reports whether the context satisfies the required role.
// Admins satisfy every role.
func (rc RequestContext) HasRole(required Role) bool {
	if rc.Role == RoleAdmin {
		return true
	}
	return rc.Role == required
}

type ctxKey struct{}

// WithRequestContext attaches the resolved identity to the request context.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the resolved identity, or the guest context when the
// admission pipeline never ran.
func FromContext(ctx context.Context) RequestContext {
	if rc, ok := ctx.Value(ctxKey{}).(RequestContext); ok {
		return rc
	}
	return Guest()
}
