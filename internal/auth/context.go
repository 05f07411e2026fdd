package auth

import "context"

// Principal is the identity attached to an authenticated request: the claims
// recovered from the access token plus the permission set resolved from the
// static registry. It never reflects database state newer than the token.
type Principal struct {
	ID          string
	Email       string
	Role        Role
	Permissions map[string]struct{}
}

// HasPermission reports whether the principal holds the permission.
func (p Principal) HasPermission(perm string) bool {
	_, ok := p.Permissions[perm]
	return ok
}

// HasRole reports whether the principal carries exactly the given role.
func (p Principal) HasRole(role Role) bool {
	return p.Role == role
}

// HasAllPermissions reports whether every listed permission is present.
func (p Principal) HasAllPermissions(perms ...string) bool {
	for _, perm := range perms {
		if !p.HasPermission(perm) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether at least one listed permission is present.
func (p Principal) HasAnyPermission(perms ...string) bool {
	for _, perm := range perms {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

type principalContextKey struct{}
type tokenContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
