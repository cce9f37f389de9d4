package server

import (
	"context"
)

const (
	authTypeAPIToken   = "api_token"
	authTypeAdminToken = "admin_token"
	authTypeOperator   = "operator"

	adminTokenPrincipal = "admin-token"
)

type authContextKey struct{}

type authPrincipal struct {
	AuthType string
	Name     string
}

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	recordPrincipal(ctx, principal.Name)
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok
}

// principalName returns the authenticated name recorded on operator actions.
func principalName(ctx context.Context) string {
	principal, ok := authPrincipalFromContext(ctx)
	if !ok || principal.Name == "" {
		return "anonymous"
	}
	return principal.Name
}
