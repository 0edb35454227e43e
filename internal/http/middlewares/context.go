package middlewares

import (
	"context"

	"github.com/dropDatabas3/vetsecure/internal/authz"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

type ctxKey string

const (
	ctxPrincipalKey ctxKey = "principal"
	ctxUserKey      ctxKey = "user"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithPrincipal inyecta el principal autenticado en el contexto.
func WithPrincipal(ctx context.Context, p authz.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

// WithUser inyecta el usuario cargado por RequireAuth.
func WithUser(ctx context.Context, u *core.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetPrincipal devuelve el principal del contexto. ok=false si la ruta no
// pasó por RequireAuth.
func GetPrincipal(ctx context.Context) (authz.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(authz.Principal)
	return p, ok
}

// GetAuthorities devuelve los roles efectivos del principal (el suyo más
// todos los que domina). Vacío si no hay principal.
func GetAuthorities(ctx context.Context) []authz.Role {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return nil
	}
	return authz.Authorities(p.Role)
}

// GetUser devuelve el usuario completo cargado por RequireAuth, o nil.
func GetUser(ctx context.Context) *core.User {
	u, _ := ctx.Value(ctxUserKey).(*core.User)
	return u
}

// GetRequestID devuelve el request ID, o cadena vacía.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}
