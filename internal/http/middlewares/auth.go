package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/vetsecure/internal/authz"
	httpx "github.com/dropDatabas3/vetsecure/internal/http"
	jwtx "github.com/dropDatabas3/vetsecure/internal/jwt"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

// RequireAuth valida Authorization: Bearer <JWT>, exige type=ACCESS, carga
// el usuario y deja el principal en el contexto. 401 en cualquier falla.
//
// Un refresh o un challenge MFA firmados con el mismo secreto NO pasan:
// la firma válida sola no autoriza nada, el type tiene que ser ACCESS.
func RequireAuth(issuer *jwtx.Issuer, repo core.Repository) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := strings.TrimSpace(r.Header.Get("Authorization"))
			if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "falta el bearer token", httpx.ErrCodeTokenMissing)
				return
			}
			raw := strings.TrimSpace(ah[len("Bearer "):])

			claims, err := issuer.Parse(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				if errors.Is(err, jwtx.ErrExpired) {
					httpx.WriteError(w, http.StatusUnauthorized, "token_expired", "token expirado", httpx.ErrCodeTokenExpired)
					return
				}
				httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "token inválido", httpx.ErrCodeTokenInvalid)
				return
			}
			if jwtx.TokenType(claims) != jwtx.TypeAccess {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "se requiere un access token", httpx.ErrCodeWrongTokenType)
				return
			}

			sub := jwtx.ClaimString(claims, "sub")
			u, err := repo.GetUserByID(r.Context(), sub)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "principal desconocido", httpx.ErrCodeTokenInvalid)
				return
			}

			role, err := authz.ParseRole(u.Role)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "rol desconocido", httpx.ErrCodeTokenInvalid)
				return
			}

			ctx := WithPrincipal(r.Context(), authz.Principal{ID: u.ID, Role: role})
			ctx = WithUser(ctx, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole exige un rol mínimo en la cadena. Debe ir después de
// RequireAuth.
func RequireRole(min authz.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "falta autenticación", httpx.ErrCodeTokenMissing)
				return
			}
			d := authz.Check(p, authz.Requirement{MinRole: min}, authz.Facts{})
			if !d.Allowed {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "permisos insuficientes", httpx.ErrCodeForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
