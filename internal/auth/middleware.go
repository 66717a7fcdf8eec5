package auth

import (
	"net/http"
	"strings"

	"github.com/odyssey-erp/custody-vault/internal/platform/httpx"
	"github.com/odyssey-erp/custody-vault/internal/shared"
)

// Middleware resolves the Bearer API key into a principal on the request
// context. Requests without a valid key are rejected with 401.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="vault"`)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer api key")
				return
			}
			principal, err := svc.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="vault", error="invalid_token"`)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid api key")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
