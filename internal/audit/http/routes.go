package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/custody-vault/internal/platform/httpx"
	"github.com/odyssey-erp/custody-vault/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes mendaftarkan endpoint audit timeline.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "audit rate limit exceeded")
		}),
	)
	r.With(limiter).Get("/vault/audit", h.handleTimeline)
}

func rateLimitKey(r *http.Request) (string, error) {
	if principal, ok := shared.PrincipalFromContext(r.Context()); ok {
		return "principal:" + principal, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
