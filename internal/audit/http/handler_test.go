package audithttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/custody-vault/internal/audit"
	audithttp "github.com/odyssey-erp/custody-vault/internal/audit/http"
	"github.com/odyssey-erp/custody-vault/internal/shared"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

type fakeTimeline struct {
	last audit.TimelineFilters
}

func (f *fakeTimeline) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	f.last = filters
	return audit.Result{
		Rows: []audit.TimelineRow{{
			At:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			Actor:    "0xfull",
			Action:   "vault.withdrawn",
			Entity:   "vault_pool",
			EntityID: "native",
		}},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20},
	}, nil
}

type fakeRoles map[vault.Identity]vault.Role

func (f fakeRoles) RoleOf(_ context.Context, id vault.Identity) (vault.Role, error) {
	return f[id], nil
}

func newRouter(svc *fakeTimeline) http.Handler {
	h := audithttp.NewHandler(nil, svc, fakeRoles{"0xfull": vault.RoleFull, "0xliq": vault.RoleLiquidate})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p := req.Header.Get("X-Test-Principal"); p != "" {
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.MountRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, principal, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if principal != "" {
		req.Header.Set("X-Test-Principal", principal)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTimelineReturnsRowsForEnrolledPrincipal(t *testing.T) {
	svc := &fakeTimeline{}
	router := newRouter(svc)

	rec := get(t, router, "0xliq", "/vault/audit?actor=0xfull&from=2025-03-01&to=2025-03-02T00:00:00Z&page=2&page_size=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var body audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	require.Equal(t, "vault.withdrawn", body.Rows[0].Action)

	require.Equal(t, "0xfull", svc.last.Actor)
	require.Equal(t, 2, svc.last.Page)
	require.Equal(t, 5, svc.last.PageSize)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), svc.last.From)
}

func TestTimelineRejectsUnenrolledAndAnonymous(t *testing.T) {
	router := newRouter(&fakeTimeline{})
	require.Equal(t, http.StatusForbidden, get(t, router, "0xoutsider", "/vault/audit").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, router, "", "/vault/audit").Code)
}

func TestTimelineValidatesQuery(t *testing.T) {
	router := newRouter(&fakeTimeline{})
	for _, target := range []string{
		"/vault/audit?from=yesterday",
		"/vault/audit?from=2025-03-02&to=2025-03-01",
		"/vault/audit?page=abc",
	} {
		rec := get(t, router, "0xfull", target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestTimelineRateLimitedPerPrincipal(t *testing.T) {
	router := newRouter(&fakeTimeline{})
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, get(t, router, "0xfull", "/vault/audit").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(t, router, "0xfull", "/vault/audit").Code)
	require.Equal(t, http.StatusOK, get(t, router, "0xliq", "/vault/audit").Code)
}
