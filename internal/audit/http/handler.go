package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/custody-vault/internal/audit"
	"github.com/odyssey-erp/custody-vault/internal/platform/httpx"
	"github.com/odyssey-erp/custody-vault/internal/shared"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

type timelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

type roleResolver interface {
	RoleOf(ctx context.Context, id vault.Identity) (vault.Role, error)
}

// Handler menyajikan audit trail vault dalam format JSON.
type Handler struct {
	logger  *slog.Logger
	service timelineService
	roles   roleResolver
}

// NewHandler membuat handler audit. Hanya principal yang memiliki role
// vault yang boleh membaca timeline.
func NewHandler(logger *slog.Logger, service timelineService, roles roleResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With(slog.String("component", "audit.http")), service: service, roles: roles}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	role, err := h.roles.RoleOf(r.Context(), vault.Identity(principal))
	if err != nil {
		h.logger.Error("resolve role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !role.Enrolled() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "audit trail requires a vault role")
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Actor:  strings.TrimSpace(q.Get("actor")),
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
	}
	var err error
	if filters.From, err = parseTime(q.Get("from")); err != nil {
		return filters, err
	}
	if filters.To, err = parseTime(q.Get("to")); err != nil {
		return filters, err
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return filters, errInvalidRange
	}
	if filters.Page, err = parseInt(q.Get("page")); err != nil {
		return filters, err
	}
	if filters.PageSize, err = parseInt(q.Get("page_size")); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errInvalidTime
	}
	return t, nil
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errInvalidNumber
	}
	return n, nil
}
