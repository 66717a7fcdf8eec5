package vaulthttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/custody-vault/internal/custody"
	"github.com/odyssey-erp/custody-vault/internal/platform/httpx"
	"github.com/odyssey-erp/custody-vault/internal/shared"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// IdempotencyHeader carries the client-chosen key for withdrawal retries.
const IdempotencyHeader = "Idempotency-Key"

type vaultService interface {
	AddUser(ctx context.Context, caller, target vault.Identity, role vault.Role) error
	RoleOf(ctx context.Context, id vault.Identity) (vault.Role, error)
	Principals(ctx context.Context, role vault.Role) ([]vault.Identity, error)
	BeginLiquidation(ctx context.Context, caller vault.Identity) (time.Time, error)
	CancelLiquidation(ctx context.Context, caller vault.Identity) error
	Status(ctx context.Context) (vault.ClockStatus, error)
	Execute(ctx context.Context, w vault.Withdrawal) error
}

type custodyService interface {
	Deposit(ctx context.Context, input custody.DepositInput) (custody.Deposit, custody.Balance, error)
	Balances(ctx context.Context) ([]custody.Balance, error)
	Balance(ctx context.Context, asset vault.Asset) (custody.Balance, error)
}

type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler exposes the vault and its custody pools over JSON.
type Handler struct {
	logger      *slog.Logger
	vault       vaultService
	custody     custodyService
	idempotency idempotencyStore
	validator   *validator.Validate
	reads       singleflight.Group
}

// NewHandler constructs a Handler. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewHandler(logger *slog.Logger, v vaultService, c custodyService, idem idempotencyStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger.With(slog.String("component", "vault.http")),
		vault:       v,
		custody:     c,
		idempotency: idem,
		validator:   validator.New(),
	}
}

// MountRoutes registers the vault routes. Callers must have resolved the
// principal onto the request context beforehand.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/vault", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.listPrincipals)
			r.Post("/", h.addUser)
			r.Get("/{principal}", h.showPrincipal)
		})
		r.Post("/withdrawals", h.withdraw(vault.PathNormal))
		r.Route("/liquidation", func(r chi.Router) {
			r.Get("/", h.showLiquidation)
			r.Post("/", h.beginLiquidation)
			r.Delete("/", h.cancelLiquidation)
			r.Post("/withdrawals", h.withdraw(vault.PathLiquidation))
		})
		r.Post("/deposits", h.deposit)
		r.Get("/balances", h.listBalances)
		r.Get("/balances/{token}", h.showBalance)
	})
}

func (h *Handler) addUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req addUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := vault.ParseRole(req.Role)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	target := vault.Identity(strings.TrimSpace(req.Principal))
	if err := h.vault.AddUser(r.Context(), caller, target, role); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, principalResponse{Principal: string(target), Role: role})
}

func (h *Handler) showPrincipal(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	id := vault.Identity(chi.URLParam(r, "principal"))
	role, err := h.vault.RoleOf(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, principalResponse{Principal: string(id), Role: role})
}

func (h *Handler) listPrincipals(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	role, err := vault.ParseRole(r.URL.Query().Get("role"))
	if err != nil || role == vault.RoleNone {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role query parameter must be LIQUIDATE, PARTIAL or FULL")
		return
	}
	ids, err := h.vault.Principals(r.Context(), role)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := principalListResponse{Role: role, Principals: make([]string, 0, len(ids))}
	for _, id := range ids {
		resp.Principals = append(resp.Principals, string(id))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) withdraw(path vault.Path) http.HandlerFunc {
	module := "vault." + path.String()
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := h.caller(w, r)
		if !ok {
			return
		}
		var req withdrawRequest
		if !h.decode(w, r, &req) {
			return
		}
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key != "" && h.idempotency != nil {
			if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
				h.respondError(w, r, err)
				return
			}
		}
		wd := vault.Withdrawal{
			Path:   path,
			Caller: caller,
			Asset:  vault.ParseAsset(req.Token),
			Amount: req.Amount,
			To:     vault.Identity(strings.TrimSpace(req.To)),
		}
		if err := h.vault.Execute(r.Context(), wd); err != nil {
			if key != "" && h.idempotency != nil {
				// Rejected requests did not move funds, so the key may be retried.
				if delErr := h.idempotency.Delete(context.WithoutCancel(r.Context()), key, module); delErr != nil {
					h.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
				}
			}
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, withdrawalResponse{
			Operation: path.String(),
			Asset:     wd.Asset.String(),
			Amount:    wd.Amount,
			To:        string(wd.To),
		})
	}
}

func (h *Handler) showLiquidation(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	status, err := sharedRead(r.Context(), &h.reads, "vault:status", h.vault.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newStatusResponse(status))
}

func (h *Handler) beginLiquidation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if _, err := h.vault.BeginLiquidation(r.Context(), caller); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeStatus(w, r, http.StatusAccepted)
}

func (h *Handler) cancelLiquidation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.vault.CancelLiquidation(r.Context(), caller); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeStatus(w, r, http.StatusOK)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, code int) {
	status, err := h.vault.Status(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, code, newStatusResponse(status))
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}
	dep, bal, err := h.custody.Deposit(r.Context(), custody.DepositInput{
		Asset:     vault.ParseAsset(req.Token),
		Amount:    req.Amount,
		From:      string(caller),
		Reference: req.Reference,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, depositResponse{
		ID:        dep.ID,
		Asset:     dep.Asset.String(),
		Amount:    dep.Amount,
		From:      dep.From,
		Reference: dep.Reference,
		At:        dep.At,
		Balance:   newBalanceResponse(bal),
	})
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	balances, err := sharedRead(r.Context(), &h.reads, "custody:balances", h.custody.Balances)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]balanceResponse, 0, len(balances))
	for _, bal := range balances {
		resp = append(resp, newBalanceResponse(bal))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) showBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	asset := vault.ParseAsset(chi.URLParam(r, "token"))
	bal, err := sharedRead(r.Context(), &h.reads, "custody:balance:"+asset.String(), func(ctx context.Context) (custody.Balance, error) {
		return h.custody.Balance(ctx, asset)
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBalanceResponse(bal))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (vault.Identity, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return "", false
	}
	return vault.Identity(principal), true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		h.respondError(w, r, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(msgs, "; "))
			return false
		}
		h.respondError(w, r, err)
		return false
	}
	return true
}

var errorMappings = []httpx.ErrorMapping{
	{Err: vault.ErrUnauthorized, Status: http.StatusForbidden, Title: "Forbidden"},
	{Err: vault.ErrClockNotTriggered, Status: http.StatusConflict, Title: "Liquidation Not Triggered"},
	{Err: vault.ErrReentrantCall, Status: http.StatusConflict, Title: "Reentrant Call"},
	{Err: vault.ErrInvalidAmount, Status: http.StatusBadRequest, Title: "Invalid Amount"},
	{Err: vault.ErrInvalidRole, Status: http.StatusBadRequest, Title: "Invalid Role"},
	{Err: vault.ErrInvalidIdentity, Status: http.StatusBadRequest, Title: "Invalid Identity"},
	{Err: vault.ErrInsufficientBalance, Status: http.StatusUnprocessableEntity, Title: "Insufficient Balance"},
	{Err: custody.ErrInvalidDeposit, Status: http.StatusBadRequest, Title: "Invalid Deposit"},
	{Err: custody.ErrDuplicateDeposit, Status: http.StatusConflict, Title: "Duplicate Deposit"},
	{Err: custody.ErrBalanceOverflow, Status: http.StatusUnprocessableEntity, Title: "Balance Overflow"},
	{Err: shared.ErrIdempotencyConflict, Status: http.StatusConflict, Title: "Duplicate Request"},
	{Err: shared.ErrLockNotAcquired, Status: http.StatusServiceUnavailable, Title: "Vault Busy"},
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, vault.ErrTransferFailed) {
		h.logger.Error("asset transfer failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Transfer Failed", vault.ErrTransferFailed.Error())
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.Err) {
			httpx.RespondError(w, err, errorMappings...)
			return
		}
	}
	if errors.Is(err, httpx.ErrValidation) {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Error("vault request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
