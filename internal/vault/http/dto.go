package vaulthttp

import (
	"time"

	"github.com/odyssey-erp/custody-vault/internal/custody"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

type addUserRequest struct {
	Principal string `json:"principal" validate:"required,max=256"`
	Role      string `json:"role" validate:"required"`
}

type withdrawRequest struct {
	Token  string `json:"token" validate:"max=256"`
	Amount uint64 `json:"amount"`
	To     string `json:"to" validate:"max=256"`
}

type depositRequest struct {
	Token     string `json:"token" validate:"max=256"`
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference" validate:"max=128"`
}

type principalResponse struct {
	Principal string     `json:"principal"`
	Role      vault.Role `json:"role"`
}

type principalListResponse struct {
	Role       vault.Role `json:"role"`
	Principals []string   `json:"principals"`
}

type withdrawalResponse struct {
	Operation string `json:"operation"`
	Asset     string `json:"asset"`
	Amount    uint64 `json:"amount"`
	To        string `json:"to"`
}

// statusResponse renders the liquidation clock. The idle deadline is not
// representable as an RFC3339 timestamp, so Deadline is null when idle and
// DeadlineUnix carries the maximal sentinel.
type statusResponse struct {
	Armed            bool       `json:"armed"`
	Triggered        bool       `json:"triggered"`
	Deadline         *time.Time `json:"deadline"`
	DeadlineUnix     uint64     `json:"deadline_unix"`
	DelaySeconds     int64      `json:"delay_seconds"`
	RemainingSeconds int64      `json:"remaining_seconds"`
}

type balanceResponse struct {
	Asset     string     `json:"asset"`
	Amount    uint64     `json:"amount"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type depositResponse struct {
	ID        string          `json:"id"`
	Asset     string          `json:"asset"`
	Amount    uint64          `json:"amount"`
	From      string          `json:"from"`
	Reference string          `json:"reference,omitempty"`
	At        time.Time       `json:"at"`
	Balance   balanceResponse `json:"balance"`
}

func newStatusResponse(status vault.ClockStatus) statusResponse {
	resp := statusResponse{
		Armed:            status.Armed,
		Triggered:        status.Triggered,
		DeadlineUnix:     status.NextLiquidation(),
		DelaySeconds:     int64(status.Delay / time.Second),
		RemainingSeconds: int64(status.Remaining / time.Second),
	}
	if status.Armed {
		deadline := status.Deadline.UTC()
		resp.Deadline = &deadline
	}
	return resp
}

func newBalanceResponse(bal custody.Balance) balanceResponse {
	resp := balanceResponse{Asset: bal.Asset.String(), Amount: bal.Amount}
	if !bal.UpdatedAt.IsZero() {
		updated := bal.UpdatedAt.UTC()
		resp.UpdatedAt = &updated
	}
	return resp
}
