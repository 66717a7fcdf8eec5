// Package custody holds the pooled balances a vault releases. It is the
// asset adapter the vault authorises against and the place deposits land.
package custody

import (
	"errors"
	"time"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

var (
	// ErrInsufficientFunds is returned when a debit would take a pool below zero.
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	// ErrBalanceOverflow is returned when a credit would exceed the uint64 range.
	ErrBalanceOverflow = errors.New("custody: balance overflow")
	// ErrDuplicateDeposit is returned when a deposit reference was already credited.
	ErrDuplicateDeposit = errors.New("custody: duplicate deposit reference")
	// ErrInvalidDeposit is returned for zero amounts or missing depositors.
	ErrInvalidDeposit = errors.New("custody: invalid deposit")
)

// Deposit is an inbound credit to one asset pool.
type Deposit struct {
	ID        string
	Asset     vault.Asset
	Amount    uint64
	From      string
	Reference string
	At        time.Time
}

// TransferRecord is an outbound debit executed on behalf of the vault.
type TransferRecord struct {
	ID     string
	Asset  vault.Asset
	Amount uint64
	To     vault.Identity
	At     time.Time
}

// Balance is the current holding of one asset pool.
type Balance struct {
	Asset     vault.Asset
	Amount    uint64
	UpdatedAt time.Time
}
