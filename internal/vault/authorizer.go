package vault

import (
	"context"
	"fmt"
	"time"
)

// AssetAdapter moves pooled assets and reports pool balances. Transfer must
// propagate ctx to anything it calls back into the vault: a nested call made
// with that ctx fails with ErrReentrantCall. A nested call made with a fresh
// context instead waits for the outer operation, which is waiting on it, so
// it only returns once its own context ends. Without a deadline it hangs.
type AssetAdapter interface {
	BalanceOf(ctx context.Context, asset Asset) (uint64, error)
	Transfer(ctx context.Context, asset Asset, amount uint64, to Identity) error
}

// Path distinguishes the normal withdrawal path from the emergency one.
type Path uint8

const (
	PathNormal Path = iota
	PathLiquidation
)

func (p Path) String() string {
	switch p {
	case PathNormal:
		return "withdraw"
	case PathLiquidation:
		return "liquidate_withdraw"
	default:
		return fmt.Sprintf("Path(%d)", uint8(p))
	}
}

// Withdrawal is a request to move amount of asset out of the pool.
type Withdrawal struct {
	Path   Path
	Caller Identity
	Asset  Asset
	Amount uint64
	To     Identity
}

// WithdrawalAuthorizer decides whether a withdrawal may proceed. It never
// moves funds itself.
type WithdrawalAuthorizer struct {
	registry *RoleRegistry
	clock    *LiquidationClock
	assets   AssetAdapter
}

// NewWithdrawalAuthorizer binds the authorizer to the vault state it reads.
func NewWithdrawalAuthorizer(registry *RoleRegistry, clock *LiquidationClock, assets AssetAdapter) *WithdrawalAuthorizer {
	return &WithdrawalAuthorizer{registry: registry, clock: clock, assets: assets}
}

// Authorize evaluates role, clock, amount and balance, in that order.
func (a *WithdrawalAuthorizer) Authorize(ctx context.Context, w Withdrawal, now time.Time) error {
	role := a.registry.RoleOf(w.Caller)
	if err := checkPath(w.Path, role, a.clock, now); err != nil {
		return err
	}
	if w.Amount == 0 {
		return ErrInvalidAmount
	}
	if !w.To.Valid() {
		return fmt.Errorf("%w: empty recipient", ErrInvalidIdentity)
	}
	balance, err := a.assets.BalanceOf(ctx, w.Asset)
	if err != nil {
		return fmt.Errorf("vault: read %s balance: %w", w.Asset, err)
	}
	if w.Amount > balance {
		return fmt.Errorf("%w: requested %d of %s, pool holds %d", ErrInsufficientBalance, w.Amount, w.Asset, balance)
	}
	return nil
}

func checkPath(path Path, role Role, clock *LiquidationClock, now time.Time) error {
	switch path {
	case PathNormal:
		switch role {
		case RoleFull:
			return nil
		case RoleNone, RoleLiquidate, RolePartial:
			return fmt.Errorf("%w: %s cannot withdraw", ErrUnauthorized, role)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidRole, uint8(role))
		}
	case PathLiquidation:
		switch role {
		case RoleLiquidate:
		case RoleNone, RolePartial, RoleFull:
			return fmt.Errorf("%w: %s cannot liquidate", ErrUnauthorized, role)
		default:
			return fmt.Errorf("%w: %d", ErrInvalidRole, uint8(role))
		}
		if !clock.IsTriggered(now) {
			if deadline, ok := clock.Deadline(); ok {
				return fmt.Errorf("%w: deadline %s", ErrClockNotTriggered, deadline.Format(time.RFC3339))
			}
			return fmt.Errorf("%w: clock idle", ErrClockNotTriggered)
		}
		return nil
	default:
		return fmt.Errorf("vault: unknown withdrawal path %d", uint8(path))
	}
}
