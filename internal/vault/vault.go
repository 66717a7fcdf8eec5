package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultLockKey is the distributed lock key used when Params.LockKey is empty.
const DefaultLockKey = "vault:state:lock"

// Params configures a Vault.
type Params struct {
	Full      []Identity
	Partial   []Identity
	Liquidate []Identity
	Delay     time.Duration

	Assets AssetAdapter
	// Store is optional; without it state lives only in memory.
	Store StateStore
	// Locker is optional; it orders operations across replicas sharing Store.
	Locker  Locker
	LockKey string

	Recorders []Recorder
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Vault is the custody vault. Every entry point runs alone: operations are
// serialized, reload persisted state before running, and perform the asset
// transfer as their final step.
type Vault struct {
	// sem is a one-slot semaphore so waiters can give up when ctx ends.
	sem        chan struct{}
	registry   *RoleRegistry
	clock      *LiquidationClock
	authorizer *WithdrawalAuthorizer
	assets     AssetAdapter
	store      StateStore
	locker     Locker
	lockKey    string
	recorders  []Recorder
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a vault. When Store already holds state that state wins
// and the seed lists are ignored.
func New(ctx context.Context, p Params) (*Vault, error) {
	if p.Delay <= 0 {
		return nil, errors.New("vault: liquidation delay must be positive")
	}
	if p.Assets == nil {
		return nil, errors.New("vault: asset adapter required")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	lockKey := p.LockKey
	if lockKey == "" {
		lockKey = DefaultLockKey
	}
	registry := NewRoleRegistry(p.Full, p.Partial, p.Liquidate)
	clock := NewLiquidationClock(p.Delay)
	v := &Vault{
		sem:        make(chan struct{}, 1),
		registry:   registry,
		clock:      clock,
		authorizer: NewWithdrawalAuthorizer(registry, clock, p.Assets),
		assets:     p.Assets,
		store:      p.Store,
		locker:     p.Locker,
		lockKey:    lockKey,
		recorders:  p.Recorders,
		observer:   p.Observer,
		logger:     logger.With(slog.String("component", "vault")),
		now:        now,
	}
	if v.store != nil {
		seeded, err := v.store.Initialize(ctx, Snapshot{Roles: registry.Entries()})
		if err != nil {
			return nil, fmt.Errorf("vault: initialise store: %w", err)
		}
		if !seeded {
			v.logger.Info("restoring persisted vault state; seed lists ignored")
		}
		if err := v.refresh(ctx); err != nil {
			return nil, err
		}
	}
	v.logger.Info("vault ready",
		slog.Int("full", len(registry.Principals(RoleFull))),
		slog.Int("partial", len(registry.Principals(RolePartial))),
		slog.Int("liquidate", len(registry.Principals(RoleLiquidate))),
		slog.Duration("liquidation_delay", p.Delay),
	)
	return v, nil
}

// WithNow overrides the clock for deterministic tests.
func (v *Vault) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// LiquidationDelay returns the fixed delay between arming and triggering.
func (v *Vault) LiquidationDelay() time.Duration {
	return v.clock.Delay()
}

// AddUser assigns role to target. Only PARTIAL and FULL callers may do so.
func (v *Vault) AddUser(ctx context.Context, caller, target Identity, role Role) (err error) {
	defer v.observe(OpAddUser, &err)
	var event Event
	err = v.serialize(ctx, func(ctx context.Context) error {
		if err := v.registry.checkAddUser(caller, target, role); err != nil {
			return err
		}
		if v.store != nil {
			if err := v.store.SaveRole(ctx, target, role); err != nil {
				return fmt.Errorf("vault: persist role: %w", err)
			}
		}
		v.registry.assign(target, role)
		event = Event{Kind: EventRoleAssigned, Caller: caller, Target: target, Role: role, At: v.now()}
		return nil
	})
	if err != nil {
		v.logger.Warn("add user rejected", slog.String("caller", string(caller)), slog.String("target", string(target)), slog.Any("error", err))
		return err
	}
	v.logger.Info("role assigned", slog.String("caller", string(caller)), slog.String("target", string(target)), slog.String("role", role.String()))
	v.record(ctx, event)
	return nil
}

// RoleOf returns the role held by id.
func (v *Vault) RoleOf(ctx context.Context, id Identity) (Role, error) {
	var role Role
	err := v.serialize(ctx, func(context.Context) error {
		role = v.registry.RoleOf(id)
		return nil
	})
	return role, err
}

// Principals lists the identities currently holding role.
func (v *Vault) Principals(ctx context.Context, role Role) ([]Identity, error) {
	var ids []Identity
	err := v.serialize(ctx, func(context.Context) error {
		ids = v.registry.Principals(role)
		return nil
	})
	return ids, err
}

// BeginLiquidation arms the clock at now+delay. Any enrolled role may call it;
// calling it again restarts the delay from now.
func (v *Vault) BeginLiquidation(ctx context.Context, caller Identity) (deadline time.Time, err error) {
	defer v.observe(OpBeginLiquidation, &err)
	err = v.serialize(ctx, func(ctx context.Context) error {
		if err := checkBegin(v.registry.RoleOf(caller)); err != nil {
			return err
		}
		deadline = v.clock.next(v.now())
		if v.store != nil {
			if err := v.store.SaveDeadline(ctx, &deadline); err != nil {
				return fmt.Errorf("vault: persist deadline: %w", err)
			}
		}
		v.clock.set(&deadline)
		return nil
	})
	if err != nil {
		v.logger.Warn("begin liquidation rejected", slog.String("caller", string(caller)), slog.Any("error", err))
		return time.Time{}, err
	}
	v.logger.Warn("liquidation armed", slog.String("caller", string(caller)), slog.Time("deadline", deadline))
	v.record(ctx, Event{Kind: EventLiquidationBegun, Caller: caller, Deadline: deadline, At: v.now()})
	return deadline, nil
}

// CancelLiquidation returns the clock to idle. Only PARTIAL and FULL callers
// may cancel; LIQUIDATE can arm the clock but never disarm it.
func (v *Vault) CancelLiquidation(ctx context.Context, caller Identity) (err error) {
	defer v.observe(OpCancelLiquidation, &err)
	err = v.serialize(ctx, func(ctx context.Context) error {
		if err := checkCancel(v.registry.RoleOf(caller)); err != nil {
			return err
		}
		if v.store != nil {
			if err := v.store.SaveDeadline(ctx, nil); err != nil {
				return fmt.Errorf("vault: persist deadline: %w", err)
			}
		}
		v.clock.set(nil)
		return nil
	})
	if err != nil {
		v.logger.Warn("cancel liquidation rejected", slog.String("caller", string(caller)), slog.Any("error", err))
		return err
	}
	v.logger.Info("liquidation cancelled", slog.String("caller", string(caller)))
	v.record(ctx, Event{Kind: EventLiquidationCancelled, Caller: caller, At: v.now()})
	return nil
}

// CurrentDeadline returns the armed deadline, or MaxTime while idle.
func (v *Vault) CurrentDeadline(ctx context.Context) (time.Time, error) {
	var deadline time.Time
	err := v.serialize(ctx, func(context.Context) error {
		deadline = v.clock.CurrentDeadline()
		return nil
	})
	return deadline, err
}

// NextLiquidation returns the deadline as unix seconds, math.MaxUint64 while idle.
func (v *Vault) NextLiquidation(ctx context.Context) (uint64, error) {
	status, err := v.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.NextLiquidation(), nil
}

// Status describes the liquidation clock as of now.
func (v *Vault) Status(ctx context.Context) (ClockStatus, error) {
	var status ClockStatus
	err := v.serialize(ctx, func(context.Context) error {
		status = v.clock.StatusAt(v.now())
		return nil
	})
	if err == nil && v.observer != nil {
		v.observer.ObserveClock(status)
	}
	return status, err
}

// Withdraw moves native currency out of the pool. FULL only.
func (v *Vault) Withdraw(ctx context.Context, caller Identity, amount uint64, to Identity) error {
	return v.withdraw(ctx, Withdrawal{Path: PathNormal, Caller: caller, Asset: Native, Amount: amount, To: to})
}

// WithdrawToken moves token out of the pool. FULL only.
func (v *Vault) WithdrawToken(ctx context.Context, caller, token Identity, amount uint64, to Identity) error {
	return v.withdraw(ctx, Withdrawal{Path: PathNormal, Caller: caller, Asset: TokenAsset(token), Amount: amount, To: to})
}

// LiquidateWithdraw moves native currency out of the pool through the
// emergency path. LIQUIDATE only, once the clock has triggered.
func (v *Vault) LiquidateWithdraw(ctx context.Context, caller Identity, amount uint64, to Identity) error {
	return v.withdraw(ctx, Withdrawal{Path: PathLiquidation, Caller: caller, Asset: Native, Amount: amount, To: to})
}

// LiquidateWithdrawToken moves token out of the pool through the emergency path.
func (v *Vault) LiquidateWithdrawToken(ctx context.Context, caller, token Identity, amount uint64, to Identity) error {
	return v.withdraw(ctx, Withdrawal{Path: PathLiquidation, Caller: caller, Asset: TokenAsset(token), Amount: amount, To: to})
}

// Execute runs a withdrawal request of either path.
func (v *Vault) Execute(ctx context.Context, w Withdrawal) error {
	return v.withdraw(ctx, w)
}

func (v *Vault) withdraw(ctx context.Context, w Withdrawal) (err error) {
	op := OpWithdraw
	kind := EventWithdrawn
	if w.Path == PathLiquidation {
		op = OpLiquidateWithdraw
		kind = EventLiquidated
	}
	defer v.observe(op, &err)
	err = v.serialize(ctx, func(ctx context.Context) error {
		if err := v.authorizer.Authorize(ctx, w, v.now()); err != nil {
			return err
		}
		if err := v.assets.Transfer(ctx, w.Asset, w.Amount, w.To); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		return nil
	})
	attrs := []any{
		slog.String("path", w.Path.String()),
		slog.String("caller", string(w.Caller)),
		slog.String("asset", w.Asset.String()),
		slog.Uint64("amount", w.Amount),
		slog.String("to", string(w.To)),
	}
	if err != nil {
		v.logger.Warn("withdrawal rejected", append(attrs, slog.Any("error", err))...)
		return err
	}
	v.logger.Info("withdrawal completed", attrs...)
	v.record(ctx, Event{Kind: kind, Caller: w.Caller, Asset: w.Asset, Amount: w.Amount, To: w.To, At: v.now()})
	return nil
}

// serialize runs fn as the only operation in flight, after reloading state.
// The context handed to fn marks the call so nested entry points fail fast.
func (v *Vault) serialize(ctx context.Context, fn func(context.Context) error) error {
	if v.entered(ctx) {
		return ErrReentrantCall
	}
	select {
	case v.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("vault: wait for in-flight operation: %w", ctx.Err())
	}
	defer func() { <-v.sem }()
	if v.locker != nil {
		release, err := v.locker.Acquire(ctx, v.lockKey)
		if err != nil {
			return fmt.Errorf("vault: acquire lock: %w", err)
		}
		defer release()
	}
	if err := v.refresh(ctx); err != nil {
		return err
	}
	return fn(v.guarded(ctx))
}

func (v *Vault) refresh(ctx context.Context) error {
	if v.store == nil {
		return nil
	}
	snap, err := v.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("vault: load state: %w", err)
	}
	v.registry.replace(snap.Roles)
	v.clock.set(snap.Deadline)
	return nil
}

func (v *Vault) record(ctx context.Context, event Event) {
	for _, r := range v.recorders {
		if r == nil {
			continue
		}
		if err := r.RecordEvent(ctx, event); err != nil {
			v.logger.Error("record vault event", slog.String("kind", string(event.Kind)), slog.Any("error", err))
		}
	}
}

func (v *Vault) observe(op Operation, err *error) {
	if v.observer == nil {
		return
	}
	v.observer.ObserveOperation(op, *err)
	if *err == nil && (op == OpBeginLiquidation || op == OpCancelLiquidation) {
		v.observer.ObserveClock(v.clockStatus())
	}
}

func (v *Vault) clockStatus() ClockStatus {
	v.sem <- struct{}{}
	defer func() { <-v.sem }()
	return v.clock.StatusAt(v.now())
}
