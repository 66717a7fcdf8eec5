package vault

import "errors"

var (
	// ErrUnauthorized indicates the caller's role does not permit the operation.
	ErrUnauthorized = errors.New("vault: unauthorized")
	// ErrClockNotTriggered indicates the emergency path was used while the
	// liquidation clock was idle or before its deadline.
	ErrClockNotTriggered = errors.New("vault: liquidation clock not triggered")
	// ErrInvalidAmount indicates a zero withdrawal amount.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
	// ErrInsufficientBalance indicates the amount exceeds the pool balance.
	ErrInsufficientBalance = errors.New("vault: insufficient pool balance")
	// ErrTransferFailed wraps a failure reported by the asset adapter.
	ErrTransferFailed = errors.New("vault: transfer failed")
	// ErrReentrantCall indicates an entry point was invoked from inside an
	// asset transfer issued by the same vault.
	ErrReentrantCall = errors.New("vault: reentrant call")
	// ErrInvalidRole indicates a role outside the defined levels.
	ErrInvalidRole = errors.New("vault: invalid role")
	// ErrInvalidIdentity indicates an empty principal or recipient.
	ErrInvalidIdentity = errors.New("vault: invalid identity")
)
