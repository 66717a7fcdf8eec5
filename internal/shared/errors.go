package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates an API key that does not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLockNotAcquired indicates the distributed lock stayed held past the wait budget.
	ErrLockNotAcquired = errors.New("lock not acquired")
)
