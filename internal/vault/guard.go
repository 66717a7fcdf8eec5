package vault

import "context"

type guardKey struct{}

// Locker serializes vault operations across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// entered reports whether ctx was derived inside an operation of v.
func (v *Vault) entered(ctx context.Context) bool {
	held, _ := ctx.Value(guardKey{}).(*Vault)
	return held == v
}

func (v *Vault) guarded(ctx context.Context) context.Context {
	return context.WithValue(ctx, guardKey{}, v)
}
