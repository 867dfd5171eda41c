package identity

import (
	"context"
	"sync/atomic"
)

// Permission levels assigned at account creation.
const (
	PermissionStandard = 0
	PermissionAdmin    = 1
)

// Bootstrap caches whether any account has ever been created. The flag is
// monotonic: once it reads true it stays true for the process lifetime, so
// steady-state registrations skip the storage count entirely. The only cost
// is one fresh count per cold start.
//
// The flag is injected into the resolver rather than captured from package
// scope, which makes the pre-bootstrap window reproducible in tests.
type Bootstrap struct {
	passed atomic.Bool
}

func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// MarkPassed latches the flag to true.
func (b *Bootstrap) MarkPassed() {
	b.passed.Store(true)
}

// Passed reports the cached flag without touching storage.
func (b *Bootstrap) Passed() bool {
	return b.passed.Load()
}

// PermissionForNewAccount decides the permission level for an account about
// to be inserted. While the flag is false it re-counts storage: a count of
// zero grants administrator to the new account. Either way the flag latches,
// because an account will exist once the caller's insert lands.
//
// Two concurrent first registrations can both observe a zero count and both
// become administrators. That window exists only before the flag latches and
// is an accepted risk, not guarded by any lock.
func (b *Bootstrap) PermissionForNewAccount(ctx context.Context, store Store) (int, error) {
	if b.passed.Load() {
		return PermissionStandard, nil
	}
	n, err := store.Count(ctx)
	if err != nil {
		return 0, err
	}
	b.passed.Store(true)
	if n == 0 {
		return PermissionAdmin, nil
	}
	return PermissionStandard, nil
}
