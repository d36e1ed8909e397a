package sweeper

import (
	"context"

	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// ExpiryPolicy decides whether an expired draft may be reclaimed. It is the hook for
// rules such as holding drafts that have open reports.
type ExpiryPolicy interface {
	ShouldReclaim(ctx context.Context, asset *simpleasset.Asset) (bool, error)
}

// ExpiryPolicyFunc adapts a function to ExpiryPolicy.
type ExpiryPolicyFunc func(ctx context.Context, asset *simpleasset.Asset) (bool, error)

func (f ExpiryPolicyFunc) ShouldReclaim(ctx context.Context, asset *simpleasset.Asset) (bool, error) {
	return f(ctx, asset)
}

// AllowAll reclaims every expired draft.
var AllowAll ExpiryPolicy = ExpiryPolicyFunc(func(context.Context, *simpleasset.Asset) (bool, error) {
	return true, nil
})

// Locker guards a sweep across processes.
type Locker interface {
	// TryLock returns ok=false without error when the lock is held elsewhere.
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// NopLocker always grants the lock. Single-instance deployments use it.
type NopLocker struct{}

func (NopLocker) TryLock(context.Context) (func(), bool, error) {
	return func() {}, true, nil
}
