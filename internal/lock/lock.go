// Package lock provides run-level claims so that two scheduled runs of the
// same job type never overlap.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrClaimHeld is returned by Acquire when another owner holds an unexpired claim.
var ErrClaimHeld = errors.New("run claim held by another owner")

// Lease is a held claim.
type Lease interface {
	// Token identifies the owner of the claim.
	Token() string
	// Release gives the claim up. Releasing a claim that has already expired
	// and been taken over by another owner leaves the new owner's claim intact.
	Release(ctx context.Context) error
}

// Locker acquires claims keyed by job type.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
