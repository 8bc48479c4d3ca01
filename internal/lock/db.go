package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thebtf/cadence/internal/db/gorm"
)

// ClaimStore persists claim rows. Implemented by gorm.ClaimStore.
type ClaimStore interface {
	Claim(ctx context.Context, key, token string, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, token string) error
}

// DBLocker claims runs through a unique marker row in the database.
type DBLocker struct {
	store ClaimStore
	now   func() time.Time
}

// NewDBLocker creates a locker backed by the claim table.
func NewDBLocker(store ClaimStore) *DBLocker {
	return &DBLocker{store: store, now: time.Now}
}

// Acquire inserts a claim row for key. An expired row is taken over.
func (l *DBLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	err := l.store.Claim(ctx, key, token, l.now(), ttl)
	if errors.Is(err, gorm.ErrClaimTaken) {
		return nil, ErrClaimHeld
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	return &dbLease{store: l.store, key: key, token: token}, nil
}

type dbLease struct {
	store ClaimStore
	key   string
	token string
}

func (l *dbLease) Token() string { return l.token }

func (l *dbLease) Release(ctx context.Context) error {
	return l.store.Release(ctx, l.key, l.token)
}
