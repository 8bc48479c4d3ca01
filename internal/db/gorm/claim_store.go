// Package gorm provides GORM-based database operations for cadence.
package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrClaimTaken is returned when an unexpired claim for the key already exists.
var ErrClaimTaken = errors.New("claim already taken")

// ClaimStore stores run claims: at most one live row per key.
type ClaimStore struct {
	db *gorm.DB
}

// NewClaimStore creates a new claim store.
func NewClaimStore(store *Store) *ClaimStore {
	return &ClaimStore{db: store.DB}
}

// Claim inserts a claim for key owned by token until now+ttl.
// An expired claim for the same key is replaced.
func (s *ClaimStore) Claim(ctx context.Context, key, token string, now time.Time, ttl time.Duration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("claim_key = ? AND expires_at <= ?", key, utc(now)).Delete(&RunClaim{}).Error; err != nil {
			return err
		}

		err := tx.Create(&RunClaim{
			Key:       key,
			Token:     token,
			ClaimedAt: utc(now),
			ExpiresAt: utc(now.Add(ttl)),
		}).Error
		if isUniqueViolation(err) {
			return ErrClaimTaken
		}
		return err
	})
}

// Release deletes the claim if it is still owned by token.
func (s *ClaimStore) Release(ctx context.Context, key, token string) error {
	return s.db.WithContext(ctx).
		Where("claim_key = ? AND token = ?", key, token).
		Delete(&RunClaim{}).Error
}
