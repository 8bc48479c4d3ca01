// Package gorm provides GORM-based database operations for cadence.
package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/cadence/pkg/models"
)

// UserStore provides user directory operations used by habit refinement.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a new user store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{db: store.DB}
}

// Save inserts or updates a user's opt-in flag.
func (s *UserStore) Save(ctx context.Context, userID string, habitLearning bool) error {
	row := &User{ID: userID, HabitLearningEnabled: habitLearning, CreatedAt: utc(time.Now())}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"habit_learning_enabled"}),
		}).
		Create(row).Error
}

// ListOptedIn returns every user with habit learning enabled, ordered by id.
func (s *UserStore) ListOptedIn(ctx context.Context) ([]models.User, error) {
	var rows []User
	err := s.db.WithContext(ctx).
		Where("habit_learning_enabled = ?", true).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.User, len(rows))
	for i := range rows {
		out[i] = toModelUser(&rows[i])
	}
	return out, nil
}

// GetUser retrieves a user by id. Returns nil if not found.
func (s *UserStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var row User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := toModelUser(&row)
	return &u, nil
}

// MarkRefined stamps the user's last refinement time.
func (s *UserStore) MarkRefined(ctx context.Context, userID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Update("last_refinement_at", nullTime(at)).Error
}
