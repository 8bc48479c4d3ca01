// Package gorm provides GORM-based database operations for cadence.
package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/cadence/pkg/models"
)

// ActionStore reads the calendar action log.
// The log is written by the calendar subsystem; Append exists for that
// collaborator and for seeding local databases.
type ActionStore struct {
	db *gorm.DB
}

// NewActionStore creates a new action store.
func NewActionStore(store *Store) *ActionStore {
	return &ActionStore{db: store.DB}
}

// Append inserts action records. Existing ids are left untouched.
// A record with an unknown action type rejects the whole call.
func (s *ActionStore) Append(ctx context.Context, actions ...models.ActionRecord) error {
	if len(actions) == 0 {
		return nil
	}
	rows := make([]CalendarAction, len(actions))
	for i, a := range actions {
		if _, err := models.ParseActionType(string(a.ActionType)); err != nil {
			return fmt.Errorf("action %s: %w", a.ID, err)
		}
		rows[i] = CalendarAction{
			ID:         a.ID,
			UserID:     a.UserID,
			EventTitle: a.EventTitle,
			EventStart: utc(a.EventStart),
			EventEnd:   utc(a.EventEnd),
			ActionType: a.ActionType,
			RecordedAt: utc(a.RecordedAt),
		}
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// ListQualifyingSince returns the user's created/updated/accepted actions
// recorded at or after since, newest first.
func (s *ActionStore) ListQualifyingSince(ctx context.Context, userID string, since time.Time) ([]models.ActionRecord, error) {
	var rows []CalendarAction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND recorded_at >= ? AND action_type IN ?", userID, utc(since), models.QualifyingActionTypes).
		Order("recorded_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.ActionRecord, len(rows))
	for i := range rows {
		if out[i], err = toModelAction(&rows[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
