// Package gorm provides GORM-based database operations for cadence.
package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/cadence/pkg/models"
)

// JobLogStore persists refinement job audit rows.
type JobLogStore struct {
	db *gorm.DB
}

// NewJobLogStore creates a new job log store.
func NewJobLogStore(store *Store) *JobLogStore {
	return &JobLogStore{db: store.DB}
}

// StartJob creates a running job row.
func (s *JobLogStore) StartJob(ctx context.Context, jobType string, at time.Time) (*models.RefinementJobLog, error) {
	row := &RefinementJobLog{
		JobType:   jobType,
		Status:    models.JobStatusRunning,
		StartedAt: utc(at),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return toModelJob(row), nil
}

// CompleteJob marks a running job completed with its processed count.
func (s *JobLogStore) CompleteJob(ctx context.Context, id string, processed int, at time.Time) error {
	return s.finish(ctx, id, map[string]interface{}{
		"status":          models.JobStatusCompleted,
		"processed_count": processed,
		"completed_at":    nullTime(at),
	})
}

// FailJob marks a running job failed with an error message.
func (s *JobLogStore) FailJob(ctx context.Context, id string, message string, at time.Time) error {
	return s.finish(ctx, id, map[string]interface{}{
		"status":        models.JobStatusFailed,
		"error_message": nullString(message),
		"completed_at":  nullTime(at),
	})
}

// finish applies a terminal transition. Only running jobs may transition.
func (s *JobLogStore) finish(ctx context.Context, id string, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&RefinementJobLog{}).
		Where("id = ? AND status = ?", id, models.JobStatusRunning).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		job, err := s.GetJob(ctx, id)
		switch {
		case err != nil:
			return err
		case job == nil:
			return fmt.Errorf("job %s not found", id)
		case job.IsTerminal():
			return fmt.Errorf("job %s already %s", id, job.Status)
		}
		return fmt.Errorf("job %s is not running", id)
	}
	return nil
}

// GetJob retrieves a job by id. Returns nil if not found.
func (s *JobLogStore) GetJob(ctx context.Context, id string) (*models.RefinementJobLog, error) {
	var row RefinementJobLog
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelJob(&row), nil
}

// ListRecentJobs returns the latest jobs, newest first.
func (s *JobLogStore) ListRecentJobs(ctx context.Context, limit int) ([]*models.RefinementJobLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RefinementJobLog
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*models.RefinementJobLog, len(rows))
	for i := range rows {
		out[i] = toModelJob(&rows[i])
	}
	return out, nil
}
