// Package gorm provides GORM-based database operations for cadence.
package gorm

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/cadence/pkg/models"
)

// GORM Models

// User is the part of the user directory the refinement engine reads and stamps.
type User struct {
	ID                   string `gorm:"primaryKey;type:text"`
	HabitLearningEnabled bool   `gorm:"not null;default:false;index"`
	LastRefinementAt     sql.NullTime
	CreatedAt            time.Time
}

func (User) TableName() string { return "users" }

// CalendarAction is one row of the append-only calendar action log.
type CalendarAction struct {
	ID         string            `gorm:"primaryKey;type:text"`
	UserID     string            `gorm:"type:text;not null;index:idx_actions_user_recorded,priority:1"`
	EventTitle string            `gorm:"type:text;not null"`
	EventStart time.Time         `gorm:"not null"`
	EventEnd   time.Time         `gorm:"not null"`
	ActionType models.ActionType `gorm:"type:text;check:action_type IN ('created', 'updated', 'accepted', 'deleted');not null"`
	RecordedAt time.Time         `gorm:"not null;index:idx_actions_user_recorded,priority:2,sort:desc"`
}

func (CalendarAction) TableName() string { return "calendar_actions" }

// BeforeCreate hook to ensure RecordedAt is set.
func (a *CalendarAction) BeforeCreate(tx *gorm.DB) error {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now().UTC()
	}
	return nil
}

// HabitCluster is a persisted inferred habit. ClusterLabel is the reconciliation
// key and is deliberately not unique.
type HabitCluster struct {
	ID             string                 `gorm:"primaryKey;type:text"`
	UserID         string                 `gorm:"type:text;not null;index:idx_clusters_user_label,priority:1"`
	ClusterLabel   string                 `gorm:"type:text;not null;index:idx_clusters_user_label,priority:2"`
	ExemplarTitle  string                 `gorm:"type:text;not null"`
	Embedding      models.Vector          `gorm:"type:text"` // JSON array
	MemberEventIDs models.JSONStringArray `gorm:"type:text"` // JSON array
	CreatedAt      time.Time              `gorm:"not null"`
	UpdatedAt      time.Time              `gorm:"not null"`
}

func (HabitCluster) TableName() string { return "habit_clusters" }

// BeforeCreate hook to ensure id and timestamps are set.
func (c *HabitCluster) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return nil
}

// RefinementJobLog is one audit row per scheduled run.
type RefinementJobLog struct {
	ID             string           `gorm:"primaryKey;type:text"`
	JobType        string           `gorm:"type:text;not null;index"`
	Status         models.JobStatus `gorm:"type:text;check:status IN ('running', 'completed', 'failed');default:'running';index"`
	StartedAt      time.Time        `gorm:"not null;index:idx_job_logs_started,sort:desc"`
	CompletedAt    sql.NullTime
	ProcessedCount int `gorm:"not null;default:0"`
	ErrorMessage   sql.NullString
}

func (RefinementJobLog) TableName() string { return "refinement_job_logs" }

// BeforeCreate hook to ensure id and start time are set.
func (j *RefinementJobLog) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now().UTC()
	}
	return nil
}

// RunClaim marks a run of one job type as in progress until ExpiresAt.
type RunClaim struct {
	Key       string    `gorm:"primaryKey;column:claim_key;type:text"`
	Token     string    `gorm:"type:text;not null"`
	ClaimedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (RunClaim) TableName() string { return "run_claims" }

func toModelAction(a *CalendarAction) (models.ActionRecord, error) {
	actionType, err := models.ParseActionType(string(a.ActionType))
	if err != nil {
		return models.ActionRecord{}, fmt.Errorf("action %s: %w", a.ID, err)
	}
	return models.ActionRecord{
		ID:         a.ID,
		UserID:     a.UserID,
		EventTitle: a.EventTitle,
		EventStart: a.EventStart,
		EventEnd:   a.EventEnd,
		ActionType: actionType,
		RecordedAt: a.RecordedAt,
	}, nil
}

func toModelCluster(c *HabitCluster) models.HabitCluster {
	return models.HabitCluster{
		ID:             c.ID,
		UserID:         c.UserID,
		ClusterLabel:   c.ClusterLabel,
		ExemplarTitle:  c.ExemplarTitle,
		Embedding:      c.Embedding,
		MemberEventIDs: []string(c.MemberEventIDs),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func toModelJob(j *RefinementJobLog) *models.RefinementJobLog {
	out := &models.RefinementJobLog{
		ID:             j.ID,
		JobType:        j.JobType,
		Status:         j.Status,
		StartedAt:      j.StartedAt,
		ProcessedCount: j.ProcessedCount,
		ErrorMessage:   j.ErrorMessage.String,
	}
	if j.CompletedAt.Valid {
		t := j.CompletedAt.Time
		out.CompletedAt = &t
	}
	return out
}

func toModelUser(u *User) models.User {
	out := models.User{
		ID:            u.ID,
		HabitLearning: u.HabitLearningEnabled,
	}
	if u.LastRefinementAt.Valid {
		t := u.LastRefinementAt.Time
		out.LastRefinementAt = &t
	}
	return out
}
