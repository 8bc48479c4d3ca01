package models

import "time"

// JobStatus represents the status of a refinement job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobTypeHabitRefinement is the job type of the scheduled habit refinement run.
const JobTypeHabitRefinement = "habit_refinement"

// RefinementJobLog is the audit row of one scheduled run.
type RefinementJobLog struct {
	ID             string     `json:"id"`
	JobType        string     `json:"job_type"`
	Status         JobStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ProcessedCount int        `json:"processed_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// IsTerminal reports whether the job has finished.
func (j *RefinementJobLog) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
