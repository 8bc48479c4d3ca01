package models

import "time"

// HabitCluster is a persisted group of semantically similar recurring actions.
// Embedding is always the seed vector of the first member, never a centroid.
type HabitCluster struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ClusterLabel   string    `json:"cluster_label"`
	ExemplarTitle  string    `json:"exemplar_title"`
	Embedding      Vector    `json:"embedding,omitempty"`
	MemberEventIDs []string  `json:"member_event_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ComputedCluster is the output of one clustering pass before persistence.
type ComputedCluster struct {
	ClusterLabel   string
	ExemplarTitle  string
	Embedding      Vector
	MemberEventIDs []string
}

// RecurrencePattern is a derived day-of-week/hour-of-day view of one title.
// It is not persisted.
type RecurrencePattern struct {
	Title      string `json:"title"`
	DaysOfWeek []int  `json:"days_of_week"`
	HoursOfDay []int  `json:"hours_of_day"`
	Frequency  int    `json:"frequency"`
}

// User is the subset of the user directory the refinement engine consumes.
type User struct {
	ID               string     `json:"id"`
	HabitLearning    bool       `json:"habit_learning"`
	LastRefinementAt *time.Time `json:"last_refinement_at,omitempty"`
}
