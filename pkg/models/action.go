package models

import (
	"fmt"
	"time"
)

// ActionType is the kind of interaction a user had with a calendar event.
type ActionType string

const (
	ActionCreated  ActionType = "created"
	ActionUpdated  ActionType = "updated"
	ActionAccepted ActionType = "accepted"
	ActionDeleted  ActionType = "deleted"
)

// QualifyingActionTypes are the action types that feed habit learning.
// Deletions are recorded by the calendar subsystem but never mined.
var QualifyingActionTypes = []ActionType{ActionCreated, ActionUpdated, ActionAccepted}

// ParseActionType validates a raw action type read from storage.
func ParseActionType(s string) (ActionType, error) {
	switch t := ActionType(s); t {
	case ActionCreated, ActionUpdated, ActionAccepted, ActionDeleted:
		return t, nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// ActionRecord is an immutable log entry of a user interacting with a calendar event.
type ActionRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	EventTitle string     `json:"event_title"`
	EventStart time.Time  `json:"event_start"`
	EventEnd   time.Time  `json:"event_end"`
	ActionType ActionType `json:"action_type"`
	RecordedAt time.Time  `json:"recorded_at"`
}
