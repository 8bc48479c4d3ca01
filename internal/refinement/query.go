package refinement

import (
	"context"
	"fmt"

	"github.com/thebtf/cadence/internal/habits"
	"github.com/thebtf/cadence/pkg/models"
)

// Clusters returns the persisted habit clusters of a user.
func (o *Orchestrator) Clusters(ctx context.Context, userID string) ([]models.HabitCluster, error) {
	return o.deps.Clusters.ListByUser(ctx, userID)
}

// Patterns extracts recurrence patterns from the user's current action window.
func (o *Orchestrator) Patterns(ctx context.Context, userID string) ([]models.RecurrencePattern, error) {
	actions, err := o.deps.Actions.ListQualifyingSince(ctx, userID, o.now().Add(-o.window))
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	return habits.ExtractPatterns(actions), nil
}
