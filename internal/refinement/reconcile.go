package refinement

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/cadence/pkg/models"
)

// ReconcileStats counts the writes made by Reconcile.
type ReconcileStats struct {
	Created int
	Updated int
}

// Reconcile upserts computed clusters against the user's existing rows.
// A computed cluster updates the first existing row with the same label in
// place, otherwise a new row is inserted. Existing rows that no computed
// cluster matches are left untouched. The read-then-write is not atomic.
func Reconcile(ctx context.Context, repo ClusterRepository, userID string, existing []models.HabitCluster, computed []models.ComputedCluster, now time.Time) (ReconcileStats, error) {
	var stats ReconcileStats

	byLabel := make(map[string]int, len(existing))
	for i := range existing {
		if _, ok := byLabel[existing[i].ClusterLabel]; !ok {
			byLabel[existing[i].ClusterLabel] = i
		}
	}

	for _, c := range computed {
		if i, ok := byLabel[c.ClusterLabel]; ok {
			row := existing[i]
			row.ExemplarTitle = c.ExemplarTitle
			row.Embedding = c.Embedding
			row.MemberEventIDs = c.MemberEventIDs
			row.UpdatedAt = now
			if err := repo.UpdateCluster(ctx, &row); err != nil {
				return stats, fmt.Errorf("update cluster %q: %w", c.ClusterLabel, err)
			}
			stats.Updated++
			continue
		}

		row := &models.HabitCluster{
			UserID:         userID,
			ClusterLabel:   c.ClusterLabel,
			ExemplarTitle:  c.ExemplarTitle,
			Embedding:      c.Embedding,
			MemberEventIDs: c.MemberEventIDs,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.CreateCluster(ctx, row); err != nil {
			return stats, fmt.Errorf("create cluster %q: %w", c.ClusterLabel, err)
		}
		stats.Created++
	}
	return stats, nil
}
