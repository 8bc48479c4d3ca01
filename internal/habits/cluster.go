// Package habits mines recurring activities out of a user's calendar action log.
package habits

import (
	"context"
	"fmt"

	"github.com/thebtf/cadence/internal/embedding"
	"github.com/thebtf/cadence/pkg/models"
	"github.com/thebtf/cadence/pkg/similarity"
)

const (
	// ClusterThreshold is the minimum cosine similarity for joining an existing cluster.
	ClusterThreshold = 0.75

	// MergeThreshold is the minimum cosine similarity for folding two clusters together.
	// It must stay stricter than ClusterThreshold.
	MergeThreshold = 0.85
)

// Cluster groups actions into semantic clusters.
//
// Each distinct title (exact, case-sensitive) is embedded once. Actions are then
// visited in input order and assigned to the first existing cluster whose seed
// embedding reaches ClusterThreshold; otherwise they seed a new cluster. The
// assignment is first-fit and order dependent. A title that already placed an
// action joins the same cluster without another scan, so identical titles always
// share a cluster even when their embedding is degenerate. A cluster's label,
// exemplar and embedding all come from its seed action.
func Cluster(ctx context.Context, provider embedding.Provider, actions []models.ActionRecord) ([]models.ComputedCluster, error) {
	if len(actions) == 0 {
		return []models.ComputedCluster{}, nil
	}

	titles := distinctTitles(actions)
	vectors, err := provider.Embed(ctx, titles)
	if err != nil {
		return nil, fmt.Errorf("embed titles: %w", err)
	}
	if len(vectors) != len(titles) {
		return nil, fmt.Errorf("embed titles: got %d vectors for %d titles: %w", len(vectors), len(titles), embedding.ErrCountMismatch)
	}

	byTitle := make(map[string][]float32, len(titles))
	for i, title := range titles {
		byTitle[title] = vectors[i]
	}

	assigned := make(map[string]bool, len(actions))
	clusterOf := make(map[string]int, len(titles))
	clusters := make([]models.ComputedCluster, 0)

	for _, action := range actions {
		if assigned[action.ID] {
			continue
		}
		assigned[action.ID] = true

		if i, ok := clusterOf[action.EventTitle]; ok {
			clusters[i].MemberEventIDs = append(clusters[i].MemberEventIDs, action.ID)
			continue
		}

		vec := byTitle[action.EventTitle]
		placed := false
		for i := range clusters {
			if similarity.Cosine(clusters[i].Embedding, vec) >= ClusterThreshold {
				clusters[i].MemberEventIDs = append(clusters[i].MemberEventIDs, action.ID)
				clusterOf[action.EventTitle] = i
				placed = true
				break
			}
		}
		if placed {
			continue
		}

		clusterOf[action.EventTitle] = len(clusters)
		clusters = append(clusters, models.ComputedCluster{
			ClusterLabel:   action.EventTitle,
			ExemplarTitle:  action.EventTitle,
			Embedding:      models.Vector(vec),
			MemberEventIDs: []string{action.ID},
		})
	}

	return clusters, nil
}

// distinctTitles returns each title once, in order of first appearance.
func distinctTitles(actions []models.ActionRecord) []string {
	seen := make(map[string]bool, len(actions))
	titles := make([]string, 0, len(actions))
	for _, a := range actions {
		if seen[a.EventTitle] {
			continue
		}
		seen[a.EventTitle] = true
		titles = append(titles, a.EventTitle)
	}
	return titles
}
