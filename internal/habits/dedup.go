package habits

import (
	"github.com/thebtf/cadence/pkg/models"
	"github.com/thebtf/cadence/pkg/similarity"
)

// Deduplicate merges clusters at MergeThreshold.
func Deduplicate(clusters []models.ComputedCluster) []models.ComputedCluster {
	return MergeSimilar(clusters, MergeThreshold)
}

// MergeSimilar performs a pairwise greedy merge. For every unprocessed cluster i,
// each later unprocessed cluster j whose embedding reaches threshold against i's
// embedding has its members appended to i and is dropped. The surviving cluster
// keeps i's label, exemplar and embedding. The input slice is not modified.
func MergeSimilar(clusters []models.ComputedCluster, threshold float64) []models.ComputedCluster {
	processed := make([]bool, len(clusters))
	result := make([]models.ComputedCluster, 0, len(clusters))

	for i := range clusters {
		if processed[i] {
			continue
		}
		processed[i] = true

		merged := clusters[i]
		merged.MemberEventIDs = append([]string(nil), clusters[i].MemberEventIDs...)

		for j := i + 1; j < len(clusters); j++ {
			if processed[j] {
				continue
			}
			if similarity.Cosine(clusters[i].Embedding, clusters[j].Embedding) >= threshold {
				// Member ids are disjoint across clusters from one pass, so plain concatenation is enough.
				merged.MemberEventIDs = append(merged.MemberEventIDs, clusters[j].MemberEventIDs...)
				processed[j] = true
			}
		}

		result = append(result, merged)
	}

	return result
}
