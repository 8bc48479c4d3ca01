// Package gorm provides GORM-based database operations for cadence.
package gorm

import (
	"context"

	"gorm.io/gorm"

	"github.com/thebtf/cadence/pkg/models"
)

// ClusterStore provides habit cluster persistence.
type ClusterStore struct {
	db *gorm.DB
}

// NewClusterStore creates a new cluster store.
func NewClusterStore(store *Store) *ClusterStore {
	return &ClusterStore{db: store.DB}
}

// ListByUser returns the user's clusters in creation order.
func (s *ClusterStore) ListByUser(ctx context.Context, userID string) ([]models.HabitCluster, error) {
	var rows []HabitCluster
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.HabitCluster, len(rows))
	for i := range rows {
		out[i] = toModelCluster(&rows[i])
	}
	return out, nil
}

// CreateCluster inserts a new cluster and fills in its id and timestamps.
func (s *ClusterStore) CreateCluster(ctx context.Context, cluster *models.HabitCluster) error {
	row := &HabitCluster{
		ID:             cluster.ID,
		UserID:         cluster.UserID,
		ClusterLabel:   cluster.ClusterLabel,
		ExemplarTitle:  cluster.ExemplarTitle,
		Embedding:      cluster.Embedding,
		MemberEventIDs: models.JSONStringArray(cluster.MemberEventIDs),
		CreatedAt:      utc(cluster.CreatedAt),
		UpdatedAt:      utc(cluster.UpdatedAt),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	cluster.ID = row.ID
	cluster.CreatedAt = row.CreatedAt
	cluster.UpdatedAt = row.UpdatedAt
	return nil
}

// UpdateCluster overwrites the mutable fields of an existing cluster in place.
// The write is last-writer-wins; there is no version check.
func (s *ClusterStore) UpdateCluster(ctx context.Context, cluster *models.HabitCluster) error {
	return s.db.WithContext(ctx).
		Model(&HabitCluster{}).
		Where("id = ?", cluster.ID).
		Updates(map[string]interface{}{
			"exemplar_title":   cluster.ExemplarTitle,
			"embedding":        cluster.Embedding,
			"member_event_ids": models.JSONStringArray(cluster.MemberEventIDs),
			"updated_at":       utc(cluster.UpdatedAt),
		}).Error
}

// DeleteByUser removes every cluster belonging to the user and returns the count.
func (s *ClusterStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&HabitCluster{})
	return result.RowsAffected, result.Error
}
