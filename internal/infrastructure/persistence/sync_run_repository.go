package persistence

import (
	"context"
	"fmt"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// defaultRecentRuns is used when FindRecent is called without a positive limit
const defaultRecentRuns = 20

// GormSyncRunRepository implements integration.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Save creates or updates a run log entry
func (r *GormSyncRunRepository) Save(ctx context.Context, run *integration.SyncRun) error {
	model := models.OrderSyncRunModelFromDomain(run)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// FindRecent returns the most recent runs, newest first. An empty channel matches all channels.
func (r *GormSyncRunRepository) FindRecent(ctx context.Context, channel integration.ChannelCode, limit int) ([]integration.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultRecentRuns
	}

	query := r.db.WithContext(ctx).Model(&models.OrderSyncRunModel{})
	if channel != "" {
		query = query.Where("channel = ?", channel)
	}

	var rows []models.OrderSyncRunModel
	if err := query.Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	runs := make([]integration.SyncRun, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, nil
}

var _ integration.SyncRunRepository = (*GormSyncRunRepository)(nil)
