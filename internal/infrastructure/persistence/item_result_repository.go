package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/persistence/models"
)

// GormItemResultRepository implements ItemResultRepository using GORM
type GormItemResultRepository struct {
	db *gorm.DB
}

// NewGormItemResultRepository creates a new GormItemResultRepository
func NewGormItemResultRepository(db *gorm.DB) *GormItemResultRepository {
	return &GormItemResultRepository{db: db}
}

// CreateBatch persists the pending rows for a job's items
func (r *GormItemResultRepository) CreateBatch(ctx context.Context, results []*ingestion.ItemFetchResult) error {
	if len(results) == 0 {
		return nil
	}
	resultModels := make([]*models.ItemResultModel, len(results))
	for i, result := range results {
		resultModels[i] = models.ItemResultModelFromDomain(result)
	}
	return r.db.WithContext(ctx).CreateInBatches(resultModels, 100).Error
}

// Update persists an item's outcome
func (r *GormItemResultRepository) Update(ctx context.Context, result *ingestion.ItemFetchResult) error {
	model := models.ItemResultModelFromDomain(result)
	res := r.db.WithContext(ctx).
		Model(&models.ItemResultModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":        model.Status,
			"reviews_count": model.ReviewsCount,
			"pages_fetched": model.PagesFetched,
			"raw_keys":      model.RawKeys,
			"processed_key": model.ProcessedKey,
			"error_message": model.ErrorMessage,
			"started_at":    model.StartedAt,
			"completed_at":  model.CompletedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByJob lists a job's item results in submission order
func (r *GormItemResultRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*ingestion.ItemFetchResult, error) {
	var resultModels []models.ItemResultModel
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("position ASC").
		Find(&resultModels).Error; err != nil {
		return nil, err
	}

	results := make([]*ingestion.ItemFetchResult, len(resultModels))
	for i, model := range resultModels {
		results[i] = model.ToDomain()
	}
	return results, nil
}
