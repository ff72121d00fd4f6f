package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/persistence/models"
)

// GormFetchJobRepository implements FetchJobRepository using GORM
type GormFetchJobRepository struct {
	db *gorm.DB
}

// NewGormFetchJobRepository creates a new GormFetchJobRepository
func NewGormFetchJobRepository(db *gorm.DB) *GormFetchJobRepository {
	return &GormFetchJobRepository{db: db}
}

// Create persists a new pending job
func (r *GormFetchJobRepository) Create(ctx context.Context, job *ingestion.FetchJob) error {
	model := models.FetchJobModelFromDomain(job)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds a job by ID
func (r *GormFetchJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*ingestion.FetchJob, error) {
	var model models.FetchJobModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ingestion.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// MarkStarted transitions PENDING -> RUNNING, recording the start time.
// The WHERE clause on status makes the transition idempotent under races.
func (r *GormFetchJobRepository) MarkStarted(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.FetchJobModel{}).
		Where("id = ? AND status = ?", id, ingestion.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     ingestion.JobStatusRunning,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ingestion.ErrJobInvalidTransition
	}
	return nil
}

// RecordItemOutcome atomically increments the counters for one finished
// item. Increments run as SQL expressions so concurrent item workers never
// lose an update.
func (r *GormFetchJobRepository) RecordItemOutcome(ctx context.Context, id uuid.UUID, success bool, reviews int) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if success {
		updates["completed_items"] = gorm.Expr("completed_items + 1")
		updates["reviews_fetched_total"] = gorm.Expr("reviews_fetched_total + ?", reviews)
	} else {
		updates["failed_items"] = gorm.Expr("failed_items + 1")
	}

	result := r.db.WithContext(ctx).
		Model(&models.FetchJobModel{}).
		Where("id = ? AND completed_items + failed_items < total_items", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ingestion.ErrJobInvalidTransition
	}
	return nil
}

// Finalize writes the job's terminal status
func (r *GormFetchJobRepository) Finalize(ctx context.Context, job *ingestion.FetchJob) error {
	result := r.db.WithContext(ctx).
		Model(&models.FetchJobModel{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":        job.Status,
			"error_message": job.ErrorMessage,
			"completed_at":  job.CompletedAt,
			"updated_at":    job.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ingestion.ErrJobNotFound
	}
	return nil
}

// ListBySeller lists the seller's jobs. Sort inputs are whitelisted,
// defaulting to created_at DESC.
func (r *GormFetchJobRepository) ListBySeller(ctx context.Context, sellerID string, limit, offset int, orderBy, orderDir string) ([]*ingestion.FetchJob, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.FetchJobModel{}).
		Where("seller_id = ?", sellerID)

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	sortField := ValidateSortField(orderBy, FetchJobSortFields, "created_at")
	sortOrder := ValidateSortOrder(orderDir)

	var jobModels []models.FetchJobModel
	if err := query.Order(sortField + " " + sortOrder).Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*ingestion.FetchJob, len(jobModels))
	for i, model := range jobModels {
		jobs[i] = model.ToDomain()
	}
	return jobs, totalCount, nil
}
