package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/persistence/models"
)

// GormSellerRepository implements SellerRepository using GORM
type GormSellerRepository struct {
	db *gorm.DB
}

// NewGormSellerRepository creates a new GormSellerRepository
func NewGormSellerRepository(db *gorm.DB) *GormSellerRepository {
	return &GormSellerRepository{db: db}
}

// Save creates or updates a seller
func (r *GormSellerRepository) Save(ctx context.Context, seller *ingestion.Seller) error {
	seller.UpdatedAt = time.Now()
	if seller.CreatedAt.IsZero() {
		seller.CreatedAt = seller.UpdatedAt
	}
	model := models.SellerModelFromDomain(seller)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByID finds a seller by ID
func (r *GormSellerRepository) FindByID(ctx context.Context, id string) (*ingestion.Seller, error) {
	var model models.SellerModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ingestion.ErrSellerNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateStatus transitions the seller's lifecycle status
func (r *GormSellerRepository) UpdateStatus(ctx context.Context, id string, status ingestion.SellerStatus, cause string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if cause != "" {
		updates["last_token_refresh_error"] = cause
	}
	if status == ingestion.SellerStatusReauthorizeRequired {
		// the cached token is useless once the grant is revoked
		updates["access_token_cached"] = ""
		updates["access_token_expires_at"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.SellerModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ingestion.ErrSellerNotFound
	}
	return nil
}
