package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// SellerModel is the persistence model for the Seller domain entity.
type SellerModel struct {
	ID       string                 `gorm:"type:varchar(64);primaryKey"`
	Platform ingestion.PlatformCode `gorm:"type:varchar(20);not null;index"`
	Status   ingestion.SellerStatus `gorm:"type:varchar(30);not null;default:'active';index"`

	EncryptedRefreshToken string     `gorm:"type:text;not null"`
	AccessTokenCached     string     `gorm:"type:text"`
	AccessTokenExpiresAt  *time.Time `gorm:"type:timestamptz"`

	MarketplaceID string `gorm:"type:varchar(32)"`
	ShopDomain    string `gorm:"type:varchar(255)"`
	Name          string `gorm:"type:varchar(255)"`
	Email         string `gorm:"type:varchar(255)"`

	CreatedAt             time.Time  `gorm:"type:timestamptz;not null"`
	UpdatedAt             time.Time  `gorm:"type:timestamptz;not null"`
	LastTokenRefreshAt    *time.Time `gorm:"type:timestamptz"`
	LastTokenRefreshError string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SellerModel) TableName() string {
	return "sellers"
}

// ToDomain converts the persistence model to a domain Seller entity.
func (m *SellerModel) ToDomain() *ingestion.Seller {
	return &ingestion.Seller{
		ID:                    m.ID,
		Platform:              m.Platform,
		Status:                m.Status,
		EncryptedRefreshToken: m.EncryptedRefreshToken,
		AccessTokenCached:     m.AccessTokenCached,
		AccessTokenExpiresAt:  m.AccessTokenExpiresAt,
		MarketplaceID:         m.MarketplaceID,
		ShopDomain:            m.ShopDomain,
		Name:                  m.Name,
		Email:                 m.Email,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
		LastTokenRefreshAt:    m.LastTokenRefreshAt,
		LastTokenRefreshError: m.LastTokenRefreshError,
	}
}

// FromDomain populates the persistence model from a domain Seller entity.
func (m *SellerModel) FromDomain(s *ingestion.Seller) {
	m.ID = s.ID
	m.Platform = s.Platform
	m.Status = s.Status
	m.EncryptedRefreshToken = s.EncryptedRefreshToken
	m.AccessTokenCached = s.AccessTokenCached
	m.AccessTokenExpiresAt = s.AccessTokenExpiresAt
	m.MarketplaceID = s.MarketplaceID
	m.ShopDomain = s.ShopDomain
	m.Name = s.Name
	m.Email = s.Email
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
	m.LastTokenRefreshAt = s.LastTokenRefreshAt
	m.LastTokenRefreshError = s.LastTokenRefreshError
}

// SellerModelFromDomain creates a new persistence model from a domain Seller entity.
func SellerModelFromDomain(s *ingestion.Seller) *SellerModel {
	m := &SellerModel{}
	m.FromDomain(s)
	return m
}

// FetchJobModel is the persistence model for the FetchJob domain entity.
// ItemIDs is stored as a JSON array to keep the submitted order.
type FetchJobModel struct {
	ID       uuid.UUID              `gorm:"type:uuid;primaryKey"`
	Platform ingestion.PlatformCode `gorm:"type:varchar(20);not null;index"`
	SellerID string                 `gorm:"type:varchar(64);not null;index"`
	ItemIDs  string                 `gorm:"type:jsonb;not null;default:'[]'"`

	Status              ingestion.JobStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	TotalItems          int                 `gorm:"not null;default:0"`
	CompletedItems      int                 `gorm:"not null;default:0"`
	FailedItems         int                 `gorm:"not null;default:0"`
	ReviewsFetchedTotal int                 `gorm:"not null;default:0"`

	ErrorMessage string `gorm:"type:text"`
	RequestedBy  string `gorm:"type:varchar(255)"`

	CreatedAt   time.Time  `gorm:"type:timestamptz;not null;index"`
	StartedAt   *time.Time `gorm:"type:timestamptz"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;not null"`
}

// TableName returns the table name for GORM
func (FetchJobModel) TableName() string {
	return "fetch_jobs"
}

// ToDomain converts the persistence model to a domain FetchJob entity.
func (m *FetchJobModel) ToDomain() *ingestion.FetchJob {
	var itemIDs []string
	_ = json.Unmarshal([]byte(m.ItemIDs), &itemIDs)

	return &ingestion.FetchJob{
		ID:                  m.ID,
		Platform:            m.Platform,
		SellerID:            m.SellerID,
		ItemIDs:             itemIDs,
		Status:              m.Status,
		TotalItems:          m.TotalItems,
		CompletedItems:      m.CompletedItems,
		FailedItems:         m.FailedItems,
		ReviewsFetchedTotal: m.ReviewsFetchedTotal,
		ErrorMessage:        m.ErrorMessage,
		RequestedBy:         m.RequestedBy,
		CreatedAt:           m.CreatedAt,
		StartedAt:           m.StartedAt,
		CompletedAt:         m.CompletedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain FetchJob entity.
func (m *FetchJobModel) FromDomain(j *ingestion.FetchJob) {
	itemIDs, _ := json.Marshal(j.ItemIDs)

	m.ID = j.ID
	m.Platform = j.Platform
	m.SellerID = j.SellerID
	m.ItemIDs = string(itemIDs)
	m.Status = j.Status
	m.TotalItems = j.TotalItems
	m.CompletedItems = j.CompletedItems
	m.FailedItems = j.FailedItems
	m.ReviewsFetchedTotal = j.ReviewsFetchedTotal
	m.ErrorMessage = j.ErrorMessage
	m.RequestedBy = j.RequestedBy
	m.CreatedAt = j.CreatedAt
	m.StartedAt = j.StartedAt
	m.CompletedAt = j.CompletedAt
	m.UpdatedAt = j.UpdatedAt
}

// FetchJobModelFromDomain creates a new persistence model from a domain FetchJob entity.
func FetchJobModelFromDomain(j *ingestion.FetchJob) *FetchJobModel {
	m := &FetchJobModel{}
	m.FromDomain(j)
	return m
}

// ItemResultModel is the persistence model for the ItemFetchResult entity.
// RawKeys is stored as a JSON array in page order.
type ItemResultModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	JobID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ItemID   string    `gorm:"type:varchar(128);not null"`
	Position int       `gorm:"not null;default:0"`

	Status       ingestion.ItemStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	ReviewsCount int                  `gorm:"not null;default:0"`
	PagesFetched int                  `gorm:"not null;default:0"`
	RawKeys      string               `gorm:"type:jsonb;not null;default:'[]'"`
	ProcessedKey string               `gorm:"type:text"`
	ErrorMessage string               `gorm:"type:text"`

	StartedAt   *time.Time `gorm:"type:timestamptz"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (ItemResultModel) TableName() string {
	return "item_results"
}

// ToDomain converts the persistence model to a domain ItemFetchResult entity.
func (m *ItemResultModel) ToDomain() *ingestion.ItemFetchResult {
	var rawKeys []string
	_ = json.Unmarshal([]byte(m.RawKeys), &rawKeys)

	return &ingestion.ItemFetchResult{
		ID:           m.ID,
		JobID:        m.JobID,
		ItemID:       m.ItemID,
		Position:     m.Position,
		Status:       m.Status,
		ReviewsCount: m.ReviewsCount,
		PagesFetched: m.PagesFetched,
		RawKeys:      rawKeys,
		ProcessedKey: m.ProcessedKey,
		ErrorMessage: m.ErrorMessage,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain ItemFetchResult entity.
func (m *ItemResultModel) FromDomain(r *ingestion.ItemFetchResult) {
	rawKeys, _ := json.Marshal(r.RawKeys)

	m.ID = r.ID
	m.JobID = r.JobID
	m.ItemID = r.ItemID
	m.Position = r.Position
	m.Status = r.Status
	m.ReviewsCount = r.ReviewsCount
	m.PagesFetched = r.PagesFetched
	m.RawKeys = string(rawKeys)
	m.ProcessedKey = r.ProcessedKey
	m.ErrorMessage = r.ErrorMessage
	m.StartedAt = r.StartedAt
	m.CompletedAt = r.CompletedAt
}

// ItemResultModelFromDomain creates a new persistence model from a domain ItemFetchResult entity.
func ItemResultModelFromDomain(r *ingestion.ItemFetchResult) *ItemResultModel {
	m := &ItemResultModel{}
	m.FromDomain(r)
	return m
}
