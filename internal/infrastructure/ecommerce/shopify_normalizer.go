package ecommerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// ShopifyReviewNormalizer converts raw Shopify review pages into the
// canonical review schema.
type ShopifyReviewNormalizer struct{}

// NewShopifyReviewNormalizer creates a Shopify review normalizer
func NewShopifyReviewNormalizer() *ShopifyReviewNormalizer {
	return &ShopifyReviewNormalizer{}
}

// PlatformCode returns the platform this normalizer handles
func (n *ShopifyReviewNormalizer) PlatformCode() ingestion.PlatformCode {
	return ingestion.PlatformShopify
}

// NormalizePage converts one raw page to canonical reviews
func (n *ShopifyReviewNormalizer) NormalizePage(page *ingestion.RawPage, itemID string) ([]ingestion.Review, error) {
	var envelope ShopifyReviewsResponse
	if err := json.Unmarshal(page.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: shopify page %d: %v", ingestion.ErrNormalization, page.PageNumber, err)
	}

	reviews := make([]ingestion.Review, 0, len(envelope.Reviews))
	for i, raw := range envelope.Reviews {
		if raw.ID == 0 {
			return nil, fmt.Errorf("%w: shopify page %d record %d: missing review id",
				ingestion.ErrNormalization, page.PageNumber, i)
		}
		if raw.Rating < 1 || raw.Rating > 5 {
			return nil, fmt.Errorf("%w: shopify review %d: rating %d out of range",
				ingestion.ErrNormalization, raw.ID, raw.Rating)
		}

		// prefer publication time, fall back to creation time
		dateValue := raw.PublishedAt
		if dateValue == "" {
			dateValue = raw.CreatedAt
		}
		reviewDate, err := time.Parse(time.RFC3339, dateValue)
		if err != nil {
			return nil, fmt.Errorf("%w: shopify review %d: unparseable date %q",
				ingestion.ErrNormalization, raw.ID, dateValue)
		}

		reviews = append(reviews, ingestion.Review{
			ReviewID:         strconv.FormatInt(raw.ID, 10),
			ItemID:           itemID,
			Platform:         ingestion.PlatformShopify,
			Reviewer:         raw.Author,
			Rating:           raw.Rating,
			Title:            raw.Title,
			Body:             raw.Body,
			VerifiedPurchase: raw.VerifiedBuyer,
			HelpfulVotes:     raw.UpvotesCount,
			Language:         canonicalLanguage(raw.Locale),
			ReviewDate:       reviewDate,
		})
	}
	return reviews, nil
}
