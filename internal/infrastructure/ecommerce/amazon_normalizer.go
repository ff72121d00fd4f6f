package ecommerce

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// AmazonReviewNormalizer converts raw Amazon review pages into the
// canonical review schema.
type AmazonReviewNormalizer struct{}

// NewAmazonReviewNormalizer creates an Amazon review normalizer
func NewAmazonReviewNormalizer() *AmazonReviewNormalizer {
	return &AmazonReviewNormalizer{}
}

// PlatformCode returns the platform this normalizer handles
func (n *AmazonReviewNormalizer) PlatformCode() ingestion.PlatformCode {
	return ingestion.PlatformAmazon
}

// NormalizePage converts one raw page to canonical reviews. Records missing
// a review id or carrying an out-of-range rating fail the whole page; a
// malformed record must never slip into storage silently.
func (n *AmazonReviewNormalizer) NormalizePage(page *ingestion.RawPage, itemID string) ([]ingestion.Review, error) {
	var envelope AmazonReviewsResponse
	if err := json.Unmarshal(page.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: amazon page %d: %v", ingestion.ErrNormalization, page.PageNumber, err)
	}
	if envelope.Payload == nil {
		return nil, fmt.Errorf("%w: amazon page %d: missing payload", ingestion.ErrNormalization, page.PageNumber)
	}

	reviews := make([]ingestion.Review, 0, len(envelope.Payload.Reviews))
	for i, raw := range envelope.Payload.Reviews {
		if raw.ReviewID == "" {
			return nil, fmt.Errorf("%w: amazon page %d record %d: missing review id",
				ingestion.ErrNormalization, page.PageNumber, i)
		}
		if raw.Rating < 1 || raw.Rating > 5 {
			return nil, fmt.Errorf("%w: amazon review %s: rating %d out of range",
				ingestion.ErrNormalization, raw.ReviewID, raw.Rating)
		}
		reviewDate, err := parseReviewDate(raw.ReviewDate)
		if err != nil {
			return nil, fmt.Errorf("%w: amazon review %s: %v", ingestion.ErrNormalization, raw.ReviewID, err)
		}

		reviews = append(reviews, ingestion.Review{
			ReviewID:         raw.ReviewID,
			ItemID:           itemID,
			Platform:         ingestion.PlatformAmazon,
			Reviewer:         raw.ReviewerName,
			Rating:           raw.Rating,
			Title:            raw.Title,
			Body:             raw.Content,
			VerifiedPurchase: raw.VerifiedPurchase,
			HelpfulVotes:     raw.HelpfulVotes,
			Language:         canonicalLanguage(raw.Language),
			ReviewDate:       reviewDate,
		})
	}
	return reviews, nil
}

// parseReviewDate accepts the date forms the API has been observed to emit
func parseReviewDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable review date %q", value)
}

// canonicalLanguage normalizes a provider language code to a canonical
// BCP 47 tag; unrecognized values are dropped rather than stored verbatim.
func canonicalLanguage(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return tag.String()
}
