package ingestion

import (
	"time"

	"github.com/shopspring/decimal"
)

// Review is the canonical normalized review record. Every platform adapter
// maps its native payload into this shape before storage.
type Review struct {
	// ReviewID is the platform-native review identifier
	ReviewID string `json:"review_id"`
	// ItemID is the reviewed item
	ItemID string `json:"item_id"`
	// Platform is the source platform
	Platform PlatformCode `json:"platform"`
	// Reviewer is the display name of the author, if exposed
	Reviewer string `json:"reviewer"`
	// Rating is the star rating, 1..5
	Rating int `json:"rating"`
	// Title is the review headline
	Title string `json:"title"`
	// Body is the review text
	Body string `json:"body"`
	// VerifiedPurchase indicates a platform-verified purchase
	VerifiedPurchase bool `json:"verified_purchase"`
	// HelpfulVotes is the helpful vote count
	HelpfulVotes int `json:"helpful_votes"`
	// Language is the BCP 47 tag of the review text, if known
	Language string `json:"language,omitempty"`
	// ReviewDate is when the review was posted
	ReviewDate time.Time `json:"review_date"`
}

// ArtifactMeta describes the provenance of one normalized artifact.
type ArtifactMeta struct {
	JobID        string       `json:"job_id"`
	SellerID     string       `json:"seller_id"`
	Platform     PlatformCode `json:"platform"`
	ItemID       string       `json:"item_id"`
	PagesFetched int          `json:"pages_fetched"`
	FetchedAt    time.Time    `json:"fetched_at"`
}

// NormalizedArtifact is the processed output for one item of one job: the
// full normalized review list plus summary aggregates.
type NormalizedArtifact struct {
	Meta          ArtifactMeta    `json:"meta"`
	ReviewCount   int             `json:"review_count"`
	AverageRating decimal.Decimal `json:"average_rating"`
	RatingCounts  map[int]int     `json:"rating_counts"`
	Reviews       []Review        `json:"reviews"`
}

// NewNormalizedArtifact builds the artifact for one item, computing the
// rating aggregates. The average is rounded to two decimal places; an empty
// review list yields a zero average.
func NewNormalizedArtifact(meta ArtifactMeta, reviews []Review) *NormalizedArtifact {
	counts := make(map[int]int, 5)
	sum := decimal.Zero
	for _, r := range reviews {
		counts[r.Rating]++
		sum = sum.Add(decimal.NewFromInt(int64(r.Rating)))
	}
	avg := decimal.Zero
	if len(reviews) > 0 {
		avg = sum.Div(decimal.NewFromInt(int64(len(reviews)))).Round(2)
	}
	return &NormalizedArtifact{
		Meta:          meta,
		ReviewCount:   len(reviews),
		AverageRating: avg,
		RatingCounts:  counts,
		Reviews:       reviews,
	}
}
