package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRawPageKey(t *testing.T) {
	fetchedAt := time.Date(2026, time.August, 31, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		platform string
		sellerID string
		itemID   string
		jobID    string
		page     int
		want     string
	}{
		{
			name:     "amazon asin",
			platform: "amazon",
			sellerID: "seller-123",
			itemID:   "B000TEST99",
			jobID:    "0b5cfb3a-5e52-4d9a-a7a8-4f2c0b0a9a01",
			page:     1,
			want:     "raw/amazon/seller-123/B000TEST99/2026/08/31/0b5cfb3a-5e52-4d9a-a7a8-4f2c0b0a9a01/1.json",
		},
		{
			name:     "shopify product id multi-digit page",
			platform: "shopify",
			sellerID: "demo-shop.myshopify.com",
			itemID:   "632910392",
			jobID:    "job-7",
			page:     12,
			want:     "raw/shopify/demo-shop.myshopify.com/632910392/2026/08/31/job-7/12.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RawPageKey(tt.platform, tt.sellerID, tt.itemID, fetchedAt, tt.jobID, tt.page)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessedKey(t *testing.T) {
	fetchedAt := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)

	got := ProcessedKey("amazon", "seller-123", "B000TEST99", fetchedAt, "job-1")
	assert.Equal(t, "processed/amazon/seller-123/B000TEST99/2026/01/05/job-1.json", got)
}

func TestKeyDatesAreUTC(t *testing.T) {
	// 23:30 on Aug 30 in UTC-5 is already Aug 31 in UTC.
	loc := time.FixedZone("UTC-5", -5*60*60)
	fetchedAt := time.Date(2026, time.August, 30, 23, 30, 0, 0, loc)

	raw := RawPageKey("amazon", "s", "i", fetchedAt, "j", 1)
	assert.Contains(t, raw, "/2026/08/31/")

	processed := ProcessedKey("amazon", "s", "i", fetchedAt, "j")
	assert.Contains(t, processed, "/2026/08/31/")
}

func TestKeysAreDeterministic(t *testing.T) {
	fetchedAt := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

	a := RawPageKey("amazon", "s1", "i1", fetchedAt, "j1", 3)
	b := RawPageKey("amazon", "s1", "i1", fetchedAt.Add(5*time.Hour), "j1", 3)
	assert.Equal(t, a, b, "same day yields same key regardless of time of day")

	c := RawPageKey("amazon", "s1", "i1", fetchedAt, "j2", 3)
	assert.NotEqual(t, a, c, "a new job id yields a fresh key, never overwriting history")
}
