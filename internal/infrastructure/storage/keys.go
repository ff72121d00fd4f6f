package storage

import (
	"fmt"
	"time"
)

// Artifact keys are deterministic: any consumer can rebuild them from
// (platform, sellerID, itemID, fetch date, jobID) alone. The date
// segments always use UTC so the same fetch never lands under two
// different day prefixes.
//
//	raw/{platform}/{sellerId}/{itemId}/{yyyy}/{mm}/{dd}/{jobId}/{page}.json
//	processed/{platform}/{sellerId}/{itemId}/{yyyy}/{mm}/{dd}/{jobId}.json

// RawPageKey returns the object key for one raw response page.
func RawPageKey(platform, sellerID, itemID string, fetchedAt time.Time, jobID string, pageNumber int) string {
	return fmt.Sprintf("raw/%s/%s/%s/%s/%s/%d.json",
		platform, sellerID, itemID, datePrefix(fetchedAt), jobID, pageNumber)
}

// ProcessedKey returns the object key for the normalized artifact of one item.
func ProcessedKey(platform, sellerID, itemID string, fetchedAt time.Time, jobID string) string {
	return fmt.Sprintf("processed/%s/%s/%s/%s/%s.json",
		platform, sellerID, itemID, datePrefix(fetchedAt), jobID)
}

func datePrefix(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d/%02d/%02d", t.Year(), int(t.Month()), t.Day())
}
