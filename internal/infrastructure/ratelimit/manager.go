package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/config"
)

// Manager hands out one bucket per (seller, platform) pair so one seller's
// traffic never starves another's. Buckets are created lazily with the
// platform's configured rate and kept for the life of the process.
type Manager struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
	cfg     config.RateLimitConfig
}

// NewManager creates a Manager using the configured per-platform rates.
func NewManager(cfg config.RateLimitConfig) *Manager {
	return &Manager{
		buckets: make(map[string]*Bucket),
		cfg:     cfg,
	}
}

func bucketKey(sellerID string, platform ingestion.PlatformCode) string {
	return fmt.Sprintf("%s:%s", platform, sellerID)
}

// bucket returns the bucket for the pair, creating it on first use
func (m *Manager) bucket(sellerID string, platform ingestion.PlatformCode) *Bucket {
	key := bucketKey(sellerID, platform)

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[key]; ok {
		return b
	}
	rate, burst := m.cfg.BucketFor(platform.String())
	b := NewBucket(rate, burst)
	m.buckets[key] = b
	return b
}

// Acquire blocks until the pair's bucket grants a token or ctx is done.
func (m *Manager) Acquire(ctx context.Context, sellerID string, platform ingestion.PlatformCode) error {
	return m.bucket(sellerID, platform).Acquire(ctx)
}

// Throttle installs a provider throttle hold on the pair's bucket.
func (m *Manager) Throttle(sellerID string, platform ingestion.PlatformCode, d time.Duration) {
	m.bucket(sellerID, platform).Throttle(d)
}

// Throttled reports whether the pair's bucket currently holds.
func (m *Manager) Throttled(sellerID string, platform ingestion.PlatformCode) bool {
	return m.bucket(sellerID, platform).Throttled()
}
