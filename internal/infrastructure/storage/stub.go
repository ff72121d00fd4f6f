package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// Ensure InMemoryArtifactStore implements ArtifactStore
var _ ArtifactStore = (*InMemoryArtifactStore)(nil)

// InMemoryArtifactStore keeps artifacts in process memory. It backs
// development setups without an object store and the test suites of the
// layers above. Artifact keys are write-once: a second save under the
// same key is rejected.
type InMemoryArtifactStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// BaseURL is the base URL for generated download URLs
	BaseURL string
}

// NewInMemoryArtifactStore creates an empty InMemoryArtifactStore
func NewInMemoryArtifactStore() *InMemoryArtifactStore {
	return &InMemoryArtifactStore{
		objects: make(map[string][]byte),
		BaseURL: "https://storage.example.com",
	}
}

// SaveRaw persists one raw response page in memory.
func (s *InMemoryArtifactStore) SaveRaw(ctx context.Context, key string, data []byte) error {
	return s.put(key, data)
}

// SaveNormalized persists a normalized artifact in memory.
func (s *InMemoryArtifactStore) SaveNormalized(ctx context.Context, key string, data []byte) error {
	return s.put(key, data)
}

func (s *InMemoryArtifactStore) put(key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("%w: storage key is required", ingestion.ErrStorage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.objects[key]; taken {
		return fmt.Errorf("%w: key already written: %s", ingestion.ErrStorage, key)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = buf
	return nil
}

// Exists reports whether an object was stored under key.
func (s *InMemoryArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("%w: storage key is required", ingestion.ErrStorage)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key]
	return ok, nil
}

// DownloadURL returns a synthetic URL for the stored object.
func (s *InMemoryArtifactStore) DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, fmt.Errorf("%w: storage key is required", ingestion.ErrStorage)
	}

	expiresAt := time.Now().Add(expiresIn)
	url := s.BaseURL + "/download/" + key + "?expires=" + expiresAt.Format(time.RFC3339)
	return url, expiresAt, nil
}

// Get returns the stored bytes for key. Test helper.
func (s *InMemoryArtifactStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	return data, ok
}

// Keys returns all stored keys with the given prefix, sorted. Test helper.
func (s *InMemoryArtifactStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
