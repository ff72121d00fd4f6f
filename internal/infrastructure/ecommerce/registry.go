// Package ecommerce contains the platform adapters (Amazon, Shopify) and
// the registry that binds them to the orchestration core.
package ecommerce

import (
	"fmt"
	"sort"
	"sync"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// Registry maps platform codes to their capability bundles. Registration
// happens during startup wiring; lookups afterwards are read-mostly and
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	bundles map[ingestion.PlatformCode]*ingestion.CapabilityBundle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		bundles: make(map[ingestion.PlatformCode]*ingestion.CapabilityBundle),
	}
}

// Register installs a platform's capability bundle. All three capabilities
// must be present and agree on the platform code; registering a code twice
// fails with ErrDuplicateRegistration.
func (r *Registry) Register(code ingestion.PlatformCode, bundle *ingestion.CapabilityBundle) error {
	if !code.IsValid() {
		return fmt.Errorf("%w: %s", ingestion.ErrUnknownPlatform, code)
	}
	if bundle == nil || bundle.Auth == nil || bundle.Fetcher == nil || bundle.Normalizer == nil {
		return fmt.Errorf("ingestion: incomplete capability bundle for %s", code)
	}
	for _, got := range []ingestion.PlatformCode{
		bundle.Auth.PlatformCode(),
		bundle.Fetcher.PlatformCode(),
		bundle.Normalizer.PlatformCode(),
	} {
		if got != code {
			return fmt.Errorf("ingestion: capability reports platform %s, registered as %s", got, code)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bundles[code]; exists {
		return fmt.Errorf("%w: %s", ingestion.ErrDuplicateRegistration, code)
	}
	r.bundles[code] = bundle
	return nil
}

// Resolve returns the capability bundle for the code
func (r *Registry) Resolve(code ingestion.PlatformCode) (*ingestion.CapabilityBundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bundle, ok := r.bundles[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrUnknownPlatform, code)
	}
	return bundle, nil
}

// Platforms returns the registered platform codes, sorted for stable output
func (r *Registry) Platforms() []ingestion.PlatformCode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]ingestion.PlatformCode, 0, len(r.bundles))
	for code := range r.bundles {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
