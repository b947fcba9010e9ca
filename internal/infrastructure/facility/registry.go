package facility

import (
	"sort"
	"sync"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// Registry implements FacilityAdapterRegistry
type Registry struct {
	mu       sync.RWMutex
	adapters map[integration.PlatformCode]integration.FacilityAdapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...integration.FacilityAdapter) *Registry {
	r := &Registry{adapters: make(map[integration.PlatformCode]integration.FacilityAdapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any adapter for the same platform
func (r *Registry) Register(adapter integration.FacilityAdapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.PlatformCode()] = adapter
}

// Get returns the adapter for a platform
func (r *Registry) Get(code integration.PlatformCode) (integration.FacilityAdapter, error) {
	if !code.IsValid() {
		return nil, integration.ErrPlatformNotSupported
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, integration.ErrPlatformNotEnabled
	}
	return adapter, nil
}

// OrderSource returns the adapter for a platform when it can import orders
func (r *Registry) OrderSource(code integration.PlatformCode) (integration.OrderSource, error) {
	adapter, err := r.Get(code)
	if err != nil {
		return nil, err
	}
	source, ok := adapter.(integration.OrderSource)
	if !ok {
		return nil, integration.ErrPlatformNotSupported
	}
	return source, nil
}

// Platforms returns all registered platform codes, sorted
func (r *Registry) Platforms() []integration.PlatformCode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]integration.PlatformCode, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Ensure Registry implements FacilityAdapterRegistry
var _ integration.FacilityAdapterRegistry = (*Registry)(nil)
