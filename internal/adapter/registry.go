package adapter

import (
	"fmt"
	"sync"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Factory builds an adapter instance for one (platform, firm) pairing.
type Factory func() Adapter

// Registry resolves (platform, firm) to an adapter instance. Real mode uses
// one lazily built instance per pairing; mock mode registers a shared
// singleton for every pairing. The registry is built once at startup and not
// mutated by request paths, so lookups take only a read lock.
type Registry struct {
	mu        sync.RWMutex
	factories map[registryKey]Factory
	instances map[registryKey]Adapter
}

type registryKey struct {
	platform domain.Platform
	firm     domain.Firm
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[registryKey]Factory),
		instances: make(map[registryKey]Adapter),
	}
}

// Register installs a factory for the pairing. Later registrations replace
// earlier ones.
func (r *Registry) Register(platform domain.Platform, firm domain.Firm, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{platform: platform, firm: firm}
	r.factories[key] = f
	delete(r.instances, key)
}

// RegisterShared installs the same pre-built instance for every listed firm
// on the platform (mock mode).
func (r *Registry) RegisterShared(platform domain.Platform, firms []domain.Firm, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, firm := range firms {
		key := registryKey{platform: platform, firm: firm}
		r.instances[key] = a
		delete(r.factories, key)
	}
}

// Get resolves the pairing to its adapter instance, building it on first use.
// Fails with domain.ErrUnknownAdapter when no mapping exists.
func (r *Registry) Get(platform domain.Platform, firm domain.Firm) (Adapter, error) {
	key := registryKey{platform: platform, firm: firm}

	r.mu.RLock()
	if a, ok := r.instances[key]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.instances[key]; ok {
		return a, nil
	}
	f, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("adapter: %s/%s: %w", platform, firm, domain.ErrUnknownAdapter)
	}
	a := f()
	r.instances[key] = a
	return a, nil
}

// Pairings returns every registered (platform, firm) combination.
func (r *Registry) Pairings() []struct {
	Platform domain.Platform
	Firm     domain.Firm
} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[registryKey]struct{}, len(r.factories)+len(r.instances))
	for k := range r.factories {
		seen[k] = struct{}{}
	}
	for k := range r.instances {
		seen[k] = struct{}{}
	}

	out := make([]struct {
		Platform domain.Platform
		Firm     domain.Firm
	}, 0, len(seen))
	for k := range seen {
		out = append(out, struct {
			Platform domain.Platform
			Firm     domain.Firm
		}{Platform: k.platform, Firm: k.firm})
	}
	return out
}
