package provider

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds the configured providers and resolves model context
// limits for the compaction estimator.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultID string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. The first registered provider becomes the
// default.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaultID == "" {
		r.defaultID = p.ID()
	}
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
	return p, nil
}

// Default returns the default provider.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	id := r.defaultID
	r.mu.RUnlock()
	if id == "" {
		return nil, fmt.Errorf("no providers registered")
	}
	return r.Get(id)
}

// SetDefault changes the default provider.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}
	r.defaultID = id
	return nil
}

// IDs lists the registered provider ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}

// ContextLimit returns the context window for a model, falling back to
// a conservative default when the provider does not report one.
func (r *Registry) ContextLimit(providerID, modelID string) int {
	const fallback = 8192
	p, err := r.Get(providerID)
	if err != nil {
		return fallback
	}
	for _, m := range p.Models() {
		if m.ID == modelID && m.ContextLength > 0 {
			return m.ContextLength
		}
	}
	return fallback
}

// EnsureReady verifies a provider can serve a model, returning a
// human-readable error when it cannot.
func (r *Registry) EnsureReady(ctx context.Context, providerID, modelID string) error {
	p, err := r.Get(providerID)
	if err != nil {
		return err
	}
	verdict := p.Ready(ctx, modelID)
	if !verdict.Ready {
		return fmt.Errorf("provider %s not ready: %s", providerID, verdict.Err)
	}
	return nil
}
