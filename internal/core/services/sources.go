package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// SourceRegistry maps content types to the sources that produce them.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[domain.ContentType]driven.ContentSource
}

// NewSourceRegistry creates a registry holding the given sources.
func NewSourceRegistry(sources ...driven.ContentSource) (*SourceRegistry, error) {
	r := &SourceRegistry{
		sources: make(map[domain.ContentType]driven.ContentSource),
	}
	for _, src := range sources {
		if err := r.Register(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source. Each content type may only be registered once.
func (r *SourceRegistry) Register(src driven.ContentSource) error {
	if src == nil {
		return fmt.Errorf("%w: nil content source", domain.ErrInvalidInput)
	}
	ct := src.Type()
	if !ct.IsValid() {
		return fmt.Errorf("%w: content type %q", domain.ErrInvalidInput, ct)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[ct]; exists {
		return fmt.Errorf("source for %s: %w", ct, domain.ErrAlreadyExists)
	}
	r.sources[ct] = src
	return nil
}

// Get returns the source for a content type.
// Returns domain.ErrSourceNotRegistered if none is registered.
func (r *SourceRegistry) Get(ct domain.ContentType) (driven.ContentSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[ct]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ct, domain.ErrSourceNotRegistered)
	}
	return src, nil
}

// Types returns the registered content types. Built-in types come first in
// their canonical order, then the rest alphabetically.
func (r *SourceRegistry) Types() []domain.ContentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rank := make(map[domain.ContentType]int)
	for i, ct := range domain.KnownContentTypes() {
		rank[ct] = i + 1
	}

	types := make([]domain.ContentType, 0, len(r.sources))
	for ct := range r.sources {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool {
		ri, rj := rank[types[i]], rank[types[j]]
		switch {
		case ri != 0 && rj != 0:
			return ri < rj
		case ri != 0:
			return true
		case rj != 0:
			return false
		default:
			return types[i] < types[j]
		}
	})
	return types
}

// Close closes every registered source.
func (r *SourceRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for ct, src := range r.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s source: %w", ct, err))
		}
	}
	return errors.Join(errs...)
}
