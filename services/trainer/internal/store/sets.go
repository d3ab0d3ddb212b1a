package store

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// All names the reserved set holding every entry of the catalog snapshot.
const All = "ALL"

var (
	ErrDuplicateSet = errors.New("media set already exists")
	ErrSetNotFound  = errors.New("media set not found")
)

// Sets is the in-memory registry of named media sets. A name can be bound
// once per process; sets are never replaced or mutated after creation.
type Sets struct {
	mu      sync.RWMutex
	sets    map[string][]Media
	catalog *Catalog
}

// NewSets registers the catalog entries under All. With a nil catalog All
// stays unbound until Attach is called.
func NewSets(catalog *Catalog) *Sets {
	s := &Sets{sets: make(map[string][]Media)}
	if catalog != nil {
		s.catalog = catalog
		s.sets[All] = catalog.Entries()
	}
	return s
}

// Attach binds All to catalog. All is bound at most once.
func (s *Sets) Attach(catalog *Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[All]; ok {
		return fmt.Errorf("attach catalog: %w", ErrDuplicateSet)
	}
	s.catalog = catalog
	s.sets[All] = catalog.Entries()
	return nil
}

// Catalog returns the attached catalog, or an empty one.
func (s *Sets) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.catalog == nil {
		return NewCatalog(nil)
	}
	return s.catalog
}

// Create stores entries under name, keeping their order.
func (s *Sets) Create(name string, entries []Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[name]; ok {
		return fmt.Errorf("create %q: %w", name, ErrDuplicateSet)
	}
	s.sets[name] = slices.Clone(entries)
	return nil
}

// Load returns the set stored under name. The returned slice is a copy;
// transformations must be stored under a new name.
func (s *Sets) Load(name string) ([]Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.sets[name]
	if !ok && name == All {
		return nil, fmt.Errorf("load %q: %w (no catalog snapshot loaded)", name, ErrSetNotFound)
	}
	if !ok {
		return nil, fmt.Errorf("load %q: %w", name, ErrSetNotFound)
	}
	return slices.Clone(entries), nil
}

func (s *Sets) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[name]
	return ok
}

// Names lists the bound set names in order.
func (s *Sets) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.sets))
	for n := range s.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
