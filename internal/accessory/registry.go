package accessory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry owns every accessory in the process. Accessories never share
// sessions, handler tables or state; the registry only indexes them by name.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	accessories map[string]*Accessory
	order       []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		accessories: make(map[string]*Accessory),
	}
}

// Add registers an accessory. Names must be unique.
func (r *Registry) Add(a *Accessory) error {
	if a == nil {
		return errors.New("accessory: nil accessory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.accessories[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.accessories[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns the accessory with the given name.
func (r *Registry) Get(name string) (*Accessory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accessories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a, nil
}

// List returns accessories in registration order.
func (r *Registry) List() []*Accessory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Accessory, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.accessories[name])
	}
	return list
}

// Len returns the number of registered accessories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Start starts every accessory. It stops at the first failure; accessories
// already started stay running and are shut down by Close.
func (r *Registry) Start(ctx context.Context) error {
	for _, a := range r.List() {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("starting accessory %q: %w", a.Name(), err)
		}
	}
	return nil
}

// Close closes every accessory and returns the joined errors.
func (r *Registry) Close() error {
	var errs []error
	for _, a := range r.List() {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing accessory %q: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}
