package versioning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	schemavalidator "github.com/rpattn/rentalvc/internal/schema/validator"
	"github.com/rpattn/rentalvc/pkg/validator"
)

// ErrUnknownEntityType is returned when no adapter is registered for a type name.
var ErrUnknownEntityType = errors.New("unknown entity type")

// Adapter binds one versionable entity type to its primary table.
//
// Load and Save receive the querier of the surrounding transaction so that
// restoring a row and committing its rollback version succeed or fail together.
type Adapter interface {
	EntityType() string
	// New returns an empty entity carrying only the primary key. Rollback
	// uses it to recreate rows that were hard-deleted.
	New(id int64) domain.Entity
	// Load returns repository.ErrNotFound when the row does not exist.
	Load(ctx context.Context, q db.DBTX, id int64) (domain.Entity, error)
	// Save inserts or overwrites the row, keeping its primary key.
	Save(ctx context.Context, q db.DBTX, entity domain.Entity) error
}

// Registry maps entity type names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, adapter := range adapters {
		if err := r.Register(adapter); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Registering a type twice is an error.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}
	name := adapter.EntityType()
	if err := validator.ValidateEntityType(name); err != nil {
		return err
	}
	if _, err := schemavalidator.ValidateFields(adapter.New(0).FieldSpecs()); err != nil {
		return fmt.Errorf("entity type %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("entity type %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// MustRegister is Register for startup wiring.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Lookup returns the adapter registered for entityType.
func (r *Registry) Lookup(entityType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	return adapter, nil
}

// Types lists registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
