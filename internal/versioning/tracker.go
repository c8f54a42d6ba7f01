package versioning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/snapshot"
)

const (
	defaultTrackerSize = 1024
	defaultTrackerTTL  = 10 * time.Minute
)

type trackerKey struct {
	entityType string
	entityID   int64
}

// Tracker holds the persisted state of entities between the pre-mutation and
// post-mutation hooks so the update diff can be computed. Entries are bounded
// in number and age; an entry left by an aborted mutation expires on its own.
type Tracker struct {
	registry *Registry
	logger   *logrus.Entry

	// mu makes consume (read then remove) atomic.
	mu      sync.Mutex
	entries *expirable.LRU[trackerKey, domain.Snapshot]
}

type TrackerOption func(*trackerConfig)

type trackerConfig struct {
	size   int
	ttl    time.Duration
	logger *logrus.Entry
}

func WithTrackerSize(size int) TrackerOption {
	return func(c *trackerConfig) {
		if size > 0 {
			c.size = size
		}
	}
}

func WithTrackerTTL(ttl time.Duration) TrackerOption {
	return func(c *trackerConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithTrackerLogger(logger *logrus.Entry) TrackerOption {
	return func(c *trackerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTracker creates a tracker that loads persisted rows through registry.
func NewTracker(registry *Registry, opts ...TrackerOption) *Tracker {
	cfg := trackerConfig{
		size:   defaultTrackerSize,
		ttl:    defaultTrackerTTL,
		logger: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tracker{
		registry: registry,
		logger:   cfg.logger,
		entries:  expirable.NewLRU[trackerKey, domain.Snapshot](cfg.size, nil, cfg.ttl),
	}
}

// CachePreMutation stores the persisted state of entity, read fresh through
// q, ahead of a mutation. Entities without a primary key are ignored.
func (t *Tracker) CachePreMutation(ctx context.Context, q db.DBTX, entity domain.Entity) error {
	if entity == nil || entity.EntityID() <= 0 {
		return nil
	}
	adapter, err := t.registry.Lookup(entity.EntityType())
	if err != nil {
		return err
	}
	persisted, err := adapter.Load(ctx, q, entity.EntityID())
	if err != nil {
		return fmt.Errorf("failed to load persisted %s %d: %w", entity.EntityType(), entity.EntityID(), err)
	}
	snap, err := snapshot.Serialize(persisted)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.entries.Add(trackerKey{entityType: entity.EntityType(), entityID: entity.EntityID()}, snap)
	t.mu.Unlock()
	return nil
}

// ConsumeDiff removes the cached state of entity and returns the fields that
// changed since it was cached. Without a cached entry the result is empty.
func (t *Tracker) ConsumeDiff(entity domain.Entity) (map[string]domain.FieldChange, error) {
	if entity == nil {
		return map[string]domain.FieldChange{}, nil
	}
	key := trackerKey{entityType: entity.EntityType(), entityID: entity.EntityID()}

	t.mu.Lock()
	before, ok := t.entries.Peek(key)
	if ok {
		t.entries.Remove(key)
	}
	t.mu.Unlock()

	if !ok {
		return map[string]domain.FieldChange{}, nil
	}
	after, err := snapshot.Serialize(entity)
	if err != nil {
		return nil, err
	}
	return domain.ChangesBetween(before, after), nil
}

// Len reports the number of cached entries.
func (t *Tracker) Len() int {
	return t.entries.Len()
}

// FormatChanges renders changes as "field: old -> new" pairs sorted by field.
func FormatChanges(changes map[string]domain.FieldChange) string {
	if len(changes) == 0 {
		return ""
	}
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		change := changes[field]
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", field, change.Old, change.New))
	}
	return strings.Join(parts, ", ")
}
