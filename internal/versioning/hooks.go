package versioning

import (
	"context"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
)

// Hooks wires the tracker and the service into an entity write lifecycle.
//
//	write row -> AfterCreate
//	BeforeUpdate -> write row -> AfterUpdate
//	BeforeDelete -> delete row
//
// AfterCreate, AfterUpdate and BeforeDelete accept the row write itself. When
// it is given, the write and the commit share one transaction; pass nil when
// the caller has already written the row.
type Hooks struct {
	service *Service
	tracker *Tracker
}

func NewHooks(service *Service, tracker *Tracker) *Hooks {
	return &Hooks{service: service, tracker: tracker}
}

// BeforeUpdate caches the persisted state of an existing entity.
func (h *Hooks) BeforeUpdate(ctx context.Context, q db.DBTX, entity domain.Entity) error {
	return h.tracker.CachePreMutation(ctx, q, entity)
}

// AfterCreate commits the first version of a new entity.
func (h *Hooks) AfterCreate(ctx context.Context, entity domain.Entity, author string, insert Write) (*domain.Version, error) {
	return h.service.Commit(ctx, entity, CommitRequest{
		Action:  domain.ActionCreate,
		Author:  author,
		Message: "record created",
		Write:   insert,
	})
}

// AfterUpdate commits the updated entity with a message listing the changed fields.
func (h *Hooks) AfterUpdate(ctx context.Context, entity domain.Entity, author string, save Write) (*domain.Version, error) {
	changes, err := h.tracker.ConsumeDiff(entity)
	if err != nil {
		return nil, err
	}
	message := "record updated"
	if text := FormatChanges(changes); text != "" {
		message = "updated " + text
	}
	return h.service.Commit(ctx, entity, CommitRequest{
		Action:  domain.ActionUpdate,
		Author:  author,
		Message: message,
		Write:   save,
	})
}

// BeforeDelete commits the final state of an entity while its row still
// exists. remove runs after the version is recorded.
func (h *Hooks) BeforeDelete(ctx context.Context, entity domain.Entity, author string, remove Write) (*domain.Version, error) {
	return h.service.Commit(ctx, entity, CommitRequest{
		Action:  domain.ActionDelete,
		Author:  author,
		Message: "record deleted",
		Write:   remove,
	})
}
