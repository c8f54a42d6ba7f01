package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultBranch is the lineage every entity starts on.
const DefaultBranch = "main"

// SystemAuthor is recorded when no actor is known.
const SystemAuthor = "system"

// Action tags why a version was recorded.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionCommit   Action = "commit"
	ActionRollback Action = "rollback"
)

// IsValid reports whether the action is one of the known tags.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionCommit, ActionRollback:
		return true
	default:
		return false
	}
}

// VersionKey identifies one version chain: an entity on a branch.
type VersionKey struct {
	EntityType string
	EntityID   int64
	Branch     string
}

func (k VersionKey) String() string {
	return fmt.Sprintf("%s#%d@%s", k.EntityType, k.EntityID, k.Branch)
}

// Version is one persisted snapshot of an entity on a branch.
// Only IsCurrent ever changes after creation.
type Version struct {
	ID             uuid.UUID  `json:"id"`
	EntityType     string     `json:"entityType"`
	EntityID       int64      `json:"entityId"`
	Branch         string     `json:"branch"`
	VersionNumber  int64      `json:"version"`
	Snapshot       Snapshot   `json:"snapshot"`
	SnapshotFormat int        `json:"snapshotFormat"`
	Action         Action     `json:"action"`
	Author         string     `json:"author"`
	Message        string     `json:"message"`
	ParentID       *uuid.UUID `json:"parentId,omitempty"`
	// RestoredFrom is set on rollback versions to the version that was restored.
	RestoredFrom *uuid.UUID `json:"restoredFrom,omitempty"`
	// Undo marks rollback versions created without an explicit target.
	Undo      bool      `json:"undo,omitempty"`
	IsCurrent bool      `json:"isCurrent"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key returns the chain this version belongs to.
func (v Version) Key() VersionKey {
	return VersionKey{EntityType: v.EntityType, EntityID: v.EntityID, Branch: v.Branch}
}

// HasParent reports whether the version links to a prior version.
func (v Version) HasParent() bool {
	return v.ParentID != nil && *v.ParentID != uuid.Nil
}

// VersionStats aggregates the version table.
type VersionStats struct {
	Total        int64            `json:"total"`
	ByEntityType map[string]int64 `json:"byEntityType"`
	ByAction     map[Action]int64 `json:"byAction"`
}
