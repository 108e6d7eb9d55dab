package models

import (
	"time"

	"projectdesk/internal/changes"
	id "projectdesk/pkg/domain"
)

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Entry is one immutable record of a mutation.
//
// Invariants:
//   - Entries are never modified or removed once committed
//   - An update entry always carries at least one changed field
//   - Seq increases with insertion order and breaks Timestamp ties
type Entry struct {
	ID         id.AuditEntryID   `json:"id"`
	Seq        int64             `json:"seq"`
	ActorID    *id.UserID        `json:"actor_id"`
	ActorName  string            `json:"actor_name,omitempty"`
	Action     Action            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Changes    changes.ChangeSet `json:"changes"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Filter narrows an audit listing. Zero values match everything.
type Filter struct {
	Action     Action
	EntityType string
	EntityID   string
}

// Query is what stores evaluate: the caller's filter plus the viewer's visibility.
// When Country is set, only entries for existing projects of that country match.
// A non-positive Limit means no limit.
type Query struct {
	Filter
	Country string
	Limit   int
}

// Matches applies the filter fields (not visibility) to an entry.
func (f Filter) Matches(e *Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	return true
}

// OutboxMessage is a committed entry waiting to be published.
type OutboxMessage struct {
	ID        string
	EntryID   string
	EventType string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}
