package model

import "time"

// EventType tags the kind of mutation an audit event records.
type EventType string

const (
	EventCreated           EventType = "created"
	EventDeleted           EventType = "deleted"
	EventStatusChange      EventType = "status_change"
	EventFieldChanged      EventType = "field_changed"
	EventOwnershipChanged  EventType = "ownership_changed"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventSubprojectChanged EventType = "subproject_changed"
)

var allEventTypes = map[EventType]bool{
	EventCreated:           true,
	EventDeleted:           true,
	EventStatusChange:      true,
	EventFieldChanged:      true,
	EventOwnershipChanged:  true,
	EventDependencyAdded:   true,
	EventDependencyRemoved: true,
	EventSubprojectChanged: true,
}

func ParseEventType(s string) (EventType, bool) {
	et := EventType(s)
	return et, allEventTypes[et]
}

// Event is an immutable audit record of one mutation. Events are append-only
// and are removed only by cascade when their task is deleted.
type Event struct {
	ID        int64          `json:"id"`
	TaskID    int64          `json:"task_id"`
	Type      EventType      `json:"type"`
	Field     *string        `json:"field,omitempty"`
	OldValue  *string        `json:"old_value,omitempty"`
	NewValue  *string        `json:"new_value,omitempty"`
	AuthorID  *int64         `json:"author_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventPage is one page of an event query in reverse-chronological order.
type EventPage struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
}
