package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents what happened to an entity
type EventType string

const (
	EventTypeUpdated    EventType = "updated"
	EventTypeSynced     EventType = "synced"
	EventTypeSyncFailed EventType = "sync_failed"
	EventTypeInfo       EventType = "info"
	EventTypeError      EventType = "error"
	EventTypeExpired    EventType = "expired"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeLoan    EntityType = "loan"
	EntityTypeNotice  EntityType = "notice"
	EntityTypeSession EntityType = "session"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`             // Combined type e.g. "loan.synced"
	Entity    EntityType  `json:"entity"`           // Entity type e.g. "loan"
	FileID    string      `json:"fileId,omitempty"` // Drive file a loan event is about, empty for drafts
	Payload   interface{} `json:"payload"`          // Full entity data
	Timestamp time.Time   `json:"timestamp"`        // Event timestamp
}

// NoticePayload is the body of a notice event
type NoticePayload struct {
	Message string `json:"message"`
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func loanEvent(eventType EventType, fileID string, payload interface{}) Event {
	e := NewEvent(eventType, EntityTypeLoan, payload)
	e.FileID = fileID
	return e
}

// LoanUpdated creates a loan.updated event
func LoanUpdated(fileID string, payload interface{}) Event {
	return loanEvent(EventTypeUpdated, fileID, payload)
}

// LoanSynced creates a loan.synced event
func LoanSynced(fileID string, payload interface{}) Event {
	return loanEvent(EventTypeSynced, fileID, payload)
}

// LoanSyncFailed creates a loan.sync_failed event
func LoanSyncFailed(fileID string, payload interface{}) Event {
	return loanEvent(EventTypeSyncFailed, fileID, payload)
}

// Delivered reports whether a tab watching watchedFileID should receive e.
// Tabs that watch nothing get every event; loan events for another file are
// filtered out.
func (e Event) Delivered(watchedFileID string) bool {
	if e.Entity != EntityTypeLoan || e.FileID == "" || watchedFileID == "" {
		return true
	}
	return e.FileID == watchedFileID
}

// NoticeInfo creates a notice.info event
func NoticeInfo(message string) Event {
	return NewEvent(EventTypeInfo, EntityTypeNotice, NoticePayload{Message: message})
}

// NoticeError creates a notice.error event
func NoticeError(message string) Event {
	return NewEvent(EventTypeError, EntityTypeNotice, NoticePayload{Message: message})
}

// SessionExpired creates a session.expired event
func SessionExpired() Event {
	return NewEvent(EventTypeExpired, EntityTypeSession, nil)
}
