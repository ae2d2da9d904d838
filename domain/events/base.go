package events

import (
	"time"

	"unimem/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypeMemoryCreated            = "memory.created"
	TypeMemoryDeleted            = "memory.deleted"
	TypeChunkIngestionFailed     = "memory.chunk_failed"
	TypeConversationTurnIngested = "conversation.turn_ingested"

	// Emitted by the chat service, consumed by the conversation ingest worker.
	TypeConversationTurnCompleted = "conversation.turn_completed"
)

// MemoryCreated is raised once both the memory record and its vector are durable.
type MemoryCreated struct {
	BaseEvent
	MemoryID    valueobjects.MemoryID   `json:"memory_id"`
	OwnerID     string                  `json:"owner_id"`
	MemoryType  valueobjects.MemoryType `json:"memory_type"`
	ParentID    string                  `json:"parent_id,omitempty"`
	ChunkIndex  int                     `json:"chunk_index"`
	TotalChunks int                     `json:"total_chunks"`
}

// NewMemoryCreated creates a MemoryCreated event
func NewMemoryCreated(id valueobjects.MemoryID, ownerID string, memoryType valueobjects.MemoryType, parentID string, chunkIndex, totalChunks int, timestamp time.Time) MemoryCreated {
	return MemoryCreated{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   TypeMemoryCreated,
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID:    id,
		OwnerID:     ownerID,
		MemoryType:  memoryType,
		ParentID:    parentID,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
	}
}

// MemoryDeleted is raised after the memory, its vector and its cache entry are gone.
type MemoryDeleted struct {
	BaseEvent
	MemoryID valueobjects.MemoryID `json:"memory_id"`
	OwnerID  string                `json:"owner_id"`
}

// NewMemoryDeleted creates a MemoryDeleted event
func NewMemoryDeleted(id valueobjects.MemoryID, ownerID string, timestamp time.Time) MemoryDeleted {
	return MemoryDeleted{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   TypeMemoryDeleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID: id,
		OwnerID:  ownerID,
	}
}

// ChunkIngestionFailed is raised for each secondary chunk that could not be stored.
type ChunkIngestionFailed struct {
	BaseEvent
	ParentID   valueobjects.MemoryID `json:"parent_id"`
	OwnerID    string                `json:"owner_id"`
	ChunkIndex int                   `json:"chunk_index"`
	ErrorType  string                `json:"error_type"`
}

// NewChunkIngestionFailed creates a ChunkIngestionFailed event
func NewChunkIngestionFailed(parentID valueobjects.MemoryID, ownerID string, chunkIndex int, errorType string, timestamp time.Time) ChunkIngestionFailed {
	return ChunkIngestionFailed{
		BaseEvent: BaseEvent{
			AggregateID: parentID.String(),
			EventType:   TypeChunkIngestionFailed,
			Timestamp:   timestamp,
			Version:     1,
		},
		ParentID:   parentID,
		OwnerID:    ownerID,
		ChunkIndex: chunkIndex,
		ErrorType:  errorType,
	}
}

// ConversationTurnIngested is raised when a dialogue turn was kept as a memory.
type ConversationTurnIngested struct {
	BaseEvent
	ConversationID string                `json:"conversation_id"`
	MemoryID       valueobjects.MemoryID `json:"memory_id"`
	OwnerID        string                `json:"owner_id"`
}

// NewConversationTurnIngested creates a ConversationTurnIngested event
func NewConversationTurnIngested(conversationID string, memoryID valueobjects.MemoryID, ownerID string, timestamp time.Time) ConversationTurnIngested {
	return ConversationTurnIngested{
		BaseEvent: BaseEvent{
			AggregateID: conversationID,
			EventType:   TypeConversationTurnIngested,
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: conversationID,
		MemoryID:       memoryID,
		OwnerID:        ownerID,
	}
}

// ConversationTurnCompleted is the detail payload of the chat service's turn event.
type ConversationTurnCompleted struct {
	OwnerID        string    `json:"owner_id"`
	ConversationID string    `json:"conversation_id"`
	UserInput      string    `json:"user_input"`
	Response       string    `json:"response"`
	CompletedAt    time.Time `json:"completed_at"`
}
