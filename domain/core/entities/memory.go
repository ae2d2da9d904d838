package entities

import (
	"strings"
	"time"

	"unimem/domain/core/valueobjects"
	"unimem/domain/events"
	pkgerrors "unimem/pkg/errors"
)

// Metadata keys written by the ingestion pipeline.
const (
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaIsPartial   = "is_partial"
	MetaParentID    = "parent_id"
	MetaContentHash = "content_hash"
)

// MemoryUnit is one stored chunk of content owned by a single user.
// id, owner and creation time never change after construction.
type MemoryUnit struct {
	id         valueobjects.MemoryID
	ownerID    string
	content    string
	memoryType valueobjects.MemoryType
	metadata   map[string]interface{}
	source     string
	summary    string
	tags       []string
	createdAt  time.Time
	updatedAt  time.Time

	events []events.DomainEvent
}

// NewMemoryParams carries the caller-supplied fields of a new memory.
type NewMemoryParams struct {
	OwnerID    string
	Content    string
	MemoryType valueobjects.MemoryType
	Metadata   map[string]interface{}
	Source     string
	Summary    string
	Tags       []string
}

// NewMemoryUnit creates a memory with a fresh id and timestamps.
func NewMemoryUnit(p NewMemoryParams) (*MemoryUnit, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, pkgerrors.NewValidationError("owner ID cannot be empty")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}
	if !p.MemoryType.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown memory type: " + string(p.MemoryType))
	}

	now := time.Now().UTC()
	return &MemoryUnit{
		id:         valueobjects.NewMemoryID(),
		ownerID:    p.OwnerID,
		content:    p.Content,
		memoryType: p.MemoryType,
		metadata:   copyMetadata(p.Metadata),
		source:     p.Source,
		summary:    p.Summary,
		tags:       append([]string(nil), p.Tags...),
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// ReconstructMemoryUnit rebuilds a memory from stored data with its timestamps preserved.
func ReconstructMemoryUnit(
	id valueobjects.MemoryID,
	ownerID, content string,
	memoryType valueobjects.MemoryType,
	metadata map[string]interface{},
	source, summary string,
	tags []string,
	createdAt, updatedAt time.Time,
) (*MemoryUnit, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("memory ID cannot be empty")
	}
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("owner ID cannot be empty")
	}

	return &MemoryUnit{
		id:         id,
		ownerID:    ownerID,
		content:    content,
		memoryType: memoryType,
		metadata:   copyMetadata(metadata),
		source:     source,
		summary:    summary,
		tags:       append([]string(nil), tags...),
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}, nil
}

func (m *MemoryUnit) ID() valueobjects.MemoryID           { return m.id }
func (m *MemoryUnit) OwnerID() string                     { return m.ownerID }
func (m *MemoryUnit) Content() string                     { return m.content }
func (m *MemoryUnit) MemoryType() valueobjects.MemoryType { return m.memoryType }
func (m *MemoryUnit) Source() string                      { return m.source }
func (m *MemoryUnit) Summary() string                     { return m.summary }
func (m *MemoryUnit) CreatedAt() time.Time                { return m.createdAt }
func (m *MemoryUnit) UpdatedAt() time.Time                { return m.updatedAt }

// Tags returns a copy of the memory's tags.
func (m *MemoryUnit) Tags() []string {
	return append([]string(nil), m.tags...)
}

// Metadata returns a shallow copy of the metadata map.
func (m *MemoryUnit) Metadata() map[string]interface{} {
	return copyMetadata(m.metadata)
}

// OwnedBy reports whether ownerID owns this memory.
func (m *MemoryUnit) OwnedBy(ownerID string) bool {
	return m.ownerID == ownerID
}

// SetMetadata sets a single metadata key.
func (m *MemoryUnit) SetMetadata(key string, value interface{}) {
	if m.metadata == nil {
		m.metadata = make(map[string]interface{})
	}
	m.metadata[key] = value
	m.updatedAt = time.Now().UTC()
}

// MarkAsChunk records the chunk position of this memory within a multi-chunk ingest.
// Secondary chunks are flagged partial and point back at the primary.
func (m *MemoryUnit) MarkAsChunk(index, total int, parentID valueobjects.MemoryID) {
	m.SetMetadata(MetaChunkIndex, index)
	m.SetMetadata(MetaTotalChunks, total)
	if index == 0 {
		return
	}
	m.SetMetadata(MetaIsPartial, true)
	if !parentID.IsZero() {
		m.SetMetadata(MetaParentID, parentID.String())
	}
}

// RecordCreated queues the memory.created event once the memory is durable.
func (m *MemoryUnit) RecordCreated(parentID string, chunkIndex, totalChunks int) {
	m.events = append(m.events, events.NewMemoryCreated(m.id, m.ownerID, m.memoryType, parentID, chunkIndex, totalChunks, time.Now().UTC()))
}

// RecordDeleted queues the memory.deleted event.
func (m *MemoryUnit) RecordDeleted() {
	m.events = append(m.events, events.NewMemoryDeleted(m.id, m.ownerID, time.Now().UTC()))
}

// GetUncommittedEvents returns events not yet published
func (m *MemoryUnit) GetUncommittedEvents() []events.DomainEvent {
	return m.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (m *MemoryUnit) MarkEventsAsCommitted() {
	m.events = nil
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
