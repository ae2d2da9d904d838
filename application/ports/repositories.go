package ports

import (
	"context"
	"time"

	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	"unimem/domain/events"
)

// MemoryRepository is the durable store of memory units.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type MemoryRepository interface {
	// Save persists a memory (create or overwrite)
	Save(ctx context.Context, memory *entities.MemoryUnit) error

	// GetByID retrieves a memory; a missing id returns a NOT_FOUND error
	GetByID(ctx context.Context, id valueobjects.MemoryID) (*entities.MemoryUnit, error)

	// Delete removes a memory. Deleting a missing id is not an error.
	Delete(ctx context.Context, id valueobjects.MemoryID) error

	// ListByOwner pages through an owner's memories, newest first
	ListByOwner(ctx context.Context, ownerID string, filter ListFilter) (*MemoryPage, error)

	// ScanIDs returns every memory id in the store
	ScanIDs(ctx context.Context) ([]string, error)

	// Count returns the total number of memories in the store
	Count(ctx context.Context) (int64, error)

	// HealthCheck verifies the backing table is reachable
	HealthCheck(ctx context.Context) error
}

// ListFilter narrows ListByOwner.
type ListFilter struct {
	MemoryType valueobjects.MemoryType
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
}

// MemoryPage is one page of ListByOwner results.
type MemoryPage struct {
	Memories []*entities.MemoryUnit
	Total    int
	HasMore  bool
}

// VectorRepository is the durable store of embeddings, keyed by memory id.
type VectorRepository interface {
	Save(ctx context.Context, record entities.VectorRecord) error
	GetByID(ctx context.Context, id valueobjects.MemoryID) (*entities.VectorRecord, error)
	Delete(ctx context.Context, id valueobjects.MemoryID) error

	// ScanAll reads every vector record. Records that cannot be decoded are reported, not fatal.
	ScanAll(ctx context.Context) (*VectorScanResult, error)
}

// VectorScanResult is the outcome of a full vector table scan.
type VectorScanResult struct {
	Records  []entities.VectorRecord
	Failures []VectorDecodeFailure
}

// VectorDecodeFailure describes a stored vector record that could not be used.
type VectorDecodeFailure struct {
	ID     string
	Reason string
}

// EmbeddingIntent tells the embedding model whether text is stored content or a search query.
type EmbeddingIntent string

const (
	IntentPassage EmbeddingIntent = "passage"
	IntentQuery   EmbeddingIntent = "query"
)

// EmbeddingProvider turns text into fixed-dimension vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, intent EmbeddingIntent) (valueobjects.Vector, error)

	// EmbedMany embeds texts one at a time, in order
	EmbedMany(ctx context.Context, texts []string, intent EmbeddingIntent) ([]valueobjects.Vector, error)

	Dimension() int
	Model() string
	HealthCheck(ctx context.Context) error
}

// EventPublisher publishes domain events to external systems
type EventPublisher interface {
	Publish(ctx context.Context, events ...events.DomainEvent) error
}

// DistributedLock guards work that must run at most once across instances.
type DistributedLock interface {
	// TryLock returns false without error when another owner holds the key
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// MetricsRecorder receives operational measurements. Implementations must tolerate being disabled.
type MetricsRecorder interface {
	RecordLatency(ctx context.Context, operation string, d time.Duration)
	RecordError(ctx context.Context, operation, errorType string)
	RecordBusinessMetric(ctx context.Context, name string, value float64, dimensions map[string]string)
}
