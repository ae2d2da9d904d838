package sagas

import (
	"context"

	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/domain/core/entities"
)

// NewPersistMemorySaga writes a memory and its vector, then publishes the pair to the
// vector index. A vector write failure deletes the memory again, so the store never
// holds a memory without its embedding. The index is touched only after both writes.
func NewPersistMemorySaga(
	memories ports.MemoryRepository,
	vectors ports.VectorRepository,
	index ports.VectorIndex,
	memory *entities.MemoryUnit,
	record entities.VectorRecord,
	logger *zap.Logger,
) *Saga {
	return NewSaga("persist_memory", logger).
		AddStep(SagaStep{
			Name: "save_memory",
			Execute: func(ctx context.Context) error {
				return memories.Save(ctx, memory)
			},
			Compensate: func(ctx context.Context) error {
				return memories.Delete(ctx, memory.ID())
			},
		}).
		AddStep(SagaStep{
			Name: "save_vector",
			Execute: func(ctx context.Context) error {
				return vectors.Save(ctx, record)
			},
		}).
		AddStep(SagaStep{
			Name: "index_vector",
			Execute: func(context.Context) error {
				index.Insert(ports.IndexEntry{
					ID:      record.MemoryID.String(),
					OwnerID: record.OwnerID,
					Vector:  record.Vector,
				})
				return nil
			},
		})
}
