package entities

import (
	"time"

	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

// VectorRecord is the durable embedding of one memory unit. It shares the memory's id and owner.
type VectorRecord struct {
	MemoryID  valueobjects.MemoryID
	OwnerID   string
	Vector    valueobjects.Vector
	Model     string
	CreatedAt time.Time
}

// NewVectorRecord pairs a memory with its embedding after checking the dimension.
func NewVectorRecord(memory *MemoryUnit, vector valueobjects.Vector, model string, dimension int) (VectorRecord, error) {
	if err := vector.CheckDimension(dimension); err != nil {
		return VectorRecord{}, pkgerrors.NewValidationError(err.Error())
	}
	return VectorRecord{
		MemoryID:  memory.ID(),
		OwnerID:   memory.OwnerID(),
		Vector:    vector,
		Model:     model,
		CreatedAt: memory.CreatedAt(),
	}, nil
}
