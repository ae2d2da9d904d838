package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unimem/application/ports"
	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func memoryAt(t *testing.T, owner string, memType valueobjects.MemoryType, offset time.Duration) *entities.MemoryUnit {
	t.Helper()
	created := base.Add(offset)
	m, err := entities.ReconstructMemoryUnit(valueobjects.NewMemoryID(), owner, "content", memType, nil, "", "", nil, created, created)
	require.NoError(t, err)
	return m
}

func TestMemoryRepository_ListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	oldest := memoryAt(t, "alice", valueobjects.MemoryTypeText, 0)
	middle := memoryAt(t, "alice", valueobjects.MemoryTypeDocument, time.Hour)
	newest := memoryAt(t, "alice", valueobjects.MemoryTypeText, 2*time.Hour)
	foreign := memoryAt(t, "bob", valueobjects.MemoryTypeText, 3*time.Hour)
	for _, m := range []*entities.MemoryUnit{oldest, middle, newest, foreign} {
		require.NoError(t, repo.Save(ctx, m))
	}
	start := base.Add(30 * time.Minute)

	tests := []struct {
		name        string
		filter      ports.ListFilter
		wantIDs     []valueobjects.MemoryID
		wantTotal   int
		wantHasMore bool
	}{
		{name: "newest first", filter: ports.ListFilter{}, wantIDs: []valueobjects.MemoryID{newest.ID(), middle.ID(), oldest.ID()}, wantTotal: 3},
		{name: "first page", filter: ports.ListFilter{Limit: 2}, wantIDs: []valueobjects.MemoryID{newest.ID(), middle.ID()}, wantTotal: 3, wantHasMore: true},
		{name: "second page", filter: ports.ListFilter{Limit: 2, Offset: 2}, wantIDs: []valueobjects.MemoryID{oldest.ID()}, wantTotal: 3},
		{name: "past the end", filter: ports.ListFilter{Offset: 10}, wantIDs: []valueobjects.MemoryID{}, wantTotal: 3},
		{name: "by type", filter: ports.ListFilter{MemoryType: valueobjects.MemoryTypeDocument}, wantIDs: []valueobjects.MemoryID{middle.ID()}, wantTotal: 1},
		{name: "from start date", filter: ports.ListFilter{Start: &start}, wantIDs: []valueobjects.MemoryID{newest.ID(), middle.ID()}, wantTotal: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			page, err := repo.ListByOwner(ctx, "alice", tt.filter)

			// Assert
			require.NoError(t, err)
			ids := make([]valueobjects.MemoryID, 0, len(page.Memories))
			for _, m := range page.Memories {
				ids = append(ids, m.ID())
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantHasMore, page.HasMore)
		})
	}
}

func TestMemoryRepository_Faults(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	boom := errors.New("boom")

	repo.SetError("Count", boom)
	_, err := repo.Count(ctx)
	assert.ErrorIs(t, err, boom)

	repo.ClearErrors()
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorRepository_CopiesVectors(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewVectorRepository()
	id := valueobjects.NewMemoryID()
	vec := valueobjects.Vector{1, 2, 3}
	require.NoError(t, repo.Save(ctx, entities.VectorRecord{MemoryID: id, OwnerID: "alice", Vector: vec}))

	// Act
	vec[0] = 99
	got, err := repo.GetByID(ctx, id)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, valueobjects.Vector{1, 2, 3}, got.Vector)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.GetByID(ctx, id)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	now := base
	lock := NewLock()
	lock.clock = func() time.Time { return now }

	ok, err := lock.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = lock.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok, "live key must not be reacquired")

	now = now.Add(2 * time.Minute)
	ok, _ = lock.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok, "expired key is free")

	require.NoError(t, lock.Unlock(ctx, "k"))
	ok, _ = lock.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok)
}
