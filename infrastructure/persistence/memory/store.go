// Package memory provides process-local implementations of the memory and vector repositories.
// They back STORAGE_MODE=memory for local development and service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"unimem/application/ports"
	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

// faults lets tests make a named method fail.
type faults struct {
	mu           sync.RWMutex
	shouldFailOn map[string]error
}

// SetError configures method to return err until cleared.
func (f *faults) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldFailOn == nil {
		f.shouldFailOn = make(map[string]error)
	}
	f.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (f *faults) ClearErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldFailOn = nil
}

func (f *faults) checkError(method string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shouldFailOn[method]
}

// MemoryRepository is an in-process ports.MemoryRepository.
type MemoryRepository struct {
	faults
	mu    sync.RWMutex
	items map[string]*entities.MemoryUnit
}

var _ ports.MemoryRepository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*entities.MemoryUnit)}
}

func (r *MemoryRepository) Save(ctx context.Context, m *entities.MemoryUnit) error {
	if err := r.checkError("Save"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.ID().String()] = m
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id valueobjects.MemoryID) (*entities.MemoryUnit, error) {
	if err := r.checkError("GetByID"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("memory")
	}
	return m, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id valueobjects.MemoryID) error {
	if err := r.checkError("Delete"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id.String())
	return nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID string, filter ports.ListFilter) (*ports.MemoryPage, error) {
	if err := r.checkError("ListByOwner"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var matched []*entities.MemoryUnit
	for _, m := range r.items {
		if !m.OwnedBy(ownerID) {
			continue
		}
		if filter.MemoryType != "" && m.MemoryType() != filter.MemoryType {
			continue
		}
		if filter.Start != nil && m.CreatedAt().Before(*filter.Start) {
			continue
		}
		if filter.End != nil && m.CreatedAt().After(*filter.End) {
			continue
		}
		matched = append(matched, m)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt().After(matched[j].CreatedAt())
	})

	page := &ports.MemoryPage{Total: len(matched)}
	if filter.Offset >= len(matched) {
		page.Memories = []*entities.MemoryUnit{}
		return page, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
		page.HasMore = true
	}
	page.Memories = matched[filter.Offset:end]
	return page, nil
}

func (r *MemoryRepository) ScanIDs(ctx context.Context) ([]string, error) {
	if err := r.checkError("ScanIDs"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	if err := r.checkError("Count"); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.items)), nil
}

func (r *MemoryRepository) HealthCheck(ctx context.Context) error {
	if err := r.checkError("HealthCheck"); err != nil {
		return err
	}
	return nil
}

// VectorRepository is an in-process ports.VectorRepository.
type VectorRepository struct {
	faults
	mu    sync.RWMutex
	items map[string]entities.VectorRecord
}

var _ ports.VectorRepository = (*VectorRepository)(nil)

func NewVectorRepository() *VectorRepository {
	return &VectorRepository{items: make(map[string]entities.VectorRecord)}
}

func (r *VectorRepository) Save(ctx context.Context, rec entities.VectorRecord) error {
	if err := r.checkError("Save"); err != nil {
		return err
	}
	rec.Vector = rec.Vector.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[rec.MemoryID.String()] = rec
	return nil
}

func (r *VectorRepository) GetByID(ctx context.Context, id valueobjects.MemoryID) (*entities.VectorRecord, error) {
	if err := r.checkError("GetByID"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("vector")
	}
	rec.Vector = rec.Vector.Clone()
	return &rec, nil
}

func (r *VectorRepository) Delete(ctx context.Context, id valueobjects.MemoryID) error {
	if err := r.checkError("Delete"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id.String())
	return nil
}

func (r *VectorRepository) ScanAll(ctx context.Context) (*ports.VectorScanResult, error) {
	if err := r.checkError("ScanAll"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := &ports.VectorScanResult{Records: make([]entities.VectorRecord, 0, len(r.items))}
	for _, rec := range r.items {
		rec.Vector = rec.Vector.Clone()
		result.Records = append(result.Records, rec)
	}
	return result, nil
}
