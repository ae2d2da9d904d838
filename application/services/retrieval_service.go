package services

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/domain/config"
	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
	"unimem/pkg/observability"
)

// SearchResult is one memory matched by a similarity search.
type SearchResult struct {
	Memory     *entities.MemoryUnit
	Similarity float64
	SearchTime time.Duration
}

// SearchResponse is the ranked outcome of a search. SearchTime covers the whole search
// and is repeated on every result.
type SearchResponse struct {
	Results    []SearchResult
	Total      int
	SearchTime time.Duration
}

// Stats summarizes what the service currently holds.
type Stats struct {
	TotalMemories    int64
	VectorCount      int
	TypeDistribution map[string]int
	StorageMode      string
	LastUpdated      time.Time
}

// Health statuses
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthReport is the outcome of checking the store and the embedding provider.
type HealthReport struct {
	Status     string
	Components map[string]string
	CacheSize  int
	Model      string
	Dimension  int
	Timestamp  time.Time
}

type candidate struct {
	id  string
	sim float64
}

// RetrievalService answers similarity queries from the vector index and resolves
// matches against the memory store.
type RetrievalService struct {
	memories    ports.MemoryRepository
	vectors     ports.VectorRepository
	index       ports.VectorIndex
	embedder    ports.EmbeddingProvider
	metrics     ports.MetricsRecorder
	tracer      *observability.Tracer
	cfg         *config.DomainConfig
	queryIntent ports.EmbeddingIntent
	storageMode string
	logger      *zap.Logger
}

// NewRetrievalService creates a new retrieval service. queryIntent is the embedding
// intent used by SearchText.
func NewRetrievalService(
	memories ports.MemoryRepository,
	vectors ports.VectorRepository,
	index ports.VectorIndex,
	embedder ports.EmbeddingProvider,
	metrics ports.MetricsRecorder,
	tracer *observability.Tracer,
	cfg *config.DomainConfig,
	queryIntent ports.EmbeddingIntent,
	storageMode string,
	logger *zap.Logger,
) *RetrievalService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if queryIntent == "" {
		queryIntent = ports.IntentPassage
	}
	return &RetrievalService{
		memories:    memories,
		vectors:     vectors,
		index:       index,
		embedder:    embedder,
		metrics:     metrics,
		tracer:      tracer,
		cfg:         cfg,
		queryIntent: queryIntent,
		storageMode: storageMode,
		logger:      logger,
	}
}

// Search ranks the owner's memories by cosine similarity to query.
//
// Entries below threshold, with a zero norm, or whose memory can no longer be read
// are left out. Ties keep index iteration order.
func (s *RetrievalService) Search(ctx context.Context, ownerID string, query valueobjects.Vector, limit int, threshold float64) (*SearchResponse, error) {
	start := time.Now()
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("owner ID cannot be empty")
	}
	if len(query) == 0 {
		return nil, pkgerrors.NewValidationError("query vector cannot be empty")
	}
	limit = clampLimit(limit, s.cfg.DefaultSearchLimit, s.cfg.MaxSearchLimit)

	var candidates []candidate
	s.index.ScanOwner(ownerID, func(entry ports.IndexEntry) bool {
		sim, ok := valueobjects.CosineSimilarity(query, entry.Vector)
		if ok && sim >= threshold {
			candidates = append(candidates, candidate{id: entry.ID, sim: sim})
		}
		return true
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	results := make([]SearchResult, 0, min(limit, len(candidates)))
	for _, c := range candidates {
		if len(results) == limit {
			break
		}
		memory, ok := s.resolve(ctx, ownerID, c.id)
		if !ok {
			continue
		}
		results = append(results, SearchResult{Memory: memory, Similarity: c.sim})
	}

	elapsed := time.Since(start)
	for i := range results {
		results[i].SearchTime = elapsed
	}

	if s.metrics != nil {
		s.metrics.RecordLatency(ctx, "Search", elapsed)
	}
	s.logger.Debug("Search completed",
		zap.String("ownerID", ownerID),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Duration("searchTime", elapsed),
	)

	return &SearchResponse{Results: results, Total: len(results), SearchTime: elapsed}, nil
}

// SearchText embeds query and searches with it.
func (s *RetrievalService) SearchText(ctx context.Context, ownerID, query string, limit int, threshold float64) (*SearchResponse, error) {
	return s.searchText(ctx, ownerID, query, s.queryIntent, limit, threshold)
}

func (s *RetrievalService) searchText(ctx context.Context, ownerID, query string, intent ports.EmbeddingIntent, limit int, threshold float64) (*SearchResponse, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("owner ID cannot be empty")
	}

	var vector valueobjects.Vector
	err := s.tracer.TraceFunction(ctx, "embed_query", func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = s.embedder.Embed(ctx, query, intent)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, ownerID, vector, limit, threshold)
}

// GetRelated finds the owner's memories most similar to an existing memory, excluding itself.
func (s *RetrievalService) GetRelated(ctx context.Context, ownerID string, id valueobjects.MemoryID, limit int) (*SearchResponse, error) {
	target, err := s.GetMemory(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, s.cfg.DefaultRelatedLimit, s.cfg.MaxRelatedLimit)

	vector, err := s.vectorFor(ctx, target)
	if err != nil {
		return nil, err
	}

	resp, err := s.Search(ctx, ownerID, vector, limit+1, s.cfg.RelatedThreshold)
	if err != nil {
		return nil, err
	}

	related := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Memory.ID().Equals(id) {
			continue
		}
		related = append(related, r)
	}
	if len(related) > limit {
		related = related[:limit]
	}
	return &SearchResponse{Results: related, Total: len(related), SearchTime: resp.SearchTime}, nil
}

// GetMemory loads a memory the caller owns. Another owner's memory is FORBIDDEN.
func (s *RetrievalService) GetMemory(ctx context.Context, ownerID string, id valueobjects.MemoryID) (*entities.MemoryUnit, error) {
	memory, err := s.memories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !memory.OwnedBy(ownerID) {
		return nil, pkgerrors.NewForbiddenError("memory belongs to another owner")
	}
	return memory, nil
}

// ListMemories pages through the owner's memories, newest first.
func (s *RetrievalService) ListMemories(ctx context.Context, ownerID string, filter ports.ListFilter) (*ports.MemoryPage, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("owner ID cannot be empty")
	}
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.DefaultListLimit
	}
	if filter.Limit > s.cfg.MaxListLimit {
		return nil, pkgerrors.NewValidationError("limit exceeds maximum")
	}
	if filter.Offset < 0 {
		return nil, pkgerrors.NewValidationError("offset cannot be negative")
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, pkgerrors.NewValidationError("end date is before start date")
	}
	return s.memories.ListByOwner(ctx, ownerID, filter)
}

// Stats reports store and index sizes, plus the owner's memory type distribution.
func (s *RetrievalService) Stats(ctx context.Context, ownerID string) (*Stats, error) {
	total, err := s.memories.Count(ctx)
	if err != nil {
		return nil, err
	}

	distribution := make(map[string]int)
	for _, id := range s.index.OwnerIDs(ownerID) {
		memory, ok := s.resolve(ctx, ownerID, id)
		if !ok {
			continue
		}
		distribution[memory.MemoryType().String()]++
	}

	return &Stats{
		TotalMemories:    total,
		VectorCount:      s.index.Len(),
		TypeDistribution: distribution,
		StorageMode:      s.storageMode,
		LastUpdated:      time.Now().UTC(),
	}, nil
}

// Health checks the store and the embedding provider. A store outage with a populated
// index is degraded: searches still run from memory, writes fail.
func (s *RetrievalService) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:     HealthHealthy,
		Components: map[string]string{"store": HealthHealthy, "embedding": HealthHealthy},
		CacheSize:  s.index.Len(),
		Model:      s.embedder.Model(),
		Dimension:  s.embedder.Dimension(),
		Timestamp:  time.Now().UTC(),
	}

	storeErr := s.memories.HealthCheck(ctx)
	if storeErr != nil {
		report.Components["store"] = HealthUnhealthy
		s.logger.Warn("Store health check failed", zap.Error(storeErr))
	}
	embedErr := s.embedder.HealthCheck(ctx)
	if embedErr != nil {
		report.Components["embedding"] = HealthUnhealthy
		s.logger.Warn("Embedding health check failed", zap.Error(embedErr))
	}

	switch {
	case storeErr != nil && report.CacheSize == 0:
		report.Status = HealthUnhealthy
	case storeErr != nil || embedErr != nil:
		report.Status = HealthDegraded
	}
	return report
}

// resolve loads a matched memory. Missing, unreadable, or foreign records are skipped.
func (s *RetrievalService) resolve(ctx context.Context, ownerID, id string) (*entities.MemoryUnit, bool) {
	memoryID, err := valueobjects.ParseMemoryID(id)
	if err != nil {
		s.logger.Warn("Skipping index entry with invalid id", zap.String("memoryID", id))
		return nil, false
	}

	memory, err := s.memories.GetByID(ctx, memoryID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			s.logger.Warn("Indexed memory missing from store", zap.String("memoryID", id))
		} else {
			s.logger.Error("Failed to resolve search match", zap.String("memoryID", id), zap.Error(err))
		}
		return nil, false
	}
	if !memory.OwnedBy(ownerID) {
		s.logger.Error("Index entry owner does not match store",
			zap.String("memoryID", id),
			zap.String("ownerID", ownerID),
		)
		return nil, false
	}
	return memory, true
}

func (s *RetrievalService) vectorFor(ctx context.Context, memory *entities.MemoryUnit) (valueobjects.Vector, error) {
	if entry, ok := s.index.Get(memory.ID().String()); ok {
		return entry.Vector, nil
	}
	record, err := s.vectors.GetByID(ctx, memory.ID())
	if err != nil {
		return nil, err
	}
	return record.Vector, nil
}

func clampLimit(limit, fallback, maximum int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, maximum)
}
