package handlers

import (
	"context"
	"fmt"

	"unimem/application/ports"
	"unimem/application/queries"
	"unimem/application/queries/bus"
	"unimem/application/services"
	"unimem/domain/config"
	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
	"unimem/pkg/utils"
)

// Retriever is the read side of the memory store.
type Retriever interface {
	SearchText(ctx context.Context, ownerID, query string, limit int, threshold float64) (*services.SearchResponse, error)
	GetRelated(ctx context.Context, ownerID string, id valueobjects.MemoryID, limit int) (*services.SearchResponse, error)
	GetMemory(ctx context.Context, ownerID string, id valueobjects.MemoryID) (*entities.MemoryUnit, error)
	ListMemories(ctx context.Context, ownerID string, filter ports.ListFilter) (*ports.MemoryPage, error)
	Stats(ctx context.Context, ownerID string) (*services.Stats, error)
	Health(ctx context.Context) *services.HealthReport
}

// MemoryQueryHandler answers every memory read query.
type MemoryQueryHandler struct {
	retriever Retriever
	embedder  ports.EmbeddingProvider
	cfg       *config.DomainConfig
}

// NewMemoryQueryHandler creates a new query handler
func NewMemoryQueryHandler(retriever Retriever, embedder ports.EmbeddingProvider, cfg *config.DomainConfig) *MemoryQueryHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &MemoryQueryHandler{retriever: retriever, embedder: embedder, cfg: cfg}
}

// Handle dispatches on the query type.
func (h *MemoryQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetMemoryQuery:
		return h.getMemory(ctx, q)
	case queries.ListMemoriesQuery:
		return h.listMemories(ctx, q)
	case queries.SearchMemoriesQuery:
		return h.search(ctx, q)
	case queries.GetRelatedMemoriesQuery:
		return h.related(ctx, q)
	case queries.GetStatsQuery:
		stats, err := h.retriever.Stats(ctx, q.OwnerID)
		if err != nil {
			return nil, err
		}
		return queries.NewStatsView(stats), nil
	case queries.HealthQuery:
		return queries.NewHealthView(h.retriever.Health(ctx)), nil
	case queries.EmbedTextQuery:
		return h.embed(ctx, q)
	case queries.EmbedBatchQuery:
		return h.embedBatch(ctx, q)
	default:
		return nil, pkgerrors.NewInternalError(fmt.Sprintf("unexpected query type %T", query))
	}
}

func (h *MemoryQueryHandler) getMemory(ctx context.Context, q queries.GetMemoryQuery) (interface{}, error) {
	id, err := valueobjects.ParseMemoryID(q.MemoryID)
	if err != nil {
		return nil, err
	}
	memory, err := h.retriever.GetMemory(ctx, q.OwnerID, id)
	if err != nil {
		return nil, err
	}
	view := queries.NewMemoryView(memory)
	return &view, nil
}

func (h *MemoryQueryHandler) listMemories(ctx context.Context, q queries.ListMemoriesQuery) (interface{}, error) {
	filter := ports.ListFilter{Limit: q.Limit, Offset: q.Offset}
	if filter.Limit == 0 {
		filter.Limit = h.cfg.DefaultListLimit
	}
	if q.MemoryType != "" {
		memoryType, err := valueobjects.ParseMemoryType(q.MemoryType)
		if err != nil {
			return nil, err
		}
		filter.MemoryType = memoryType
	}
	if q.StartDate != "" {
		start, err := utils.ParseDateBound(q.StartDate, false)
		if err != nil {
			return nil, pkgerrors.NewValidationError(err.Error())
		}
		filter.Start = &start
	}
	if q.EndDate != "" {
		end, err := utils.ParseDateBound(q.EndDate, true)
		if err != nil {
			return nil, pkgerrors.NewValidationError(err.Error())
		}
		filter.End = &end
	}

	page, err := h.retriever.ListMemories(ctx, q.OwnerID, filter)
	if err != nil {
		return nil, err
	}
	return queries.NewMemoryListView(page, filter.Limit, filter.Offset), nil
}

func (h *MemoryQueryHandler) search(ctx context.Context, q queries.SearchMemoriesQuery) (interface{}, error) {
	limit := q.Limit
	if limit == 0 {
		limit = h.cfg.DefaultSearchLimit
	}
	threshold := h.cfg.DefaultSearchThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	resp, err := h.retriever.SearchText(ctx, q.OwnerID, q.Query, limit, threshold)
	if err != nil {
		return nil, err
	}
	return queries.NewSearchResultsView(resp), nil
}

func (h *MemoryQueryHandler) related(ctx context.Context, q queries.GetRelatedMemoriesQuery) (interface{}, error) {
	id, err := valueobjects.ParseMemoryID(q.MemoryID)
	if err != nil {
		return nil, err
	}
	resp, err := h.retriever.GetRelated(ctx, q.OwnerID, id, q.Limit)
	if err != nil {
		return nil, err
	}
	return queries.NewSearchResultsView(resp), nil
}

func (h *MemoryQueryHandler) embedBatch(ctx context.Context, q queries.EmbedBatchQuery) (interface{}, error) {
	intent := ports.IntentPassage
	if q.InputType != "" {
		intent = ports.EmbeddingIntent(q.InputType)
	}
	vectors, err := h.embedder.EmbedMany(ctx, q.Texts, intent)
	if err != nil {
		return nil, err
	}
	view := &queries.EmbeddingBatchView{
		Embeddings: make([][]float32, 0, len(vectors)),
		Count:      len(vectors),
		Model:      h.embedder.Model(),
		InputType:  string(intent),
	}
	for _, v := range vectors {
		view.Embeddings = append(view.Embeddings, v)
	}
	if len(vectors) > 0 {
		view.Dimension = len(vectors[0])
	}
	return view, nil
}

func (h *MemoryQueryHandler) embed(ctx context.Context, q queries.EmbedTextQuery) (interface{}, error) {
	intent := ports.IntentPassage
	if q.InputType != "" {
		intent = ports.EmbeddingIntent(q.InputType)
	}
	vector, err := h.embedder.Embed(ctx, q.Text, intent)
	if err != nil {
		return nil, err
	}
	return &queries.EmbeddingView{
		Embedding: vector,
		Dimension: len(vector),
		Model:     h.embedder.Model(),
		InputType: string(intent),
	}, nil
}
