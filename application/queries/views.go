package queries

import (
	"time"

	"unimem/application/ports"
	"unimem/application/services"
	"unimem/domain/core/entities"
)

// MemoryView is the read representation of a memory unit.
type MemoryView struct {
	ID         string                 `json:"id"`
	OwnerID    string                 `json:"owner_id"`
	Content    string                 `json:"content"`
	MemoryType string                 `json:"memory_type"`
	Metadata   map[string]interface{} `json:"metadata"`
	Source     string                 `json:"source,omitempty"`
	Summary    string                 `json:"summary,omitempty"`
	Tags       []string               `json:"tags"`
	CreatedAt  string                 `json:"created_at"`
	UpdatedAt  string                 `json:"updated_at"`
}

// NewMemoryView converts an entity to its view.
func NewMemoryView(m *entities.MemoryUnit) MemoryView {
	tags := m.Tags()
	if tags == nil {
		tags = []string{}
	}
	return MemoryView{
		ID:         m.ID().String(),
		OwnerID:    m.OwnerID(),
		Content:    m.Content(),
		MemoryType: m.MemoryType().String(),
		Metadata:   m.Metadata(),
		Source:     m.Source(),
		Summary:    m.Summary(),
		Tags:       tags,
		CreatedAt:  m.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:  m.UpdatedAt().Format(time.RFC3339Nano),
	}
}

// SearchResultView is one ranked match. SearchTime is in seconds.
type SearchResultView struct {
	Memory     MemoryView `json:"memory"`
	Similarity float64    `json:"similarity"`
	SearchTime float64    `json:"search_time"`
}

// SearchResultsView is the ranked outcome of a search.
type SearchResultsView struct {
	Results    []SearchResultView `json:"results"`
	Total      int                `json:"total"`
	SearchTime float64            `json:"search_time"`
}

// NewSearchResultsView converts a service response to its view.
func NewSearchResultsView(resp *services.SearchResponse) *SearchResultsView {
	view := &SearchResultsView{
		Results:    make([]SearchResultView, 0, len(resp.Results)),
		Total:      resp.Total,
		SearchTime: resp.SearchTime.Seconds(),
	}
	for _, r := range resp.Results {
		view.Results = append(view.Results, SearchResultView{
			Memory:     NewMemoryView(r.Memory),
			Similarity: r.Similarity,
			SearchTime: r.SearchTime.Seconds(),
		})
	}
	return view
}

// MemoryListView is one page of memories.
type MemoryListView struct {
	Memories []MemoryView `json:"memories"`
	Total    int          `json:"total"`
	HasMore  bool         `json:"has_more"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
}

// NewMemoryListView converts a store page to its view.
func NewMemoryListView(page *ports.MemoryPage, limit, offset int) *MemoryListView {
	view := &MemoryListView{
		Memories: make([]MemoryView, 0, len(page.Memories)),
		Total:    page.Total,
		HasMore:  page.HasMore,
		Limit:    limit,
		Offset:   offset,
	}
	for _, m := range page.Memories {
		view.Memories = append(view.Memories, NewMemoryView(m))
	}
	return view
}

// StatsView reports store and cache sizes.
type StatsView struct {
	TotalMemories    int64          `json:"total_memories"`
	VectorCount      int            `json:"vector_count"`
	TypeDistribution map[string]int `json:"type_distribution"`
	StorageMode      string         `json:"storage_mode"`
	LastUpdated      string         `json:"last_updated"`
}

// HealthView is the health report.
type HealthView struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CacheSize  int               `json:"cache_size"`
	Model      string            `json:"model"`
	Dimension  int               `json:"dimension"`
	Timestamp  string            `json:"timestamp"`
}

// EmbeddingView is a raw embedding.
type EmbeddingView struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
	InputType string    `json:"input_type"`
}

// EmbeddingBatchView is a batch of raw embeddings, in request order.
type EmbeddingBatchView struct {
	Embeddings [][]float32 `json:"embeddings"`
	Count      int         `json:"count"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
	InputType  string      `json:"input_type"`
}

// ConversationSummaryView describes one conversation in a listing.
type ConversationSummaryView struct {
	ConversationID string `json:"conversation_id"`
	TurnCount      int    `json:"turn_count"`
	LastActivity   string `json:"last_activity,omitempty"`
}

// ConversationListView lists the caller's conversations.
type ConversationListView struct {
	Conversations []ConversationSummaryView `json:"conversations"`
	Total         int                       `json:"total"`
}

// NewConversationListView converts conversation summaries to their view.
func NewConversationListView(summaries []services.ConversationSummary) *ConversationListView {
	view := &ConversationListView{Conversations: make([]ConversationSummaryView, 0, len(summaries)), Total: len(summaries)}
	for _, s := range summaries {
		item := ConversationSummaryView{ConversationID: s.ConversationID, TurnCount: s.TurnCount}
		if !s.LastActivity.IsZero() {
			item.LastActivity = s.LastActivity.Format(time.RFC3339)
		}
		view.Conversations = append(view.Conversations, item)
	}
	return view
}

// TurnView is one recorded dialogue turn.
type TurnView struct {
	UserInput string `json:"user_input"`
	Response  string `json:"response"`
	MemoryID  string `json:"memory_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HistoryView is a conversation's recent turns, oldest first.
type HistoryView struct {
	ConversationID string     `json:"conversation_id"`
	Turns          []TurnView `json:"turns"`
}

// NewStatsView converts service stats to their view.
func NewStatsView(s *services.Stats) *StatsView {
	return &StatsView{
		TotalMemories:    s.TotalMemories,
		VectorCount:      s.VectorCount,
		TypeDistribution: s.TypeDistribution,
		StorageMode:      s.StorageMode,
		LastUpdated:      s.LastUpdated.Format(time.RFC3339),
	}
}

// NewHealthView converts a health report to its view.
func NewHealthView(h *services.HealthReport) *HealthView {
	return &HealthView{
		Status:     h.Status,
		Components: h.Components,
		CacheSize:  h.CacheSize,
		Model:      h.Model,
		Dimension:  h.Dimension,
		Timestamp:  h.Timestamp.Format(time.RFC3339),
	}
}

// NewHistoryView converts recorded turns to their view.
func NewHistoryView(conversationID string, turns []services.Turn) *HistoryView {
	view := &HistoryView{ConversationID: conversationID, Turns: make([]TurnView, 0, len(turns))}
	for _, t := range turns {
		view.Turns = append(view.Turns, TurnView{
			UserInput: t.UserInput,
			Response:  t.Response,
			MemoryID:  t.MemoryID,
			Timestamp: t.Timestamp.Format(time.RFC3339),
		})
	}
	return view
}
