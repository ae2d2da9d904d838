package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/application/queries"
	"unimem/application/queries/bus"
	"unimem/application/services"
	"unimem/domain/config"
	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) SearchText(ctx context.Context, ownerID, query string, limit int, threshold float64) (*services.SearchResponse, error) {
	args := m.Called(ctx, ownerID, query, limit, threshold)
	resp, _ := args.Get(0).(*services.SearchResponse)
	return resp, args.Error(1)
}

func (m *mockRetriever) GetRelated(ctx context.Context, ownerID string, id valueobjects.MemoryID, limit int) (*services.SearchResponse, error) {
	args := m.Called(ctx, ownerID, id, limit)
	resp, _ := args.Get(0).(*services.SearchResponse)
	return resp, args.Error(1)
}

func (m *mockRetriever) GetMemory(ctx context.Context, ownerID string, id valueobjects.MemoryID) (*entities.MemoryUnit, error) {
	args := m.Called(ctx, ownerID, id)
	memory, _ := args.Get(0).(*entities.MemoryUnit)
	return memory, args.Error(1)
}

func (m *mockRetriever) ListMemories(ctx context.Context, ownerID string, filter ports.ListFilter) (*ports.MemoryPage, error) {
	args := m.Called(ctx, ownerID, filter)
	page, _ := args.Get(0).(*ports.MemoryPage)
	return page, args.Error(1)
}

func (m *mockRetriever) Stats(ctx context.Context, ownerID string) (*services.Stats, error) {
	args := m.Called(ctx, ownerID)
	stats, _ := args.Get(0).(*services.Stats)
	return stats, args.Error(1)
}

func (m *mockRetriever) Health(ctx context.Context) *services.HealthReport {
	report, _ := m.Called(ctx).Get(0).(*services.HealthReport)
	return report
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string, intent ports.EmbeddingIntent) (valueobjects.Vector, error) {
	args := m.Called(ctx, text, intent)
	vector, _ := args.Get(0).(valueobjects.Vector)
	return vector, args.Error(1)
}

func (m *mockEmbedder) EmbedMany(ctx context.Context, texts []string, intent ports.EmbeddingIntent) ([]valueobjects.Vector, error) {
	args := m.Called(ctx, texts, intent)
	vectors, _ := args.Get(0).([]valueobjects.Vector)
	return vectors, args.Error(1)
}

func (m *mockEmbedder) Dimension() int { return m.Called().Int(0) }
func (m *mockEmbedder) Model() string  { return m.Called().String(0) }

func (m *mockEmbedder) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type stubConversations struct {
	turns     []services.Turn
	summaries []services.ConversationSummary
	resp      *services.SearchResponse
	query     string
	owners    []string
}

func (s *stubConversations) History(ownerID, _ string) []services.Turn {
	s.owners = append(s.owners, ownerID)
	return s.turns
}

func (s *stubConversations) Conversations(ownerID string) []services.ConversationSummary {
	s.owners = append(s.owners, ownerID)
	return s.summaries
}

func (s *stubConversations) RelevantMemories(_ context.Context, _ string, query string) (*services.SearchResponse, error) {
	s.query = query
	return s.resp, nil
}

func newQueryBus(t *testing.T, retriever Retriever, embedder ports.EmbeddingProvider, conversations ConversationReader) *bus.QueryBus {
	t.Helper()
	b := bus.NewQueryBus(bus.LoggingMiddleware(zap.NewNop(), time.Second))
	require.NoError(t, RegisterAll(b,
		NewMemoryQueryHandler(retriever, embedder, config.DefaultDomainConfig()),
		NewConversationQueryHandler(conversations),
	))
	return b
}

func newMemory(t *testing.T, owner, content string) *entities.MemoryUnit {
	t.Helper()
	m, err := entities.NewMemoryUnit(entities.NewMemoryParams{
		OwnerID:    owner,
		Content:    content,
		MemoryType: valueobjects.MemoryTypeText,
	})
	require.NoError(t, err)
	return m
}

func TestSearchMemories_Threshold(t *testing.T) {
	custom := 0.7

	tests := []struct {
		name          string
		threshold     *float64
		limit         int
		wantThreshold float64
		wantLimit     int
	}{
		{name: "defaults", wantThreshold: 0.1, wantLimit: 10},
		{name: "explicit values", threshold: &custom, limit: 3, wantThreshold: 0.7, wantLimit: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			memory := newMemory(t, "owner-1", "stored content")
			retriever := new(mockRetriever)
			retriever.On("SearchText", mock.Anything, "owner-1", "find me", tt.wantLimit, tt.wantThreshold).
				Return(&services.SearchResponse{
					Results:    []services.SearchResult{{Memory: memory, Similarity: 0.9, SearchTime: 2 * time.Millisecond}},
					Total:      1,
					SearchTime: 2 * time.Millisecond,
				}, nil)
			b := newQueryBus(t, retriever, new(mockEmbedder), &stubConversations{})

			// Act
			result, err := b.Ask(context.Background(), queries.SearchMemoriesQuery{
				OwnerID:   "owner-1",
				Query:     "find me",
				Limit:     tt.limit,
				Threshold: tt.threshold,
			})

			// Assert
			require.NoError(t, err)
			view := result.(*queries.SearchResultsView)
			require.Len(t, view.Results, 1)
			assert.Equal(t, memory.ID().String(), view.Results[0].Memory.ID)
			assert.InDelta(t, 0.002, view.SearchTime, 1e-9)
			assert.Equal(t, view.SearchTime, view.Results[0].SearchTime)
			retriever.AssertExpectations(t)
		})
	}
}

func TestSearchMemories_LimitAboveMaximumIsRejected(t *testing.T) {
	b := newQueryBus(t, new(mockRetriever), new(mockEmbedder), &stubConversations{})

	_, err := b.Ask(context.Background(), queries.SearchMemoriesQuery{OwnerID: "o", Query: "q", Limit: 101})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestListMemories_BuildsFilter(t *testing.T) {
	// Arrange
	retriever := new(mockRetriever)
	retriever.On("ListMemories", mock.Anything, "owner-1", mock.MatchedBy(func(f ports.ListFilter) bool {
		return f.Limit == 20 &&
			f.Offset == 5 &&
			f.MemoryType == valueobjects.MemoryTypeDocument &&
			f.Start != nil && f.Start.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) &&
			f.End != nil && f.End.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond))
	})).Return(&ports.MemoryPage{Total: 0}, nil)
	b := newQueryBus(t, retriever, new(mockEmbedder), &stubConversations{})

	// Act
	result, err := b.Ask(context.Background(), queries.ListMemoriesQuery{
		OwnerID:    "owner-1",
		MemoryType: "DOCUMENT",
		StartDate:  "2024-05-01",
		EndDate:    "2024-05-01",
		Offset:     5,
	})

	// Assert
	require.NoError(t, err)
	view := result.(*queries.MemoryListView)
	assert.Empty(t, view.Memories)
	assert.Equal(t, 20, view.Limit)
	assert.Equal(t, 5, view.Offset)
	retriever.AssertExpectations(t)
}

func TestListMemories_InvalidInputs(t *testing.T) {
	tests := []struct {
		name  string
		query queries.ListMemoriesQuery
	}{
		{name: "bad date", query: queries.ListMemoriesQuery{OwnerID: "o", StartDate: "yesterday"}},
		{name: "unknown type", query: queries.ListMemoriesQuery{OwnerID: "o", MemoryType: "video"}},
		{name: "negative offset", query: queries.ListMemoriesQuery{OwnerID: "o", Offset: -1}},
		{name: "missing owner", query: queries.ListMemoriesQuery{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := new(mockRetriever)
			b := newQueryBus(t, retriever, new(mockEmbedder), &stubConversations{})

			_, err := b.Ask(context.Background(), tt.query)

			assert.True(t, pkgerrors.IsValidation(err))
			retriever.AssertNotCalled(t, "ListMemories", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGetMemory(t *testing.T) {
	memory := newMemory(t, "owner-1", "content")
	retriever := new(mockRetriever)
	retriever.On("GetMemory", mock.Anything, "owner-1", memory.ID()).Return(memory, nil)
	b := newQueryBus(t, retriever, new(mockEmbedder), &stubConversations{})

	result, err := b.Ask(context.Background(), queries.GetMemoryQuery{OwnerID: "owner-1", MemoryID: memory.ID().String()})

	require.NoError(t, err)
	view := result.(*queries.MemoryView)
	assert.Equal(t, "content", view.Content)
	assert.Equal(t, "text", view.MemoryType)
	assert.Equal(t, []string{}, view.Tags)
}

func TestGetMemory_ForbiddenPassesThrough(t *testing.T) {
	id := valueobjects.NewMemoryID()
	retriever := new(mockRetriever)
	retriever.On("GetMemory", mock.Anything, "intruder", id).Return(nil, pkgerrors.NewForbiddenError("memory belongs to another owner"))
	b := newQueryBus(t, retriever, new(mockEmbedder), &stubConversations{})

	result, err := b.Ask(context.Background(), queries.GetMemoryQuery{OwnerID: "intruder", MemoryID: id.String()})

	assert.Nil(t, result)
	assert.True(t, pkgerrors.IsForbidden(err))
}

func TestGetRelated(t *testing.T) {
	id := valueobjects.NewMemoryID()
	retriever := new(mockRetriever)
	retriever.On("GetRelated", mock.Anything, "owner-1", id, 4).Return(&services.SearchResponse{}, nil)
	b := newQueryBus(t, retriever, new(mockEmbedder), &stubConversations{})

	result, err := b.Ask(context.Background(), queries.GetRelatedMemoriesQuery{OwnerID: "owner-1", MemoryID: id.String(), Limit: 4})

	require.NoError(t, err)
	assert.Equal(t, 0, result.(*queries.SearchResultsView).Total)
	retriever.AssertExpectations(t)
}

func TestStatsAndHealth(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	retriever := new(mockRetriever)
	retriever.On("Stats", mock.Anything, "owner-1").Return(&services.Stats{
		TotalMemories:    7,
		VectorCount:      6,
		TypeDistribution: map[string]int{"text": 2},
		StorageMode:      "dynamodb",
		LastUpdated:      now,
	}, nil)
	retriever.On("Health", mock.Anything).Return(&services.HealthReport{
		Status:     services.HealthDegraded,
		Components: map[string]string{"store": "unhealthy"},
		CacheSize:  6,
		Model:      "hashing",
		Dimension:  2048,
		Timestamp:  now,
	})
	b := newQueryBus(t, retriever, new(mockEmbedder), &stubConversations{})

	stats, err := b.Ask(context.Background(), queries.GetStatsQuery{OwnerID: "owner-1"})
	require.NoError(t, err)
	health, err := b.Ask(context.Background(), queries.HealthQuery{})
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.(*queries.StatsView).TotalMemories)
	assert.Equal(t, "2024-05-01T12:00:00Z", stats.(*queries.StatsView).LastUpdated)
	assert.Equal(t, "degraded", health.(*queries.HealthView).Status)
	assert.Equal(t, 6, health.(*queries.HealthView).CacheSize)
}

func TestEmbedText(t *testing.T) {
	tests := []struct {
		name       string
		inputType  string
		wantIntent ports.EmbeddingIntent
	}{
		{name: "defaults to passage", wantIntent: ports.IntentPassage},
		{name: "query", inputType: "query", wantIntent: ports.IntentQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			embedder := new(mockEmbedder)
			embedder.On("Embed", mock.Anything, "hello", tt.wantIntent).Return(valueobjects.Vector{0.6, 0.8}, nil)
			embedder.On("Model").Return("test-model")
			b := newQueryBus(t, new(mockRetriever), embedder, &stubConversations{})

			// Act
			result, err := b.Ask(context.Background(), queries.EmbedTextQuery{Text: "hello", InputType: tt.inputType})

			// Assert
			require.NoError(t, err)
			view := result.(*queries.EmbeddingView)
			assert.Equal(t, []float32{0.6, 0.8}, view.Embedding)
			assert.Equal(t, 2, view.Dimension)
			assert.Equal(t, "test-model", view.Model)
			assert.Equal(t, string(tt.wantIntent), view.InputType)
		})
	}
}

func TestEmbedText_RejectsUnknownInputType(t *testing.T) {
	b := newQueryBus(t, new(mockRetriever), new(mockEmbedder), &stubConversations{})

	_, err := b.Ask(context.Background(), queries.EmbedTextQuery{Text: "hello", InputType: "document"})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestConversationQueries(t *testing.T) {
	// Arrange
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	conversations := &stubConversations{
		turns:     []services.Turn{{UserInput: "q", Response: "a", MemoryID: "m", Timestamp: ts}},
		summaries: []services.ConversationSummary{{ConversationID: "conv_1", TurnCount: 1, LastActivity: ts}},
		resp:      &services.SearchResponse{},
	}
	b := newQueryBus(t, new(mockRetriever), new(mockEmbedder), conversations)

	// Act
	history, err := b.Ask(context.Background(), queries.GetConversationHistoryQuery{OwnerID: "owner-1", ConversationID: "conv_1"})
	require.NoError(t, err)
	listed, err := b.Ask(context.Background(), queries.ListConversationsQuery{OwnerID: "owner-1"})
	require.NoError(t, err)
	_, err = b.Ask(context.Background(), queries.ConversationContextQuery{OwnerID: "owner-1", Query: "what did I say"})
	require.NoError(t, err)

	// Assert
	view := history.(*queries.HistoryView)
	assert.Equal(t, "conv_1", view.ConversationID)
	require.Len(t, view.Turns, 1)
	assert.Equal(t, "2024-05-01T00:00:00Z", view.Turns[0].Timestamp)
	assert.Equal(t, "what did I say", conversations.query)
	assert.Equal(t, []string{"owner-1", "owner-1"}, conversations.owners)
	list := listed.(*queries.ConversationListView)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "2024-05-01T00:00:00Z", list.Conversations[0].LastActivity)
}

func TestConversationQueries_RequireOwner(t *testing.T) {
	b := newQueryBus(t, new(mockRetriever), new(mockEmbedder), &stubConversations{})

	_, err := b.Ask(context.Background(), queries.GetConversationHistoryQuery{ConversationID: "conv_1"})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = b.Ask(context.Background(), queries.ListConversationsQuery{})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestEmbedBatch(t *testing.T) {
	t.Run("embeds in order", func(t *testing.T) {
		// Arrange
		embedder := new(mockEmbedder)
		embedder.On("EmbedMany", mock.Anything, []string{"a", "b"}, ports.IntentQuery).
			Return([]valueobjects.Vector{{1, 0}, {0, 1}}, nil)
		embedder.On("Model").Return("test-model")
		b := newQueryBus(t, new(mockRetriever), embedder, &stubConversations{})

		// Act
		result, err := b.Ask(context.Background(), queries.EmbedBatchQuery{Texts: []string{"a", "b"}, InputType: "query"})

		// Assert
		require.NoError(t, err)
		view := result.(*queries.EmbeddingBatchView)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, view.Embeddings)
		assert.Equal(t, 2, view.Count)
		assert.Equal(t, 2, view.Dimension)
		assert.Equal(t, "query", view.InputType)
		embedder.AssertExpectations(t)
	})

	t.Run("rejects empty batches and blank texts", func(t *testing.T) {
		b := newQueryBus(t, new(mockRetriever), new(mockEmbedder), &stubConversations{})

		_, err := b.Ask(context.Background(), queries.EmbedBatchQuery{})
		assert.True(t, pkgerrors.IsValidation(err))

		_, err = b.Ask(context.Background(), queries.EmbedBatchQuery{Texts: []string{"a", ""}})
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("provider failure", func(t *testing.T) {
		embedder := new(mockEmbedder)
		embedder.On("EmbedMany", mock.Anything, []string{"a"}, ports.IntentPassage).
			Return(nil, pkgerrors.NewUpstreamError("embedding", errors.New("503")))
		b := newQueryBus(t, new(mockRetriever), embedder, &stubConversations{})

		_, err := b.Ask(context.Background(), queries.EmbedBatchQuery{Texts: []string{"a"}})

		assert.Equal(t, pkgerrors.ErrorTypeUpstream, pkgerrors.GetAppError(err).Type)
	})
}
