package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/domain/chunking"
	"unimem/domain/config"
	"unimem/domain/core/valueobjects"
	"unimem/domain/events"
	"unimem/infrastructure/cache"
	"unimem/infrastructure/embedding"
	"unimem/infrastructure/persistence/memory"
	pkgerrors "unimem/pkg/errors"
)

const testDimension = 2048

// failingEmbedder fails for any text containing the marker word.
type failingEmbedder struct {
	*embedding.HashingEmbedder
	marker string
}

func (f *failingEmbedder) Embed(ctx context.Context, text string, intent ports.EmbeddingIntent) (valueobjects.Vector, error) {
	if f.marker != "" && strings.Contains(text, f.marker) {
		return nil, pkgerrors.NewUpstreamError("embedding", errors.New("model overloaded"))
	}
	return f.HashingEmbedder.Embed(ctx, text, intent)
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string, intent ports.EmbeddingIntent) (valueobjects.Vector, error) {
	args := m.Called(ctx, text, intent)
	v, _ := args.Get(0).(valueobjects.Vector)
	return v, args.Error(1)
}

func (m *mockEmbedder) EmbedMany(ctx context.Context, texts []string, intent ports.EmbeddingIntent) ([]valueobjects.Vector, error) {
	args := m.Called(ctx, texts, intent)
	v, _ := args.Get(0).([]valueobjects.Vector)
	return v, args.Error(1)
}

func (m *mockEmbedder) Dimension() int { return m.Called().Int(0) }
func (m *mockEmbedder) Model() string  { return m.Called().String(0) }

func (m *mockEmbedder) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingPublisher struct {
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...events.DomainEvent) error {
	p.events = append(p.events, evts...)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.GetEventType())
	}
	return out
}

type fixture struct {
	memories     *memory.MemoryRepository
	vectors      *memory.VectorRepository
	index        *cache.VectorCache
	embedder     ports.EmbeddingProvider
	publisher    *recordingPublisher
	cfg          *config.DomainConfig
	ingestion    *IngestionService
	retrieval    *RetrievalService
	conversation *ConversationService
}

type fixtureOption func(*fixture, *int)

func withEmbedder(e ports.EmbeddingProvider) fixtureOption {
	return func(f *fixture, _ *int) { f.embedder = e }
}

func withChunkBudget(tokens int) fixtureOption {
	return func(_ *fixture, budget *int) { *budget = tokens }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	logger := zap.NewNop()
	f := &fixture{
		memories:  memory.NewMemoryRepository(),
		vectors:   memory.NewVectorRepository(),
		index:     cache.NewVectorCache(),
		embedder:  embedding.NewHashingEmbedder(testDimension),
		publisher: &recordingPublisher{},
		cfg:       config.DefaultDomainConfig(),
	}
	budget := f.cfg.ChunkMaxTokens
	for _, opt := range opts {
		opt(f, &budget)
	}

	f.ingestion = NewIngestionService(f.memories, f.vectors, f.index, f.embedder, f.publisher, nil, nil,
		chunking.NewChunker(budget, nil), f.cfg, logger)
	f.retrieval = NewRetrievalService(f.memories, f.vectors, f.index, f.embedder, nil, nil,
		f.cfg, ports.IntentPassage, "memory", logger)
	f.conversation = NewConversationService(f.ingestion, f.retrieval, f.publisher, f.cfg, logger)
	return f
}

func (f *fixture) ingest(t *testing.T, owner, content string) string {
	t.Helper()
	res, err := f.ingestion.Ingest(context.Background(), IngestRequest{
		OwnerID:    owner,
		Content:    content,
		MemoryType: "text",
	})
	require.NoError(t, err)
	return res.PrimaryID
}

func mustID(t *testing.T, id string) valueobjects.MemoryID {
	t.Helper()
	parsed, err := valueobjects.ParseMemoryID(id)
	require.NoError(t, err)
	return parsed
}

func zapNop() *zap.Logger { return zap.NewNop() }
