package services

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/application/sagas"
	"unimem/domain/chunking"
	"unimem/domain/config"
	"unimem/domain/core/entities"
	"unimem/domain/core/validators"
	"unimem/domain/core/valueobjects"
	"unimem/domain/events"
	pkgerrors "unimem/pkg/errors"
	"unimem/pkg/observability"
	"unimem/pkg/utils"
)

// IngestRequest is the caller's content to store as one or more memories.
type IngestRequest struct {
	OwnerID    string
	Content    string
	MemoryType string
	Metadata   map[string]interface{}
	Source     string
	Tags       []string
	Summary    string
}

// IngestResult identifies the memories an ingest produced.
type IngestResult struct {
	PrimaryID     string
	ChunkIDs      []string
	TotalChunks   int
	FailedChunks  []int
	ContentLength int
}

// IngestionService turns content into memories: chunk, embed, persist, then index.
type IngestionService struct {
	memories  ports.MemoryRepository
	vectors   ports.VectorRepository
	index     ports.VectorIndex
	embedder  ports.EmbeddingProvider
	publisher ports.EventPublisher
	metrics   ports.MetricsRecorder
	tracer    *observability.Tracer
	chunker   *chunking.Chunker
	validator *validators.MemoryValidator
	cfg       *config.DomainConfig
	logger    *zap.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	memories ports.MemoryRepository,
	vectors ports.VectorRepository,
	index ports.VectorIndex,
	embedder ports.EmbeddingProvider,
	publisher ports.EventPublisher,
	metrics ports.MetricsRecorder,
	tracer *observability.Tracer,
	chunker *chunking.Chunker,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *IngestionService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if chunker == nil {
		chunker = chunking.NewChunker(cfg.ChunkMaxTokens, nil)
	}
	return &IngestionService{
		memories:  memories,
		vectors:   vectors,
		index:     index,
		embedder:  embedder,
		publisher: publisher,
		metrics:   metrics,
		tracer:    tracer,
		chunker:   chunker,
		validator: validators.NewMemoryValidator(cfg),
		cfg:       cfg,
		logger:    logger,
	}
}

// Ingest chunks the content and stores every chunk as a memory with its embedding.
//
// A failure on the first chunk aborts the ingest and leaves nothing behind. Failures on
// later chunks are collected: the result is still returned, together with a
// PARTIAL_INGESTION error naming the failed chunk indexes.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	start := time.Now()

	memoryType, tags, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Split(req.Content)
	if len(chunks) == 0 {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}
	total := len(chunks)

	s.logger.Debug("Ingesting content",
		zap.String("ownerID", req.OwnerID),
		zap.String("memoryType", memoryType.String()),
		zap.Int("totalChunks", total),
	)

	primary, err := s.storeChunk(ctx, req, memoryType, tags, chunks[0], 0, total, valueobjects.MemoryID{})
	if err != nil {
		s.recordError(ctx, "Ingest", err)
		return nil, err
	}

	result := &IngestResult{
		PrimaryID:     primary.ID().String(),
		ChunkIDs:      []string{primary.ID().String()},
		TotalChunks:   total,
		ContentLength: utf8.RuneCountInString(req.Content),
	}

	var failures []pkgerrors.ChunkFailure
	for i := 1; i < total; i++ {
		chunk, err := s.storeChunk(ctx, req, memoryType, tags, chunks[i], i, total, primary.ID())
		if err != nil {
			s.logger.Warn("Chunk ingestion failed",
				zap.String("parentID", primary.ID().String()),
				zap.Int("chunkIndex", i),
				zap.Error(err),
			)
			failures = append(failures, pkgerrors.ChunkFailure{Index: i, Err: err})
			result.FailedChunks = append(result.FailedChunks, i)
			s.publish(ctx, events.NewChunkIngestionFailed(primary.ID(), req.OwnerID, i, errorKind(err), time.Now().UTC()))
			s.recordError(ctx, "IngestChunk", err)
			continue
		}
		result.ChunkIDs = append(result.ChunkIDs, chunk.ID().String())
	}

	if s.metrics != nil {
		s.metrics.RecordLatency(ctx, "Ingest", time.Since(start))
		s.metrics.RecordBusinessMetric(ctx, "ChunksIngested", float64(len(result.ChunkIDs)),
			map[string]string{"MemoryType": memoryType.String()})
	}

	s.logger.Info("Content ingested",
		zap.String("memoryID", result.PrimaryID),
		zap.String("ownerID", req.OwnerID),
		zap.Int("totalChunks", total),
		zap.Int("failedChunks", len(failures)),
		zap.Duration("duration", time.Since(start)),
	)

	if len(failures) > 0 {
		return result, pkgerrors.NewPartialIngestionError(result.PrimaryID, total, failures)
	}
	return result, nil
}

// ParseText ingests plain text submitted directly by the user.
func (s *IngestionService) ParseText(ctx context.Context, ownerID, text, source string) (*IngestResult, error) {
	if source == "" {
		source = "direct_input"
	}
	return s.Ingest(ctx, IngestRequest{
		OwnerID:    ownerID,
		Content:    text,
		MemoryType: valueobjects.MemoryTypeText.String(),
		Metadata: map[string]interface{}{
			"source":     source,
			"parser":     "direct_text",
			"word_count": utils.WordCount(text),
			"char_count": utf8.RuneCountInString(text),
		},
		Source:  source,
		Tags:    []string{"text", "direct_input"},
		Summary: utils.Preview(text, s.cfg.ChunkSummaryLength),
	})
}

// Delete removes a memory, its vector and its index entry. Only the owner may delete.
func (s *IngestionService) Delete(ctx context.Context, ownerID string, id valueobjects.MemoryID) error {
	memory, err := s.memories.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !memory.OwnedBy(ownerID) {
		return pkgerrors.NewForbiddenError("memory belongs to another owner")
	}

	// Drop from the index first so concurrent searches stop returning it.
	entry, cached := s.index.Get(id.String())
	s.index.Remove(id.String())

	if err := s.vectors.Delete(ctx, id); err != nil {
		// Both rows are still stored, so the memory must stay searchable.
		if cached {
			s.index.Insert(entry)
		}
		s.logger.Error("Failed to delete vector, memory restored to index",
			zap.String("memoryID", id.String()),
			zap.Error(err),
		)
		return err
	}
	// The vector is gone; a failure here leaves a memory without a vector, which the
	// cache rebuild reports as missing.
	if err := s.memories.Delete(ctx, id); err != nil {
		return err
	}

	memory.RecordDeleted()
	s.publish(ctx, memory.GetUncommittedEvents()...)
	memory.MarkEventsAsCommitted()

	s.logger.Info("Memory deleted",
		zap.String("memoryID", id.String()),
		zap.String("ownerID", ownerID),
	)
	return nil
}

func (s *IngestionService) validate(req IngestRequest) (valueobjects.MemoryType, []string, error) {
	if err := s.validator.ValidateOwner(req.OwnerID); err != nil {
		return "", nil, err
	}
	if err := s.validator.ValidateContent(req.Content); err != nil {
		return "", nil, err
	}

	memoryType := valueobjects.MemoryTypeText
	if req.MemoryType != "" {
		parsed, err := valueobjects.ParseMemoryType(req.MemoryType)
		if err != nil {
			return "", nil, err
		}
		memoryType = parsed
	}

	tags, err := s.validator.NormalizeTags(req.Tags)
	if err != nil {
		return "", nil, err
	}
	return memoryType, tags, nil
}

// storeChunk embeds one chunk and persists it through the memory saga.
func (s *IngestionService) storeChunk(
	ctx context.Context,
	req IngestRequest,
	memoryType valueobjects.MemoryType,
	tags []string,
	text string,
	index, total int,
	parentID valueobjects.MemoryID,
) (*entities.MemoryUnit, error) {
	summary := req.Summary
	if index > 0 {
		summary = utils.Preview(text, s.cfg.ChunkSummaryLength)
	}

	memory, err := entities.NewMemoryUnit(entities.NewMemoryParams{
		OwnerID:    req.OwnerID,
		Content:    text,
		MemoryType: memoryType,
		Metadata:   req.Metadata,
		Source:     req.Source,
		Summary:    summary,
		Tags:       tags,
	})
	if err != nil {
		return nil, err
	}
	memory.SetMetadata(entities.MetaContentHash, utils.ContentHash(text))
	if total > 1 {
		memory.MarkAsChunk(index, total, parentID)
	}

	var vector valueobjects.Vector
	err = s.tracer.TraceFunction(ctx, "embed", func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = s.embedder.Embed(ctx, text, ports.IntentPassage)
		return embedErr
	})
	if err != nil {
		return nil, err
	}

	record, err := entities.NewVectorRecord(memory, vector, s.embedder.Model(), s.embedder.Dimension())
	if err != nil {
		return nil, pkgerrors.NewUpstreamError("embedding", err)
	}

	if err := sagas.NewPersistMemorySaga(s.memories, s.vectors, s.index, memory, record, s.logger).Execute(ctx); err != nil {
		return nil, err
	}

	parent := ""
	if !parentID.IsZero() {
		parent = parentID.String()
	}
	memory.RecordCreated(parent, index, total)
	s.publish(ctx, memory.GetUncommittedEvents()...)
	memory.MarkEventsAsCommitted()

	return memory, nil
}

// publish sends events after the writes they describe are durable. Failures are only logged.
func (s *IngestionService) publish(ctx context.Context, evts ...events.DomainEvent) {
	if s.publisher == nil || len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Warn("Failed to publish events",
			zap.Int("count", len(evts)),
			zap.Error(err),
		)
	}
}

func (s *IngestionService) recordError(ctx context.Context, operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordError(ctx, operation, errorKind(err))
	}
}

func errorKind(err error) string {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		return string(appErr.Type)
	}
	return string(pkgerrors.ErrorTypeInternal)
}
