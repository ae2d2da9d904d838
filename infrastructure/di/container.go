package di

import (
	"context"

	"go.uber.org/zap"

	"unimem/application/commands/bus"
	"unimem/application/ports"
	querybus "unimem/application/queries/bus"
	"unimem/application/services"
	domainconfig "unimem/domain/config"
	"unimem/infrastructure/cache"
	"unimem/infrastructure/config"
	"unimem/pkg/auth"
	pkgerrors "unimem/pkg/errors"
	"unimem/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	DomainConfig  *domainconfig.DomainConfig
	Logger        *zap.Logger
	Stores        *Stores
	Cache         *cache.VectorCache
	Rebuilder     *cache.Rebuilder
	Embedder      ports.EmbeddingProvider
	Publisher     ports.EventPublisher
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
	Ingestion     *services.IngestionService
	Retrieval     *services.RetrievalService
	Conversations *services.ConversationService
	CommandBus    *bus.CommandBus
	QueryBus      *querybus.QueryBus
	JWTValidator  *auth.JWTValidator
	RateLimiters  *RateLimiters
	Lock          ports.DistributedLock
	ErrorHandler  *pkgerrors.ErrorHandler
}

// Warm loads the vector cache from the durable stores. A failed rebuild leaves the cache
// empty; the service still accepts writes and fills the cache as memories arrive.
func (c *Container) Warm(ctx context.Context) {
	report, err := c.Rebuilder.Rebuild(ctx)
	if err != nil {
		c.Logger.Error("Vector cache rebuild failed", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("duration", report.Duration),
	}
	if report.Diverged() {
		c.Logger.Warn("Memory and vector stores disagree",
			append(fields,
				zap.Strings("orphanVectors", report.OrphanVectors),
				zap.Strings("missingVectors", report.MissingVectors),
			)...,
		)
		return
	}
	c.Logger.Info("Vector cache loaded", fields...)
}

// Close releases background resources and flushes the logger.
func (c *Container) Close() {
	if closer, ok := c.Embedder.(interface{ Close() }); ok {
		closer.Close()
	}
	_ = c.Logger.Sync()
}
