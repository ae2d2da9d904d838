//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"unimem/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideStores,
	ProvideVectorCache,
	ProvideVectorIndex,
	ProvideRebuilder,
	ProvideEmbeddingProvider,
	ProvideEventPublisher,
	ProvideMetrics,
	ProvideMetricsRecorder,
	ProvideTracer,
	ProvideDomainConfig,
	ProvideChunker,
	ProvideIngestionService,
	ProvideRetrievalService,
	ProvideConversationService,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideJWTValidator,
	ProvideRateLimiters,
	ProvideDistributedLock,
	ProvideErrorHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
