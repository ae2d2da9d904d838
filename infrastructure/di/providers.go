package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"unimem/application/commands/bus"
	commandhandlers "unimem/application/commands/handlers"
	"unimem/application/ports"
	querybus "unimem/application/queries/bus"
	queryhandlers "unimem/application/queries/handlers"
	"unimem/application/services"
	"unimem/domain/chunking"
	domainconfig "unimem/domain/config"
	"unimem/infrastructure/cache"
	"unimem/infrastructure/config"
	"unimem/infrastructure/embedding"
	"unimem/infrastructure/messaging/eventbridge"
	"unimem/infrastructure/persistence/dynamodb"
	"unimem/infrastructure/persistence/memory"
	"unimem/pkg/auth"
	pkgerrors "unimem/pkg/errors"
	"unimem/pkg/observability"
)

const (
	vectorScanSegments = 4
	slowQueryThreshold = 500 * time.Millisecond
	devJWTSecret       = "development-secret-change-in-production"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// Stores are the durable memory and vector stores selected by STORAGE_MODE.
type Stores struct {
	Memories ports.MemoryRepository
	Vectors  ports.VectorRepository
	Mode     string
	Degraded bool
}

// ProvideStores selects the storage backend and, when enabled, creates missing tables.
// A table bootstrap denied by IAM leaves the service running in degraded mode.
func ProvideStores(ctx context.Context, cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (*Stores, error) {
	if cfg.StorageMode == config.StorageMemory {
		logger.Warn("Using in-process storage; data is lost on restart")
		return &Stores{
			Memories: memory.NewMemoryRepository(),
			Vectors:  memory.NewVectorRepository(),
			Mode:     config.StorageMemory,
		}, nil
	}

	stores := &Stores{
		Memories: dynamodb.NewMemoryRepository(client, cfg.MemoriesTable, logger),
		Vectors:  dynamodb.NewVectorRepository(client, cfg.EmbeddingsTable, vectorScanSegments, logger),
		Mode:     config.StorageDynamoDB,
	}
	if !cfg.AutoCreateTables {
		return stores, nil
	}

	bootstrapper := dynamodb.NewBootstrapper(client, dynamodb.TableNames{
		Memories:   cfg.MemoriesTable,
		Embeddings: cfg.EmbeddingsTable,
		Control:    cfg.ControlTable,
	}, logger)
	if err := bootstrapper.EnsureTables(ctx); err != nil {
		if dynamodb.IsAccessDenied(err) {
			logger.Warn("Table bootstrap denied; running degraded", zap.Error(err))
			stores.Degraded = true
			return stores, nil
		}
		return nil, fmt.Errorf("failed to bootstrap tables: %w", err)
	}
	return stores, nil
}

// ProvideVectorCache creates the in-memory vector index
func ProvideVectorCache() *cache.VectorCache {
	return cache.NewVectorCache()
}

// ProvideVectorIndex exposes the cache as the search index
func ProvideVectorIndex(c *cache.VectorCache) ports.VectorIndex {
	return c
}

// ProvideRebuilder creates the cache rebuilder run at startup
func ProvideRebuilder(c *cache.VectorCache, stores *Stores, domain *domainconfig.DomainConfig, logger *zap.Logger) *cache.Rebuilder {
	return cache.NewRebuilder(c, stores.Vectors, stores.Memories, domain.EmbeddingDimension, logger)
}

// ProvideEmbeddingProvider creates the configured embedding provider, fronted by a query cache
// when EMBEDDING_QUERY_CACHE_SIZE is positive.
func ProvideEmbeddingProvider(cfg *config.Config, logger *zap.Logger) (ports.EmbeddingProvider, error) {
	var provider ports.EmbeddingProvider
	switch cfg.EmbeddingProvider {
	case config.EmbeddingHashing:
		logger.Warn("Using the hashing embedder; similarity is lexical only")
		provider = embedding.NewHashingEmbedder(cfg.EmbeddingDimension)
	default:
		nim, err := embedding.NewNIMProvider(embedding.NIMConfig{
			BaseURL:           cfg.NIMEmbeddingURL,
			APIKey:            cfg.NIMAPIKey,
			Model:             cfg.EmbeddingModel,
			Dimension:         cfg.EmbeddingDimension,
			MaxRetries:        cfg.EmbeddingMaxRetries,
			RequestsPerSecond: cfg.EmbeddingRPS,
			Timeout:           cfg.EmbeddingTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		provider = nim
	}

	if cfg.QueryCacheSize <= 0 {
		return provider, nil
	}
	return embedding.NewCachingEmbedder(provider, cfg.QueryCacheSize, logger)
}

// ProvideEventPublisher publishes to EventBridge, or only logs when no bus is configured
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return eventbridge.NewNoopPublisher(logger)
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideMetrics creates metrics instance. Disabled metrics never reach CloudWatch.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, client, logger)
}

// ProvideMetricsRecorder exposes metrics through the application port
func ProvideMetricsRecorder(m *observability.Metrics) ports.MetricsRecorder {
	return m
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("unimem", cfg.EnableTracing)
}

// ProvideDomainConfig builds the domain rules
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.DomainConfig()
}

// ProvideChunker creates the content chunker
func ProvideChunker(domain *domainconfig.DomainConfig) *chunking.Chunker {
	return chunking.NewChunker(domain.ChunkMaxTokens, nil)
}

// ProvideIngestionService creates the ingestion service
func ProvideIngestionService(
	stores *Stores,
	index ports.VectorIndex,
	embedder ports.EmbeddingProvider,
	publisher ports.EventPublisher,
	metrics ports.MetricsRecorder,
	tracer *observability.Tracer,
	chunker *chunking.Chunker,
	domain *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.IngestionService {
	return services.NewIngestionService(stores.Memories, stores.Vectors, index, embedder, publisher, metrics, tracer, chunker, domain, logger)
}

// ProvideRetrievalService creates the retrieval service
func ProvideRetrievalService(
	stores *Stores,
	index ports.VectorIndex,
	embedder ports.EmbeddingProvider,
	metrics ports.MetricsRecorder,
	tracer *observability.Tracer,
	domain *domainconfig.DomainConfig,
	cfg *config.Config,
	logger *zap.Logger,
) *services.RetrievalService {
	return services.NewRetrievalService(
		stores.Memories, stores.Vectors, index, embedder, metrics, tracer, domain,
		ports.EmbeddingIntent(cfg.QueryInputType), stores.Mode, logger,
	)
}

// ProvideConversationService creates the conversation feedback service
func ProvideConversationService(
	ingestion *services.IngestionService,
	retrieval *services.RetrievalService,
	publisher ports.EventPublisher,
	domain *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.ConversationService {
	return services.NewConversationService(ingestion, retrieval, publisher, domain, logger)
}

// ProvideCommandBus creates the command bus with all handlers registered
func ProvideCommandBus(
	ingestion *services.IngestionService,
	conversations *services.ConversationService,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(logger),
		bus.MetricsMiddleware(metrics),
	)
	if err := commandhandlers.RegisterAll(commandBus, ingestion, conversations, logger); err != nil {
		return nil, err
	}
	return commandBus, nil
}

// ProvideQueryBus creates the query bus with all handlers registered
func ProvideQueryBus(
	retrieval *services.RetrievalService,
	conversations *services.ConversationService,
	embedder ports.EmbeddingProvider,
	domain *domainconfig.DomainConfig,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(
		querybus.LoggingMiddleware(logger, slowQueryThreshold),
		querybus.MetricsMiddleware(metrics),
	)
	err := queryhandlers.RegisterAll(queryBus,
		queryhandlers.NewMemoryQueryHandler(retrieval, embedder, domain),
		queryhandlers.NewConversationQueryHandler(conversations),
	)
	if err != nil {
		return nil, err
	}
	return queryBus, nil
}

// ProvideJWTValidator creates the bearer token validator. Outside production a missing
// secret falls back to a fixed development secret.
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set; using the development secret")
		secret = devJWTSecret
	}
	var audience []string
	if cfg.JWTAudience != "" {
		audience = []string{cfg.JWTAudience}
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.JWTIssuer,
		Audience:      audience,
	})
}

// RateLimiters bound request rates per client IP and per authenticated owner.
type RateLimiters struct {
	IP   auth.RateLimiter
	User auth.RateLimiter
}

// ProvideRateLimiters creates in-process limiters, or control-table limiters shared by
// every instance when DISTRIBUTED_RATE_LIMIT is set.
func ProvideRateLimiters(client *awsdynamodb.Client, cfg *config.Config) *RateLimiters {
	if cfg.DistributedLimiter {
		return &RateLimiters{
			IP:   auth.NewDistributedRateLimiter(client, cfg.ControlTable, auth.ScopeIP, cfg.IPRateLimit, time.Minute),
			User: auth.NewDistributedRateLimiter(client, cfg.ControlTable, auth.ScopeOwner, cfg.UserRateLimit, time.Minute),
		}
	}
	return &RateLimiters{
		IP:   auth.NewIPRateLimiter(cfg.IPRateLimit),
		User: auth.NewUserRateLimiter(cfg.UserRateLimit),
	}
}

// ProvideDistributedLock creates a distributed lock on the control table, or a process-local
// lock in memory mode
func ProvideDistributedLock(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.DistributedLock {
	if cfg.StorageMode == config.StorageMemory {
		return memory.NewLock()
	}
	return dynamodb.NewDistributedLock(client, cfg.ControlTable, logger)
}

// ProvideErrorHandler creates the HTTP error handler
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}
