package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/domain/core/valueobjects"
)

// CachingEmbedder remembers recent embeddings keyed by intent and text. Repeated searches
// for the same phrase skip the provider call.
type CachingEmbedder struct {
	next   ports.EmbeddingProvider
	cache  *ristretto.Cache
	logger *zap.Logger
}

// NewCachingEmbedder wraps next with a cache holding up to size vectors.
func NewCachingEmbedder(next ports.EmbeddingProvider, size int64, logger *zap.Logger) (*CachingEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachingEmbedder{next: next, cache: cache, logger: logger}, nil
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string, intent ports.EmbeddingIntent) (valueobjects.Vector, error) {
	key := string(intent) + "\x00" + text
	if cached, ok := c.cache.Get(key); ok {
		return cached.(valueobjects.Vector).Clone(), nil
	}

	vector, err := c.next.Embed(ctx, text, intent)
	if err != nil {
		return nil, err
	}
	if !c.cache.Set(key, vector.Clone(), 1) {
		c.logger.Debug("Embedding dropped by cache", zap.String("intent", string(intent)))
	} else {
		c.cache.Wait()
	}
	return vector, nil
}

// EmbedMany embeds one text at a time through the cache.
func (c *CachingEmbedder) EmbedMany(ctx context.Context, texts []string, intent ports.EmbeddingIntent) ([]valueobjects.Vector, error) {
	vectors := make([]valueobjects.Vector, 0, len(texts))
	for _, text := range texts {
		v, err := c.Embed(ctx, text, intent)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (c *CachingEmbedder) Dimension() int { return c.next.Dimension() }
func (c *CachingEmbedder) Model() string  { return c.next.Model() }

// HealthCheck always reaches the provider.
func (c *CachingEmbedder) HealthCheck(ctx context.Context) error {
	return c.next.HealthCheck(ctx)
}

// Close releases the cache's goroutines.
func (c *CachingEmbedder) Close() {
	c.cache.Close()
}
