package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"unimem/application/ports"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

const (
	DefaultNIMBaseURL = "https://integrate.api.nvidia.com/v1"
	DefaultNIMModel   = "nvidia/llama-3.2-nv-embedqa-1b-v2"
	DefaultDimension  = 2048
)

// NIMConfig configures the NVIDIA NIM embedding client.
type NIMConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimension         int
	MaxRetries        int
	RequestsPerSecond float64
	Timeout           time.Duration

	// BaseBackoff is the first retry wait; it doubles on every attempt.
	BaseBackoff time.Duration

	// The breaker opens once BreakerMinRequests calls in a window have failed at a rate of
	// BreakerFailureRatio or more, and probes again after BreakerTimeout.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerTimeout      time.Duration
}

// NIMProvider calls an OpenAI-compatible NIM embeddings endpoint.
type NIMProvider struct {
	client  *openai.Client
	config  NIMConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ ports.EmbeddingProvider = (*NIMProvider)(nil)

// NewNIMProvider creates a NIM embedding provider
func NewNIMProvider(cfg NIMConfig, logger *zap.Logger) (*NIMProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("NIM API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNIMBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultNIMModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 5
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = 0.8
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &nimTransport{base: http.DefaultTransport},
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nim-embedding",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Client errors do not count against the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
	})

	return &NIMProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Embed generates an embedding vector for the given text.
func (p *NIMProvider) Embed(ctx context.Context, text string, intent ports.EmbeddingIntent) (valueobjects.Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.NewValidationError("cannot embed empty text")
	}
	if intent == "" {
		intent = ports.IntentPassage
	}

	var result valueobjects.Vector
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.embedOnce(ctx, text, intent, &result)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.NewUnavailableError("embedding")
	}
	if err != nil {
		return nil, pkgerrors.NewUpstreamError("embedding", fmt.Errorf("failed to generate embedding: %w", err))
	}

	if err := result.CheckDimension(p.config.Dimension); err != nil {
		return nil, pkgerrors.NewUpstreamError("embedding", err)
	}
	return result, nil
}

// embedOnce runs one retried embedding request and stores the vector in result.
func (p *NIMProvider) embedOnce(ctx context.Context, text string, intent ports.EmbeddingIntent, result *valueobjects.Vector) error {
	return p.doWithRetry(ctx, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := p.client.CreateEmbeddings(withIntent(ctx, intent), openai.EmbeddingRequest{
			Input:          []string{text},
			Model:          openai.EmbeddingModel(p.config.Model),
			EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return errors.New("empty embedding response")
		}
		*result = valueobjects.Vector(resp.Data[0].Embedding)
		return nil
	})
}

// EmbedMany embeds texts sequentially. The first failure aborts the batch.
func (p *NIMProvider) EmbedMany(ctx context.Context, texts []string, intent ports.EmbeddingIntent) ([]valueobjects.Vector, error) {
	out := make([]valueobjects.Vector, 0, len(texts))
	for i, text := range texts {
		v, err := p.Embed(ctx, text, intent)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "text %d", i)
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *NIMProvider) Dimension() int { return p.config.Dimension }
func (p *NIMProvider) Model() string  { return p.config.Model }

// HealthCheck embeds a fixed probe and checks the returned dimension.
func (p *NIMProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Embed(ctx, "health check test", ports.IntentQuery)
	return err
}

// doWithRetry executes fn with exponential backoff. Client errors other than 429 are not retried.
func (p *NIMProvider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == p.config.MaxRetries-1 {
			break
		}

		wait := p.config.BaseBackoff * time.Duration(math.Pow(2, float64(attempt)))
		p.logger.Debug("Embedding request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("waitTime", wait),
			zap.Error(err))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

type intentKey struct{}

func withIntent(ctx context.Context, intent ports.EmbeddingIntent) context.Context {
	return context.WithValue(ctx, intentKey{}, intent)
}

// nimTransport adds the NIM-specific input_type and truncate fields to embedding requests.
// The OpenAI request type has no slot for them.
type nimTransport struct {
	base http.RoundTripper
}

func (t *nimTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || !strings.HasSuffix(req.URL.Path, "/embeddings") || req.Body == nil {
		return t.base.RoundTrip(req)
	}

	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode embedding request: %w", err)
	}

	intent, ok := req.Context().Value(intentKey{}).(ports.EmbeddingIntent)
	if !ok || intent == "" {
		intent = ports.IntentPassage
	}
	body["input_type"] = string(intent)
	body["truncate"] = "NONE"

	patched, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(patched))
	out.ContentLength = int64(len(patched))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(patched)), nil
	}
	return t.base.RoundTrip(out)
}
