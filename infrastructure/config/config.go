package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	domainconfig "unimem/domain/config"
)

// Storage modes
const (
	StorageDynamoDB = "dynamodb"
	StorageMemory   = "memory"
)

// Embedding providers
const (
	EmbeddingNIM     = "nim"
	EmbeddingHashing = "hashing"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion        string
	MemoriesTable    string
	EmbeddingsTable  string
	ControlTable     string
	EventBusName     string
	StorageMode      string
	AutoCreateTables bool

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// Embedding provider
	EmbeddingProvider   string
	NIMAPIKey           string
	NIMEmbeddingURL     string
	EmbeddingModel      string
	EmbeddingDimension  int
	EmbeddingMaxRetries int
	EmbeddingRPS        float64
	EmbeddingTimeout    time.Duration
	QueryCacheSize      int64

	// Chunking and retrieval
	ChunkMaxTokens         int
	SearchDefaultLimit     int
	SearchDefaultThreshold float64
	RelatedThreshold       float64
	QueryInputType         string

	// Conversation feedback
	FeedbackMinResponseLength int
	FeedbackMarker            string
	ConversationHistoryLimit  int

	// Logging
	LogLevel string

	// Authentication
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	IPRateLimit        int
	UserRateLimit      int
	DistributedLimiter bool

	// Feature flags
	EnableMetrics      bool
	EnableTracing      bool
	EnableCORS         bool
	CORSAllowedOrigins []string
	MetricsNamespace   string
}

var defaults = map[string]interface{}{
	"SERVER_ADDRESS":               ":8080",
	"ENVIRONMENT":                  "development",
	"AWS_REGION":                   "us-east-1",
	"EVENT_BUS_NAME":               "",
	"STORAGE_MODE":                 StorageDynamoDB,
	"EMBEDDING_PROVIDER":           EmbeddingNIM,
	"NIM_EMBEDDING_URL":            "https://integrate.api.nvidia.com/v1",
	"EMBEDDING_MODEL":              "nvidia/llama-3.2-nv-embedqa-1b-v2",
	"EMBEDDING_DIMENSION":          2048,
	"EMBEDDING_MAX_RETRIES":        3,
	"EMBEDDING_RPS":                5.0,
	"EMBEDDING_TIMEOUT_SECONDS":    30,
	"EMBEDDING_QUERY_CACHE_SIZE":   1000,
	"CHUNK_MAX_TOKENS":             6000,
	"SEARCH_DEFAULT_LIMIT":         10,
	"SEARCH_DEFAULT_THRESHOLD":     0.1,
	"RELATED_THRESHOLD":            0.5,
	"QUERY_INPUT_TYPE":             "passage",
	"FEEDBACK_MIN_RESPONSE_LENGTH": 50,
	"FEEDBACK_MARKER":              "记忆",
	"CONVERSATION_HISTORY_LIMIT":   20,
	"LOG_LEVEL":                    "info",
	"JWT_ISSUER":                   "unimem",
	"JWT_AUDIENCE":                 "unimem-api",
	"IP_RATE_LIMIT":                100,
	"USER_RATE_LIMIT":              200,
	"DISTRIBUTED_RATE_LIMIT":       false,
	"ENABLE_METRICS":               false,
	"ENABLE_TRACING":               false,
	"ENABLE_CORS":                  true,
	"CORS_ALLOWED_ORIGINS":         "*",
	"METRICS_NAMESPACE":            "Unimem",
}

// Option adjusts the viper instance before configuration is read.
type Option func(v *viper.Viper) error

// WithConfigFile reads path as if CONFIG_FILE named it.
func WithConfigFile(path string) Option {
	return func(v *viper.Viper) error {
		if path != "" {
			v.Set("CONFIG_FILE", path)
		}
		return nil
	}
}

// WithFlag binds a command-line flag to key. A flag the user set wins over every other source.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return fmt.Errorf("no flag bound to %s", key)
		}
		return v.BindPFlag(key, flag)
	}
}

// LoadConfig loads configuration from environment variables. When CONFIG_FILE names a
// file, its values sit between the defaults and the environment.
func LoadConfig(opts ...Option) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func fromViper(v *viper.Viper) *Config {
	env := v.GetString("ENVIRONMENT")
	v.SetDefault("MEMORIES_TABLE", "unimem-memories-"+env)
	v.SetDefault("EMBEDDINGS_TABLE", "unimem-embeddings-"+env)
	v.SetDefault("CONTROL_TABLE", "unimem-control-"+env)
	v.SetDefault("AUTO_CREATE_TABLES", env != "production")

	return &Config{
		ServerAddress: v.GetString("SERVER_ADDRESS"),
		Environment:   env,

		AWSRegion:        v.GetString("AWS_REGION"),
		MemoriesTable:    v.GetString("MEMORIES_TABLE"),
		EmbeddingsTable:  v.GetString("EMBEDDINGS_TABLE"),
		ControlTable:     v.GetString("CONTROL_TABLE"),
		EventBusName:     v.GetString("EVENT_BUS_NAME"),
		StorageMode:      strings.ToLower(v.GetString("STORAGE_MODE")),
		AutoCreateTables: v.GetBool("AUTO_CREATE_TABLES"),

		IsLambda:           v.GetString("AWS_LAMBDA_FUNCTION_NAME") != "",
		LambdaFunctionName: v.GetString("AWS_LAMBDA_FUNCTION_NAME"),

		EmbeddingProvider:   strings.ToLower(v.GetString("EMBEDDING_PROVIDER")),
		NIMAPIKey:           v.GetString("NIM_API_KEY"),
		NIMEmbeddingURL:     v.GetString("NIM_EMBEDDING_URL"),
		EmbeddingModel:      v.GetString("EMBEDDING_MODEL"),
		EmbeddingDimension:  v.GetInt("EMBEDDING_DIMENSION"),
		EmbeddingMaxRetries: v.GetInt("EMBEDDING_MAX_RETRIES"),
		EmbeddingRPS:        v.GetFloat64("EMBEDDING_RPS"),
		EmbeddingTimeout:    time.Duration(v.GetInt("EMBEDDING_TIMEOUT_SECONDS")) * time.Second,
		QueryCacheSize:      v.GetInt64("EMBEDDING_QUERY_CACHE_SIZE"),

		ChunkMaxTokens:         v.GetInt("CHUNK_MAX_TOKENS"),
		SearchDefaultLimit:     v.GetInt("SEARCH_DEFAULT_LIMIT"),
		SearchDefaultThreshold: v.GetFloat64("SEARCH_DEFAULT_THRESHOLD"),
		RelatedThreshold:       v.GetFloat64("RELATED_THRESHOLD"),
		QueryInputType:         strings.ToLower(v.GetString("QUERY_INPUT_TYPE")),

		FeedbackMinResponseLength: v.GetInt("FEEDBACK_MIN_RESPONSE_LENGTH"),
		FeedbackMarker:            v.GetString("FEEDBACK_MARKER"),
		ConversationHistoryLimit:  v.GetInt("CONVERSATION_HISTORY_LIMIT"),

		LogLevel: v.GetString("LOG_LEVEL"),

		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		JWTAudience:        v.GetString("JWT_AUDIENCE"),
		IPRateLimit:        v.GetInt("IP_RATE_LIMIT"),
		UserRateLimit:      v.GetInt("USER_RATE_LIMIT"),
		DistributedLimiter: v.GetBool("DISTRIBUTED_RATE_LIMIT"),

		EnableMetrics:      v.GetBool("ENABLE_METRICS"),
		EnableTracing:      v.GetBool("ENABLE_TRACING"),
		EnableCORS:         v.GetBool("ENABLE_CORS"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		MetricsNamespace:   v.GetString("METRICS_NAMESPACE"),
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageMode {
	case StorageDynamoDB, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_MODE must be %q or %q, got %q", StorageDynamoDB, StorageMemory, c.StorageMode))
	}
	switch c.EmbeddingProvider {
	case EmbeddingNIM:
		if c.NIMAPIKey == "" {
			errs = append(errs, errors.New("NIM_API_KEY is required when EMBEDDING_PROVIDER is nim"))
		}
	case EmbeddingHashing:
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}
	if c.QueryInputType != "passage" && c.QueryInputType != "query" {
		errs = append(errs, fmt.Errorf("QUERY_INPUT_TYPE must be passage or query, got %q", c.QueryInputType))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIMENSION must be positive"))
	}
	if c.ChunkMaxTokens <= 0 {
		errs = append(errs, errors.New("CHUNK_MAX_TOKENS must be positive"))
	}
	if c.DistributedLimiter && c.StorageMode != StorageDynamoDB {
		errs = append(errs, errors.New("DISTRIBUTED_RATE_LIMIT needs the control table (STORAGE_MODE=dynamodb)"))
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.StorageMode != StorageDynamoDB {
			errs = append(errs, errors.New("production requires STORAGE_MODE=dynamodb"))
		}
		if c.EmbeddingProvider != EmbeddingNIM {
			errs = append(errs, errors.New("production requires EMBEDDING_PROVIDER=nim"))
		}
	}

	return errors.Join(errs...)
}

// DomainConfig returns the environment's domain rules with the configured overrides applied.
func (c *Config) DomainConfig() *domainconfig.DomainConfig {
	d := domainconfig.LoadDomainConfig(c.Environment)
	d.ChunkMaxTokens = c.ChunkMaxTokens
	d.EmbeddingDimension = c.EmbeddingDimension
	d.DefaultSearchLimit = min(c.SearchDefaultLimit, d.MaxSearchLimit)
	d.DefaultSearchThreshold = c.SearchDefaultThreshold
	d.RelatedThreshold = c.RelatedThreshold
	d.FeedbackMinResponseLength = c.FeedbackMinResponseLength
	d.FeedbackMarker = c.FeedbackMarker
	d.ConversationHistoryLimit = c.ConversationHistoryLimit
	return d
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
