package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Arrange
	t.Setenv("EMBEDDING_PROVIDER", "hashing")

	// Act
	cfg, err := LoadConfig()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "unimem-memories-development", cfg.MemoriesTable)
	assert.Equal(t, "unimem-embeddings-development", cfg.EmbeddingsTable)
	assert.Equal(t, "unimem-control-development", cfg.ControlTable)
	assert.True(t, cfg.AutoCreateTables)
	assert.Equal(t, StorageDynamoDB, cfg.StorageMode)
	assert.Equal(t, 2048, cfg.EmbeddingDimension)
	assert.Equal(t, 30*time.Second, cfg.EmbeddingTimeout)
	assert.Equal(t, 6000, cfg.ChunkMaxTokens)
	assert.Equal(t, "passage", cfg.QueryInputType)
	assert.Equal(t, "记忆", cfg.FeedbackMarker)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsLambda)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	// Arrange
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("EMBEDDING_PROVIDER", "NIM")
	t.Setenv("NIM_API_KEY", "key")
	t.Setenv("EMBEDDINGS_TABLE", "custom-embeddings")
	t.Setenv("RELATED_THRESHOLD", "0.65")
	t.Setenv("QUERY_INPUT_TYPE", "query")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "unimem-api")

	// Act
	cfg, err := LoadConfig()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "unimem-memories-staging", cfg.MemoriesTable)
	assert.Equal(t, "custom-embeddings", cfg.EmbeddingsTable)
	assert.Equal(t, EmbeddingNIM, cfg.EmbeddingProvider)
	assert.InDelta(t, 0.65, cfg.RelatedThreshold, 1e-9)
	assert.Equal(t, "query", cfg.QueryInputType)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.IsLambda)
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "unimem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding_provider: hashing\nchunk_max_tokens: 1200\nsearch_default_limit: 7\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_DEFAULT_LIMIT", "9")

	// Act
	cfg, err := LoadConfig()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.ChunkMaxTokens)
	assert.Equal(t, 9, cfg.SearchDefaultLimit, "environment wins over the file")
}

func TestLoadConfig_Options(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "hashing")

	t.Run("changed flag wins over the environment", func(t *testing.T) {
		// Arrange
		t.Setenv("SERVER_ADDRESS", ":7000")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("addr", "", "")
		require.NoError(t, flags.Parse([]string{"--addr=:9090"}))

		// Act
		cfg, err := LoadConfig(WithFlag("SERVER_ADDRESS", flags.Lookup("addr")))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.ServerAddress)
	})

	t.Run("missing flag is an error", func(t *testing.T) {
		_, err := LoadConfig(WithFlag("SERVER_ADDRESS", nil))

		assert.Error(t, err)
	})

	t.Run("config file option", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "unimem.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"chunk_max_tokens": 800}`), 0o600))

		cfg, err := LoadConfig(WithConfigFile(path))

		require.NoError(t, err)
		assert.Equal(t, 800, cfg.ChunkMaxTokens)
	})

	t.Run("empty path is ignored", func(t *testing.T) {
		cfg, err := LoadConfig(WithConfigFile(""))

		require.NoError(t, err)
		assert.Equal(t, 6000, cfg.ChunkMaxTokens)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:        "development",
			StorageMode:        StorageMemory,
			EmbeddingProvider:  EmbeddingHashing,
			QueryInputType:     "passage",
			EmbeddingDimension: 2048,
			ChunkMaxTokens:     6000,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown storage", mutate: func(c *Config) { c.StorageMode = "s3" }, wantErr: "STORAGE_MODE"},
		{name: "nim without key", mutate: func(c *Config) { c.EmbeddingProvider = EmbeddingNIM }, wantErr: "NIM_API_KEY"},
		{name: "unknown provider", mutate: func(c *Config) { c.EmbeddingProvider = "bert" }, wantErr: "EMBEDDING_PROVIDER"},
		{name: "bad input type", mutate: func(c *Config) { c.QueryInputType = "document" }, wantErr: "QUERY_INPUT_TYPE"},
		{name: "distributed limiter needs dynamodb", mutate: func(c *Config) { c.DistributedLimiter = true }, wantErr: "DISTRIBUTED_RATE_LIMIT"},
		{name: "zero dimension", mutate: func(c *Config) { c.EmbeddingDimension = 0 }, wantErr: "EMBEDDING_DIMENSION"},
		{name: "production needs secret", mutate: func(c *Config) {
			c.Environment = "production"
			c.StorageMode = StorageDynamoDB
			c.EmbeddingProvider = EmbeddingNIM
			c.NIMAPIKey = "key"
		}, wantErr: "JWT_SECRET"},
		{name: "production rejects memory storage", mutate: func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "s"
			c.EmbeddingProvider = EmbeddingNIM
			c.NIMAPIKey = "key"
		}, wantErr: "STORAGE_MODE=dynamodb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DomainConfig(t *testing.T) {
	cfg := &Config{
		Environment:               "production",
		ChunkMaxTokens:            1000,
		EmbeddingDimension:        1024,
		SearchDefaultLimit:        500,
		SearchDefaultThreshold:    0.2,
		RelatedThreshold:          0.6,
		FeedbackMinResponseLength: 80,
		FeedbackMarker:            "memo",
		ConversationHistoryLimit:  10,
	}

	d := cfg.DomainConfig()

	assert.Equal(t, 1000, d.ChunkMaxTokens)
	assert.Equal(t, 1024, d.EmbeddingDimension)
	assert.Equal(t, d.MaxSearchLimit, d.DefaultSearchLimit)
	assert.InDelta(t, 0.6, d.RelatedThreshold, 1e-9)
	assert.Equal(t, "memo", d.FeedbackMarker)
	assert.Equal(t, 500_000, d.MaxContentLength, "production rules still apply")
	assert.NoError(t, d.Validate())
}
