package config

import (
	"errors"
	"fmt"
)

// DomainConfig holds the business rules for memory ingestion, retrieval and conversation feedback.
type DomainConfig struct {
	// Memory constraints
	MaxContentLength int
	MaxTagsPerMemory int
	MaxTagLength     int
	MaxOwnerIDLength int

	// Chunking
	ChunkMaxTokens     int
	ChunkSummaryLength int

	// Retrieval
	DefaultSearchLimit     int
	MaxSearchLimit         int
	DefaultSearchThreshold float64
	RelatedThreshold       float64
	DefaultRelatedLimit    int
	MaxRelatedLimit        int
	DefaultListLimit       int
	MaxListLimit           int

	// Conversation feedback
	FeedbackMinResponseLength int
	FeedbackMarker            string
	ConversationHistoryLimit  int
	ConversationSummaryLength int
	ContextSearchLimit        int

	// Vector shape
	EmbeddingDimension int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxContentLength: 1_000_000,
		MaxTagsPerMemory: 50,
		MaxTagLength:     100,
		MaxOwnerIDLength: 256,

		ChunkMaxTokens:     6000,
		ChunkSummaryLength: 200,

		DefaultSearchLimit:     10,
		MaxSearchLimit:         100,
		DefaultSearchThreshold: 0.1,
		RelatedThreshold:       0.5,
		DefaultRelatedLimit:    5,
		MaxRelatedLimit:        20,
		DefaultListLimit:       20,
		MaxListLimit:           100,

		FeedbackMinResponseLength: 50,
		FeedbackMarker:            "记忆",
		ConversationHistoryLimit:  20,
		ConversationSummaryLength: 100,
		ContextSearchLimit:        5,

		EmbeddingDimension: 2048,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Bound a single request so one upload cannot pin the embedding quota.
	config.MaxContentLength = 500_000
	config.MaxTagsPerMemory = 20

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()
	config.MaxContentLength = 5_000_000
	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks that the rules are internally consistent.
func (c *DomainConfig) Validate() error {
	var errs []error
	if c.ChunkMaxTokens <= 0 {
		errs = append(errs, errors.New("chunk max tokens must be positive"))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, errors.New("embedding dimension must be positive"))
	}
	if c.RelatedThreshold < -1 || c.RelatedThreshold > 1 {
		errs = append(errs, fmt.Errorf("related threshold %v outside [-1, 1]", c.RelatedThreshold))
	}
	if c.DefaultSearchLimit <= 0 || c.DefaultSearchLimit > c.MaxSearchLimit {
		errs = append(errs, fmt.Errorf("default search limit %d outside (0, %d]", c.DefaultSearchLimit, c.MaxSearchLimit))
	}
	if c.DefaultListLimit <= 0 || c.DefaultListLimit > c.MaxListLimit {
		errs = append(errs, fmt.Errorf("default list limit %d outside (0, %d]", c.DefaultListLimit, c.MaxListLimit))
	}
	if c.ConversationHistoryLimit <= 0 {
		errs = append(errs, errors.New("conversation history limit must be positive"))
	}
	return errors.Join(errs...)
}
