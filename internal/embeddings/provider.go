// Package embeddings provides the embedding collaborator interface and
// its OpenAI-compatible implementation.
//
// The engine treats embedding as an opaque text → vector function; every
// component that needs one receives a Provider, so tests substitute a
// deterministic fake.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmbeddingFailed indicates the embedding provider failed.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")
)

// Provider generates vector embeddings from text.
type Provider interface {
	// EmbedQuery generates an embedding for a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple texts, one
	// vector per input in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// detectDimensionFromModel returns the embedding dimension for a model
// name. Falls back to 384 (bge-small class models) when unknown.
func detectDimensionFromModel(model string) int {
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "small"), strings.Contains(model, "mini"):
		return 384
	default:
		return 384
	}
}

// NewProvider creates a Provider from configuration. Only the
// OpenAI-compatible HTTP provider is shipped; TEI servers speak the same
// protocol.
func NewProvider(cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating embeddings config: %w", err)
	}
	return newOpenAIProvider(cfg)
}
