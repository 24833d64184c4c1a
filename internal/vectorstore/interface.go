// Package vectorstore defines the vector-indexed storage interface the
// memory engine reads and writes through.
//
// The engine never talks to a concrete backend directly: the memory
// stream, case base and rules base each own a Store handle injected at
// construction time, which keeps every retrieval and learning path
// testable against the in-memory implementation.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrEmptyID indicates a document with no ID.
	ErrEmptyID = errors.New("document ID cannot be empty")

	// ErrEmptyEmbedding indicates a document with no embedding vector.
	ErrEmptyEmbedding = errors.New("document embedding cannot be empty")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrDimensionMismatch indicates an embedding whose length does not
	// match the store's configured vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Document is a stored item: an embedding plus the entity record it
// indexes.
type Document struct {
	// ID is the unique document identifier.
	ID string

	// Embedding is the dense vector the document is indexed under.
	Embedding []float32

	// Payload is the JSON-encoded entity record (node, case or rule).
	// The owning base is responsible for encoding and decoding it; the
	// store treats it as opaque bytes.
	Payload []byte

	// Fields holds the equality-filterable attributes of the entity
	// (e.g. task_type, domain, superseded). Values are strings because
	// backends only support exact-match filtering.
	Fields map[string]string
}

// Match is a search hit: the stored document plus its similarity to the
// query vector.
type Match struct {
	Document

	// Similarity is the cosine similarity to the query vector, higher
	// is more similar.
	Similarity float32
}

// Store is the interface for vector-indexed storage.
//
// Implementations must be safe for concurrent use: the retrieval
// orchestrator issues parallel reads while the learning pipeline writes.
//
// Implementations:
//   - MemoryStore: brute-force in-process store (tests, default)
//   - ChromemStore: embedded chromem-go database with persistence
type Store interface {
	// Upsert stores a document, replacing any existing document with
	// the same ID.
	Upsert(ctx context.Context, doc Document) error

	// Search returns up to k documents most similar to the query
	// vector, ordered by similarity descending. Filters, when non-nil,
	// restrict results to documents whose Fields match every entry
	// exactly. An empty store yields an empty slice, not an error.
	Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]Match, error)

	// Get retrieves a document by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Document, error)

	// Delete removes a document by ID. Deleting an absent document is
	// not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
