package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("guidanced.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means pure
	// in-memory (no persistence across restarts).
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Collection is the collection name documents are stored under.
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension. Upserts with a
	// different dimension are rejected before reaching the backend.
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "guidanced_default"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with optional gob persistence. One ChromemStore wraps
// one collection; the engine creates a store per knowledge base
// (memories, cases, rules).
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandHome(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding store path: %w", err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db: %w", err)
		}
	}

	// All documents carry precomputed embeddings, so the embedding func
	// only exists to satisfy chromem's API and must never be reached.
	collection, err := db.GetOrCreateCollection(config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger.Named("vectorstore"),
	}, nil
}

// rejectEmbeddingFunc is the embedding function handed to chromem. The
// engine always supplies vectors explicitly, so any call here is a bug.
func rejectEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: store received a document without an embedding", ErrEmptyEmbedding)
}

// Upsert stores a document, replacing any existing one with the same ID.
func (s *ChromemStore) Upsert(ctx context.Context, doc Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", doc.ID))

	if doc.ID == "" {
		return ErrEmptyID
	}
	if len(doc.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	if len(doc.Embedding) != s.config.VectorSize {
		return fmt.Errorf("%w: got %d, store expects %d",
			ErrDimensionMismatch, len(doc.Embedding), s.config.VectorSize)
	}

	// chromem has no in-place update; replacing a document means
	// delete-then-add.
	if err := s.collection.Delete(ctx, nil, nil, doc.ID); err != nil {
		s.logger.Debug("delete before upsert failed (document may be new)",
			zap.String("id", doc.ID),
			zap.Error(err))
	}

	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   string(doc.Payload),
		Metadata:  doc.Fields,
		Embedding: doc.Embedding,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding document: %w", err)
	}

	return nil
}

// Search returns up to k documents most similar to the query vector.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return []Match{}, nil
	}

	// chromem requires nResults <= document count.
	count := s.collection.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, k, filters, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Document: Document{
				ID:        r.ID,
				Embedding: r.Embedding,
				Payload:   []byte(r.Content),
				Fields:    r.Metadata,
			},
			Similarity: r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	return matches, nil
}

// Get retrieves a document by ID.
func (s *ChromemStore) Get(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return &Document{
		ID:        doc.ID,
		Embedding: doc.Embedding,
		Payload:   []byte(doc.Content),
		Fields:    doc.Metadata,
	}, nil
}

// Delete removes a document by ID. Absent IDs are a no-op.
func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op: chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

// expandHome expands a leading ~ in a path to the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
