package memstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/embeddings"
	"github.com/veridianlabs/guidanced/internal/scoring"
	"github.com/veridianlabs/guidanced/internal/vectorstore"
)

const (
	// candidateFactor is how many similarity candidates are fetched per
	// requested result before composite re-ranking. Relevance order
	// alone does not reflect recency or importance, so the stream
	// over-fetches and re-ranks, the same double round-trip the rules
	// base uses for confidence.
	candidateFactor = 4

	// DefaultRetrieveLimit is the default k for Retrieve.
	DefaultRetrieveLimit = 10
)

// Stream stores memory nodes and retrieves them by composite score:
//
//	score = w_recency * decay^hours(last_accessed)
//	      + w_importance * importance
//	      + w_relevance * cosine(embedding, embed(query))
//
// Ties break toward the earlier-created node so identical inputs always
// produce identical orderings.
type Stream struct {
	store    vectorstore.Store
	embedder embeddings.Provider
	weights  scoring.Weights
	decay    float64
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Stream.
type Option func(*Stream)

// WithWeights overrides the composite score weights.
func WithWeights(w scoring.Weights) Option {
	return func(s *Stream) { s.weights = w }
}

// WithDecayRate overrides the per-hour recency decay constant.
func WithDecayRate(rate float64) Option {
	return func(s *Stream) { s.decay = rate }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Stream) { s.now = now }
}

// NewStream creates a memory stream over the given store and embedder.
func NewStream(store vectorstore.Store, embedder embeddings.Provider, logger *zap.Logger, opts ...Option) (*Stream, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Stream{
		store:    store,
		embedder: embedder,
		weights:  scoring.DefaultWeights(),
		decay:    scoring.DefaultDecayRate,
		logger:   logger.Named("memstream"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.weights.Valid() {
		return nil, fmt.Errorf("retrieval weights must be non-negative and sum to 1")
	}

	return s, nil
}

// Add appends a node to the stream. The ID is assigned here; a missing
// embedding is computed from the description. Embedding failure on the
// write path is a hard error: a node stored without a vector would be
// unretrievable forever.
//
// For reflections, every cited node must already exist and have been
// created strictly earlier.
func (s *Stream) Add(ctx context.Context, node *Node) error {
	if node == nil {
		return ErrNilNode
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	now := s.now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	if node.LastAccessed.IsZero() {
		node.LastAccessed = node.CreatedAt
	}

	if err := node.Validate(); err != nil {
		return err
	}

	if node.Type == NodeReflection {
		if err := s.checkCitations(ctx, node); err != nil {
			return err
		}
	}

	if len(node.Embedding) == 0 {
		vec, err := s.embedder.EmbedQuery(ctx, node.Description)
		if err != nil {
			return fmt.Errorf("embedding node description: %w", err)
		}
		node.Embedding = vec
	}

	if err := s.store.Upsert(ctx, s.nodeToDocument(node)); err != nil {
		return fmt.Errorf("storing node: %w", err)
	}

	s.logger.Debug("node added",
		zap.String("id", node.ID),
		zap.String("type", string(node.Type)),
		zap.Float64("importance", node.Importance))

	return nil
}

// checkCitations enforces the reflection invariant: citations exist and
// were created strictly before the reflection.
func (s *Stream) checkCitations(ctx context.Context, node *Node) error {
	for _, cited := range node.Citations {
		doc, err := s.store.Get(ctx, cited)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCitationNotFound, cited)
		}
		citedNode, err := documentToNode(doc)
		if err != nil {
			return fmt.Errorf("decoding cited node %s: %w", cited, err)
		}
		if !citedNode.CreatedAt.Before(node.CreatedAt) {
			return fmt.Errorf("%w: %s", ErrCitationOrder, cited)
		}
	}
	return nil
}

// Retrieve returns up to k nodes ranked by composite score, highest
// first. Every returned node has its LastAccessed touched to now as an
// observable side effect. An empty stream yields an empty slice.
func (s *Stream) Retrieve(ctx context.Context, query string, k int) ([]ScoredNode, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = DefaultRetrieveLimit
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := s.store.Search(ctx, queryVec, k*candidateFactor, nil)
	if err != nil {
		return nil, fmt.Errorf("searching nodes: %w", err)
	}
	if len(matches) == 0 {
		return []ScoredNode{}, nil
	}

	now := s.now()
	scored := make([]ScoredNode, 0, len(matches))
	for _, match := range matches {
		node, err := documentToNode(&match.Document)
		if err != nil {
			s.logger.Warn("skipping undecodable node",
				zap.String("id", match.ID),
				zap.Error(err))
			continue
		}

		recency := scoring.RecencyScore(node.LastAccessed, now, s.decay)
		relevance := scoring.Clamp01(float64(match.Similarity))
		score := s.weights.Composite(recency, node.Importance, relevance)

		scored = append(scored, ScoredNode{Node: *node, Score: score})
	}

	// Composite score descending; earlier creation wins ties.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Node.CreatedAt.Before(scored[j].Node.CreatedAt)
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	// Touch LastAccessed on everything returned.
	for i := range scored {
		scored[i].Node.LastAccessed = now
		node := scored[i].Node
		if err := s.store.Upsert(ctx, s.nodeToDocument(&node)); err != nil {
			s.logger.Warn("failed to touch node access time",
				zap.String("id", node.ID),
				zap.Error(err))
		}
	}

	s.logger.Debug("retrieval completed",
		zap.String("query", query),
		zap.Int("k", k),
		zap.Int("results", len(scored)))

	return scored, nil
}

// Count returns the number of stored nodes.
func (s *Stream) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// nodeToDocument converts a node to its stored form.
func (s *Stream) nodeToDocument(node *Node) vectorstore.Document {
	payload, _ := json.Marshal(node)
	return vectorstore.Document{
		ID:        node.ID,
		Embedding: node.Embedding,
		Payload:   payload,
		Fields: map[string]string{
			"type": string(node.Type),
		},
	}
}

// documentToNode decodes a stored document back into a node.
func documentToNode(doc *vectorstore.Document) (*Node, error) {
	var node Node
	if err := json.Unmarshal(doc.Payload, &node); err != nil {
		return nil, fmt.Errorf("unmarshaling node payload: %w", err)
	}
	node.Embedding = doc.Embedding
	return &node, nil
}
