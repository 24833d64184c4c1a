package casebase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/embeddings"
	"github.com/veridianlabs/guidanced/internal/vectorstore"
)

// DefaultRetrieveLimit is the default k for Retrieve.
const DefaultRetrieveLimit = 5

// Base stores successful interaction cases and retrieves them by pure
// semantic similarity. Cases carry no confidence weighting: they are
// ground-truth exemplars, not probabilistic claims, so similarity order
// is the final order.
type Base struct {
	store    vectorstore.Store
	embedder embeddings.Provider
	logger   *zap.Logger

	// locks serializes read-modify-write usage updates per case.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBase creates a case base over the given store and embedder.
func NewBase(store vectorstore.Store, embedder embeddings.Provider, logger *zap.Logger) (*Base, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Base{
		store:    store,
		embedder: embedder,
		logger:   logger.Named("casebase"),
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// Add stores a case. Cases with a non-compliant outcome or out-of-range
// quality scores are rejected with ErrInvalidCase and leave the store
// untouched; a second case for the same interaction is rejected with
// ErrDuplicateInteraction.
func (b *Base) Add(ctx context.Context, c *Case) error {
	if c == nil {
		return fmt.Errorf("%w: case cannot be nil", ErrInvalidCase)
	}
	if !c.Outcome.Compliant {
		return fmt.Errorf("%w: outcome is not compliant", ErrInvalidCase)
	}
	if !c.Outcome.Valid() {
		return fmt.Errorf("%w: outcome scores must be on the 0-10 scale", ErrInvalidCase)
	}
	if c.Situation == "" {
		return fmt.Errorf("%w: %v", ErrInvalidCase, ErrEmptySituation)
	}
	if c.Guidance == "" {
		return fmt.Errorf("%w: %v", ErrInvalidCase, ErrEmptyGuidance)
	}
	if !ValidTaskType(c.TaskType) {
		return fmt.Errorf("%w: %v", ErrInvalidCase, ErrInvalidTask)
	}

	if c.InteractionID != "" {
		dup, err := b.hasInteraction(ctx, c.InteractionID)
		if err != nil {
			return fmt.Errorf("checking for duplicate interaction: %w", err)
		}
		if dup {
			return fmt.Errorf("%w: %s", ErrDuplicateInteraction, c.InteractionID)
		}
	}

	if len(c.Embedding) == 0 {
		vec, err := b.embedder.EmbedQuery(ctx, c.Situation)
		if err != nil {
			return fmt.Errorf("embedding situation: %w", err)
		}
		c.Embedding = vec
	}

	if err := b.store.Upsert(ctx, b.caseToDocument(c)); err != nil {
		return fmt.Errorf("storing case: %w", err)
	}

	b.logger.Info("case recorded",
		zap.String("id", c.ID),
		zap.String("interaction_id", c.InteractionID),
		zap.String("task_type", string(c.TaskType)),
		zap.Float64("quality", c.Outcome.Quality()))

	return nil
}

// Retrieve returns up to k cases most similar to the query, optionally
// filtered to one task type. Order is similarity descending.
func (b *Base) Retrieve(ctx context.Context, query string, taskType TaskType, k int) ([]Case, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = DefaultRetrieveLimit
	}

	queryVec, err := b.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var filters map[string]string
	if taskType != "" {
		if !ValidTaskType(taskType) {
			return nil, ErrInvalidTask
		}
		filters = map[string]string{"task_type": string(taskType)}
	}

	matches, err := b.store.Search(ctx, queryVec, k, filters)
	if err != nil {
		return nil, fmt.Errorf("searching cases: %w", err)
	}

	cases := make([]Case, 0, len(matches))
	for _, match := range matches {
		c, err := documentToCase(&match.Document)
		if err != nil {
			b.logger.Warn("skipping undecodable case",
				zap.String("id", match.ID),
				zap.Error(err))
			continue
		}
		cases = append(cases, *c)
	}

	b.logger.Debug("case retrieval completed",
		zap.String("query", query),
		zap.String("task_type", string(taskType)),
		zap.Int("results", len(cases)))

	return cases, nil
}

// MarkUsed increments a case's usage counter. Updates for the same
// case are serialized so concurrent retrievals never lose an increment.
func (b *Base) MarkUsed(ctx context.Context, id string) error {
	lock := b.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	doc, err := b.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("getting case: %w", err)
	}
	c, err := documentToCase(doc)
	if err != nil {
		return fmt.Errorf("decoding case: %w", err)
	}
	c.UsageCount++
	if err := b.store.Upsert(ctx, b.caseToDocument(c)); err != nil {
		return fmt.Errorf("updating case: %w", err)
	}
	return nil
}

// Count returns the number of stored cases.
func (b *Base) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx)
}

func (b *Base) lockFor(id string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	return l
}

// hasInteraction reports whether a case for the interaction exists.
// Uses a filtered search with the interaction's own embedding space; the
// filter does the work, the vector is irrelevant, so a unit vector in
// the store's dimension is fine.
func (b *Base) hasInteraction(ctx context.Context, interactionID string) (bool, error) {
	probe := make([]float32, b.embedder.Dimension())
	if len(probe) > 0 {
		probe[0] = 1.0
	}
	matches, err := b.store.Search(ctx, probe, 1, map[string]string{
		"interaction_id": interactionID,
	})
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// caseToDocument converts a case to its stored form.
func (b *Base) caseToDocument(c *Case) vectorstore.Document {
	payload, _ := json.Marshal(c)
	return vectorstore.Document{
		ID:        c.ID,
		Embedding: c.Embedding,
		Payload:   payload,
		Fields: map[string]string{
			"task_type":      string(c.TaskType),
			"interaction_id": c.InteractionID,
		},
	}
}

// documentToCase decodes a stored document back into a case.
func documentToCase(doc *vectorstore.Document) (*Case, error) {
	var c Case
	if err := json.Unmarshal(doc.Payload, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling case payload: %w", err)
	}
	c.Embedding = doc.Embedding
	return &c, nil
}
