package memstream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/guidanced/internal/embeddings"
	"github.com/veridianlabs/guidanced/internal/scoring"
	"github.com/veridianlabs/guidanced/internal/vectorstore"
)

func newTestStream(t *testing.T, opts ...Option) (*Stream, *embeddings.StaticProvider) {
	t.Helper()
	embedder := embeddings.NewStaticProvider(2)
	stream, err := NewStream(vectorstore.NewMemoryStore(), embedder, nil, opts...)
	require.NoError(t, err)
	return stream, embedder
}

func TestNewNode_Validation(t *testing.T) {
	_, err := NewNode("", NodeObservation, 0.5)
	assert.ErrorIs(t, err, ErrEmptyDescription)

	_, err = NewNode("desc", "bogus", 0.5)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = NewNode("desc", NodeObservation, 1.5)
	assert.ErrorIs(t, err, ErrInvalidImportance)

	node, err := NewNode("customer asked about transfers", NodeObservation, 0.5)
	require.NoError(t, err)
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, node.CreatedAt, node.LastAccessed)
}

func TestStream_AddAssignsID(t *testing.T) {
	ctx := context.Background()
	stream, _ := newTestStream(t)

	node := &Node{Description: "observed a query", Type: NodeObservation, Importance: 0.4}
	require.NoError(t, stream.Add(ctx, node))
	assert.NotEmpty(t, node.ID)
	assert.NotEmpty(t, node.Embedding)

	count, err := stream.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStream_ReflectionRequiresCitations(t *testing.T) {
	ctx := context.Background()
	stream, _ := newTestStream(t)

	reflection := &Node{Description: "a pattern", Type: NodeReflection, Importance: 0.8}
	err := stream.Add(ctx, reflection)
	assert.ErrorIs(t, err, ErrMissingCitations)
}

func TestStream_ReflectionCitationsMustExist(t *testing.T) {
	ctx := context.Background()
	stream, _ := newTestStream(t)

	reflection := &Node{
		Description: "a pattern",
		Type:        NodeReflection,
		Importance:  0.8,
		Citations:   []string{"missing-id"},
	}
	err := stream.Add(ctx, reflection)
	assert.ErrorIs(t, err, ErrCitationNotFound)
}

func TestStream_ReflectionCitationsMustBeEarlier(t *testing.T) {
	ctx := context.Background()
	stream, _ := newTestStream(t)

	obs := &Node{Description: "an observation", Type: NodeObservation, Importance: 0.3}
	require.NoError(t, stream.Add(ctx, obs))

	// Reflection claiming to predate its own citation.
	reflection := &Node{
		Description: "a pattern",
		Type:        NodeReflection,
		Importance:  0.8,
		Citations:   []string{obs.ID},
		CreatedAt:   obs.CreatedAt.Add(-time.Hour),
	}
	err := stream.Add(ctx, reflection)
	assert.ErrorIs(t, err, ErrCitationOrder)

	// Same citation, created later: accepted.
	valid := &Node{
		Description: "a pattern",
		Type:        NodeReflection,
		Importance:  0.8,
		Citations:   []string{obs.ID},
		CreatedAt:   obs.CreatedAt.Add(time.Hour),
	}
	assert.NoError(t, stream.Add(ctx, valid))
}

func TestStream_RetrieveEmpty(t *testing.T) {
	ctx := context.Background()
	stream, _ := newTestStream(t)

	results, err := stream.Retrieve(ctx, "pension transfer", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStream_RetrieveLimitAndOrdering(t *testing.T) {
	ctx := context.Background()
	stream, embedder := newTestStream(t)

	embedder.Set("query", []float32{1.0, 0.0})
	for i := 0; i < 8; i++ {
		desc := fmt.Sprintf("memory %d", i)
		embedder.Set(desc, []float32{1.0, float32(i) * 0.2})
		node := &Node{Description: desc, Type: NodeObservation, Importance: 0.5}
		require.NoError(t, stream.Add(ctx, node))
	}

	results, err := stream.Retrieve(ctx, "query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score,
			"scores must be non-increasing")
	}
}

func TestStream_RetrieveDeterministic(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	build := func() *Stream {
		embedder := embeddings.NewStaticProvider(2)
		embedder.Set("query", []float32{1.0, 0.0})
		stream, err := NewStream(vectorstore.NewMemoryStore(), embedder, nil,
			WithClock(func() time.Time { return fixed }))
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			desc := fmt.Sprintf("memory %d", i)
			embedder.Set(desc, []float32{1.0, float32(i) * 0.3})
			node := &Node{
				ID:           fmt.Sprintf("node-%d", i),
				Description:  desc,
				Type:         NodeObservation,
				Importance:   0.5,
				CreatedAt:    fixed.Add(-time.Duration(i) * time.Hour),
				LastAccessed: fixed.Add(-time.Duration(i) * time.Hour),
			}
			require.NoError(t, stream.Add(ctx, node))
		}
		return stream
	}

	first, err := build().Retrieve(ctx, "query", 5)
	require.NoError(t, err)
	second, err := build().Retrieve(ctx, "query", 5)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Node.ID, second[i].Node.ID)
		assert.InDelta(t, first[i].Score, second[i].Score, 1e-9)
	}
}

func TestStream_RetrieveTouchesLastAccessed(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	embedder := embeddings.NewStaticProvider(2)
	embedder.Set("query", []float32{1.0, 0.0})
	embedder.Set("old memory", []float32{1.0, 0.0})

	store := vectorstore.NewMemoryStore()
	stream, err := NewStream(store, embedder, nil,
		WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	node := &Node{
		ID:           "node-1",
		Description:  "old memory",
		Type:         NodeObservation,
		Importance:   0.5,
		CreatedAt:    clock.Add(-48 * time.Hour),
		LastAccessed: clock.Add(-48 * time.Hour),
	}
	require.NoError(t, stream.Add(ctx, node))

	results, err := stream.Retrieve(ctx, "query", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Node.LastAccessed.Equal(clock))

	// The touch must be persisted.
	doc, err := store.Get(ctx, "node-1")
	require.NoError(t, err)
	stored, err := documentToNode(doc)
	require.NoError(t, err)
	assert.True(t, stored.LastAccessed.Equal(clock))
}

func TestStream_RecencyBoostsScore(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	embedder := embeddings.NewStaticProvider(2)
	embedder.Set("query", []float32{1.0, 0.0})
	embedder.Set("fresh", []float32{1.0, 0.0})
	embedder.Set("stale", []float32{1.0, 0.0})

	stream, err := NewStream(vectorstore.NewMemoryStore(), embedder, nil,
		WithClock(func() time.Time { return clock }),
		WithWeights(scoring.Weights{Recency: 0.5, Importance: 0.0, Relevance: 0.5}))
	require.NoError(t, err)

	stale := &Node{
		ID: "stale", Description: "stale", Type: NodeObservation, Importance: 0.5,
		CreatedAt: clock.Add(-200 * time.Hour), LastAccessed: clock.Add(-200 * time.Hour),
	}
	fresh := &Node{
		ID: "fresh", Description: "fresh", Type: NodeObservation, Importance: 0.5,
		CreatedAt: clock.Add(-time.Minute), LastAccessed: clock.Add(-time.Minute),
	}
	require.NoError(t, stream.Add(ctx, stale))
	require.NoError(t, stream.Add(ctx, fresh))

	results, err := stream.Retrieve(ctx, "query", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "fresh", results[0].Node.ID)
}
