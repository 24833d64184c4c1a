package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc(id string, vec []float32, fields map[string]string) Document {
	return Document{
		ID:        id,
		Embedding: vec,
		Payload:   []byte(fmt.Sprintf(`{"id":%q}`, id)),
		Fields:    fields,
	}
}

func TestMemoryStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	doc := testDoc("doc-1", []float32{1.0, 0.0}, map[string]string{"domain": "transfers"})
	require.NoError(t, store.Upsert(ctx, doc))

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.Payload, got.Payload)
	assert.Equal(t, "transfers", got.Fields["domain"])
}

func TestMemoryStore_UpsertValidation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Upsert(ctx, testDoc("", []float32{1.0}, nil))
	assert.ErrorIs(t, err, ErrEmptyID)

	err = store.Upsert(ctx, testDoc("doc-1", nil, nil))
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, testDoc("doc-1", []float32{1.0, 0.0}, nil)))
	updated := testDoc("doc-1", []float32{0.0, 1.0}, map[string]string{"v": "2"})
	require.NoError(t, store.Upsert(ctx, updated))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Fields["v"])
}

func TestMemoryStore_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, testDoc("far", []float32{0.0, 1.0}, nil)))
	require.NoError(t, store.Upsert(ctx, testDoc("near", []float32{1.0, 0.1}, nil)))
	require.NoError(t, store.Upsert(ctx, testDoc("exact", []float32{1.0, 0.0}, nil)))

	matches, err := store.Search(ctx, []float32{1.0, 0.0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "exact", matches[0].ID)
	assert.Equal(t, "near", matches[1].ID)
	assert.Equal(t, "far", matches[2].ID)

	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Similarity, matches[i-1].Similarity)
	}
}

func TestMemoryStore_SearchRespectsK(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 10; i++ {
		doc := testDoc(fmt.Sprintf("doc-%d", i), []float32{1.0, float32(i) * 0.1}, nil)
		require.NoError(t, store.Upsert(ctx, doc))
	}

	matches, err := store.Search(ctx, []float32{1.0, 0.0}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestMemoryStore_SearchFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, testDoc("a", []float32{1.0, 0.0}, map[string]string{"task_type": "transfer"})))
	require.NoError(t, store.Upsert(ctx, testDoc("b", []float32{1.0, 0.0}, map[string]string{"task_type": "withdrawal"})))

	matches, err := store.Search(ctx, []float32{1.0, 0.0}, 10, map[string]string{"task_type": "transfer"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
}

func TestMemoryStore_SearchEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	matches, err := store.Search(ctx, []float32{1.0, 0.0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, testDoc("doc-1", []float32{1.0}, nil)))
	require.NoError(t, store.Delete(ctx, "doc-1"))

	_, err := store.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, "doc-1"))
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_Backends(t *testing.T) {
	store, err := New(Config{Backend: BackendMemory}, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(Config{}, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = New(Config{Backend: "bogus"}, "", nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
