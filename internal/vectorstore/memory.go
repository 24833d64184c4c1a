package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/veridianlabs/guidanced/internal/scoring"
)

// MemoryStore is an in-process Store backed by a map with brute-force
// cosine search. It is the default backend for tests and for deployments
// without a persistence path configured; exact search over a few thousand
// vectors is well inside the latency budget of a conversation turn.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
	}
}

// Upsert stores a document, replacing any existing one with the same ID.
func (s *MemoryStore) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return ErrEmptyID
	}
	if len(doc.Embedding) == 0 {
		return ErrEmptyEmbedding
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// Search performs brute-force cosine similarity search.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.docs))
	for _, doc := range s.docs {
		if !matchesFilters(doc.Fields, filters) {
			continue
		}
		sim := scoring.CosineSimilarity(vector, doc.Embedding)
		matches = append(matches, Match{
			Document:   cloneDocument(doc),
			Similarity: float32(sim),
		})
	}

	// Stable order: similarity descending, ID ascending on ties so
	// identical inputs always produce identical output.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Get retrieves a document by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneDocument(doc)
	return &out, nil
}

// Delete removes a document by ID. Absent IDs are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// Count returns the number of stored documents.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// matchesFilters reports whether fields satisfy every filter entry.
func matchesFilters(fields, filters map[string]string) bool {
	for key, want := range filters {
		if fields[key] != want {
			return false
		}
	}
	return true
}

// cloneDocument copies a document so callers cannot mutate stored state.
func cloneDocument(doc Document) Document {
	out := Document{
		ID:        doc.ID,
		Embedding: make([]float32, len(doc.Embedding)),
		Payload:   make([]byte, len(doc.Payload)),
	}
	copy(out.Embedding, doc.Embedding)
	copy(out.Payload, doc.Payload)
	if doc.Fields != nil {
		out.Fields = make(map[string]string, len(doc.Fields))
		for k, v := range doc.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
