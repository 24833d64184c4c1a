package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// StaticProvider is a deterministic in-memory Provider for tests.
//
// Texts registered via Set return their fixed vector; unregistered texts
// get a deterministic hash-derived vector so two different texts are
// (almost certainly) not identical, and repeated calls are stable.
type StaticProvider struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	dim     int

	// Err, when set, is returned by every embed call. Used to simulate
	// provider outages.
	Err error

	// Calls counts embed invocations.
	Calls int
}

// NewStaticProvider creates a StaticProvider with the given dimension.
func NewStaticProvider(dim int) *StaticProvider {
	if dim <= 0 {
		dim = 8
	}
	return &StaticProvider{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// Set registers a fixed vector for a text.
func (p *StaticProvider) Set(text string, vec []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vectors[text] = vec
}

// EmbedQuery returns the registered or hash-derived vector for text.
func (p *StaticProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.Calls++
	err := p.Err
	vec, ok := p.vectors[text]
	p.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	return p.hashVector(text), nil
}

// EmbedDocuments embeds each text via EmbedQuery.
func (p *StaticProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the configured dimension.
func (p *StaticProvider) Dimension() int {
	return p.dim
}

// Close is a no-op.
func (p *StaticProvider) Close() error {
	return nil
}

// hashVector derives a stable pseudo-vector from text.
func (p *StaticProvider) hashVector(text string) []float32 {
	vec := make([]float32, p.dim)
	h := fnv.New32a()
	for i := range vec {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		vec[i] = float32(h.Sum32()%1000)/1000.0 + 0.001
	}
	return vec
}
