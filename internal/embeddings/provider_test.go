package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-large-en-v1.5", 1024},
		{"all-MiniLM-L6-v2", 384},
		{"sentence-transformers/all-minilm-l12-v2", 384},
		{"some-exotic-model", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{BaseURL: "http://localhost:8080/v1", Model: "BAAI/bge-small-en-v1.5"}
	require.NoError(t, valid.Validate())

	noURL := valid
	noURL.BaseURL = ""
	assert.ErrorIs(t, noURL.Validate(), ErrInvalidConfig)

	noModel := valid
	noModel.Model = ""
	assert.ErrorIs(t, noModel.Validate(), ErrInvalidConfig)
}

func TestStaticProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	p := NewStaticProvider(4)

	first, err := p.EmbedQuery(ctx, "unregistered text")
	require.NoError(t, err)
	second, err := p.EmbedQuery(ctx, "unregistered text")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := p.EmbedQuery(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
	assert.Equal(t, 3, p.Calls)
}
