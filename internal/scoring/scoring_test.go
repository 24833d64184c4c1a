package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	vec := []float32{0.5, 0.3, 0.2}
	assert.InDelta(t, 1.0, CosineSimilarity(vec, vec), 0.0001)
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1.0, 0.0}
	b := []float32{0.0, 1.0}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 0.0001)
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	a := []float32{1.0, 0.0}
	b := []float32{-1.0, 0.0}
	assert.InDelta(t, -1.0, CosineSimilarity(a, b), 0.0001)
}

func TestCosineSimilarity_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"empty first", nil, []float32{1.0}},
		{"empty second", []float32{1.0}, nil},
		{"length mismatch", []float32{1.0, 2.0}, []float32{1.0}},
		{"zero magnitude", []float32{0.0, 0.0}, []float32{1.0, 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, CosineSimilarity(tt.a, tt.b))
		})
	}
}

func TestRecencyScore_JustAccessed(t *testing.T) {
	now := time.Now()
	assert.InDelta(t, 1.0, RecencyScore(now, now, DefaultDecayRate), 0.0001)
}

func TestRecencyScore_Decays(t *testing.T) {
	now := time.Now()
	oneHour := RecencyScore(now.Add(-1*time.Hour), now, DefaultDecayRate)
	tenHours := RecencyScore(now.Add(-10*time.Hour), now, DefaultDecayRate)

	assert.InDelta(t, 0.995, oneHour, 0.0001)
	assert.Less(t, tenHours, oneHour)
	assert.Greater(t, tenHours, 0.0)
}

func TestRecencyScore_FutureTimestamp(t *testing.T) {
	now := time.Now()
	// Clock skew: last access appears to be in the future.
	assert.Equal(t, 1.0, RecencyScore(now.Add(time.Hour), now, DefaultDecayRate))
}

func TestRecencyScore_InvalidDecayFallsBack(t *testing.T) {
	now := time.Now()
	past := now.Add(-1 * time.Hour)
	assert.InDelta(t, 0.995, RecencyScore(past, now, 0.0), 0.0001)
	assert.InDelta(t, 0.995, RecencyScore(past, now, 1.5), 0.0001)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.7, Clamp01(0.7))
}

func TestNormalize(t *testing.T) {
	values := []float64{2.0, 4.0, 6.0}
	Normalize(values)
	assert.Equal(t, []float64{0.0, 0.5, 1.0}, values)
}

func TestNormalize_AllEqual(t *testing.T) {
	values := []float64{3.0, 3.0, 3.0}
	Normalize(values)
	assert.Equal(t, []float64{3.0, 3.0, 3.0}, values)
}

func TestNormalize_Empty(t *testing.T) {
	Normalize(nil) // must not panic
}

func TestWeights_Valid(t *testing.T) {
	assert.True(t, DefaultWeights().Valid())
	assert.False(t, Weights{Recency: 0.5, Importance: 0.5, Relevance: 0.5}.Valid())
	assert.False(t, Weights{Recency: -0.2, Importance: 0.7, Relevance: 0.5}.Valid())
}

func TestWeights_Composite(t *testing.T) {
	w := Weights{Recency: 0.2, Importance: 0.3, Relevance: 0.5}
	got := w.Composite(1.0, 0.5, 0.8)
	assert.InDelta(t, 0.2*1.0+0.3*0.5+0.5*0.8, got, 0.0001)
}
