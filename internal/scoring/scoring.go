// Package scoring provides the pure numeric primitives used by memory
// retrieval: cosine similarity, exponential recency decay, and score
// normalization.
//
// Everything in this package is deterministic and allocation-free so the
// retrieval ranking can be unit tested without any store or embedding
// provider.
package scoring

import (
	"math"
	"time"
)

// DefaultDecayRate is the per-hour exponential decay applied to a memory's
// recency component. A rate of 0.995 halves the recency score roughly every
// 5.8 days without access.
const DefaultDecayRate = 0.995

// CosineSimilarity computes the cosine similarity between two embedding
// vectors.
//
// Formula: cos(θ) = (A · B) / (||A|| * ||B||)
//
// Returns 0.0 for invalid inputs (empty vectors, zero-magnitude vectors,
// or vectors of different lengths). For typical embedding vectors the
// result falls in [0, 1] since components are mostly positive.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		magA += va * va
		magB += vb * vb
	}

	if magA == 0.0 || magB == 0.0 {
		return 0.0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// RecencyScore computes the exponential decay score for a memory last
// accessed at the given time, evaluated at now.
//
// score = decayRate ^ hoursSince(lastAccessed)
//
// A lastAccessed in the future (clock skew) scores 1.0 rather than
// amplifying the memory. A non-positive or >=1 decayRate falls back to
// DefaultDecayRate.
func RecencyScore(lastAccessed, now time.Time, decayRate float64) float64 {
	if decayRate <= 0.0 || decayRate >= 1.0 {
		decayRate = DefaultDecayRate
	}

	hours := now.Sub(lastAccessed).Hours()
	if hours <= 0 {
		return 1.0
	}

	return math.Pow(decayRate, hours)
}

// Clamp01 bounds a value to the [0, 1] interval.
func Clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Normalize rescales values to [0, 1] via min-max normalization, in place.
// If all values are equal the slice is left unchanged; relative order is
// already meaningless in that case and rescaling would divide by zero.
func Normalize(values []float64) {
	if len(values) == 0 {
		return
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if max == min {
		return
	}

	span := max - min
	for i, v := range values {
		values[i] = (v - min) / span
	}
}

// Weights holds the composite retrieval score weights. They must be
// non-negative and sum to 1 (within epsilon) to keep scores comparable
// across queries.
type Weights struct {
	Recency    float64
	Importance float64
	Relevance  float64
}

// DefaultWeights returns the standard retrieval weighting: relevance
// dominates, with recency and importance as tie-shapers.
func DefaultWeights() Weights {
	return Weights{
		Recency:    0.2,
		Importance: 0.3,
		Relevance:  0.5,
	}
}

// Valid reports whether the weights are non-negative and sum to 1 within
// a small tolerance.
func (w Weights) Valid() bool {
	if w.Recency < 0 || w.Importance < 0 || w.Relevance < 0 {
		return false
	}
	sum := w.Recency + w.Importance + w.Relevance
	return math.Abs(sum-1.0) < 1e-6
}

// Composite combines the three score components with the configured
// weights.
func (w Weights) Composite(recency, importance, relevance float64) float64 {
	return w.Recency*recency + w.Importance*importance + w.Relevance*relevance
}
