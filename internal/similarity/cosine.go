// Package similarity scores vectors against each other.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is returned when two vectors cannot be compared.
var ErrLengthMismatch = errors.New("similarity: vectors must have the same length")

// Cosine returns dot(a,b) / (|a| * |b|). A zero-norm input yields NaN or Inf;
// callers decide what to do with non-finite scores.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Finite reports whether a score can be ranked.
func Finite(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0)
}
