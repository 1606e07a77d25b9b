// Package vector holds the float vector math used on embeddings.
package vector

import (
	"errors"
	"math"
)

var (
	// ErrEmptyVector is returned when a vector has no elements.
	ErrEmptyVector = errors.New("vector: empty vector")
	// ErrZeroNorm is returned when a vector has no direction to normalize.
	ErrZeroNorm = errors.New("vector: zero norm")
)

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float64) float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	return math.Sqrt(sumSquares)
}

// Normalize returns a copy of v scaled to unit length. v is left untouched.
func Normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, ErrEmptyVector
	}
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, ErrZeroNorm
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out, nil
}
