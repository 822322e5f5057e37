// Package embeddings holds vector helpers shared by the embedding provider clients.
package embeddings

import (
	"errors"
	"math"
)

var (
	// ErrZeroVector is returned for a vector with no direction. It cannot take part in cosine similarity.
	ErrZeroVector = errors.New("embeddings: zero vector")
	// ErrNonFinite is returned when a component is NaN or infinite.
	ErrNonFinite = errors.New("embeddings: non-finite component")
)

// Float is the component type of provider responses.
type Float interface {
	~float32 | ~float64
}

// Unit returns a float32 copy of v scaled to unit length. The input is not modified.
func Unit[T Float](v []T) ([]float32, error) {
	var sum float64

	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrNonFinite
		}

		sum += f * f
	}

	if sum == 0 {
		return nil, ErrZeroVector
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))

	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out, nil
}
