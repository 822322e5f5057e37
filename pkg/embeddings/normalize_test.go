package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit(t *testing.T) {
	t.Run("scales float64 input", func(t *testing.T) {
		got, err := Unit([]float64{3, 4})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{0.6, 0.8}, got, 1e-6)
	})

	t.Run("leaves input untouched", func(t *testing.T) {
		in := []float32{0, 2, 0}

		got, err := Unit(in)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 0}, got)
		assert.Equal(t, []float32{0, 2, 0}, in)
	})

	t.Run("zero vector", func(t *testing.T) {
		_, err := Unit([]float32{0, 0, 0})
		require.ErrorIs(t, err, ErrZeroVector)
	})

	t.Run("empty vector", func(t *testing.T) {
		_, err := Unit[float32](nil)
		require.ErrorIs(t, err, ErrZeroVector)
	})

	t.Run("non-finite component", func(t *testing.T) {
		_, err := Unit([]float64{1, math.NaN()})
		require.ErrorIs(t, err, ErrNonFinite)

		_, err = Unit([]float64{math.Inf(1), 1})
		require.ErrorIs(t, err, ErrNonFinite)
	})
}
