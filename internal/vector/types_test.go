package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	a := New([]float32{1, 0, 0}, "m")
	b := New([]float32{1, 0, 0}, "m")

	sim, ok := a.CosineSimilarity(b)
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	a := New([]float32{1, 0}, "m")
	b := New([]float32{1, 0, 0}, "m")

	_, ok := a.CosineSimilarity(b)
	assert.False(t, ok)
}

func TestCosineSimilarityZeroVectorYieldsZero(t *testing.T) {
	a := New([]float32{0, 0, 0}, "m")
	b := New([]float32{1, 2, 3}, "m")

	sim, ok := a.CosineSimilarity(b)
	require.True(t, ok)
	assert.Equal(t, float32(0), sim)
	assert.False(t, math.IsNaN(float64(sim)))
}

func TestEuclideanDistance(t *testing.T) {
	a := New([]float32{0, 0}, "m")
	b := New([]float32{3, 4}, "m")

	d, ok := a.EuclideanDistance(b)
	require.True(t, ok)
	assert.InDelta(t, 5.0, d, 1e-6)
}

func TestDotProduct(t *testing.T) {
	a := New([]float32{1, 2, 3}, "m")
	b := New([]float32{4, 5, 6}, "m")

	dp, ok := a.DotProduct(b)
	require.True(t, ok)
	assert.InDelta(t, 32.0, dp, 1e-6)
}

func TestSynthesizeFromContentIsDeterministicAndNormalized(t *testing.T) {
	doc := map[string]any{"name": "Alice", "age": float64(30)}

	v1, err := SynthesizeFromContent(doc)
	require.NoError(t, err)
	v2, err := SynthesizeFromContent(doc)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1.Data, SynthesizeDim)

	var sumSq float64
	for _, x := range v1.Data {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestSynthesizeFromContentDiffersOnDifferentInput(t *testing.T) {
	v1, err := SynthesizeFromContent(map[string]any{"x": float64(1)})
	require.NoError(t, err)
	v2, err := SynthesizeFromContent(map[string]any{"x": float64(2)})
	require.NoError(t, err)

	assert.NotEqual(t, v1.Data, v2.Data)
}
