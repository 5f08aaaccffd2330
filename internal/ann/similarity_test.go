package ann

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	g := standardEnv(t).registry()

	out, err := Similarity(context.Background(), g, "test_ann1", []string{"1", "2"}, "test_ann1", []string{"1", "3"})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0, out["1"][0], 1e-5)
	assert.Len(t, out["3"], 2)
	for _, row := range out {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, -1.0-1e-6)
			assert.LessOrEqual(t, v, 1.0+1e-6)
		}
	}
}

func TestSimilarity_AcrossIndexes(t *testing.T) {
	g := standardEnv(t).registry()

	out, err := Similarity(context.Background(), g, "test_ann1", []string{"4"}, "test_ann2", []string{"t2-4", "0"})

	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Len(t, out["t2-4"], 1)
}

func TestSimilarity_UnresolvableIsEmpty(t *testing.T) {
	g := standardEnv(t).registry()
	ctx := context.Background()

	out, err := Similarity(ctx, g, "ghost", []string{"1"}, "test_ann1", []string{"1"})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Similarity(ctx, g, "test_ann1", []string{"1"}, "test_ann1", []string{"nowhere"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosine([]float32{1}, []float32{1, 1}))
}
