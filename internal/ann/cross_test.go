package ann

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/ooi"
	"github.com/Aman-CERP/annserve/internal/provider"
)

func TestCrossQuery_SearchesCatalog(t *testing.T) {
	// Given
	g := standardEnv(t).registry()
	c := NewCrossResolver(g, nil, quietLogger())

	// When
	res, err := c.CrossQuery(context.Background(), CrossQuery{
		QName: "test_ann1", QID: "0", CatalogName: "test_ann2", K: 6,
	})

	// Then: at most six ids, all from test_ann2
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Neighbors), 6)
	assert.NotEmpty(t, res.Neighbors)
	for _, id := range res.IDs() {
		assert.True(t, id == "0" || strings.HasPrefix(id, "t2-"), id)
	}
}

func TestCrossQuery_UnresolvableIsEmptySuccess(t *testing.T) {
	g := standardEnv(t).registry()
	c := NewCrossResolver(g, nil, quietLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		q    CrossQuery
	}{
		{"unknown id", CrossQuery{QName: "test_ann1", QID: "nowhere", CatalogName: "test_ann2", K: 6}},
		{"unknown query index without store", CrossQuery{QName: "ghost", QID: "0", CatalogName: "test_ann2", K: 6}},
		{"unknown catalog", CrossQuery{QName: "test_ann1", QID: "0", CatalogName: "ghost", K: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.CrossQuery(ctx, tt.q)
			require.NoError(t, err)
			assert.Empty(t, res.Neighbors)
			assert.NotNil(t, res.Neighbors)
		})
	}
}

func TestCrossQuery_FallbackStoreForUnknownName(t *testing.T) {
	// Given: a fallback store holding a vector equal to test_ann2's "t2-9"
	e := standardEnv(t)
	g := e.registry()
	store := ooi.Map{"variant-9": e.fixtures["test_ann2"].Vectors[9]}
	c := NewCrossResolver(g, store, quietLogger())

	// When: the query names an index the registry does not hold
	res, err := c.CrossQuery(context.Background(), CrossQuery{
		QName: "variants", QID: "variant-9", CatalogName: "test_ann2", K: 3, InclDist: true,
	})

	// Then
	require.NoError(t, err)
	require.Len(t, res.Neighbors, 3)
	assert.Equal(t, "t2-9", res.Neighbors[0].ID)
	assert.Equal(t, ModeDistance, res.Mode)
}

func TestCrossQuery_MalformedIsAnError(t *testing.T) {
	g := standardEnv(t).registry()
	c := NewCrossResolver(g, nil, quietLogger())

	for _, k := range []int{0, -3} {
		_, err := c.CrossQuery(context.Background(), CrossQuery{
			QName: "test_ann1", QID: "0", CatalogName: "test_ann2", K: k,
		})
		assert.ErrorIs(t, err, serrors.ErrMalformedQuery)
	}

	_, err := c.CrossQuery(context.Background(), CrossQuery{QID: "0", CatalogName: "test_ann2", K: 1})
	assert.ErrorIs(t, err, serrors.ErrMalformedQuery)
}

func TestCrossQuery_Scores(t *testing.T) {
	g := standardEnv(t).registry()
	c := NewCrossResolver(g, nil, quietLogger())
	ctx := context.Background()
	base := CrossQuery{QName: "test_ann1", QID: "3", CatalogName: "test_ann2", K: 5}

	dq := base
	dq.InclDist = true
	dist, err := c.CrossQuery(ctx, dq)
	require.NoError(t, err)

	sq := base
	sq.InclScore = true
	sq.ThreshScore = f64Ptr(-1)
	scored, err := c.CrossQuery(ctx, sq)
	require.NoError(t, err)

	require.Len(t, scored.Neighbors, len(dist.Neighbors))
	for i, n := range scored.Neighbors {
		assert.InDelta(t, float64(dist.Neighbors[i].Distance)/2, n.Score, 1e-9)
	}
}

func TestCrossQuery_ThresholdAloneTurnsOnScores(t *testing.T) {
	c := NewCrossResolver(standardEnv(t).registry(), nil, quietLogger())

	res, err := c.CrossQuery(context.Background(), CrossQuery{
		QName: "test_ann1", QID: "3", CatalogName: "test_ann2", K: 5, ThreshScore: f64Ptr(-1),
	})

	require.NoError(t, err)
	assert.Equal(t, ModeScore, res.Mode)
	assert.Len(t, res.Neighbors, 5)
	for _, n := range res.Neighbors {
		assert.InDelta(t, float64(n.Distance)/2, n.Score, 1e-9)
	}
}

func TestCrossQuery_RejectsKAboveMax(t *testing.T) {
	c := NewCrossResolver(standardEnv(t).registry(), nil, quietLogger())

	_, err := c.CrossQuery(context.Background(), CrossQuery{
		QName: "test_ann1", QID: "3", CatalogName: "test_ann2", K: math.MaxInt,
	})

	assert.ErrorIs(t, err, serrors.ErrMalformedQuery)
}

func TestCrossQuery_ScoresRejectNonAngularCatalog(t *testing.T) {
	e := newEnv(t,
		newFixture("test_ann1", ann1IDs(), 1, provider.Angular),
		newFixture("euc", ann1IDs(), 2, provider.Euclidean),
	)
	c := NewCrossResolver(e.registry(), nil, quietLogger())

	_, err := c.CrossQuery(context.Background(), CrossQuery{
		QName: "test_ann1", QID: "0", CatalogName: "euc", K: 3, InclScore: true,
	})

	assert.ErrorIs(t, err, serrors.ErrMetricUnsupported)
}
