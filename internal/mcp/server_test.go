package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annserve/internal/ann"
	"github.com/Aman-CERP/annserve/internal/ann/anntest"
	"github.com/Aman-CERP/annserve/internal/blob"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

func newTestServer(t *testing.T) (*Server, *ann.Registry) {
	t.Helper()
	root := t.TempDir()
	a1, a2 := anntest.Standard()
	require.NoError(t, a1.WriteTo(root))
	require.NoError(t, a2.WriteTo(root))

	store, err := blob.NewLocalStore(root)
	require.NoError(t, err)
	sources, err := ann.Discover(context.Background(), store, "*.tar*", "base")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ropts := ann.DefaultResourceOptions()
	ropts.Fetch.MaxRetries, ropts.Stat.MaxRetries = 0, 0
	ropts.Logger = logger
	reg, err := ann.NewRegistry(context.Background(), store, sources, ann.Options{
		ExtractDir: t.TempDir(),
		Resource:   ropts,
	})
	require.NoError(t, err)

	srv, err := NewServer(reg, nil, logger)
	require.NoError(t, err)
	return srv, reg
}

func neighborIDs(out NeighborsOutput) []string {
	ids := make([]string, len(out.Neighbors))
	for i, n := range out.Neighbors {
		ids[i] = n.ID
	}
	return ids
}

func TestNewServer_RequiresRegistry(t *testing.T) {
	// When: creating a server without a registry
	srv, err := NewServer(nil, nil, nil)

	// Then: it fails
	require.Error(t, err)
	assert.Nil(t, srv)
}

func TestServer_ListTools(t *testing.T) {
	// Given: a server
	srv, _ := newTestServer(t)

	// When: listing tools
	names := make([]string, 0)
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	// Then: every tool is registered
	assert.Equal(t, []string{"query_neighbors", "cross_query", "get_vector", "index_status", "refresh_index"}, names)
	assert.NotNil(t, srv.MCPServer())
}

func TestCallTool_UnknownTool(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "search", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestCallTool_QueryNeighborsByID(t *testing.T) {
	// Given: a server over test_ann1
	srv, _ := newTestServer(t)

	// When: asking for 10 neighbors of id 0
	res, err := srv.CallTool(context.Background(), "query_neighbors", map[string]any{
		"index": "test_ann1",
		"id":    "0",
		"k":     10,
	})

	// Then: 10 ids come back without the query id
	require.NoError(t, err)
	out := res.(NeighborsOutput)
	ids := neighborIDs(out)
	assert.Len(t, ids, 10)
	assert.NotContains(t, ids, "0")
	assert.Nil(t, out.Neighbors[0].Distance)
	assert.Nil(t, out.Neighbors[0].Score)
}

func TestCallTool_QueryNeighborsByEmbeddingWithScores(t *testing.T) {
	// Given: the stored vector of item 5
	srv, _ := newTestServer(t)
	a1, _ := anntest.Standard()

	// When: querying by that embedding with scores
	res, err := srv.CallTool(context.Background(), "query_neighbors", map[string]any{
		"index":          "test_ann1",
		"embedding":      a1.Vectors[5],
		"k":              3,
		"include_scores": true,
	})

	// Then: item 5 is nearest and every neighbor carries a score
	require.NoError(t, err)
	out := res.(NeighborsOutput)
	require.NotEmpty(t, out.Neighbors)
	assert.Equal(t, "5", out.Neighbors[0].ID)
	for _, n := range out.Neighbors {
		require.NotNil(t, n.Score)
		assert.Nil(t, n.Distance)
	}
}

func TestCallTool_QueryNeighborsDistances(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := srv.CallTool(context.Background(), "query_neighbors", map[string]any{
		"index":             "test_ann1",
		"id":                "3",
		"k":                 5,
		"include_distances": true,
	})

	require.NoError(t, err)
	out := res.(NeighborsOutput)
	require.Len(t, out.Neighbors, 5)
	for i := 1; i < len(out.Neighbors); i++ {
		assert.LessOrEqual(t, *out.Neighbors[i-1].Distance, *out.Neighbors[i].Distance)
	}
}

func TestCallTool_QueryNeighborsErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"missing index", map[string]any{"id": "0"}, ErrCodeInvalidParams},
		{"unknown index", map[string]any{"index": "nope", "id": "0"}, ErrCodeNotFound},
		{"no id or embedding", map[string]any{"index": "test_ann1"}, ErrCodeInvalidParams},
		{"out of index id", map[string]any{"index": "test_ann1", "id": "t2-4"}, ErrCodeNotFound},
		{"wrong dimensions", map[string]any{"index": "test_ann1", "embedding": []float32{1, 2}}, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.CallTool(context.Background(), "query_neighbors", tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.want, MapError(err).Code)
		})
	}
}

func TestCallTool_InvalidArguments(t *testing.T) {
	srv, _ := newTestServer(t)

	// When: k has the wrong type
	_, err := srv.CallTool(context.Background(), "query_neighbors", map[string]any{
		"index": "test_ann1",
		"k":     "ten",
	})

	// Then: the call is rejected as invalid params
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallTool_CrossQuery(t *testing.T) {
	// Given: both standard indexes
	srv, _ := newTestServer(t)

	// When: searching test_ann1 with the vector of test_ann2's item t2-7
	res, err := srv.CallTool(context.Background(), "cross_query", map[string]any{
		"query_index": "test_ann2",
		"query_id":    "t2-7",
		"catalog":     "test_ann1",
		"k":           6,
	})

	// Then: six test_ann1 ids come back
	require.NoError(t, err)
	ids := neighborIDs(res.(NeighborsOutput))
	assert.Len(t, ids, 6)
	for _, id := range ids {
		assert.False(t, strings.HasPrefix(id, "t2-"), id)
	}
}

func TestCallTool_CrossQueryUnresolvedIsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := srv.CallTool(context.Background(), "cross_query", map[string]any{
		"query_index": "test_ann2",
		"query_id":    "does-not-exist",
		"catalog":     "test_ann1",
	})

	require.NoError(t, err)
	assert.Empty(t, res.(NeighborsOutput).Neighbors)
}

func TestCallTool_GetVector(t *testing.T) {
	srv, _ := newTestServer(t)
	a1, _ := anntest.Standard()

	res, err := srv.CallTool(context.Background(), "get_vector", map[string]any{
		"index": "test_ann1",
		"id":    "12",
	})

	require.NoError(t, err)
	out := res.(GetVectorOutput)
	assert.Equal(t, "12", out.ID)
	assert.InDeltaSlice(t, a1.Vectors[12], out.Vector, 1e-6)
}

func TestCallTool_GetVectorRequiresID(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "get_vector", map[string]any{"index": "test_ann1"})

	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidParams, MapError(err).Code)
}

func TestCallTool_IndexStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	// When: reporting every index
	res, err := srv.CallTool(context.Background(), "index_status", map[string]any{})

	// Then: both are ready with 100 ids
	require.NoError(t, err)
	out := res.(IndexStatusOutput)
	require.Len(t, out.Indexes, 2)
	for _, h := range out.Indexes {
		assert.Equal(t, ann.StatusReady, h.Status)
		assert.Equal(t, anntest.Items, h.NIDs)
		assert.Len(t, h.Head5, 5)
	}

	// When: reporting a single index
	res, err = srv.CallTool(context.Background(), "index_status", map[string]any{"index": "test_ann2"})

	// Then: only that index is returned
	require.NoError(t, err)
	out = res.(IndexStatusOutput)
	require.Len(t, out.Indexes, 1)
	assert.Equal(t, "test_ann2", out.Indexes[0].Name)
}

func TestCallTool_RefreshIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	// When: force-reloading one index
	res, err := srv.CallTool(context.Background(), "refresh_index", map[string]any{"index": "test_ann1"})

	// Then: it is reported as reloaded
	require.NoError(t, err)
	assert.Equal(t, []string{"test_ann1"}, res.(RefreshIndexOutput).Reloaded)

	// When: reloading whatever is stale
	res, err = srv.CallTool(context.Background(), "refresh_index", map[string]any{})

	// Then: nothing changed remotely, so nothing reloads
	require.NoError(t, err)
	out := res.(RefreshIndexOutput)
	assert.Empty(t, out.Reloaded)
	assert.Empty(t, out.Failed)
}

func TestCallTool_RefreshUnknownIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "refresh_index", map[string]any{"index": "nope"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrUnknownResource))
}

func TestHandleReadIndexes(t *testing.T) {
	srv, _ := newTestServer(t)

	// When: reading the indexes resource
	res, err := srv.handleReadIndexes(context.Background(), nil)

	// Then: the JSON lists both indexes
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, IndexesURI, res.Contents[0].URI)
	var status IndexStatusOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &status))
	require.Len(t, status.Indexes, 2)
	assert.Equal(t, "test_ann1", status.Indexes[0].Name)
}

func TestServe_UnknownTransport(t *testing.T) {
	srv, _ := newTestServer(t)

	err := srv.Serve(context.Background(), "sse")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestClampK(t *testing.T) {
	assert.Equal(t, 10, clampK(0))
	assert.Equal(t, 10, clampK(-3))
	assert.Equal(t, 7, clampK(7))
	assert.Equal(t, 1000, clampK(5000))
}
