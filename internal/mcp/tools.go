package mcp

import (
	"github.com/Aman-CERP/annserve/internal/ann"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

// QueryNeighborsInput defines the input schema for the query_neighbors tool.
type QueryNeighborsInput struct {
	Index            string    `json:"index" jsonschema:"name of the index to query"`
	ID               string    `json:"id,omitempty" jsonschema:"item id to find neighbors of; ids outside the index are resolved through the configured out-of-index source"`
	Embedding        []float32 `json:"embedding,omitempty" jsonschema:"raw query vector, used instead of id"`
	K                int       `json:"k,omitempty" jsonschema:"number of neighbors, default 10"`
	IncludeDistances bool      `json:"include_distances,omitempty" jsonschema:"return the distance of each neighbor"`
	IncludeScores    bool      `json:"include_scores,omitempty" jsonschema:"return distance/2 scores, angular indexes only"`
	ScoreThreshold   *float64  `json:"score_threshold,omitempty" jsonschema:"keep only scores strictly above this value; implies include_scores"`
}

// CrossQueryInput defines the input schema for the cross_query tool.
type CrossQueryInput struct {
	QueryIndex       string   `json:"query_index" jsonschema:"index (or external store fallback) that knows the id"`
	QueryID          string   `json:"query_id" jsonschema:"id whose vector is searched for"`
	Catalog          string   `json:"catalog" jsonschema:"index to search in"`
	K                int      `json:"k,omitempty" jsonschema:"number of neighbors, default 10"`
	IncludeDistances bool     `json:"include_distances,omitempty" jsonschema:"return the distance of each neighbor"`
	IncludeScores    bool     `json:"include_scores,omitempty" jsonschema:"return distance/2 scores, angular catalogs only"`
	ScoreThreshold   *float64 `json:"score_threshold,omitempty" jsonschema:"keep only scores strictly above this value; implies include_scores"`
}

// NeighborsOutput defines the output schema for neighbor queries.
type NeighborsOutput struct {
	Neighbors []NeighborOutput `json:"neighbors" jsonschema:"neighbors, nearest first; fallback results follow own results"`
}

// NeighborOutput is one neighbor.
type NeighborOutput struct {
	ID       string   `json:"id"`
	Distance *float32 `json:"distance,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// GetVectorInput defines the input schema for the get_vector tool.
type GetVectorInput struct {
	Index string `json:"index" jsonschema:"index used to resolve the id"`
	ID    string `json:"id" jsonschema:"item id"`
}

// GetVectorOutput defines the output schema for the get_vector tool.
type GetVectorOutput struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct {
	Index string `json:"index,omitempty" jsonschema:"single index to report; all indexes when empty"`
}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Indexes []ann.Health `json:"indexes"`
}

// RefreshIndexInput defines the input schema for the refresh_index tool.
type RefreshIndexInput struct {
	Index string `json:"index,omitempty" jsonschema:"index to force-reload; when empty every stale index is reloaded"`
}

// RefreshIndexOutput defines the output schema for the refresh_index tool.
type RefreshIndexOutput struct {
	Reloaded []string       `json:"reloaded"`
	Failed   []serrors.Body `json:"failed,omitempty"`
}

func toNeighborsOutput(res ann.Result) NeighborsOutput {
	out := NeighborsOutput{Neighbors: make([]NeighborOutput, 0, len(res.Neighbors))}
	for _, n := range res.Neighbors {
		no := NeighborOutput{ID: n.ID}
		switch res.Mode {
		case ann.ModeDistance:
			d := n.Distance
			no.Distance = &d
		case ann.ModeScore:
			s := n.Score
			no.Score = &s
		}
		out.Neighbors = append(out.Neighbors, no)
	}
	return out
}

// clampK applies the default and upper bound to k.
func clampK(k int) int {
	switch {
	case k <= 0:
		return 10
	case k > 1000:
		return 1000
	}
	return k
}
