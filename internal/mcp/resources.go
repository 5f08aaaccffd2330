package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// IndexesURI is the resource listing every index's health document.
const IndexesURI = "annserve://indexes"

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "indexes",
			URI:         IndexesURI,
			Description: "Health of every served index: status, metadata, item count, extraction time",
			MIMEType:    "application/json",
		},
		s.handleReadIndexes,
	)
}

func (s *Server) handleReadIndexes(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	status, err := s.indexStatus(ctx, IndexStatusInput{})
	if err != nil {
		return nil, MapError(err)
	}
	content, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      IndexesURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
