package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/annserve/internal/ann"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/pkg/version"
)

// Server is the MCP server for annserve.
// It exposes the index registry to AI clients as tools.
type Server struct {
	mcp      *mcp.Server
	registry *ann.Registry
	cross    *ann.CrossResolver
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "query_neighbors",
		Description: "Find the nearest neighbors of an item id or a raw embedding in one index. Short results are filled from the index's fallback parent.",
	},
	{
		Name:        "cross_query",
		Description: "Look up an id's vector in one index and search for its neighbors in another. Returns an empty list when the id, index or catalog cannot be resolved.",
	},
	{
		Name:        "get_vector",
		Description: "Return the stored vector for an id, resolving ids outside the index through the out-of-index source.",
	},
	{
		Name:        "index_status",
		Description: "Report load status, metadata, item count and extraction time of the served indexes.",
	},
	{
		Name:        "refresh_index",
		Description: "Force-reload one index from remote storage, or reload every index whose remote archive is newer.",
	},
}

// NewServer creates a new MCP server over registry.
func NewServer(registry *ann.Registry, cross *ann.CrossResolver, logger *slog.Logger) (*Server, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if cross == nil {
		cross = ann.NewCrossResolver(registry, nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry: registry,
		cross:    cross,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "annserve",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "query_neighbors":
		return callWith(ctx, args, s.queryNeighbors)
	case "cross_query":
		return callWith(ctx, args, s.crossQuery)
	case "get_vector":
		return callWith(ctx, args, s.getVector)
	case "index_status":
		return callWith(ctx, args, s.indexStatus)
	case "refresh_index":
		return callWith(ctx, args, s.refreshIndex)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// callWith decodes args into In the way the SDK would.
func callWith[In, Out any](ctx context.Context, args map[string]any, fn func(context.Context, In) (Out, error)) (any, error) {
	var in In
	data, err := json.Marshal(args)
	if err != nil {
		return nil, NewInvalidParamsError("failed to encode arguments")
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, NewInvalidParamsError("invalid arguments: " + err.Error())
	}
	out, err := fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// handler adapts a tool function to the SDK handler shape with request
// logging.
func handler[In, Out any](s *Server, name string, fn func(context.Context, In) (Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		requestID := uuid.NewString()
		out, err := fn(ctx, in)
		if err != nil {
			var zero Out
			s.logger.Warn(name+" failed",
				append(serrors.FormatForLog(err),
					slog.String("request_id", requestID),
					slog.Duration("duration", time.Since(start)))...)
			return nil, zero, MapError(err)
		}
		s.logger.Info(name+" completed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)))
		return nil, out, nil
	}
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description},
		handler(s, tools[0].Name, s.queryNeighbors))
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description},
		handler(s, tools[1].Name, s.crossQuery))
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description},
		handler(s, tools[2].Name, s.getVector))
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description},
		handler(s, tools[3].Name, s.indexStatus))
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[4].Name, Description: tools[4].Description},
		handler(s, tools[4].Name, s.refreshIndex))

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) resource(name string) (*ann.Resource, error) {
	if name == "" {
		return nil, NewInvalidParamsError("index parameter is required")
	}
	res, ok := s.registry.Get(name)
	if !ok {
		return nil, ann.UnknownResource(name)
	}
	return res, nil
}

func (s *Server) queryNeighbors(ctx context.Context, in QueryNeighborsInput) (NeighborsOutput, error) {
	res, err := s.resource(in.Index)
	if err != nil {
		return NeighborsOutput{}, err
	}
	q := ann.Query{
		Emb:         in.Embedding,
		K:           clampK(in.K),
		InclDist:    in.IncludeDistances,
		InclScore:   in.IncludeScores,
		ThreshScore: in.ScoreThreshold,
	}
	if in.ID != "" {
		q.ID = &in.ID
	}
	result, err := res.ResolveQuery(ctx, q)
	if err != nil {
		return NeighborsOutput{}, err
	}
	return toNeighborsOutput(result), nil
}

func (s *Server) crossQuery(ctx context.Context, in CrossQueryInput) (NeighborsOutput, error) {
	result, err := s.cross.CrossQuery(ctx, ann.CrossQuery{
		QName:       in.QueryIndex,
		QID:         in.QueryID,
		CatalogName: in.Catalog,
		K:           clampK(in.K),
		InclDist:    in.IncludeDistances,
		InclScore:   in.IncludeScores,
		ThreshScore: in.ScoreThreshold,
	})
	if err != nil {
		return NeighborsOutput{}, err
	}
	return toNeighborsOutput(result), nil
}

func (s *Server) getVector(ctx context.Context, in GetVectorInput) (GetVectorOutput, error) {
	res, err := s.resource(in.Index)
	if err != nil {
		return GetVectorOutput{}, err
	}
	if in.ID == "" {
		return GetVectorOutput{}, NewInvalidParamsError("id parameter is required")
	}
	vec, err := res.ResolveVector(ctx, in.ID)
	if err != nil {
		return GetVectorOutput{}, err
	}
	return GetVectorOutput{ID: in.ID, Vector: vec}, nil
}

func (s *Server) indexStatus(_ context.Context, in IndexStatusInput) (IndexStatusOutput, error) {
	if in.Index != "" {
		res, err := s.resource(in.Index)
		if err != nil {
			return IndexStatusOutput{}, err
		}
		return IndexStatusOutput{Indexes: []ann.Health{res.Health()}}, nil
	}
	out := IndexStatusOutput{Indexes: []ann.Health{}}
	for _, r := range s.registry.Resources() {
		out.Indexes = append(out.Indexes, r.Health())
	}
	return out, nil
}

func (s *Server) refreshIndex(ctx context.Context, in RefreshIndexInput) (RefreshIndexOutput, error) {
	if in.Index != "" {
		res, err := s.resource(in.Index)
		if err != nil {
			return RefreshIndexOutput{}, err
		}
		if err := res.Load(ctx, true); err != nil {
			return RefreshIndexOutput{}, err
		}
		return RefreshIndexOutput{Reloaded: []string{in.Index}}, nil
	}

	reloaded, err := s.registry.MaybeReloadAll(ctx)
	out := RefreshIndexOutput{Reloaded: reloaded}
	if out.Reloaded == nil {
		out.Reloaded = []string{}
	}
	var joined interface{ Unwrap() []error }
	switch {
	case err == nil:
	case errors.As(err, &joined):
		for _, e := range joined.Unwrap() {
			out.Failed = append(out.Failed, serrors.ToBody(e))
		}
	default:
		out.Failed = append(out.Failed, serrors.ToBody(err))
	}
	return out, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
