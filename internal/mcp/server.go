package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/lockerindex/internal/coordinator"
	"github.com/Aman-CERP/lockerindex/internal/engine"
	"github.com/Aman-CERP/lockerindex/pkg/version"
)

// Query limits applied to tool input.
const (
	defaultLimit = engine.DefaultQueryLimit
	maxLimit     = 100
)

// Index is the part of the coordinator the server reads from.
type Index interface {
	QueryType(ctx context.Context, docType, query string, params engine.QueryParams) ([]engine.Hit, error)
	QueryAll(ctx context.Context, query string, params engine.QueryParams) ([]engine.Hit, error)
	Status() coordinator.Status
}

// RecordStore resolves journaled records. Optional.
type RecordStore interface {
	GetCurrent(ctx context.Context, collection, id string) (map[string]any, bool, error)
}

// Server is the MCP server for lockerindex.
type Server struct {
	mcp     *mcp.Server
	index   Index
	records RecordStore
	logger  *slog.Logger
}

// NewServer creates a new MCP server over index. records may be nil, in
// which case the get_record tool is not offered.
func NewServer(index Index, records RecordStore) (*Server, error) {
	if index == nil {
		return nil, errors.New("index is required")
	}

	s := &Server{
		index:   index,
		records: records,
		logger:  slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "lockerindex",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Full-text search over gathered personal records (contacts, photos, places, timelines). Accepts boolean queries; pass type to restrict to one record type.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the active search engine, index location and number of pending index writes.",
	}, s.mcpIndexStatusHandler)

	count := 2
	if s.records != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "get_record",
			Description: "Fetch the latest gathered copy of a record by the document id returned from search.",
		}, s.mcpGetRecordHandler)
		count++
	}

	s.logger.Debug("mcp_tools_registered", slog.Int("count", count))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.Offset < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("offset must be non-negative")
	}

	params := engine.QueryParams{
		Limit:  clampLimit(input.Limit),
		Offset: input.Offset,
	}

	start := time.Now()
	requestID := generateRequestID()

	var (
		hits []engine.Hit
		err  error
	)
	if input.Type != "" {
		hits, err = s.index.QueryType(ctx, input.Type, input.Query, params)
	} else {
		hits, err = s.index.QueryAll(ctx, input.Query, params)
	}
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.String("type", input.Type),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))

	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatHits(input.Query, input.Type, hits)}},
	}
	return result, SearchOutput{Results: toResults(hits)}, nil
}

func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	st := s.index.Status()
	return nil, IndexStatusOutput{
		Engine:     st.Engine,
		Variant:    st.Variant,
		IndexPath:  st.IndexPath,
		QueueDepth: st.QueueDepth,
		Journal:    s.records != nil,
	}, nil
}

func (s *Server) mcpGetRecordHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetRecordInput) (
	*mcp.CallToolResult,
	GetRecordOutput,
	error,
) {
	collection, err := collectionOf(input.ID)
	if err != nil {
		return nil, GetRecordOutput{}, err
	}

	record, ok, err := s.records.GetCurrent(ctx, collection, input.ID)
	if err != nil {
		return nil, GetRecordOutput{}, MapError(err)
	}
	if !ok {
		return nil, GetRecordOutput{}, NewRecordNotFoundError(input.ID)
	}
	return nil, GetRecordOutput{ID: input.ID, Collection: collection, Record: record}, nil
}

// collectionOf extracts the service name from a scheme://service/id
// document id.
func collectionOf(id string) (string, error) {
	u, err := url.Parse(id)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", NewInvalidParamsError(fmt.Sprintf("id must look like scheme://service/id, got %q", id))
	}
	return u.Host, nil
}

// Serve runs the server on transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
