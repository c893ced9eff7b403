package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/rewind/kit"
)

// RegisterMCP registers rewind tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSearchTool(srv)
	s.registerGetEntryTool(srv)
	s.registerTimelineTool(srv)
	s.registerCaptureStatusTool(srv)
	s.registerToggleCaptureTool(srv)
	s.registerArchiveSweepTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (s *Service) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(json.RawMessage) (any, error)) {
	mw := kit.Chain(kit.Logging(s.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

// --- search ---

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "rewind_search",
		Description: "Search screen history. Supports date:, time:, title: and url: filters " +
			"(e.g. `date:yesterday title:\"budget\" quarterly report`). All words must appear.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Search text with optional filters"},
			"limit": map[string]any{"type": "integer", "description": "Max results (default 20)"},
		}, []string{"query"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchRequest)
		if r.Query == "" {
			return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
		}
		entries, err := s.Search(ctx, r.Query)
		if err != nil {
			return nil, err
		}
		limit := r.Limit
		if limit <= 0 {
			limit = 20
		}
		if len(entries) > limit {
			entries = entries[:limit]
		}
		now := s.now()
		out := make([]EntryView, len(entries))
		for i, e := range entries {
			out[i] = newEntryView(e, now, false)
		}
		return out, nil
	}
	s.register(srv, tool, endpoint, kit.DecodeJSON[searchRequest]())
}

// --- get_entry ---

type getEntryRequest struct {
	Timestamp int64 `json:"timestamp"`
}

func (s *Service) registerGetEntryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "rewind_get_entry",
		Description: "Get the full OCR text and context of the entry recorded at a unix timestamp.",
		InputSchema: inputSchema(map[string]any{
			"timestamp": map[string]any{"type": "integer", "description": "Unix seconds of the entry"},
		}, []string{"timestamp"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getEntryRequest)
		e, err := s.Entry(ctx, r.Timestamp)
		if err != nil {
			return nil, err
		}
		return newEntryView(e, s.now(), true), nil
	}
	s.register(srv, tool, endpoint, kit.DecodeJSON[getEntryRequest]())
}

// --- timeline ---

type timelineRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Service) registerTimelineTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "rewind_timeline",
		Description: "List recorded entry timestamps, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max timestamps (default 100)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*timelineRequest)
		ts, err := s.Timeline(ctx)
		if err != nil {
			return nil, err
		}
		limit := r.Limit
		if limit <= 0 {
			limit = 100
		}
		if len(ts) > limit {
			ts = ts[:limit]
		}
		return map[string]any{"timestamps": ts}, nil
	}
	s.register(srv, tool, endpoint, kit.DecodeJSON[timelineRequest]())
}

// --- capture ---

type emptyRequest struct{}

func (s *Service) registerCaptureStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "rewind_capture_status",
		Description: "Report whether screen capture is active or paused.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return map[string]string{"status": s.Status()}, nil
	}
	s.register(srv, tool, endpoint, kit.DecodeJSON[emptyRequest]())
}

func (s *Service) registerToggleCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "rewind_toggle_capture",
		Description: "Pause screen capture if it is active, resume it if paused. Returns the new status.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		s.Toggle(ctx)
		return map[string]string{"status": s.Status()}, nil
	}
	s.register(srv, tool, endpoint, kit.DecodeJSON[emptyRequest]())
}

// --- archive ---

func (s *Service) registerArchiveSweepTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "rewind_archive_sweep",
		Description: "Compress screenshots older than the cold age into the archive now.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.SweepArchive(ctx)
	}
	s.register(srv, tool, endpoint, kit.DecodeJSON[emptyRequest]())
}
