package seskeep

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/seskeep/kit"
)

// RegisterMCP registers the seskeep control tools on an MCP server.
func (k *Keeper) RegisterMCP(srv *mcp.Server) {
	k.registerClearAllTool(srv)
	k.registerListTool(srv)
	k.registerInvalidateTool(srv)
	k.registerStatsTool(srv)
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

// observed wraps every tool endpoint with duration logging.
func (k *Keeper) observed(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				k.logger.Warn("seskeep: tool failed", "tool", name, "error", err)
			} else {
				k.logger.Debug("seskeep: tool served", "tool", name, "duration", time.Since(start))
			}
			return resp, err
		}
	}
}

func decodeEmpty(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{Request: nil}, nil
}

// --- clear all sessions ---

func (k *Keeper) registerClearAllTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "seskeep_clear_all_sessions",
		Description: "Clear all saved sessions, in-memory and persisted. Subsequent session calls run their setup again.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := kit.Chain(k.observed(tool.Name))(func(ctx context.Context, _ any) (any, error) {
		n, err := k.ClearAllSavedSessions(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"cleared": n}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeEmpty)
}

// --- list sessions ---

func (k *Keeper) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "seskeep_list_sessions",
		Description: "List cached sessions with key, setup tag, origin count, and usage timestamps.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := kit.Chain(k.observed(tool.Name))(func(ctx context.Context, _ any) (any, error) {
		list, err := k.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []SessionInfo{}
		}
		return list, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeEmpty)
}

// --- invalidate one session ---

type invalidateRequest struct {
	Key string `json:"key"`
}

func (k *Keeper) registerInvalidateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "seskeep_invalidate_session",
		Description: "Remove one cached session by key, forcing its next use to run setup again.",
		InputSchema: inputSchema(map[string]any{
			"key": map[string]any{"type": "string", "description": "Session key as shown by seskeep_list_sessions"},
		}, []string{"key"}),
	}

	endpoint := kit.Chain(k.observed(tool.Name))(func(ctx context.Context, req any) (any, error) {
		r := req.(*invalidateRequest)
		if err := k.InvalidateSession(ctx, r.Key); err != nil {
			return nil, err
		}
		return map[string]any{"invalidated": r.Key}, nil
	})

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r invalidateRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (k *Keeper) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "seskeep_stats",
		Description: "Session cache counters: hits, misses, setups, invalidations, failures, registry sizes.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := kit.Chain(k.observed(tool.Name))(func(ctx context.Context, _ any) (any, error) {
		return k.Stats(ctx)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeEmpty)
}
