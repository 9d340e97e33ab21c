/*
Package tools exposes a user's memory to MCP clients. Every tool takes a
user id and works on that user's pipeline from the shared retrieval hub.
*/
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/theapemachine/recall/pkg/retrieval"
)

// Toolset serves the memory tools from one hub.
type Toolset struct {
	hub *retrieval.Hub
}

func New(hub *retrieval.Hub) *Toolset {
	return &Toolset{hub: hub}
}

/*
NewServer builds an MCP server with every memory tool registered. The caller
decides the transport, e.g. server.ServeStdio.
*/
func NewServer(hub *retrieval.Hub, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"recall",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	New(hub).Register(srv)

	return srv
}

// Register attaches all memory tools to srv.
func (toolset *Toolset) Register(srv *server.MCPServer) {
	for _, tool := range toolset.Tools() {
		srv.AddTool(tool.Tool, tool.Handler)
	}
}

// Tools lists the memory tools with their handlers.
func (toolset *Toolset) Tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: buildIngestTool(), Handler: toolset.handleIngest},
		{Tool: buildRecallTool(), Handler: toolset.handleRecall},
		{Tool: buildRespondTool(), Handler: toolset.handleRespond},
		{Tool: buildActivateTool(), Handler: toolset.handleActivate},
		{Tool: buildRewardTool(), Handler: toolset.handleReward},
		{Tool: buildFeedbackTool(), Handler: toolset.handleFeedback},
		{Tool: buildPrefetchStatsTool(), Handler: toolset.handlePrefetchStats},
		{Tool: buildStatsTool(), Handler: toolset.handleStats},
		{Tool: buildResetTool(), Handler: toolset.handleReset},
	}
}

func (toolset *Toolset) pipeline(ctx context.Context, args map[string]any) (*retrieval.Pipeline, error) {
	user := strings.TrimSpace(stringArg(args, "user_id"))

	if user == "" {
		return nil, fmt.Errorf("user_id parameter is required")
	}

	return toolset.hub.Pipeline(ctx, user)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	buf, err := json.MarshalIndent(v, "", "  ")

	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	return mcp.NewToolResultText(string(buf)), nil
}

func errorResult(tool string, err error) *mcp.CallToolResult {
	log.Error("tool failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool, err))
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)

	if args == nil {
		args = map[string]any{}
	}

	return args
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// floatArg accepts JSON numbers and numeric strings.
func floatArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64

		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			return f
		}
	}

	return fallback
}

// stringsArg accepts a JSON array of strings or a comma separated string.
func stringsArg(args map[string]any, key string) []string {
	var out []string

	switch v := args[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}

	return out
}

// objectArg accepts a JSON object or its encoded string form.
func objectArg(args map[string]any, key string) (map[string]any, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}

		var out map[string]any

		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("invalid %s JSON: %w", key, err)
		}

		return out, nil
	}

	return nil, fmt.Errorf("%s must be an object", key)
}
