package mcp

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/promptpack/internal/config"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"context_generate": {
		def:     generateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerate },
	},
	"context_rank": {
		def:     rankToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRank },
	},
	"context_tree": {
		def:     treeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTree },
	},
}

// Tool definitions

var generateToolDef = mcp.NewTool("context_generate",
	mcp.WithDescription("Run the full pipeline against a project root: select and rank files, "+
		"load them within the token budget, and write PROJECT_PROMPT.md into the root."),
	mcp.WithString("root", mcp.Required(),
		mcp.Description("Absolute path of the project to analyze")),
	mcp.WithString("selection_mode",
		mcp.Description("Override the configured selection mode: vector, ai, or auto")),
	mcp.WithNumber("token_limit",
		mcp.Description("Override the configured token limit; 0 means unlimited")),
)

var rankToolDef = mcp.NewTool("context_rank",
	mcp.WithDescription("Rank a project's files by relevance without loading contents "+
		"or writing a document. Returns the ranking and the strategy that produced it."),
	mcp.WithString("root", mcp.Required(),
		mcp.Description("Absolute path of the project to analyze")),
	mcp.WithString("selection_mode",
		mcp.Description("Override the configured selection mode: vector, ai, or auto")),
)

var treeToolDef = mcp.NewTool("context_tree",
	mcp.WithDescription("Return the ignore-filtered file tree of a project root."),
	mcp.WithString("root", mcp.Required(),
		mcp.Description("Absolute path of the project to analyze")),
)

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with promptpack tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, logger *slog.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"promptpack",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, logger)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, logger *slog.Logger, version string) error {
	s := NewServer(db, cfg, logger, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
