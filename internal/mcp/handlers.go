package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/promptpack/internal/config"
	"github.com/hpungsan/promptpack/internal/errors"
	"github.com/hpungsan/promptpack/internal/pipeline"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	cfg    *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{db: db, cfg: cfg, logger: logger}
}

// Request types for each tool

// GenerateRequest represents the arguments for context_generate.
type GenerateRequest struct {
	Root          string `json:"root"`
	SelectionMode string `json:"selection_mode,omitempty"`
	TokenLimit    *int   `json:"token_limit,omitempty"`
}

// RankRequest represents the arguments for context_rank.
type RankRequest struct {
	Root          string `json:"root"`
	SelectionMode string `json:"selection_mode,omitempty"`
}

// TreeRequest represents the arguments for context_tree.
type TreeRequest struct {
	Root string `json:"root"`
}

// callConfig builds the per-call configuration: the server config plus any
// request overrides, revalidated before use.
func (h *Handlers) callConfig(mode string, tokenLimit *int) (*config.Config, error) {
	cfg := *h.cfg
	if mode != "" {
		cfg.SelectionMode = strings.ToLower(mode)
	}
	if tokenLimit != nil {
		cfg.TokenLimit = *tokenLimit
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HandleGenerate handles the context_generate tool call.
func (h *Handlers) HandleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidConfig(err.Error())), nil
	}
	if input.Root == "" {
		return errorResult(errors.NewInvalidConfig("root is required")), nil
	}

	cfg, err := h.callConfig(input.SelectionMode, input.TokenLimit)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := pipeline.New(cfg, h.db, h.logger).Run(ctx, input.Root)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRank handles the context_rank tool call.
func (h *Handlers) HandleRank(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RankRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidConfig(err.Error())), nil
	}
	if input.Root == "" {
		return errorResult(errors.NewInvalidConfig("root is required")), nil
	}

	cfg, err := h.callConfig(input.SelectionMode, nil)
	if err != nil {
		return errorResult(err), nil
	}

	ranking, strategy, err := pipeline.New(cfg, h.db, h.logger).Rank(ctx, input.Root)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"strategy": strategy,
		"ranking":  ranking,
	})
}

// HandleTree handles the context_tree tool call.
func (h *Handlers) HandleTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TreeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidConfig(err.Error())), nil
	}
	if input.Root == "" {
		return errorResult(errors.NewInvalidConfig("root is required")), nil
	}

	snap, err := pipeline.New(h.cfg, h.db, h.logger).Scan(input.Root)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"root":  snap.Root,
		"files": snap.Files,
		"tree":  snap.TreeString(),
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if packErr, ok := err.(*errors.PackError); ok {
		errorObj := map[string]any{
			"code":    packErr.Code,
			"message": packErr.Message,
		}
		if packErr.Code != errors.ErrInternal && packErr.Details != nil {
			errorObj["details"] = packErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
