// Package mcpserver registers MCP tools that trigger and inspect sync
// runs. It adapts the reconcile engine and run history to the MCP SDK's
// tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/qadhya/drivesync/internal/reconcile"
	"github.com/qadhya/drivesync/internal/runlog"
)

// Runner executes one reconciliation run.
type Runner interface {
	Run(ctx context.Context, cfg reconcile.SyncConfig) (*runlog.Summary, error)
}

// RegisterTools adds the sync tools to the given MCP server. defaults is
// the per-run template the tenant id is filled into.
func RegisterTools(server *mcp.Server, runner Runner, history runlog.History, defaults reconcile.SyncConfig) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_run",
		Description: "Mirror a tenant's Google Drive folder tree into document records. Returns the run summary: files scanned, added, updated, needing classification, stale candidates and errors.",
	}, syncRunHandler(runner, defaults))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_history",
		Description: "List a tenant's most recent sync runs, newest first.",
	}, syncHistoryHandler(history))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// SyncRunInput holds parameters for sync_run.
type SyncRunInput struct {
	TenantID     string `json:"tenant_id" jsonschema:"required,tenant to synchronise"`
	RootFolderID string `json:"root_folder_id,omitempty" jsonschema:"remote folder to walk instead of the configured root"`
}

// SyncHistoryInput holds parameters for sync_history.
type SyncHistoryInput struct {
	TenantID string `json:"tenant_id" jsonschema:"required,tenant whose runs to list"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of runs, defaults to 20"`
}

// SyncHistoryResult is the output of sync_history.
type SyncHistoryResult struct {
	TenantID string            `json:"tenant_id"`
	Runs     []*runlog.Summary `json:"runs"`
}

// --- Handlers ---

func syncRunHandler(runner Runner, defaults reconcile.SyncConfig) mcp.ToolHandlerFor[SyncRunInput, *runlog.Summary] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncRunInput) (*mcp.CallToolResult, *runlog.Summary, error) {
		cfg := defaults
		cfg.TenantID = input.TenantID
		if input.RootFolderID != "" {
			cfg.RootFolderID = input.RootFolderID
		}

		summary, err := runner.Run(ctx, cfg)
		if summary == nil {
			return nil, nil, err
		}

		// A failed run is still a result; the summary carries its errors.
		result := textResult(summary)
		if err != nil {
			result.IsError = true
		}
		return result, summary, nil
	}
}

func syncHistoryHandler(history runlog.History) mcp.ToolHandlerFor[SyncHistoryInput, *SyncHistoryResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncHistoryInput) (*mcp.CallToolResult, *SyncHistoryResult, error) {
		if input.TenantID == "" {
			return nil, nil, fmt.Errorf("tenant_id is required")
		}

		runs, err := history.ListSyncRuns(ctx, input.TenantID, input.Limit)
		if err != nil {
			return nil, nil, err
		}

		result := &SyncHistoryResult{TenantID: input.TenantID, Runs: make([]*runlog.Summary, 0, len(runs))}
		for _, run := range runs {
			result.Runs = append(result.Runs, run.Summary(nil))
		}
		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
