package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/adqueue/internal/orchestrator"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the queue tools registered.
func NewServer(wb *orchestrator.Workbench) *mcp.Server {
	svc := NewQueueService(wb)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adqueue",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_draft",
		Description: "Create a change request for the playable ad and submit it for processing. The request is analyzed in the background; poll list_queue until it is ready.",
	}, svc.SubmitDraft)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_queue",
		Description: "List the active change requests with their lifecycle state, and the conflicts between them.",
	}, svc.ListQueue)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_request",
		Description: "Delete an active change request. A step still running for it finishes without effect.",
	}, svc.DeleteRequest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "duplicate_request",
		Description: "Copy an active or built request into a new draft with the same category, level and inputs.",
	}, svc.DuplicateRequest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_qa_status",
		Description: "Label a built request resolved or not_resolved after reviewing the build. Repeating the current label clears it.",
	}, svc.SetQAStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_preflight",
		Description: "Report how many requests are ready, how many are still pending, and any critical conflicts to confirm before building.",
	}, svc.BuildPreflight)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trigger_build",
		Description: "Merge every ready request into a new game configuration and archive the build. Requests the merge could not apply are reported as skipped.",
	}, svc.TriggerBuild)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_builds",
		Description: "List archived builds, newest first, with applied and skipped requests.",
	}, svc.ListBuilds)

	return server
}

// RunStdio runs the MCP server on stdio, blocking until stdin is closed or
// ctx is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// Handler serves the MCP server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}
