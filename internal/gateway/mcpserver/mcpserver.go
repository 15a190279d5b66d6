// Package mcpserver exposes the registered clinical tools over the Model
// Context Protocol (stdio transport). Every invocation flows through the
// orchestrator's confirmation protocol: a tool that needs confirmation
// returns the requires_confirmation envelope as its result, and the caller
// re-invokes with the confirmation_id to execute.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docuease/copilot/internal/orchestrator"
	"github.com/docuease/copilot/internal/tools"
)

// Server bridges the tool registry onto an MCP stdio server.
type Server struct {
	registry *tools.Registry
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
	version  string
}

// NewServer creates an MCP server over the registry and orchestrator.
func NewServer(registry *tools.Registry, orch *orchestrator.Orchestrator, version string, logger *slog.Logger) *Server {
	return &Server{
		registry: registry,
		orch:     orch,
		logger:   logger,
		version:  version,
	}
}

// Serve registers every tool and blocks serving MCP over stdio.
func (s *Server) Serve(ctx context.Context) error {
	srv := server.NewMCPServer("emr-copilot", s.version,
		server.WithToolCapabilities(false),
	)

	all := s.registry.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })

	for _, t := range all {
		schema, err := json.Marshal(mcpInputSchema(t))
		if err != nil {
			return fmt.Errorf("marshaling input schema for %s: %w", t.Name(), err)
		}
		srv.AddTool(
			mcp.NewToolWithRawSchema(t.Name(), mcpDescription(t), schema),
			s.handler(t.Name()),
		)
	}

	s.logger.InfoContext(ctx, "mcp server starting",
		slog.Int("tools", len(all)),
		slog.String("transport", "stdio"),
	)

	return server.ServeStdio(srv)
}

// handler adapts one registered tool into an MCP call handler. The
// orchestrator's response envelope is returned verbatim as JSON text so
// callers see the same three outcome shapes as the HTTP gateway.
func (s *Server) handler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		oreq := &orchestrator.Request{
			Tool: toolName,
			Args: make(map[string]any, len(args)),
		}
		for k, v := range args {
			oreq.Args[k] = v
		}
		// Envelope fields ride in the arguments over MCP; they are lifted
		// out so the orchestrator sees the same request as over HTTP.
		if v, ok := args["patient_id"].(string); ok {
			oreq.PatientID = v
		}
		if v, ok := args["user_id"].(string); ok {
			oreq.UserID = v
			delete(oreq.Args, "user_id")
		}
		if v, ok := args["confirmation_id"].(string); ok {
			oreq.ConfirmationID = v
			delete(oreq.Args, "confirmation_id")
		}
		if v, ok := args["skip_confirmation"].(bool); ok {
			oreq.SkipConfirmation = v
			delete(oreq.Args, "skip_confirmation")
		}

		resp, execErr := s.orch.Execute(ctx, oreq)

		payload, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("marshaling tool response: %w", err)
		}
		if execErr != nil {
			s.logger.WarnContext(ctx, "mcp tool invocation failed",
				slog.String("tool", toolName),
				slog.String("error", execErr.Error()),
			)
			return mcp.NewToolResultError(string(payload)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

// mcpDescription annotates confirmation-gated tools so MCP clients know a
// second call with confirmation_id is expected.
func mcpDescription(t tools.Tool) string {
	desc := t.Description()
	if t.ConfirmationRequired() {
		desc += " Requires user confirmation: the first call returns a pending_operation_id; call again with confirmation_id to execute."
	}
	return desc
}

// mcpInputSchema extends the tool's schema with the envelope fields that
// are carried inside arguments over MCP.
func mcpInputSchema(t tools.Tool) map[string]any {
	schema := t.InputSchema()
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}

	props := map[string]any{}
	if p, ok := out["properties"].(map[string]any); ok {
		for k, v := range p {
			props[k] = v
		}
	}
	if _, ok := props["confirmation_id"]; !ok {
		props["confirmation_id"] = map[string]any{
			"type":        "string",
			"description": "Pending operation ID from a prior requires_confirmation response.",
		}
	}
	if _, ok := props["user_id"]; !ok {
		props["user_id"] = map[string]any{
			"type":        "string",
			"description": "Acting user ID. Defaults to the demo provider.",
		}
	}
	out["properties"] = props
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}
