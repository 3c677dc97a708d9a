package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/review"
)

// Server exposes the orchestrator as MCP tools.
type Server struct {
	orch    *review.Orchestrator
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(orch *review.Orchestrator, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{orch: orch, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tetrad", s.version, server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.reviewTool("tetrad_review_plan", models.KindPlan,
		"Review an implementation plan before writing code."))
	srv.AddTool(s.reviewTool("tetrad_review_code", models.KindCode,
		"Review code for correctness, security, architecture and style."))
	srv.AddTool(s.reviewTool("tetrad_review_tests", models.KindTests,
		"Review tests for coverage and meaningful assertions."))
	srv.AddTool(s.reviewTool("tetrad_final_check", models.KindFinalCheck,
		"Final review before commit. A PASS decision carries a certificate id."))
	srv.AddTool(s.statusTool())
	srv.AddTool(s.distillTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tetrad_review_plan, tetrad_review_code, tetrad_review_tests, tetrad_final_check
func (s *Server) reviewTool(name string, kind models.Kind, description string) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool(name,
		mcp.WithDescription(description+" Returns JSON with decision (pass, revise, block), score, consensus_achieved, votes, findings and feedback. Resubmit with loop+1 while can_retry is true."),
		mcp.WithString("code", mcp.Required(), mcp.Description("The plan, code or tests to review")),
		mcp.WithString("language", mcp.Description("Programming language (detected when omitted)")),
		mcp.WithString("context", mcp.Description("What the submission is meant to do")),
		mcp.WithString("request_id", mcp.Description("Caller supplied request id (generated when omitted)")),
		mcp.WithNumber("loop", mcp.Description("Refinement loop, starting at 1")),
	)
	return tool, s.reviewHandler(kind)
}

func (s *Server) reviewHandler(kind models.Kind) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: code"), nil
		}

		req := &models.EvaluationRequest{
			RequestID: request.GetString("request_id", ""),
			Code:      code,
			Language:  request.GetString("language", ""),
			Kind:      kind,
			Context:   request.GetString("context", ""),
			Loop:      request.GetInt("loop", 0),
		}

		result, err := s.orch.Evaluate(ctx, req)
		if err != nil {
			if errors.Is(err, review.ErrInvalidRequest) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// tetrad_status
func (s *Server) statusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tetrad_status",
		mcp.WithDescription("Report evaluator availability, the consensus rule, cache statistics and learned pattern counts."),
	)
	return tool, s.handleStatus
}

func (s *Server) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.orch.Status(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// tetrad_distill
func (s *Server) distillTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tetrad_distill",
		mcp.WithDescription("Summarize what has been learned: top anti-patterns and good patterns, problematic categories, per-language stats and average loops to consensus."),
	)
	return tool, s.handleDistill
}

func (s *Server) handleDistill(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bank := s.orch.Bank()
	if bank == nil {
		return mcp.NewToolResultError("reasoning is disabled"), nil
	}
	k, err := bank.Distill(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to distill patterns: %v", err)), nil
	}
	data, err := json.Marshal(k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal knowledge: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
