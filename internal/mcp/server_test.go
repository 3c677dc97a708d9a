package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/Tetrad/internal/consensus"
	"github.com/SamoraDC/Tetrad/internal/evaluator"
	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/reasoning"
	"github.com/SamoraDC/Tetrad/internal/review"
	"github.com/SamoraDC/Tetrad/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fixedVote returns an evaluator that always votes the same way and
// remembers the last request it saw.
func fixedVote(name string, verdict models.Verdict, score int, seen **models.EvaluationRequest) evaluator.Evaluator {
	return evaluator.Func{ID: name, Focus: "testing", Fn: func(_ context.Context, req *models.EvaluationRequest, _ []models.PatternMatch) (*models.ModelVote, error) {
		if seen != nil {
			*seen = req
		}
		return &models.ModelVote{Verdict: verdict, Score: score, Reasoning: name + " reviewed it"}, nil
	}}
}

func testConfig() review.Config {
	return review.Config{
		Rule:             consensus.RuleStrong,
		MinScore:         70,
		MaxLoops:         3,
		EvaluatorTimeout: time.Second,
	}
}

// newTestServer creates a Server over an orchestrator with the given
// evaluators and, when withBank is set, a SQLite-backed ReasoningBank.
func newTestServer(t *testing.T, withBank bool, evals ...evaluator.Evaluator) *Server {
	t.Helper()

	reg, err := evaluator.NewRegistry(evals...)
	require.NoError(t, err)

	var opts []review.Option
	if withBank {
		s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		require.NoError(t, s.Migrate(context.Background()))
		t.Cleanup(func() { s.Close() })
		opts = append(opts, review.WithBank(reasoning.New(s, reasoning.DefaultConfig())))
	}

	orch, err := review.New(testConfig(), reg, opts...)
	require.NoError(t, err)

	srv := NewServer(orch, "test")
	require.NotNil(t, srv)
	return srv
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func TestNewServer(t *testing.T) {
	srv := newTestServer(t, false, fixedVote("codex", models.VerdictPass, 90, nil))
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: review tools
// ---------------------------------------------------------------------------

func TestHandleReview_Pass(t *testing.T) {
	var seen *models.EvaluationRequest
	srv := newTestServer(t, false,
		fixedVote("codex", models.VerdictPass, 95, &seen),
		fixedVote("gemini", models.VerdictPass, 90, nil),
		fixedVote("qwen", models.VerdictPass, 92, nil),
	)

	req := callToolReq("tetrad_final_check", map[string]any{
		"code":       "func add(a, b int) int { return a + b }",
		"language":   "go",
		"context":    "adds two numbers",
		"request_id": "req-42",
		"loop":       float64(2),
	})
	result, err := srv.reviewHandler(models.KindFinalCheck)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError, resultText(t, result))

	var out models.EvaluationResult
	resultJSON(t, result, &out)
	assert.Equal(t, models.DecisionPass, out.Decision)
	assert.Equal(t, 92, out.Score)
	assert.True(t, out.ConsensusAchieved)
	assert.Equal(t, "TETRAD-req-42", out.CertificateID)
	assert.Equal(t, 2, out.Loop)
	assert.Len(t, out.Votes, 3)

	require.NotNil(t, seen)
	assert.Equal(t, models.KindFinalCheck, seen.Kind)
	assert.Equal(t, "go", seen.Language)
	assert.Equal(t, "adds two numbers", seen.Context)
}

func TestHandleReview_Block(t *testing.T) {
	srv := newTestServer(t, false,
		fixedVote("codex", models.VerdictFail, 30, nil),
		fixedVote("gemini", models.VerdictFail, 25, nil),
		fixedVote("qwen", models.VerdictFail, 25, nil),
	)

	result, err := srv.reviewHandler(models.KindCode)(context.Background(), callToolReq("tetrad_review_code", map[string]any{"code": "eval(input())"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out models.EvaluationResult
	resultJSON(t, result, &out)
	assert.Equal(t, models.DecisionBlock, out.Decision)
	assert.Equal(t, 27, out.Score)
	assert.Empty(t, out.CertificateID)
	assert.NotEmpty(t, out.RequestID, "request id is generated")
}

func TestHandleReview_MissingCode(t *testing.T) {
	srv := newTestServer(t, false, fixedVote("codex", models.VerdictPass, 90, nil))

	result, err := srv.reviewHandler(models.KindPlan)(context.Background(), callToolReq("tetrad_review_plan", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "code")
}

func TestHandleReview_InvalidRequest(t *testing.T) {
	srv := newTestServer(t, false, fixedVote("codex", models.VerdictPass, 90, nil))

	result, err := srv.reviewHandler(models.KindTests)(context.Background(), callToolReq("tetrad_review_tests", map[string]any{"code": "   "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "code is empty")
}

func TestHandleReview_NoQuorum(t *testing.T) {
	broken := evaluator.Func{ID: "broken", Fn: func(context.Context, *models.EvaluationRequest, []models.PatternMatch) (*models.ModelVote, error) {
		return nil, errors.New("down")
	}}
	srv := newTestServer(t, false, broken)

	result, err := srv.reviewHandler(models.KindCode)(context.Background(), callToolReq("tetrad_review_code", map[string]any{"code": "x = 1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError, "no quorum is a decision, not an error")

	var out models.EvaluationResult
	resultJSON(t, result, &out)
	assert.Equal(t, models.DecisionBlock, out.Decision)
	assert.True(t, out.NoQuorum)
}

// ---------------------------------------------------------------------------
// Tests: tetrad_status and tetrad_distill
// ---------------------------------------------------------------------------

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t, true, fixedVote("codex", models.VerdictPass, 90, nil))
	ctx := context.Background()

	_, err := srv.reviewHandler(models.KindCode)(ctx, callToolReq("tetrad_review_code", map[string]any{"code": "x = 1"}))
	require.NoError(t, err)

	result, err := srv.handleStatus(ctx, callToolReq("tetrad_status", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var st review.Status
	resultJSON(t, result, &st)
	assert.Equal(t, "strong", st.Rule)
	assert.True(t, st.Quorum)
	assert.True(t, st.ReasoningEnabled)
	assert.Equal(t, 1, st.Trajectories)
	require.Len(t, st.Evaluators, 1)
	assert.Equal(t, "codex", st.Evaluators[0].Name)
}

func TestHandleDistill(t *testing.T) {
	srv := newTestServer(t, true, fixedVote("codex", models.VerdictPass, 90, nil))
	ctx := context.Background()

	_, err := srv.reviewHandler(models.KindCode)(ctx, callToolReq("tetrad_review_code", map[string]any{"code": "x = 1", "language": "python"}))
	require.NoError(t, err)

	result, err := srv.handleDistill(ctx, callToolReq("tetrad_distill", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var k models.DistilledKnowledge
	resultJSON(t, result, &k)
	assert.Equal(t, 1, k.TotalPatterns)
	assert.Equal(t, 1, k.TotalTrajectories)
	require.Len(t, k.TopGoodPatterns, 1)
	assert.Equal(t, models.CleanCategory, k.TopGoodPatterns[0].IssueCategory)
}

func TestHandleDistill_ReasoningDisabled(t *testing.T) {
	srv := newTestServer(t, false, fixedVote("codex", models.VerdictPass, 90, nil))

	result, err := srv.handleDistill(context.Background(), callToolReq("tetrad_distill", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "disabled")
}

// ---------------------------------------------------------------------------
// Tests: integration
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv := newTestServer(t, false, fixedVote("codex", models.VerdictPass, 90, nil))

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	// Call tools/list via HandleMessage to verify registration.
	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	err = json.Unmarshal(respBytes, &rpcResp)
	require.NoError(t, err)

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}

	expectedTools := []string{
		"tetrad_review_plan",
		"tetrad_review_code",
		"tetrad_review_tests",
		"tetrad_final_check",
		"tetrad_status",
		"tetrad_distill",
	}
	for _, name := range expectedTools {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
	assert.Len(t, toolNames, len(expectedTools))
}

func TestMCPIntegration_CallTool(t *testing.T) {
	srv := newTestServer(t, false, fixedVote("codex", models.VerdictWarn, 60, nil))
	mcpSrv := srv.MCPServer()

	reqJSON := []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"tetrad_review_code","arguments":{"code":"x = 1","language":"python"}}}`)
	respMsg := mcpSrv.HandleMessage(context.Background(), reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)
	assert.Contains(t, string(respBytes), `\"decision\":\"revise\"`)
}
