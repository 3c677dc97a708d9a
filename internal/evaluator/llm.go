package evaluator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/SamoraDC/Tetrad/internal/llm"
	"github.com/SamoraDC/Tetrad/internal/models"
)

// maxHints caps how many learned patterns are put in a prompt.
const maxHints = 5

// Persona is a reviewer specialization backed by the LLM client.
type Persona struct {
	Name  string
	Role  string
	Focus string
}

// Personas are the built-in reviewers, keyed by name.
var Personas = map[string]Persona{
	"syntax": {
		Name:  "syntax",
		Role:  "a meticulous code reviewer focused on syntax and conventions",
		Focus: "syntax errors, naming, idiomatic style, formatting and readability",
	},
	"architecture": {
		Name:  "architecture",
		Role:  "a senior software architect",
		Focus: "structure, coupling, separation of concerns, security boundaries and performance",
	},
	"logic": {
		Name:  "logic",
		Role:  "a correctness reviewer who reasons step by step",
		Focus: "logic bugs, edge cases, error handling and test coverage",
	},
}

// DefaultPersonas lists the persona names used when none are configured.
var DefaultPersonas = []string{"syntax", "architecture", "logic"}

// Reviewer sends a review prompt to a model and returns its reply text.
type Reviewer interface {
	Review(ctx context.Context, in llm.ReviewInput) (string, error)
}

// LLMEvaluator votes by asking a model to review the submission in the
// voice of one persona.
type LLMEvaluator struct {
	persona    Persona
	client     Reviewer
	configured bool
	logger     *zap.Logger
}

// NewLLM creates an evaluator for persona p. configured reports whether the
// client has credentials; an unconfigured evaluator fails fast.
func NewLLM(p Persona, client Reviewer, configured bool, logger *zap.Logger) *LLMEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMEvaluator{
		persona:    p,
		client:     client,
		configured: configured && client != nil,
		logger:     logger.With(zap.String("evaluator", p.Name)),
	}
}

func (e *LLMEvaluator) Name() string { return e.persona.Name }

func (e *LLMEvaluator) Specialization() string { return e.persona.Focus }

func (e *LLMEvaluator) Available() bool { return e.configured }

// Evaluate asks the model for a vote.
func (e *LLMEvaluator) Evaluate(ctx context.Context, req *models.EvaluationRequest, hints []models.PatternMatch) (*models.ModelVote, error) {
	if !e.configured {
		return nil, fmt.Errorf("%w: %s: no API key configured", ErrUnavailable, e.persona.Name)
	}

	text, err := e.client.Review(ctx, llm.ReviewInput{
		Persona:       e.persona.Role,
		Focus:         e.persona.Focus,
		Kind:          strings.ReplaceAll(string(req.Kind), "_", " "),
		Language:      req.Language,
		Code:          req.Code,
		Context:       req.Context,
		Loop:          req.LoopNumber(),
		KnownPatterns: FormatHints(hints, maxHints),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, e.persona.Name, err)
	}

	vote, err := ParseVote(e.persona.Name, text)
	if err != nil {
		e.logger.Debug("unparseable reply", zap.String("reply", text))
		return nil, err
	}
	return vote, nil
}

// FormatHints renders up to limit pattern matches as one-line prompt hints.
func FormatHints(hints []models.PatternMatch, limit int) []string {
	var out []string
	for _, h := range hints {
		if limit > 0 && len(out) >= limit {
			break
		}
		if h.Pattern == nil {
			continue
		}
		p := h.Pattern
		line := fmt.Sprintf("[%s] %s (%s, confidence %.2f)", p.IssueCategory, p.Description, p.Type, p.Confidence)
		if p.Solution != "" {
			line += "; fix: " + p.Solution
		}
		out = append(out, line)
	}
	return out
}
