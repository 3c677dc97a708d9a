package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrEmptyResponse is returned when the API reply carries no text.
var ErrEmptyResponse = errors.New("no text content in API response")

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// ReviewInput is everything a reviewer persona sees for one submission.
type ReviewInput struct {
	Persona       string
	Focus         string
	Kind          string
	Language      string
	Code          string
	Context       string
	Loop          int
	KnownPatterns []string
}

// Client wraps the Anthropic API for code and plan review.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:       &client,
		model:     anthropic.Model(model),
		maxTokens: 2048,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return string(c.model)
}

// buildReviewPrompt constructs the system and user prompts for a review.
func buildReviewPrompt(in ReviewInput) (system string, user string) {
	var sys strings.Builder
	sys.WriteString("You are ")
	sys.WriteString(in.Persona)
	sys.WriteString(", one of several independent reviewers whose votes are aggregated into a single decision.\n")
	if in.Focus != "" {
		sys.WriteString("Focus on: ")
		sys.WriteString(in.Focus)
		sys.WriteString(".\n")
	}
	sys.WriteString(`
Return ONLY a JSON object with these fields:
- "vote": one of "PASS", "WARN", "FAIL"
- "score": integer from 0 to 100
- "reasoning": one short paragraph explaining the vote
- "issues": array of strings, one concrete problem each (empty if none)
- "suggestions": array of strings; suggestion i should address issue i when possible

Rules:
- PASS means ready as is, WARN means acceptable with changes, FAIL means it must not proceed
- Mention security problems with the word "security" or "injection" so they can be triaged
- Do not invent issues to fill the list
- Return valid JSON only, no markdown fencing or explanation`)
	system = sys.String()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Review this %s", in.Kind)
	if in.Language != "" && in.Language != "unknown" {
		fmt.Fprintf(&sb, " written in %s", in.Language)
	}
	if in.Loop > 1 {
		fmt.Fprintf(&sb, " (refinement loop %d)", in.Loop)
	}
	sb.WriteString(".\n")
	if in.Context != "" {
		sb.WriteString("\nContext:\n")
		sb.WriteString(in.Context)
		sb.WriteString("\n")
	}
	if len(in.KnownPatterns) > 0 {
		sb.WriteString("\nPreviously learned patterns for similar code:\n")
		for _, p := range in.KnownPatterns {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nSubmission:\n```\n")
	sb.WriteString(in.Code)
	sb.WriteString("\n```\n")
	user = sb.String()
	return
}

// Review sends a submission to the model and returns its raw reply with any
// markdown fencing removed.
func (c *Client) Review(ctx context.Context, in ReviewInput) (string, error) {
	systemPrompt, userPrompt := buildReviewPrompt(in)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", ErrEmptyResponse
	}
	return StripFences(text), nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
