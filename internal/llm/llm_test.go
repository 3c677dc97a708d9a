package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildReviewPrompt(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		system, user := buildReviewPrompt(ReviewInput{
			Persona:       "a security reviewer",
			Focus:         "injection and secrets",
			Kind:          "code",
			Language:      "python",
			Code:          "eval(x)",
			Context:       "login handler",
			Loop:          2,
			KnownPatterns: []string{"[security] SQL injection (confidence 0.10)"},
		})

		assert.Contains(t, system, "You are a security reviewer")
		assert.Contains(t, system, "Focus on: injection and secrets.")
		assert.Contains(t, system, `"vote"`)
		assert.Contains(t, system, `"score"`)
		assert.Contains(t, system, `"issues"`)
		assert.Contains(t, system, `"suggestions"`)

		assert.Contains(t, user, "Review this code written in python (refinement loop 2).")
		assert.Contains(t, user, "Context:\nlogin handler")
		assert.Contains(t, user, "- [security] SQL injection (confidence 0.10)")
		assert.Contains(t, user, "```\neval(x)\n```")
	})

	t.Run("minimal", func(t *testing.T) {
		system, user := buildReviewPrompt(ReviewInput{Persona: "a reviewer", Kind: "plan", Language: "unknown", Code: "step 1"})

		assert.NotContains(t, system, "Focus on")
		assert.True(t, strings.HasPrefix(user, "Review this plan.\n"))
		assert.NotContains(t, user, "Context:")
		assert.NotContains(t, user, "Previously learned")
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"vote":"PASS"}`, `{"vote":"PASS"}`},
		{"json fence", "```json\n{\"vote\":\"PASS\"}\n```", `{"vote":"PASS"}`},
		{"bare fence", "```\n{}\n```\n", "{}"},
		{"surrounding space", "  {}  \n", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	c := NewClient("", "")
	assert.Equal(t, DefaultModel, c.Model())

	c = NewClient("key", "claude-sonnet-4-5")
	assert.Equal(t, "claude-sonnet-4-5", c.Model())
}
