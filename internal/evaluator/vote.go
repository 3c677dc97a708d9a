package evaluator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/SamoraDC/Tetrad/internal/llm"
	"github.com/SamoraDC/Tetrad/internal/models"
)

// rawVote is the reply contract. Both "vote" and "verdict" are accepted
// for the judgment field.
type rawVote struct {
	Vote        string      `json:"vote"`
	Verdict     string      `json:"verdict"`
	Score       json.Number `json:"score"`
	Reasoning   string      `json:"reasoning"`
	Feedback    string      `json:"feedback"`
	Issues      []string    `json:"issues"`
	Suggestions []string    `json:"suggestions"`
}

// ParseVote decodes an evaluator reply into a vote. The reply may be
// wrapped in markdown fences or surrounded by prose; the first balanced
// JSON object is used.
func ParseVote(name, text string) (*models.ModelVote, error) {
	obj, ok := extractObject(llm.StripFences(text))
	if !ok {
		return nil, fmt.Errorf("%w: %s: no JSON object in reply", ErrMalformedOutput, name)
	}

	var raw rawVote
	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedOutput, name, err)
	}

	label := raw.Vote
	if label == "" {
		label = raw.Verdict
	}
	verdict := models.Verdict(strings.ToLower(strings.TrimSpace(label)))
	if !verdict.Valid() {
		return nil, fmt.Errorf("%w: %s: unknown verdict %q", ErrMalformedOutput, name, label)
	}

	if raw.Score == "" {
		return nil, fmt.Errorf("%w: %s: missing score", ErrMalformedOutput, name)
	}
	f, err := raw.Score.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: score: %w", ErrMalformedOutput, name, err)
	}
	if f < 0 || f > 100 {
		return nil, fmt.Errorf("%w: %s: score %v outside 0..100", ErrMalformedOutput, name, f)
	}

	reasoning := raw.Reasoning
	if reasoning == "" {
		reasoning = raw.Feedback
	}

	return &models.ModelVote{
		Evaluator:   name,
		Verdict:     verdict,
		Score:       int(math.Round(f)),
		Reasoning:   strings.TrimSpace(reasoning),
		Issues:      nonBlank(raw.Issues),
		Suggestions: raw.Suggestions,
	}, nil
}

func nonBlank(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractObject returns the first balanced {...} span in text, skipping
// braces inside JSON strings.
func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
