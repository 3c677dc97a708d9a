package consensus

import (
	"fmt"
	"strings"

	"github.com/SamoraDC/Tetrad/internal/models"
)

var decisionHeaders = map[models.Decision]string{
	models.DecisionPass:   "## Evaluation Passed",
	models.DecisionRevise: "## Revision Required",
	models.DecisionBlock:  "## Evaluation Blocked",
}

var recommendedActions = map[models.Decision]string{
	models.DecisionPass:   "All evaluators accepted the submission. You can proceed.",
	models.DecisionRevise: "The submission needs changes before it can pass. Address the issues above and resubmit.",
	models.DecisionBlock:  "The submission was blocked by serious problems. Fix every Critical and Error issue before continuing.",
}

func verdictIcon(v models.Verdict) string {
	switch v {
	case models.VerdictPass:
		return "✓"
	case models.VerdictWarn:
		return "⚠"
	}
	return "✗"
}

// Feedback renders a markdown summary of a result for the calling agent.
func Feedback(result *models.EvaluationResult) string {
	var b strings.Builder

	b.WriteString(decisionHeaders[result.Decision])
	b.WriteString("\n\n")

	if result.NoQuorum {
		b.WriteString("No evaluator returned a vote, so the submission cannot be judged. Check evaluator availability and retry.\n")
		return b.String()
	}

	t := countVotes(orderedVotes(result.Votes))
	fmt.Fprintf(&b, "**Votes:** %d PASS | %d WARN | %d FAIL (score %d)\n\n", t.pass, t.warn, t.fail, result.Score)

	b.WriteString("### Evaluator Feedback\n\n")
	for _, nv := range orderedNamedVotes(result.Votes) {
		v := nv.vote
		fmt.Fprintf(&b, "**%s %s** (score: %d)\n", verdictIcon(v.Verdict), nv.name, v.Score)
		if r := strings.TrimSpace(v.Reasoning); r != "" {
			fmt.Fprintf(&b, "> %s\n", r)
		}
		writeList(&b, "Issues", v.Issues)
		writeList(&b, "Suggestions", v.Suggestions)
		b.WriteString("\n")
	}

	b.WriteString("### Recommended Action\n\n")
	b.WriteString(recommendedActions[result.Decision])
	b.WriteString("\n")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
