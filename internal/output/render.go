package output

import (
	"fmt"
	"strings"

	"github.com/SamoraDC/Tetrad/internal/models"
)

// Result prints an evaluation result: the decision line, a votes table and
// the merged findings.
func (u *UI) Result(r *models.EvaluationResult, minScore int) error {
	consensus := "no consensus"
	if r.ConsensusAchieved {
		consensus = "consensus"
	}
	fmt.Fprintf(u.Out, "%s  score %s  (%s, %s rule, loop %d)\n",
		DecisionColor(string(r.Decision)), ScoreColor(r.Score, minScore), consensus, r.Rule, r.Loop)
	if r.NoQuorum {
		u.Warning("No evaluator returned a vote")
	}
	if r.FromCache {
		u.VerboseLog("served from cache")
	}
	if r.CertificateID != "" {
		u.Success("Certificate %s", Cyan(r.CertificateID))
	}

	if len(r.Votes) > 0 {
		fmt.Fprintln(u.Out)
		table := u.Table([]string{"EVALUATOR", "VOTE", "SCORE", "REASONING"})
		for _, name := range r.Evaluators() {
			v := r.Votes[name]
			if err := table.Append([]string{name, VerdictColor(string(v.Verdict)), ScoreColor(v.Score, minScore), truncate(v.Reasoning, 60)}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(r.Findings) > 0 {
		fmt.Fprintln(u.Out)
		table := u.Table([]string{"SEVERITY", "CATEGORY", "COUNT", "ISSUE"})
		for _, f := range r.Findings {
			if err := table.Append([]string{SeverityColor(f.Severity.String()), f.Category, fmt.Sprintf("%d", f.Count), truncate(f.Issue, 70)}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if r.CanRetry {
		fmt.Fprintln(u.Out)
		u.Info("Revise and resubmit with --loop %d", r.Loop+1)
	}
	return nil
}

// Patterns prints a pattern table.
func (u *UI) Patterns(patterns []*models.Pattern) error {
	if len(patterns) == 0 {
		u.Info("No patterns learned yet")
		return nil
	}
	table := u.Table([]string{"ID", "TYPE", "LANGUAGE", "CATEGORY", "OK", "FAIL", "CONF", "DESCRIPTION"})
	for _, p := range patterns {
		row := []string{
			shortID(p.ID),
			PatternTypeColor(p.Type),
			p.Language,
			p.IssueCategory,
			fmt.Sprintf("%d", p.SuccessCount),
			fmt.Sprintf("%d", p.FailureCount),
			fmt.Sprintf("%.2f", p.Confidence),
			truncate(p.Description, 50),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// PatternTypeColor returns the pattern type colored by what it predicts.
func PatternTypeColor(t models.PatternType) string {
	switch t {
	case models.PatternTypeGood:
		return green(string(t))
	case models.PatternTypeAnti:
		return red(string(t))
	default:
		return yellow(string(t))
	}
}

// Knowledge prints a distilled knowledge report.
func (u *UI) Knowledge(k *models.DistilledKnowledge) error {
	fmt.Fprintf(u.Out, "Patterns: %d  Trajectories: %d  Avg loops to consensus: %.2f\n",
		k.TotalPatterns, k.TotalTrajectories, k.AvgLoopsToConsensus)

	sections := []struct {
		title    string
		patterns []*models.Pattern
	}{
		{"Top anti-patterns", k.TopAntiPatterns},
		{"Top good patterns", k.TopGoodPatterns},
	}
	for _, s := range sections {
		if len(s.patterns) == 0 {
			continue
		}
		fmt.Fprintf(u.Out, "\n%s\n", Cyan(s.title))
		if err := u.Patterns(s.patterns); err != nil {
			return err
		}
	}

	if len(k.ProblematicCategories) > 0 {
		fmt.Fprintf(u.Out, "\n%s\n", Cyan("Problematic categories"))
		table := u.Table([]string{"CATEGORY", "PATTERNS", "FAILURES"})
		for _, c := range k.ProblematicCategories {
			if err := table.Append([]string{c.Category, fmt.Sprintf("%d", c.Patterns), fmt.Sprintf("%d", c.Failures)}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(k.LanguageStats) > 0 {
		fmt.Fprintf(u.Out, "\n%s\n", Cyan("Languages"))
		table := u.Table([]string{"LANGUAGE", "PATTERNS", "SUCCESSES", "FAILURES", "SUCCESS RATE"})
		for _, l := range k.LanguageStats {
			row := []string{l.Language, fmt.Sprintf("%d", l.Patterns), fmt.Sprintf("%d", l.Successes), fmt.Sprintf("%d", l.Failures), fmt.Sprintf("%.0f%%", l.SuccessRate*100)}
			if err := table.Append(row); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
