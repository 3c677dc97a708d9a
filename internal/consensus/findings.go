package consensus

import (
	"cmp"
	"slices"
	"strings"

	"github.com/SamoraDC/Tetrad/internal/models"
)

// Finding categories.
const (
	CategorySecurity     = "security"
	CategoryPerformance  = "performance"
	CategoryLogic        = "logic"
	CategoryStyle        = "style"
	CategoryArchitecture = "architecture"
	CategoryGeneral      = "general"
)

// Consensus strength labels, by how many evaluators raised a finding.
const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
)

// suggestionPrefixLen is how much of an issue a free-standing suggestion must quote.
const suggestionPrefixLen = 20

type keywordRule[T any] struct {
	value    T
	keywords []string
}

var severityRules = []keywordRule[models.Severity]{
	{models.SeverityCritical, []string{"critical", "security", "vulnerability", "injection"}},
	{models.SeverityError, []string{"error", "bug", "fail", "crash"}},
	{models.SeverityWarning, []string{"warning", "warn", "should", "consider"}},
}

var categoryRules = []keywordRule[string]{
	{CategorySecurity, []string{"security", "injection", "vulnerability", "password", "credential"}},
	{CategoryPerformance, []string{"performance", "slow", "memory", "allocation"}},
	{CategoryLogic, []string{"logic", "bug", "incorrect", "wrong"}},
	{CategoryStyle, []string{"style", "convention", "naming", "format"}},
	{CategoryArchitecture, []string{"architecture", "design", "pattern", "structure"}},
}

func match[T any](rules []keywordRule[T], text string, fallback T) T {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.value
			}
		}
	}
	return fallback
}

// InferSeverity guesses a severity from the wording of an issue.
func InferSeverity(issue string) models.Severity {
	return match(severityRules, issue, models.SeverityInfo)
}

// InferCategory guesses a category from the wording of an issue.
func InferCategory(issue string) string {
	return match(categoryRules, issue, CategoryGeneral)
}

// NormalizeIssue is the dedup key for issue text: lowercased with
// whitespace runs collapsed.
func NormalizeIssue(issue string) string {
	return strings.Join(strings.Fields(strings.ToLower(issue)), " ")
}

// verdictFloor is the least severity an issue reported with v can have.
func verdictFloor(v models.Verdict) models.Severity {
	switch v {
	case models.VerdictFail:
		return models.SeverityError
	case models.VerdictWarn:
		return models.SeverityWarning
	}
	return models.SeverityInfo
}

func verdictRank(v models.Verdict) int {
	switch v {
	case models.VerdictFail:
		return 2
	case models.VerdictWarn:
		return 1
	}
	return 0
}

func strength(count int) string {
	switch {
	case count >= 3:
		return StrengthStrong
	case count == 2:
		return StrengthModerate
	}
	return StrengthWeak
}

// MergeFindings unions every vote's issues, deduplicated by NormalizeIssue.
// Each finding keeps the highest severity any evaluator implied and lists the
// evaluators that raised it. Findings are ordered by severity, then count,
// then issue text.
func MergeFindings(votes map[string]*models.ModelVote) []models.Finding {
	findings := []models.Finding{}
	index := make(map[string]int)

	for _, v := range orderedNamedVotes(votes) {
		for i, issue := range v.vote.Issues {
			key := NormalizeIssue(issue)
			if key == "" {
				continue
			}
			sev := max(InferSeverity(issue), verdictFloor(v.vote.Verdict))

			idx, ok := index[key]
			if !ok {
				idx = len(findings)
				index[key] = idx
				findings = append(findings, models.Finding{
					Issue:        strings.TrimSpace(issue),
					Category:     InferCategory(issue),
					Severity:     sev,
					WorstVerdict: v.vote.Verdict,
				})
			}

			f := &findings[idx]
			if !slices.Contains(f.Sources, v.name) {
				f.Sources = append(f.Sources, v.name)
			}
			f.Severity = max(f.Severity, sev)
			if verdictRank(v.vote.Verdict) > verdictRank(f.WorstVerdict) {
				f.WorstVerdict = v.vote.Verdict
			}
			if f.Suggestion == "" && i < len(v.vote.Suggestions) {
				f.Suggestion = strings.TrimSpace(v.vote.Suggestions[i])
			}
		}
	}

	for i := range findings {
		f := &findings[i]
		f.Count = len(f.Sources)
		f.ConsensusStrength = strength(f.Count)
		if f.Suggestion == "" {
			f.Suggestion = quotingSuggestion(votes, NormalizeIssue(f.Issue))
		}
	}

	slices.SortFunc(findings, func(a, b models.Finding) int {
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(NormalizeIssue(a.Issue), NormalizeIssue(b.Issue))
	})
	return findings
}

// quotingSuggestion finds a suggestion that mentions the start of the issue.
func quotingSuggestion(votes map[string]*models.ModelVote, normalized string) string {
	prefix := normalized
	if r := []rune(prefix); len(r) > suggestionPrefixLen {
		prefix = string(r[:suggestionPrefixLen])
	}
	for _, v := range orderedNamedVotes(votes) {
		for _, s := range v.vote.Suggestions {
			if strings.Contains(NormalizeIssue(s), prefix) {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

type namedVote struct {
	name string
	vote *models.ModelVote
}

func orderedNamedVotes(votes map[string]*models.ModelVote) []namedVote {
	out := make([]namedVote, 0, len(votes))
	for name, v := range votes {
		if v != nil {
			out = append(out, namedVote{name: name, vote: v})
		}
	}
	slices.SortFunc(out, func(a, b namedVote) int { return cmp.Compare(a.name, b.name) })
	return out
}
