package consensus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SamoraDC/Tetrad/internal/models"
)

// ErrUnknownRule is returned when a consensus rule name is not recognized.
var ErrUnknownRule = errors.New("unknown consensus rule")

// Rule names an agreement policy. Rules are stateless; they only choose thresholds.
type Rule string

const (
	// RuleGolden requires every present vote to Pass.
	RuleGolden Rule = "golden"
	// RuleStrong accepts a two-thirds Pass when dissent stays close to the bar.
	RuleStrong Rule = "strong"
	// RuleWeak accepts a simple majority.
	RuleWeak Rule = "weak"
)

// Rules lists every known rule.
var Rules = []Rule{RuleGolden, RuleStrong, RuleWeak}

// ParseRule resolves a rule name case-insensitively.
func ParseRule(name string) (Rule, error) {
	r := Rule(strings.ToLower(strings.TrimSpace(name)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	return r, nil
}

// Valid reports whether r is a known rule.
func (r Rule) Valid() bool {
	return r == RuleGolden || r == RuleStrong || r == RuleWeak
}

func (r Rule) String() string { return string(r) }

// tally counts verdicts among present votes.
type tally struct {
	n, pass, warn, fail int
	passScoreSum        int
	minWarnScore        int
}

func countVotes(votes []*models.ModelVote) tally {
	t := tally{n: len(votes), minWarnScore: 100}
	for _, v := range votes {
		switch v.Verdict {
		case models.VerdictPass:
			t.pass++
			t.passScoreSum += v.Score
		case models.VerdictWarn:
			t.warn++
			t.minWarnScore = min(t.minWarnScore, v.Score)
		case models.VerdictFail:
			t.fail++
		}
	}
	return t
}

// strictMajority reports whether k of n votes is more than half and at least two votes.
func strictMajority(k, n int) bool {
	return k >= 2 && 2*k > n
}

// outcome is a rule's verdict on a tally.
type outcome struct {
	decision  models.Decision
	consensus bool
}

func revise() outcome { return outcome{decision: models.DecisionRevise} }

func (e *Engine) decide(rule Rule, t tally, score, minScore int) (outcome, error) {
	switch rule {
	case RuleGolden:
		return golden(t, score, minScore), nil
	case RuleStrong:
		return strong(t, score, minScore, e.HighConfidenceBand), nil
	case RuleWeak:
		return weak(t, score, minScore), nil
	}
	return outcome{}, fmt.Errorf("%w: %q", ErrUnknownRule, string(rule))
}

// golden: any Fail blocks by unanimous rejection; any Warn revises.
func golden(t tally, score, minScore int) outcome {
	switch {
	case t.fail > 0:
		return outcome{decision: models.DecisionBlock, consensus: true}
	case t.warn > 0:
		return revise()
	case score >= minScore:
		return outcome{decision: models.DecisionPass, consensus: true}
	}
	return revise()
}

// strong: unanimous Pass, or at least two thirds Pass with every Warn inside the band.
// Only a unanimous Fail blocks.
func strong(t tally, score, minScore, band int) outcome {
	if t.fail == t.n {
		return outcome{decision: models.DecisionBlock, consensus: true}
	}
	if t.fail > 0 || score < minScore {
		return revise()
	}
	if t.pass == t.n {
		return outcome{decision: models.DecisionPass, consensus: true}
	}
	if t.pass >= 2 && 3*t.pass >= 2*t.n && (t.warn == 0 || t.minWarnScore >= minScore-band) {
		return outcome{decision: models.DecisionPass, consensus: true}
	}
	return revise()
}

// weak: a strict majority of at least two decides; ties and splits revise.
// A Pass majority also needs the agreeing votes and the aggregate to clear minScore.
func weak(t tally, score, minScore int) outcome {
	switch {
	case strictMajority(t.fail, t.n):
		return outcome{decision: models.DecisionBlock, consensus: true}
	case strictMajority(t.pass, t.n):
		if score >= minScore && divRound(t.passScoreSum, t.pass) >= minScore {
			return outcome{decision: models.DecisionPass, consensus: true}
		}
	}
	return revise()
}

// divRound divides rounding half up. n must be positive.
func divRound(sum, n int) int {
	return (2*sum + n) / (2 * n)
}
