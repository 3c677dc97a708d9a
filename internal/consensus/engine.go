// Package consensus turns a set of evaluator votes into a single decision.
//
// The engine holds no state beyond its thresholds, so one Engine may be
// shared by any number of goroutines.
package consensus

import (
	"fmt"
	"time"

	"github.com/SamoraDC/Tetrad/internal/models"
)

// DefaultHighConfidenceBand is how far below the minimum score a dissenting
// Warn may sit under RuleStrong.
const DefaultHighConfidenceBand = 10

// Engine aggregates votes under a rule.
type Engine struct {
	HighConfidenceBand int
}

// NewEngine returns an Engine with the given Strong-rule band.
func NewEngine(band int) *Engine {
	if band < 0 {
		band = 0
	}
	return &Engine{HighConfidenceBand: band}
}

// Aggregate folds votes into an EvaluationResult.
//
// votes may hold any subset of the configured evaluators; nil entries count as
// absent. With no votes at all the result is a no-quorum Block. The returned
// result owns copies of the votes. RequestID, Loop and the certificate are left
// for the caller to fill.
func (e *Engine) Aggregate(votes map[string]*models.ModelVote, rule Rule, minScore int) (*models.EvaluationResult, error) {
	if !rule.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, string(rule))
	}

	present := make(map[string]*models.ModelVote, len(votes))
	for name, v := range votes {
		if v == nil {
			continue
		}
		c := v.Clone()
		if c.Evaluator == "" {
			c.Evaluator = name
		}
		c.Score = min(max(c.Score, 0), 100)
		present[name] = c
	}

	result := &models.EvaluationResult{
		Rule:      string(rule),
		Votes:     present,
		Timestamp: time.Now().UTC(),
	}

	if len(present) == 0 {
		result.Decision = models.DecisionBlock
		result.NoQuorum = true
		result.Findings = []models.Finding{}
		result.Feedback = Feedback(result)
		return result, nil
	}

	ordered := orderedVotes(present)
	result.Score = Score(ordered)

	o, err := e.decide(rule, countVotes(ordered), result.Score, minScore)
	if err != nil {
		return nil, err
	}
	result.Decision = o.decision
	result.ConsensusAchieved = o.consensus
	result.Findings = MergeFindings(present)
	result.Feedback = Feedback(result)
	return result, nil
}

// Score is the mean vote score rounded half up, or 0 without votes.
func Score(votes []*models.ModelVote) int {
	if len(votes) == 0 {
		return 0
	}
	sum := 0
	for _, v := range votes {
		sum += v.Score
	}
	return divRound(sum, len(votes))
}

// Confidence rates how trustworthy a result is, in [0, 1]: the Pass share
// weighs 0.4, the score above minScore 0.3 and consensus 0.3.
func Confidence(result *models.EvaluationResult, minScore int) float64 {
	if result == nil || len(result.Votes) == 0 {
		return 0
	}

	pass := 0
	for _, v := range result.Votes {
		if v.Verdict == models.VerdictPass {
			pass++
		}
	}
	c := float64(pass) / float64(len(result.Votes)) * 0.4

	if result.Score >= minScore {
		if minScore >= 100 {
			c += 0.3
		} else {
			c += float64(result.Score-minScore) / float64(100-minScore) * 0.3
		}
	}
	if result.ConsensusAchieved {
		c += 0.3
	}
	return min(c, 1)
}

// orderedVotes returns votes sorted by evaluator id.
func orderedVotes(votes map[string]*models.ModelVote) []*models.ModelVote {
	named := orderedNamedVotes(votes)
	out := make([]*models.ModelVote, len(named))
	for i, nv := range named {
		out[i] = nv.vote
	}
	return out
}
