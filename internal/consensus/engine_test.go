package consensus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/Tetrad/internal/models"
)

func vote(verdict models.Verdict, score int) *models.ModelVote {
	return &models.ModelVote{Verdict: verdict, Score: score}
}

func aggregate(t *testing.T, rule Rule, minScore int, votes map[string]*models.ModelVote) *models.EvaluationResult {
	t.Helper()
	res, err := NewEngine(DefaultHighConfidenceBand).Aggregate(votes, rule, minScore)
	require.NoError(t, err)
	return res
}

func TestAggregate_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		rule      Rule
		votes     map[string]*models.ModelVote
		decision  models.Decision
		score     int
		consensus bool
	}{
		{
			name: "strong unanimous pass",
			rule: RuleStrong,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 95),
				"gemini": vote(models.VerdictPass, 90),
				"qwen":   vote(models.VerdictPass, 92),
			},
			decision:  models.DecisionPass,
			score:     92,
			consensus: true,
		},
		{
			name: "strong unanimous fail",
			rule: RuleStrong,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictFail, 30),
				"gemini": vote(models.VerdictFail, 25),
				"qwen":   vote(models.VerdictFail, 25),
			},
			decision:  models.DecisionBlock,
			score:     27,
			consensus: true,
		},
		{
			name: "weak split with one evaluator missing",
			rule: RuleWeak,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 90),
				"gemini": vote(models.VerdictWarn, 65),
			},
			decision:  models.DecisionRevise,
			score:     78,
			consensus: false,
		},
		{
			name: "strong two of three with dissent in band",
			rule: RuleStrong,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 90),
				"gemini": vote(models.VerdictPass, 85),
				"qwen":   vote(models.VerdictWarn, 62),
			},
			decision:  models.DecisionPass,
			score:     79,
			consensus: true,
		},
		{
			name: "strong two of three with dissent below band",
			rule: RuleStrong,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 100),
				"gemini": vote(models.VerdictPass, 100),
				"qwen":   vote(models.VerdictWarn, 55),
			},
			decision:  models.DecisionRevise,
			score:     85,
			consensus: false,
		},
		{
			name: "strong majority fail is not unanimous",
			rule: RuleStrong,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictFail, 20),
				"gemini": vote(models.VerdictFail, 30),
				"qwen":   vote(models.VerdictPass, 80),
			},
			decision:  models.DecisionRevise,
			score:     43,
			consensus: false,
		},
		{
			name: "strong unanimous pass below min score",
			rule: RuleStrong,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 60),
				"gemini": vote(models.VerdictPass, 65),
			},
			decision:  models.DecisionRevise,
			score:     63,
			consensus: false,
		},
		{
			name: "golden warn revises",
			rule: RuleGolden,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 95),
				"gemini": vote(models.VerdictWarn, 80),
			},
			decision:  models.DecisionRevise,
			score:     88,
			consensus: false,
		},
		{
			name: "golden any fail blocks",
			rule: RuleGolden,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 95),
				"gemini": vote(models.VerdictPass, 95),
				"qwen":   vote(models.VerdictFail, 40),
			},
			decision:  models.DecisionBlock,
			score:     77,
			consensus: true,
		},
		{
			name: "weak majority pass",
			rule: RuleWeak,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 80),
				"gemini": vote(models.VerdictPass, 75),
				"qwen":   vote(models.VerdictFail, 55),
			},
			decision:  models.DecisionPass,
			score:     70,
			consensus: true,
		},
		{
			name: "weak majority pass with low pass scores",
			rule: RuleWeak,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 60),
				"gemini": vote(models.VerdictPass, 65),
				"qwen":   vote(models.VerdictWarn, 50),
			},
			decision:  models.DecisionRevise,
			score:     58,
			consensus: false,
		},
		{
			name: "weak majority fail",
			rule: RuleWeak,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictFail, 20),
				"gemini": vote(models.VerdictFail, 30),
				"qwen":   vote(models.VerdictPass, 90),
			},
			decision:  models.DecisionBlock,
			score:     47,
			consensus: true,
		},
		{
			name: "weak tie",
			rule: RuleWeak,
			votes: map[string]*models.ModelVote{
				"codex":  vote(models.VerdictPass, 90),
				"gemini": vote(models.VerdictFail, 20),
			},
			decision:  models.DecisionRevise,
			score:     55,
			consensus: false,
		},
		{
			name: "weak single vote is not a majority",
			rule: RuleWeak,
			votes: map[string]*models.ModelVote{
				"codex": vote(models.VerdictPass, 99),
			},
			decision:  models.DecisionRevise,
			score:     99,
			consensus: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := aggregate(t, tt.rule, 70, tt.votes)
			assert.Equal(t, tt.decision, res.Decision)
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.consensus, res.ConsensusAchieved)
			assert.False(t, res.NoQuorum)
			assert.Equal(t, string(tt.rule), res.Rule)
		})
	}
}

func TestAggregate_NoQuorum(t *testing.T) {
	for _, rule := range Rules {
		t.Run(string(rule), func(t *testing.T) {
			for _, votes := range []map[string]*models.ModelVote{nil, {}, {"codex": nil}} {
				res := aggregate(t, rule, 70, votes)
				assert.Equal(t, models.DecisionBlock, res.Decision)
				assert.False(t, res.ConsensusAchieved)
				assert.True(t, res.NoQuorum)
				assert.Empty(t, res.Votes)
				assert.Equal(t, 0, res.Score)
			}
		})
	}

	// A content Block is distinguishable from a no-quorum Block
	res := aggregate(t, RuleGolden, 70, map[string]*models.ModelVote{"codex": vote(models.VerdictFail, 10)})
	assert.Equal(t, models.DecisionBlock, res.Decision)
	assert.False(t, res.NoQuorum)
}

func TestAggregate_UnknownRule(t *testing.T) {
	_, err := NewEngine(10).Aggregate(map[string]*models.ModelVote{"a": vote(models.VerdictPass, 90)}, Rule("majority"), 70)
	assert.ErrorIs(t, err, ErrUnknownRule)
}

// Exhaustive over small vote sets: Golden with all Pass at or above the bar
// passes, and Golden and Strong never pass with a Fail present.
func TestAggregate_Properties(t *testing.T) {
	verdicts := []models.Verdict{models.VerdictPass, models.VerdictWarn, models.VerdictFail}
	scores := []int{0, 55, 69, 70, 85, 100}

	var sets [][]*models.ModelVote
	var build func(prefix []*models.ModelVote, n int)
	build = func(prefix []*models.ModelVote, n int) {
		if len(prefix) > 0 {
			sets = append(sets, prefix)
		}
		if n == 0 {
			return
		}
		for _, v := range verdicts {
			for _, s := range scores {
				next := append(append([]*models.ModelVote{}, prefix...), vote(v, s))
				build(next, n-1)
			}
		}
	}
	build(nil, 3)

	for _, set := range sets {
		votes := make(map[string]*models.ModelVote, len(set))
		allPassAbove := true
		hasFail := false
		for i, v := range set {
			votes[fmt.Sprintf("e%d", i)] = v
			if v.Verdict != models.VerdictPass || v.Score < 70 {
				allPassAbove = false
			}
			if v.Verdict == models.VerdictFail {
				hasFail = true
			}
		}

		golden := aggregate(t, RuleGolden, 70, votes)
		strong := aggregate(t, RuleStrong, 70, votes)
		weak := aggregate(t, RuleWeak, 70, votes)

		if allPassAbove {
			assert.Equal(t, models.DecisionPass, golden.Decision)
			assert.True(t, golden.ConsensusAchieved)
		}
		if hasFail {
			assert.NotEqual(t, models.DecisionPass, golden.Decision)
			assert.NotEqual(t, models.DecisionPass, strong.Decision)
		}
		for _, res := range []*models.EvaluationResult{golden, strong, weak} {
			if res.Decision == models.DecisionPass {
				assert.True(t, res.ConsensusAchieved)
				assert.GreaterOrEqual(t, res.Score, 70)
			}
			if res.Decision == models.DecisionRevise {
				assert.False(t, res.ConsensusAchieved)
			}
		}
	}
}

func TestAggregate_CopiesVotes(t *testing.T) {
	in := &models.ModelVote{Verdict: models.VerdictWarn, Score: 150, Issues: []string{"Missing error check"}}
	res := aggregate(t, RuleStrong, 70, map[string]*models.ModelVote{"codex": in})

	require.Contains(t, res.Votes, "codex")
	got := res.Votes["codex"]
	assert.Equal(t, "codex", got.Evaluator, "evaluator id filled from map key")
	assert.Equal(t, 100, got.Score, "score clamped")
	assert.Equal(t, 150, in.Score, "input untouched")

	got.Issues[0] = "changed"
	assert.Equal(t, "Missing error check", in.Issues[0])
}

func TestScore_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, 0, Score(nil))
	assert.Equal(t, 78, Score([]*models.ModelVote{vote(models.VerdictPass, 90), vote(models.VerdictWarn, 65)}))
	assert.Equal(t, 85, Score([]*models.ModelVote{vote(models.VerdictPass, 80), vote(models.VerdictPass, 90), vote(models.VerdictPass, 85)}))
	assert.Equal(t, 67, Score([]*models.ModelVote{vote(models.VerdictPass, 100), vote(models.VerdictPass, 100), vote(models.VerdictPass, 0)}))
}

func TestConfidence(t *testing.T) {
	high := aggregate(t, RuleStrong, 70, map[string]*models.ModelVote{
		"codex":  vote(models.VerdictPass, 100),
		"gemini": vote(models.VerdictPass, 100),
	})
	assert.InDelta(t, 1.0, Confidence(high, 70), 1e-9)

	low := aggregate(t, RuleStrong, 70, map[string]*models.ModelVote{
		"codex":  vote(models.VerdictFail, 20),
		"gemini": vote(models.VerdictWarn, 40),
	})
	assert.InDelta(t, 0.0, Confidence(low, 70), 1e-9)

	mixed := aggregate(t, RuleGolden, 70, map[string]*models.ModelVote{
		"codex":  vote(models.VerdictPass, 85),
		"gemini": vote(models.VerdictWarn, 85),
	})
	// 0.5*0.4 + 0.5*0.3, no consensus
	assert.InDelta(t, 0.35, Confidence(mixed, 70), 1e-9)

	assert.Zero(t, Confidence(nil, 70))
	assert.InDelta(t, 1.0, Confidence(high, 100), 1e-9)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule(" Strong ")
	require.NoError(t, err)
	assert.Equal(t, RuleStrong, r)

	_, err = ParseRule("unanimous")
	assert.ErrorIs(t, err, ErrUnknownRule)
}
