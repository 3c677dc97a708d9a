package models

import (
	"maps"
	"slices"
	"time"
)

// Kind is the type of artifact submitted for evaluation.
type Kind string

const (
	KindPlan       Kind = "plan"
	KindCode       Kind = "code"
	KindTests      Kind = "tests"
	KindFinalCheck Kind = "final_check"
)

// Valid reports whether k is a known evaluation kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPlan, KindCode, KindTests, KindFinalCheck:
		return true
	}
	return false
}

// EvaluationRequest is a single submission from the calling agent.
type EvaluationRequest struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Language  string `json:"language"`
	Kind      Kind   `json:"kind"`
	Context   string `json:"context,omitempty"`
	Loop      int    `json:"loop,omitempty"` // 1-based refinement loop; 0 means first submission
}

// LoopNumber returns the refinement loop this request belongs to, never less than 1.
func (r *EvaluationRequest) LoopNumber() int {
	if r.Loop < 1 {
		return 1
	}
	return r.Loop
}

// Decision is the aggregated outcome handed back to the caller.
type Decision string

const (
	DecisionPass   Decision = "pass"
	DecisionRevise Decision = "revise"
	DecisionBlock  Decision = "block"
)

// EvaluationResult is the outcome of one Evaluate call.
type EvaluationResult struct {
	RequestID         string                `json:"request_id"`
	Decision          Decision              `json:"decision"`
	Score             int                   `json:"score"`
	ConsensusAchieved bool                  `json:"consensus_achieved"`
	NoQuorum          bool                  `json:"no_quorum,omitempty"`
	Rule              string                `json:"rule"`
	Votes             map[string]*ModelVote `json:"votes"`
	Findings          []Finding             `json:"findings"`
	Feedback          string                `json:"feedback,omitempty"`
	CertificateID     string                `json:"certificate_id,omitempty"`
	Loop              int                   `json:"loop,omitempty"`
	CanRetry          bool                  `json:"can_retry,omitempty"`
	FromCache         bool                  `json:"from_cache,omitempty"`
	KnownPatterns     int                   `json:"known_patterns,omitempty"`
	Timestamp         time.Time             `json:"timestamp"`
}

// Clone returns a deep copy so cached snapshots are never mutated by callers.
func (r *EvaluationResult) Clone() *EvaluationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Votes != nil {
		out.Votes = make(map[string]*ModelVote, len(r.Votes))
		for name, v := range r.Votes {
			out.Votes[name] = v.Clone()
		}
	}
	out.Findings = make([]Finding, len(r.Findings))
	for i, f := range r.Findings {
		out.Findings[i] = f
		out.Findings[i].Sources = slices.Clone(f.Sources)
	}
	return &out
}

// InitialScore is the lowest score among the votes, or 0 without votes.
func (r *EvaluationResult) InitialScore() int {
	if len(r.Votes) == 0 {
		return 0
	}
	lowest := 100
	for _, v := range r.Votes {
		lowest = min(lowest, v.Score)
	}
	return lowest
}

// Evaluators returns the ids of the evaluators that voted, sorted.
func (r *EvaluationResult) Evaluators() []string {
	return slices.Sorted(maps.Keys(r.Votes))
}
