package review

import (
	"context"

	"github.com/SamoraDC/Tetrad/internal/cache"
	"github.com/SamoraDC/Tetrad/internal/evaluator"
)

// EvaluatorStatus describes one registered evaluator.
type EvaluatorStatus struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Available      bool   `json:"available"`
}

// Status is a snapshot of the orchestrator and its dependencies.
type Status struct {
	Rule             string            `json:"rule"`
	MinScore         int               `json:"min_score"`
	MaxLoops         int               `json:"max_loops"`
	Evaluators       []EvaluatorStatus `json:"evaluators"`
	Quorum           bool              `json:"quorum"`
	CacheEnabled     bool              `json:"cache_enabled"`
	Cache            cache.Stats       `json:"cache"`
	ReasoningEnabled bool              `json:"reasoning_enabled"`
	Patterns         int               `json:"patterns"`
	Trajectories     int               `json:"trajectories"`
	AvgLoops         float64           `json:"avg_loops_to_consensus"`
	Evaluations      int64             `json:"evaluations"`
	StoreError       string            `json:"store_error,omitempty"`
}

// Status reports evaluator availability, cache statistics and pattern
// store counts. A store failure is reported in StoreError, not returned.
func (o *Orchestrator) Status(ctx context.Context) *Status {
	st := &Status{
		Rule:             o.cfg.Rule.String(),
		MinScore:         o.cfg.MinScore,
		MaxLoops:         o.cfg.MaxLoops,
		CacheEnabled:     o.cache != nil,
		Cache:            o.cache.Stats(),
		ReasoningEnabled: o.bank != nil,
		Evaluations:      o.evaluations.Load(),
	}
	for _, e := range o.evaluators.All() {
		available := evaluator.IsAvailable(e)
		st.Quorum = st.Quorum || available
		st.Evaluators = append(st.Evaluators, EvaluatorStatus{
			Name:           e.Name(),
			Specialization: e.Specialization(),
			Available:      available,
		})
	}

	if o.bank == nil && o.storeErr != nil {
		st.StoreError = o.storeErr.Error()
	}
	if o.bank != nil {
		k, err := o.bank.Distill(ctx)
		if err != nil {
			st.StoreError = err.Error()
			return st
		}
		st.Patterns = k.TotalPatterns
		st.Trajectories = k.TotalTrajectories
		st.AvgLoops = k.AvgLoopsToConsensus
	}
	return st
}
