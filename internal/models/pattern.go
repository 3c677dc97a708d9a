package models

import "time"

// PatternType classifies what a pattern has historically led to.
type PatternType string

const (
	PatternTypeAnti      PatternType = "anti_pattern"
	PatternTypeGood      PatternType = "good_pattern"
	PatternTypeAmbiguous PatternType = "ambiguous"
)

// Valid reports whether t is a known pattern type.
func (t PatternType) Valid() bool {
	return t == PatternTypeAnti || t == PatternTypeGood || t == PatternTypeAmbiguous
}

// NeutralConfidence is the confidence of a pattern with no observations.
const NeutralConfidence = 0.5

// CleanCategory is the category recorded for successful evaluations without findings.
const CleanCategory = "clean"

// Pattern is a learned association between a code signature/category and outcomes.
// (CodeSignature, IssueCategory) is unique.
type Pattern struct {
	ID            string      `json:"id" yaml:"id"`
	Type          PatternType `json:"pattern_type" yaml:"pattern_type"`
	CodeSignature string      `json:"code_signature" yaml:"code_signature"`
	Language      string      `json:"language" yaml:"language"`
	IssueCategory string      `json:"issue_category" yaml:"issue_category"`
	Description   string      `json:"description" yaml:"description"`
	Solution      string      `json:"solution,omitempty" yaml:"solution,omitempty"`
	SuccessCount  int         `json:"success_count" yaml:"success_count"`
	FailureCount  int         `json:"failure_count" yaml:"failure_count"`
	Confidence    float64     `json:"confidence" yaml:"confidence"`
	Protected     bool        `json:"protected,omitempty" yaml:"protected,omitempty"`
	LastSeen      time.Time   `json:"last_seen" yaml:"last_seen"`
	CreatedAt     time.Time   `json:"created_at" yaml:"created_at"`
}

// Observations is the total number of judgments recorded for the pattern.
func (p *Pattern) Observations() int {
	return p.SuccessCount + p.FailureCount
}

// Recalculate derives Confidence from the success and failure counts.
func (p *Pattern) Recalculate() {
	p.Confidence = ComputeConfidence(p.SuccessCount, p.FailureCount)
}

// ComputeConfidence returns success/(success+failure), or NeutralConfidence
// when there are no observations.
func ComputeConfidence(success, failure int) float64 {
	total := success + failure
	if total <= 0 {
		return NeutralConfidence
	}
	c := float64(success) / float64(total)
	return min(max(c, 0), 1)
}

// Trajectory is the append-only record of a single evaluation outcome.
type Trajectory struct {
	ID               string    `json:"id" yaml:"id"`
	PatternID        string    `json:"pattern_id,omitempty" yaml:"pattern_id,omitempty"`
	RequestID        string    `json:"request_id" yaml:"request_id"`
	CodeHash         string    `json:"code_hash" yaml:"code_hash"`
	InitialScore     int       `json:"initial_score" yaml:"initial_score"`
	FinalScore       int       `json:"final_score" yaml:"final_score"`
	LoopsToConsensus int       `json:"loops_to_consensus" yaml:"loops_to_consensus"`
	WasSuccessful    bool      `json:"was_successful" yaml:"was_successful"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
}

// MatchType says how a pattern was found during retrieval.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchKeyword MatchType = "keyword"
)

// PatternMatch is a retrieved pattern with its relevance.
type PatternMatch struct {
	Pattern   *Pattern  `json:"pattern" yaml:"pattern"`
	MatchType MatchType `json:"match_type" yaml:"match_type"`
	Keyword   string    `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Relevance float64   `json:"relevance" yaml:"relevance"`
}

// Rank is the ordering key used for retrieval: relevance weighted by confidence.
func (m PatternMatch) Rank() float64 {
	return m.Relevance * m.Pattern.Confidence
}
