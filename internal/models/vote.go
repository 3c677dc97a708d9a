package models

import "slices"

// Verdict is a single evaluator's judgment.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	return v == VerdictPass || v == VerdictWarn || v == VerdictFail
}

// ModelVote is one evaluator's judgment on a request.
type ModelVote struct {
	Evaluator   string   `json:"evaluator"`
	Verdict     Verdict  `json:"verdict"`
	Score       int      `json:"score"`
	Reasoning   string   `json:"reasoning,omitempty"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Clone returns a deep copy of the vote.
func (v *ModelVote) Clone() *ModelVote {
	if v == nil {
		return nil
	}
	out := *v
	out.Issues = slices.Clone(v.Issues)
	out.Suggestions = slices.Clone(v.Suggestions)
	return &out
}

// Severity ranks a finding. Higher values are more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = []string{"info", "warning", "error", "critical"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return "unknown"
	}
	return severityNames[s]
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name; unknown names decode as info.
func (s *Severity) UnmarshalText(b []byte) error {
	*s = SeverityInfo
	if i := slices.Index(severityNames, string(b)); i >= 0 {
		*s = Severity(i)
	}
	return nil
}

// Finding is an issue merged across evaluators.
type Finding struct {
	Issue             string   `json:"issue"`
	Category          string   `json:"category"`
	Severity          Severity `json:"severity"`
	Count             int      `json:"count"`
	Sources           []string `json:"sources"`
	ConsensusStrength string   `json:"consensus_strength"`
	Suggestion        string   `json:"suggestion,omitempty"`
	WorstVerdict      Verdict  `json:"worst_verdict,omitempty"`
}
