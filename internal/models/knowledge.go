package models

// JudgmentSummary reports what a Judge call recorded.
type JudgmentSummary struct {
	WasSuccessful   bool   `json:"was_successful" yaml:"was_successful"`
	PatternsUpdated int    `json:"patterns_updated" yaml:"patterns_updated"`
	PatternsCreated int    `json:"patterns_created" yaml:"patterns_created"`
	TrajectoryID    string `json:"trajectory_id" yaml:"trajectory_id"`
	Signature       string `json:"signature" yaml:"signature"`
}

// CategoryStats counts failures recorded against an issue category.
type CategoryStats struct {
	Category string `json:"category" yaml:"category"`
	Patterns int    `json:"patterns" yaml:"patterns"`
	Failures int    `json:"failures" yaml:"failures"`
}

// LanguageStats summarizes learned outcomes for one language.
type LanguageStats struct {
	Language    string  `json:"language" yaml:"language"`
	Patterns    int     `json:"patterns" yaml:"patterns"`
	Successes   int     `json:"successes" yaml:"successes"`
	Failures    int     `json:"failures" yaml:"failures"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}

// DistilledKnowledge is a read-only reporting view over the pattern store.
type DistilledKnowledge struct {
	TopAntiPatterns       []*Pattern      `json:"top_anti_patterns" yaml:"top_anti_patterns"`
	TopGoodPatterns       []*Pattern      `json:"top_good_patterns" yaml:"top_good_patterns"`
	ProblematicCategories []CategoryStats `json:"problematic_categories" yaml:"problematic_categories"`
	LanguageStats         []LanguageStats `json:"language_stats" yaml:"language_stats"`
	AvgLoopsToConsensus   float64         `json:"avg_loops_to_consensus" yaml:"avg_loops_to_consensus"`
	TotalPatterns         int             `json:"total_patterns" yaml:"total_patterns"`
	TotalTrajectories     int             `json:"total_trajectories" yaml:"total_trajectories"`
}

// ConsolidationSummary reports what a Consolidate pass changed.
type ConsolidationSummary struct {
	Merged       int `json:"merged" yaml:"merged"`
	Pruned       int `json:"pruned" yaml:"pruned"`
	Reinforced   int `json:"reinforced" yaml:"reinforced"`
	Recalculated int `json:"recalculated" yaml:"recalculated"`
}

// ImportSummary reports how an import document was applied.
type ImportSummary struct {
	Imported int `json:"imported" yaml:"imported"`
	Merged   int `json:"merged" yaml:"merged"`
}
