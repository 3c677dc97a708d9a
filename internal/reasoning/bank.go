// Package reasoning implements the ReasoningBank: a pattern-learning loop
// over the pattern store.
//
// Each evaluation runs Retrieve before the evaluators are called and Judge
// after the votes are aggregated. Distill is a read-only report and
// Consolidate is periodic maintenance. Every mutation goes through a single
// store.Update transaction, so readers never see half of a Judge or a
// Consolidate.
package reasoning

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/signature"
	"github.com/SamoraDC/Tetrad/internal/store"
)

var (
	// ErrStoreUnavailable wraps any pattern store failure.
	ErrStoreUnavailable = errors.New("pattern store unavailable")
	// ErrInvalidImportData is returned when an import document is malformed.
	ErrInvalidImportData = errors.New("invalid import data")
)

// Relevance given to each kind of match during Retrieve.
const (
	ExactRelevance   = 1.0
	KeywordRelevance = 0.7
)

// Bank is the ReasoningBank. It is safe for concurrent use.
type Bank struct {
	store     store.Store
	cfg       Config
	logger    *zap.Logger
	extractor signature.KeywordExtractor
	now       func() time.Time
}

// Option configures a Bank.
type Option func(*Bank)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithKeywordExtractor replaces the substring keyword table.
func WithKeywordExtractor(e signature.KeywordExtractor) Option {
	return func(b *Bank) {
		if e != nil {
			b.extractor = e
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bank) { b.now = now }
}

// New creates a Bank over s.
func New(s store.Store, cfg Config, opts ...Option) *Bank {
	b := &Bank{
		store:     s,
		cfg:       cfg,
		logger:    zap.NewNop(),
		extractor: signature.NewSubstringExtractor(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the bank's configuration.
func (b *Bank) Config() Config {
	return b.cfg
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// language normalizes a language tag, detecting it from the code when empty.
func language(lang, code string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = signature.DetectLanguage(code)
	}
	return lang
}

// Retrieve returns the patterns most relevant to code, best first, at most
// MaxPatterns of them. Patterns stored under the same signature match with
// ExactRelevance; patterns whose category or description mention one of the
// code's keywords match with KeywordRelevance. Ranking is relevance times
// confidence, ties going to the most recently seen pattern.
func (b *Bank) Retrieve(ctx context.Context, code, lang string) ([]models.PatternMatch, error) {
	normalized := signature.Normalize(code)
	sig := signature.Compute(code)
	lang = language(lang, code)
	keywords := b.extractor.Keywords(normalized)

	best := make(map[string]models.PatternMatch)
	add := func(p *models.Pattern, mt models.MatchType, keyword string, relevance float64) {
		if cur, ok := best[p.ID]; ok && cur.Relevance >= relevance {
			return
		}
		best[p.ID] = models.PatternMatch{Pattern: p, MatchType: mt, Keyword: keyword, Relevance: relevance}
	}

	err := b.store.View(ctx, func(r store.Reader) error {
		exact, err := r.ListPatternsBySignature(ctx, sig)
		if err != nil {
			return err
		}
		for _, p := range exact {
			add(p, models.MatchExact, "", ExactRelevance)
		}

		for _, kw := range keywords {
			matched, err := r.ListPatternsByKeyword(ctx, kw, lang, b.cfg.MaxPatterns)
			if err != nil {
				return err
			}
			for _, p := range matched {
				add(p, models.MatchKeyword, kw, KeywordRelevance)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("retrieve", err)
	}

	matches := make([]models.PatternMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	slices.SortFunc(matches, compareMatches)

	if len(matches) > b.cfg.MaxPatterns {
		matches = matches[:b.cfg.MaxPatterns]
	}

	b.logger.Debug("patterns retrieved",
		zap.String("signature", sig[:12]),
		zap.Strings("keywords", keywords),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

func compareMatches(a, b models.PatternMatch) int {
	if c := cmp.Compare(b.Rank(), a.Rank()); c != 0 {
		return c
	}
	if c := b.Pattern.LastSeen.Compare(a.Pattern.LastSeen); c != 0 {
		return c
	}
	return cmp.Compare(a.Pattern.ID, b.Pattern.ID)
}

// Successful reports whether a result counts as a success for learning:
// consensus reached within SuccessLoopThreshold loops.
func (b *Bank) Successful(result *models.EvaluationResult, loops int) bool {
	return result.ConsensusAchieved && loops <= b.cfg.SuccessLoopThreshold
}

// categoryFinding is the representative finding for one category and the
// number of merged findings that fell into it.
type categoryFinding struct {
	category string
	finding  models.Finding
	worst    models.Verdict
	count    int
}

// groupByCategory keeps one entry per category in first-seen order. Findings
// arrive sorted by severity, so the first one seen is the most severe.
func groupByCategory(findings []models.Finding) []categoryFinding {
	var groups []categoryFinding
	index := make(map[string]int)
	for _, f := range findings {
		cat := strings.TrimSpace(f.Category)
		if cat == "" {
			cat = "general"
		}
		i, ok := index[cat]
		if !ok {
			index[cat] = len(groups)
			groups = append(groups, categoryFinding{category: cat, finding: f, worst: f.WorstVerdict, count: 1})
			continue
		}
		g := &groups[i]
		g.count++
		if f.Severity > g.finding.Severity {
			g.finding = f
		}
		if f.WorstVerdict == models.VerdictFail || (f.WorstVerdict == models.VerdictWarn && g.worst != models.VerdictFail) {
			g.worst = f.WorstVerdict
		}
	}
	return groups
}

// Judge records the outcome of one evaluation. Every merged finding counts
// one observation against the pattern for (signature, finding category); a
// category is written once with the description of its most severe finding.
// A clean success records a GoodPattern, and one Trajectory is appended. All
// of it commits together or not at all.
func (b *Bank) Judge(ctx context.Context, requestID, code, lang string, result *models.EvaluationResult, loops int) (*models.JudgmentSummary, error) {
	if result == nil {
		return nil, errors.New("judge: nil result")
	}

	sig := signature.Compute(code)
	lang = language(lang, code)
	success := b.Successful(result, loops)
	now := b.now().UTC()

	summary := &models.JudgmentSummary{WasSuccessful: success, Signature: sig}

	type upsert struct {
		category     string
		description  string
		solution     string
		newType      models.PatternType
		observations int
	}
	var upserts []upsert
	for _, g := range groupByCategory(result.Findings) {
		typ := models.PatternTypeAmbiguous
		if g.worst == models.VerdictFail || g.worst == models.VerdictWarn {
			typ = models.PatternTypeAnti
		}
		upserts = append(upserts, upsert{
			category:     g.category,
			description:  g.finding.Issue,
			solution:     g.finding.Suggestion,
			newType:      typ,
			observations: g.count,
		})
	}
	if len(upserts) == 0 && success {
		upserts = append(upserts, upsert{
			category:     models.CleanCategory,
			description:  "Passed review without findings",
			newType:      models.PatternTypeGood,
			observations: 1,
		})
	}

	err := b.store.Update(ctx, func(w store.Writer) error {
		var firstID string
		for _, u := range upserts {
			p, err := w.GetPattern(ctx, sig, u.category)
			created := false
			switch {
			case errors.Is(err, store.ErrNotFound):
				created = true
				p = &models.Pattern{
					Type:          u.newType,
					CodeSignature: sig,
					Language:      lang,
					IssueCategory: u.category,
					Description:   u.description,
					Solution:      u.solution,
					CreatedAt:     now,
				}
			case err != nil:
				return err
			}

			if success {
				p.SuccessCount += u.observations
			} else {
				p.FailureCount += u.observations
			}
			p.LastSeen = now
			if p.Solution == "" {
				p.Solution = u.solution
			}
			p.Recalculate()

			if created {
				err = w.CreatePattern(ctx, p)
				summary.PatternsCreated++
			} else {
				err = w.UpdatePattern(ctx, p)
				summary.PatternsUpdated++
			}
			if err != nil {
				return err
			}
			if firstID == "" {
				firstID = p.ID
			}
		}

		t := &models.Trajectory{
			PatternID:        firstID,
			RequestID:        requestID,
			CodeHash:         sig,
			InitialScore:     result.InitialScore(),
			FinalScore:       result.Score,
			LoopsToConsensus: loops,
			WasSuccessful:    success,
			Timestamp:        now,
		}
		if err := w.CreateTrajectory(ctx, t); err != nil {
			return err
		}
		summary.TrajectoryID = t.ID
		return nil
	})
	if err != nil {
		return nil, storeErr("judge", err)
	}

	b.logger.Debug("judgment recorded",
		zap.String("request_id", requestID),
		zap.Bool("success", success),
		zap.Int("created", summary.PatternsCreated),
		zap.Int("updated", summary.PatternsUpdated),
	)
	return summary, nil
}
