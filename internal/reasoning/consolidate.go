package reasoning

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/store"
)

// dominantRatio is the share of one outcome that makes a pattern good or anti.
const dominantRatio = 0.8

// Consolidate merges near-duplicate patterns, prunes unreliable ones,
// protects proven ones, and recomputes confidence and type for the rest.
// The whole pass is one write transaction.
func (b *Bank) Consolidate(ctx context.Context) (*models.ConsolidationSummary, error) {
	summary := &models.ConsolidationSummary{}
	now := b.now().UTC()

	err := b.store.Update(ctx, func(w store.Writer) error {
		*summary = models.ConsolidationSummary{}

		patterns, err := w.ListPatterns(ctx, store.PatternFilter{})
		if err != nil {
			return err
		}

		dirty := make(map[string]*models.Pattern)

		// Merge
		survivors, err := b.merge(ctx, w, patterns, dirty, summary)
		if err != nil {
			return err
		}

		var kept []*models.Pattern
		for _, p := range survivors {
			// Prune
			if b.prunable(p, now) {
				if err := w.DeletePattern(ctx, p.ID); err != nil {
					return err
				}
				delete(dirty, p.ID)
				summary.Pruned++
				continue
			}

			// Reinforce
			if b.reinforceable(p) {
				p.Protected = true
				dirty[p.ID] = p
				summary.Reinforced++
			}

			// Recalculate
			if recalculate(p) {
				dirty[p.ID] = p
				summary.Recalculated++
			}
			kept = append(kept, p)
		}

		for _, p := range kept {
			if _, ok := dirty[p.ID]; !ok {
				continue
			}
			if err := w.UpdatePattern(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("consolidate", err)
	}

	b.logger.Info("patterns consolidated",
		zap.Int("merged", summary.Merged),
		zap.Int("pruned", summary.Pruned),
		zap.Int("reinforced", summary.Reinforced),
		zap.Int("recalculated", summary.Recalculated),
	)
	return summary, nil
}

// merge folds near-duplicates into the most recently seen member of their
// group and returns the patterns that remain. Two patterns are near-duplicates
// when they share category, language and description keywords, and their
// descriptions are at least MergeSimilarity alike. Clean patterns share one
// fixed description, so they never merge.
func (b *Bank) merge(ctx context.Context, w store.Writer, patterns []*models.Pattern, dirty map[string]*models.Pattern, summary *models.ConsolidationSummary) ([]*models.Pattern, error) {
	ordered := slices.Clone(patterns)
	slices.SortFunc(ordered, func(a, b *models.Pattern) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	groups := make(map[string][]*models.Pattern)
	var survivors []*models.Pattern

	for _, p := range ordered {
		if p.IssueCategory == models.CleanCategory {
			survivors = append(survivors, p)
			continue
		}
		key := p.IssueCategory + "\x00" + p.Language + "\x00" + strings.Join(b.extractor.Keywords(strings.ToLower(p.Description)), ",")

		var into *models.Pattern
		for _, s := range groups[key] {
			if Similarity(s.Description, p.Description) >= b.cfg.MergeSimilarity {
				into = s
				break
			}
		}
		if into == nil {
			groups[key] = append(groups[key], p)
			survivors = append(survivors, p)
			continue
		}

		into.SuccessCount += p.SuccessCount
		into.FailureCount += p.FailureCount
		into.Protected = into.Protected || p.Protected
		if into.Solution == "" {
			into.Solution = p.Solution
		}
		into.Recalculate()
		dirty[into.ID] = into

		if _, err := w.ReassignTrajectories(ctx, p.ID, into.ID); err != nil {
			return nil, err
		}
		if err := w.DeletePattern(ctx, p.ID); err != nil {
			return nil, err
		}
		summary.Merged++
	}
	return survivors, nil
}

func (b *Bank) prunable(p *models.Pattern, now time.Time) bool {
	return !p.Protected &&
		p.Observations() < b.cfg.PruneMinObservations &&
		models.ComputeConfidence(p.SuccessCount, p.FailureCount) < b.cfg.PruneMaxConfidence &&
		now.Sub(p.CreatedAt) > b.cfg.PruneMinAge
}

func (b *Bank) reinforceable(p *models.Pattern) bool {
	return !p.Protected &&
		p.Observations() > b.cfg.ReinforceMinObservations &&
		models.ComputeConfidence(p.SuccessCount, p.FailureCount) > b.cfg.ReinforceMinConfidence
}

// Classify derives a pattern's type from its outcome ratio.
func Classify(success, failure int) models.PatternType {
	total := success + failure
	switch {
	case total == 0:
		return models.PatternTypeAmbiguous
	case float64(success)/float64(total) > dominantRatio:
		return models.PatternTypeGood
	case float64(failure)/float64(total) > dominantRatio:
		return models.PatternTypeAnti
	}
	return models.PatternTypeAmbiguous
}

// recalculate refreshes confidence and type from the counts. It reports
// whether anything changed; a second call always reports false.
func recalculate(p *models.Pattern) bool {
	conf := models.ComputeConfidence(p.SuccessCount, p.FailureCount)
	typ := Classify(p.SuccessCount, p.FailureCount)
	if conf == p.Confidence && typ == p.Type {
		return false
	}
	p.Confidence = conf
	p.Type = typ
	return true
}

// Similarity is the Jaccard index of the lowercased word sets of two texts.
// Two empty texts are identical.
func Similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}

	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		set[w] = struct{}{}
	}
	return set
}
