package reasoning

import (
	"cmp"
	"context"
	"slices"

	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/store"
)

// Distill summarizes what the bank has learned. It never writes.
func (b *Bank) Distill(ctx context.Context) (*models.DistilledKnowledge, error) {
	var k *models.DistilledKnowledge
	err := b.store.View(ctx, func(r store.Reader) error {
		var err error
		k, err = b.distill(ctx, r)
		return err
	})
	if err != nil {
		return nil, storeErr("distill", err)
	}
	return k, nil
}

// distill builds the report from r.
func (b *Bank) distill(ctx context.Context, r store.Reader) (*models.DistilledKnowledge, error) {
	patterns, err := r.ListPatterns(ctx, store.PatternFilter{})
	if err != nil {
		return nil, err
	}

	k := &models.DistilledKnowledge{TotalPatterns: len(patterns)}
	if k.TotalTrajectories, err = r.CountTrajectories(ctx); err != nil {
		return nil, err
	}
	if k.AvgLoopsToConsensus, err = r.AverageLoopsToConsensus(ctx); err != nil {
		return nil, err
	}

	k.TopAntiPatterns = topPatterns(patterns, models.PatternTypeAnti, b.cfg.TopN, func(p *models.Pattern) int { return p.FailureCount })
	k.TopGoodPatterns = topPatterns(patterns, models.PatternTypeGood, b.cfg.TopN, func(p *models.Pattern) int { return p.SuccessCount })
	k.ProblematicCategories = problematicCategories(patterns)
	k.LanguageStats = languageStats(patterns)
	return k, nil
}

func topPatterns(patterns []*models.Pattern, typ models.PatternType, n int, count func(*models.Pattern) int) []*models.Pattern {
	out := []*models.Pattern{}
	for _, p := range patterns {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *models.Pattern) int {
		if c := cmp.Compare(count(b), count(a)); c != 0 {
			return c
		}
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// problematicCategories ranks categories by recorded failures.
func problematicCategories(patterns []*models.Pattern) []models.CategoryStats {
	byCat := make(map[string]*models.CategoryStats)
	for _, p := range patterns {
		if p.FailureCount == 0 {
			continue
		}
		s, ok := byCat[p.IssueCategory]
		if !ok {
			s = &models.CategoryStats{Category: p.IssueCategory}
			byCat[p.IssueCategory] = s
		}
		s.Patterns++
		s.Failures += p.FailureCount
	}

	out := make([]models.CategoryStats, 0, len(byCat))
	for _, s := range byCat {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b models.CategoryStats) int {
		if c := cmp.Compare(b.Failures, a.Failures); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out
}

func languageStats(patterns []*models.Pattern) []models.LanguageStats {
	byLang := make(map[string]*models.LanguageStats)
	for _, p := range patterns {
		s, ok := byLang[p.Language]
		if !ok {
			s = &models.LanguageStats{Language: p.Language}
			byLang[p.Language] = s
		}
		s.Patterns++
		s.Successes += p.SuccessCount
		s.Failures += p.FailureCount
	}

	out := make([]models.LanguageStats, 0, len(byLang))
	for _, s := range byLang {
		if total := s.Successes + s.Failures; total > 0 {
			s.SuccessRate = float64(s.Successes) / float64(total)
		}
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b models.LanguageStats) int {
		if c := cmp.Compare(b.Patterns, a.Patterns); c != 0 {
			return c
		}
		return cmp.Compare(a.Language, b.Language)
	})
	return out
}
