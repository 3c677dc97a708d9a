package reasoning

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/signature"
	"github.com/SamoraDC/Tetrad/internal/store"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		MaxPatterns:              10,
		ConsolidationInterval:    100,
		SuccessLoopThreshold:     2,
		TopN:                     10,
		PruneMinObservations:     3,
		PruneMaxConfidence:       0.3,
		PruneMinAge:              30 * 24 * time.Hour,
		ReinforceMinObservations: 10,
		ReinforceMinConfidence:   0.7,
		MergeSimilarity:          0.8,
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestBank(t *testing.T, cfg Config) (*Bank, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	return New(s, cfg, WithClock(func() time.Time { return testNow })), s
}

func seedPattern(t *testing.T, s store.Store, p *models.Pattern) *models.Pattern {
	t.Helper()
	if p.Language == "" {
		p.Language = "python"
	}
	if p.Type == "" {
		p.Type = models.PatternTypeAnti
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = testNow
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = testNow
	}
	if p.Confidence == 0 {
		p.Recalculate()
	}
	err := s.Update(context.Background(), func(w store.Writer) error {
		return w.CreatePattern(context.Background(), p)
	})
	require.NoError(t, err)
	return p
}

func evalResult(consensus bool, findings ...models.Finding) *models.EvaluationResult {
	return &models.EvaluationResult{
		Decision:          models.DecisionRevise,
		Score:             60,
		ConsensusAchieved: consensus,
		Votes: map[string]*models.ModelVote{
			"codex":  {Evaluator: "codex", Verdict: models.VerdictWarn, Score: 50},
			"gemini": {Evaluator: "gemini", Verdict: models.VerdictPass, Score: 70},
		},
		Findings: findings,
	}
}

func finding(issue, category string, sev models.Severity, worst models.Verdict) models.Finding {
	return models.Finding{Issue: issue, Category: category, Severity: sev, WorstVerdict: worst, Count: 1}
}

const sqlCode = `rows = db.query("SELECT * FROM users WHERE id=" + uid)`

// --- Judge ---

func TestJudge_CountsEveryFindingPerCategory(t *testing.T) {
	bank, s := newTestBank(t, testConfig())
	ctx := context.Background()

	res := evalResult(false,
		finding("SQL injection in query", "security", models.SeverityCritical, models.VerdictFail),
		finding("Hardcoded password", "security", models.SeverityWarning, models.VerdictWarn),
		finding("Off by one", "logic", models.SeverityInfo, models.VerdictPass),
	)

	sum, err := bank.Judge(ctx, "req-1", sqlCode, "Python", res, 1)
	require.NoError(t, err)
	assert.False(t, sum.WasSuccessful)
	assert.Equal(t, 2, sum.PatternsCreated)
	assert.Equal(t, 0, sum.PatternsUpdated)
	assert.NotEmpty(t, sum.TrajectoryID)
	assert.Equal(t, signature.Compute(sqlCode), sum.Signature)

	sec, err := s.GetPattern(ctx, sum.Signature, "security")
	require.NoError(t, err)
	assert.Equal(t, "SQL injection in query", sec.Description)
	assert.Equal(t, models.PatternTypeAnti, sec.Type)
	assert.Equal(t, "python", sec.Language)
	assert.Equal(t, 2, sec.FailureCount, "two security findings are two observations")
	assert.Equal(t, 0.0, sec.Confidence)

	logic, err := s.GetPattern(ctx, sum.Signature, "logic")
	require.NoError(t, err)
	assert.Equal(t, models.PatternTypeAmbiguous, logic.Type, "pass-only findings are not anti-patterns")
	assert.Equal(t, 1, logic.FailureCount)

	n, err := s.CountTrajectories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second judgment updates instead of creating
	sum, err = bank.Judge(ctx, "req-2", sqlCode, "python", res, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.PatternsCreated)
	assert.Equal(t, 2, sum.PatternsUpdated)

	sec, err = s.GetPattern(ctx, sum.Signature, "security")
	require.NoError(t, err)
	assert.Equal(t, 4, sec.FailureCount)
	assert.Equal(t, "SQL injection in query", sec.Description)
}

func TestJudge_ConfidenceAfterFailure(t *testing.T) {
	bank, s := newTestBank(t, testConfig())
	ctx := context.Background()

	sig := signature.Compute(sqlCode)
	seedPattern(t, s, &models.Pattern{CodeSignature: sig, IssueCategory: "security", Description: "SQL injection", SuccessCount: 3, FailureCount: 1})

	p, err := s.GetPattern(ctx, sig, "security")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, p.Confidence, 1e-9)

	_, err = bank.Judge(ctx, "req", sqlCode, "python", evalResult(false, finding("SQL injection", "security", models.SeverityCritical, models.VerdictFail)), 1)
	require.NoError(t, err)

	p, err = s.GetPattern(ctx, sig, "security")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.Confidence, 1e-9)
	assert.True(t, testNow.Equal(p.LastSeen))
}

func TestJudge_SuccessThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		consensus bool
		loops     int
		want      bool
	}{
		{"quick consensus", 2, true, 1, true},
		{"consensus at threshold", 2, true, 2, true},
		{"dragged out", 2, true, 3, false},
		{"no consensus", 2, false, 1, false},
		{"configured threshold", 3, true, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.SuccessLoopThreshold = tt.threshold
			bank, _ := newTestBank(t, cfg)

			sum, err := bank.Judge(context.Background(), "req", sqlCode, "python",
				evalResult(tt.consensus, finding("x", "style", models.SeverityInfo, models.VerdictWarn)), tt.loops)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sum.WasSuccessful)
		})
	}
}

func TestJudge_CleanSuccess(t *testing.T) {
	bank, s := newTestBank(t, testConfig())
	ctx := context.Background()

	sum, err := bank.Judge(ctx, "req", sqlCode, "python", evalResult(true), 1)
	require.NoError(t, err)
	assert.True(t, sum.WasSuccessful)
	assert.Equal(t, 1, sum.PatternsCreated)

	p, err := s.GetPattern(ctx, sum.Signature, models.CleanCategory)
	require.NoError(t, err)
	assert.Equal(t, models.PatternTypeGood, p.Type)
	assert.Equal(t, 1, p.SuccessCount)
	assert.Equal(t, 1.0, p.Confidence)

	traj, err := s.ListTrajectories(ctx, 1)
	require.NoError(t, err)
	require.Len(t, traj, 1)
	assert.Equal(t, p.ID, traj[0].PatternID)
	assert.True(t, traj[0].WasSuccessful)
	assert.Equal(t, 50, traj[0].InitialScore)
	assert.Equal(t, 60, traj[0].FinalScore)
	assert.Equal(t, 1, traj[0].LoopsToConsensus)
	assert.Equal(t, "req", traj[0].RequestID)
}

func TestJudge_FailureWithoutFindingsOnlyRecordsTrajectory(t *testing.T) {
	bank, s := newTestBank(t, testConfig())
	ctx := context.Background()

	sum, err := bank.Judge(ctx, "req", sqlCode, "python", evalResult(false), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.PatternsCreated+sum.PatternsUpdated)

	n, err := s.CountPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	traj, err := s.ListTrajectories(ctx, 0)
	require.NoError(t, err)
	require.Len(t, traj, 1)
	assert.Empty(t, traj[0].PatternID)
}

func TestJudge_DetectsLanguage(t *testing.T) {
	bank, s := newTestBank(t, testConfig())
	ctx := context.Background()

	code := "package main\n\nfunc main() {}"
	sum, err := bank.Judge(ctx, "req", code, "", evalResult(true), 1)
	require.NoError(t, err)

	p, err := s.GetPattern(ctx, sum.Signature, models.CleanCategory)
	require.NoError(t, err)
	assert.Equal(t, "go", p.Language)
}

type failingWriter struct {
	store.Writer
}

func (failingWriter) CreateTrajectory(context.Context, *models.Trajectory) error {
	return errors.New("disk full")
}

// trajectoryFailStore lets pattern writes through and fails the trajectory insert.
type trajectoryFailStore struct {
	*store.SQLiteStore
}

func (s trajectoryFailStore) Update(ctx context.Context, fn func(store.Writer) error) error {
	return s.SQLiteStore.Update(ctx, func(w store.Writer) error {
		return fn(failingWriter{w})
	})
}

func TestJudge_AtomicPerCall(t *testing.T) {
	s := newTestStore(t)
	bank := New(trajectoryFailStore{s}, testConfig())
	ctx := context.Background()

	_, err := bank.Judge(ctx, "req", sqlCode, "python",
		evalResult(false, finding("SQL injection", "security", models.SeverityCritical, models.VerdictFail)), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	n, err := s.CountPatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "pattern upserts roll back with the trajectory")
}

func TestJudge_NilResult(t *testing.T) {
	bank, _ := newTestBank(t, testConfig())
	_, err := bank.Judge(context.Background(), "req", sqlCode, "python", nil, 1)
	assert.Error(t, err)
}

// --- Retrieve ---

func TestRetrieve_RanksByRelevanceTimesConfidence(t *testing.T) {
	bank, s := newTestBank(t, testConfig())
	ctx := context.Background()
	sig := signature.Compute(sqlCode)

	exact := seedPattern(t, s, &models.Pattern{CodeSignature: sig, IssueCategory: "security", Description: "sql misuse", SuccessCount: 1, FailureCount: 4})
	strongKw := seedPattern(t, s, &models.Pattern{CodeSignature: "other-1", IssueCategory: "security", Description: "Raw SQL string", SuccessCount: 1})
	newer := seedPattern(t, s, &models.Pattern{CodeSignature: "other-2", IssueCategory: "performance", Description: "SQL in loop", SuccessCount: 1, FailureCount: 1})
	older := seedPattern(t, s, &models.Pattern{CodeSignature: "other-3", IssueCategory: "logic", Description: "sql null handling", SuccessCount: 1, FailureCount: 1, LastSeen: testNow.Add(-time.Hour)})
	seedPattern(t, s, &models.Pattern{CodeSignature: "other-4", IssueCategory: "security", Description: "sql in unsafe block", Language: "rust", SuccessCount: 1})
	seedPattern(t, s, &models.Pattern{CodeSignature: "other-5", IssueCategory: "style", Description: "naming", SuccessCount: 1})

	matches, err := bank.Retrieve(ctx, sqlCode, "python")
	require.NoError(t, err)
	require.Len(t, matches, 4)

	var ids []string
	for _, m := range matches {
		ids = append(ids, m.Pattern.ID)
	}
	assert.Equal(t, []string{strongKw.ID, newer.ID, older.ID, exact.ID}, ids)

	assert.Equal(t, models.MatchKeyword, matches[0].MatchType)
	assert.Equal(t, "sql", matches[0].Keyword)
	assert.Equal(t, KeywordRelevance, matches[0].Relevance)

	// Matched both ways, the exact match wins
	assert.Equal(t, models.MatchExact, matches[3].MatchType)
	assert.Equal(t, ExactRelevance, matches[3].Relevance)
}

func TestRetrieve_TruncatesToMax(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPatterns = 2
	bank, s := newTestBank(t, cfg)

	for _, sig := range []string{"a", "b", "c", "d"} {
		seedPattern(t, s, &models.Pattern{CodeSignature: sig, IssueCategory: "security", Description: "sql " + sig, SuccessCount: 1})
	}

	matches, err := bank.Retrieve(context.Background(), sqlCode, "python")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestRetrieve_Empty(t *testing.T) {
	bank, _ := newTestBank(t, testConfig())
	matches, err := bank.Retrieve(context.Background(), "x = 1", "python")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// --- Store failures ---

// mockStore fails every call.
type mockStore struct {
	err error
}

func (m *mockStore) GetPattern(context.Context, string, string) (*models.Pattern, error) {
	return nil, m.err
}
func (m *mockStore) ListPatternsBySignature(context.Context, string) ([]*models.Pattern, error) {
	return nil, m.err
}
func (m *mockStore) ListPatternsByKeyword(context.Context, string, string, int) ([]*models.Pattern, error) {
	return nil, m.err
}
func (m *mockStore) ListPatterns(context.Context, store.PatternFilter) ([]*models.Pattern, error) {
	return nil, m.err
}
func (m *mockStore) CountPatterns(context.Context) (int, error) { return 0, m.err }
func (m *mockStore) ListTrajectories(context.Context, int) ([]*models.Trajectory, error) {
	return nil, m.err
}
func (m *mockStore) CountTrajectories(context.Context) (int, error)           { return 0, m.err }
func (m *mockStore) AverageLoopsToConsensus(context.Context) (float64, error) { return 0, m.err }
func (m *mockStore) View(context.Context, func(store.Reader) error) error     { return m.err }
func (m *mockStore) Update(context.Context, func(store.Writer) error) error   { return m.err }
func (m *mockStore) Migrate(context.Context) error                            { return m.err }
func (m *mockStore) Close() error                                             { return nil }

func TestStoreFailures_WrapErrStoreUnavailable(t *testing.T) {
	dbErr := errors.New("database is locked")
	bank := New(&mockStore{err: dbErr}, testConfig())
	ctx := context.Background()

	_, err := bank.Retrieve(ctx, sqlCode, "python")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, dbErr)

	_, err = bank.Judge(ctx, "req", sqlCode, "python", evalResult(true), 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = bank.Distill(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = bank.Consolidate(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

// --- Config ---

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.MaxPatterns = 0
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.MergeSimilarity = 1.5
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.SuccessLoopThreshold = 0
	assert.Error(t, cfg.Validate())
}
