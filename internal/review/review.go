// Package review runs one evaluation end to end: cache lookup, pattern
// retrieval, evaluator fan-out, consensus and learning.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SamoraDC/Tetrad/internal/cache"
	"github.com/SamoraDC/Tetrad/internal/consensus"
	"github.com/SamoraDC/Tetrad/internal/evaluator"
	"github.com/SamoraDC/Tetrad/internal/metrics"
	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/reasoning"
	"github.com/SamoraDC/Tetrad/internal/signature"
)

// ErrInvalidRequest is returned for requests that cannot be evaluated.
var ErrInvalidRequest = errors.New("invalid evaluation request")

// CertificatePrefix starts every certificate id issued on Pass.
const CertificatePrefix = "TETRAD-"

// Orchestrator coordinates evaluators, the consensus engine, the result
// cache and the ReasoningBank. It is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	engine     *consensus.Engine
	evaluators *evaluator.Registry
	bank       *reasoning.Bank
	cache      *cache.Cache
	metrics    *metrics.Metrics
	logger     *zap.Logger
	newID      func() string
	storeErr   error

	evaluations atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBank enables learning through b.
func WithBank(b *reasoning.Bank) Option {
	return func(o *Orchestrator) { o.bank = b }
}

// WithStoreError records that learning was configured but the pattern store
// could not be opened. Evaluations still run, without learning, and Status
// reports err.
func WithStoreError(err error) Option {
	return func(o *Orchestrator) { o.storeErr = err }
}

// WithCache enables result caching through c.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithMetrics records Prometheus metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator overrides how missing request ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New creates an orchestrator over the given evaluators.
func New(cfg Config, evaluators *evaluator.Registry, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if evaluators == nil {
		return nil, errors.New("evaluator registry is required")
	}
	o := &Orchestrator{
		cfg:        cfg,
		engine:     consensus.NewEngine(cfg.HighConfidenceBand),
		evaluators: evaluators,
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.storeErr != nil && o.bank == nil {
		o.learningError(o.logger, metrics.PhaseStore, o.storeErr)
	}
	return o, nil
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Bank returns the ReasoningBank, or nil when learning is disabled.
func (o *Orchestrator) Bank() *reasoning.Bank { return o.bank }

// Cache returns the result cache, or nil when caching is disabled.
func (o *Orchestrator) Cache() *cache.Cache { return o.cache }

// Engine returns the consensus engine.
func (o *Orchestrator) Engine() *consensus.Engine { return o.engine }

// prepare validates req and returns a normalized copy.
func (o *Orchestrator) prepare(req *models.EvaluationRequest) (*models.EvaluationRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: code is empty", ErrInvalidRequest)
	}
	r := *req
	if r.Kind == "" {
		r.Kind = models.KindCode
	}
	if !r.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	if r.Loop < 0 {
		return nil, fmt.Errorf("%w: loop must not be negative, got %d", ErrInvalidRequest, r.Loop)
	}
	if r.RequestID == "" {
		r.RequestID = o.newID()
	}
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		r.Language = signature.DetectLanguage(r.Code)
	}
	return &r, nil
}

// Evaluate produces a decision for req. A decision is returned even when
// some evaluators fail or learning fails; only an invalid request, an
// unknown rule or cancellation of ctx produce an error.
func (o *Orchestrator) Evaluate(ctx context.Context, req *models.EvaluationRequest) (*models.EvaluationResult, error) {
	start := time.Now()
	r, err := o.prepare(req)
	if err != nil {
		return nil, err
	}
	log := o.logger.With(zap.String("request_id", r.RequestID), zap.String("kind", string(r.Kind)))

	key := signature.CacheKey(r.Code, r.Language, string(r.Kind))
	if o.cache != nil {
		cached, hit := o.cache.Get(key)
		o.metrics.RecordCacheLookup(hit)
		if hit {
			o.finish(cached, r)
			cached.FromCache = true
			log.Debug("cache hit", zap.String("decision", string(cached.Decision)))
			o.metrics.RecordDecision(string(cached.Decision))
			o.metrics.ObserveEvaluate(time.Since(start))
			return cached, nil
		}
	}

	var hints []models.PatternMatch
	if o.bank != nil {
		hints, err = o.bank.Retrieve(ctx, r.Code, r.Language)
		if err != nil {
			o.learningError(log, metrics.PhaseRetrieve, err)
			hints = nil
		}
	}

	votes, err := o.collectVotes(ctx, log, r, hints)
	if err != nil {
		return nil, err
	}

	result, err := o.engine.Aggregate(votes, o.cfg.Rule, o.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("aggregate votes: %w", err)
	}
	result.KnownPatterns = len(hints)
	o.finish(result, r)

	log.Info("evaluation decided",
		zap.String("decision", string(result.Decision)),
		zap.Int("score", result.Score),
		zap.Bool("consensus", result.ConsensusAchieved),
		zap.Int("votes", len(result.Votes)),
	)

	if o.bank != nil {
		o.learn(ctx, log, r, result)
	}

	if o.cache != nil && !result.NoQuorum {
		o.cache.Put(key, result)
	}

	o.metrics.RecordDecision(string(result.Decision))
	o.metrics.ObserveEvaluate(time.Since(start))
	return result, nil
}

// finish stamps the per-request fields onto a result.
func (o *Orchestrator) finish(result *models.EvaluationResult, r *models.EvaluationRequest) {
	result.RequestID = r.RequestID
	result.Loop = r.LoopNumber()
	result.CanRetry = result.Decision == models.DecisionRevise && result.Loop < o.cfg.MaxLoops
	result.CertificateID = ""
	if result.Decision == models.DecisionPass {
		result.CertificateID = CertificatePrefix + r.RequestID
	}
}

// collectVotes calls every evaluator concurrently, each under its own
// timeout. A failed evaluator leaves its vote out. If ctx is cancelled the
// in-flight calls are abandoned and ctx's error is returned.
func (o *Orchestrator) collectVotes(ctx context.Context, log *zap.Logger, r *models.EvaluationRequest, hints []models.PatternMatch) (map[string]*models.ModelVote, error) {
	var (
		mu    sync.Mutex
		votes = make(map[string]*models.ModelVote)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range o.evaluators.All() {
		g.Go(func() error {
			ectx, cancel := context.WithTimeout(gctx, o.cfg.EvaluatorTimeout)
			defer cancel()

			vote, err := e.Evaluate(ectx, r, hints)
			if err == nil && vote == nil {
				err = fmt.Errorf("%w: %s returned no vote", evaluator.ErrMalformedOutput, e.Name())
			}
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("evaluator failed", zap.String("evaluator", e.Name()), zap.Error(err))
					o.metrics.RecordEvaluatorFailure(e.Name())
				}
				return nil
			}

			mu.Lock()
			votes[e.Name()] = vote
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", r.RequestID, err)
	}

	mu.Lock()
	defer mu.Unlock()
	return votes, nil
}

// learn records the outcome and runs periodic consolidation. Failures are
// logged and counted, never returned.
func (o *Orchestrator) learn(ctx context.Context, log *zap.Logger, r *models.EvaluationRequest, result *models.EvaluationResult) {
	summary, err := o.bank.Judge(ctx, r.RequestID, r.Code, r.Language, result, r.LoopNumber())
	if err != nil {
		o.learningError(log, metrics.PhaseJudge, err)
	} else {
		log.Debug("judged",
			zap.Bool("successful", summary.WasSuccessful),
			zap.Int("patterns_created", summary.PatternsCreated),
			zap.Int("patterns_updated", summary.PatternsUpdated),
		)
	}

	n := o.evaluations.Add(1)
	interval := int64(o.bank.Config().ConsolidationInterval)
	if interval > 0 && n%interval == 0 {
		if _, err := o.bank.Consolidate(ctx); err != nil {
			o.learningError(log, metrics.PhaseConsolidate, err)
		}
	}
}

func (o *Orchestrator) learningError(log *zap.Logger, phase string, err error) {
	log.Warn("learning failed", zap.String("phase", phase), zap.Error(err))
	o.metrics.RecordLearningError(phase)
}

// Evaluations returns how many evaluations have been recorded for learning.
func (o *Orchestrator) Evaluations() int64 {
	return o.evaluations.Load()
}
