package evaluator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/SamoraDC/Tetrad/internal/models"
)

type limited struct {
	Evaluator
	limiter *rate.Limiter
}

// RateLimited wraps e so every call first waits on limiter.
func RateLimited(e Evaluator, limiter *rate.Limiter) Evaluator {
	if limiter == nil {
		return e
	}
	return &limited{Evaluator: e, limiter: limiter}
}

func (l *limited) Available() bool { return IsAvailable(l.Evaluator) }

func (l *limited) Evaluate(ctx context.Context, req *models.EvaluationRequest, hints []models.PatternMatch) (*models.ModelVote, error) {
	// Wait for rate limiter
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: rate limiter: %w", ErrUnavailable, l.Name(), err)
	}
	return l.Evaluator.Evaluate(ctx, req, hints)
}
