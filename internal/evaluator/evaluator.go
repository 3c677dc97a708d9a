// Package evaluator defines the capability the orchestrator fans out to:
// something that looks at a submission and returns one vote.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/SamoraDC/Tetrad/internal/models"
)

var (
	// ErrUnavailable means the evaluator could not produce a vote.
	ErrUnavailable = errors.New("evaluator unavailable")
	// ErrMalformedOutput means the evaluator replied with something that is not a vote.
	ErrMalformedOutput = errors.New("malformed evaluator output")
)

// Evaluator judges a submission. Hints are patterns previously learned for
// similar code; an evaluator may ignore them.
type Evaluator interface {
	Name() string
	Specialization() string
	Evaluate(ctx context.Context, req *models.EvaluationRequest, hints []models.PatternMatch) (*models.ModelVote, error)
}

// Availability is implemented by evaluators that can tell up front whether
// a call would fail.
type Availability interface {
	Available() bool
}

// IsAvailable reports whether e is ready to be called.
func IsAvailable(e Evaluator) bool {
	if a, ok := e.(Availability); ok {
		return a.Available()
	}
	return true
}

// Func adapts a plain function to the Evaluator interface.
type Func struct {
	ID    string
	Focus string
	Fn    func(ctx context.Context, req *models.EvaluationRequest, hints []models.PatternMatch) (*models.ModelVote, error)
}

func (f Func) Name() string           { return f.ID }
func (f Func) Specialization() string { return f.Focus }

func (f Func) Evaluate(ctx context.Context, req *models.EvaluationRequest, hints []models.PatternMatch) (*models.ModelVote, error) {
	if f.Fn == nil {
		return nil, fmt.Errorf("%w: %s has no function", ErrUnavailable, f.ID)
	}
	return f.Fn(ctx, req, hints)
}

// Registry holds the evaluators consulted for each request, in
// registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Evaluator
}

// NewRegistry creates a registry with the given evaluators.
func NewRegistry(evaluators ...Evaluator) (*Registry, error) {
	r := &Registry{byID: make(map[string]Evaluator)}
	for _, e := range evaluators {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an evaluator. Names must be unique and non-empty.
func (r *Registry) Register(e Evaluator) error {
	if e == nil || e.Name() == "" {
		return errors.New("evaluator name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[e.Name()]; ok {
		return fmt.Errorf("evaluator %q already registered", e.Name())
	}
	r.byID[e.Name()] = e
	r.order = append(r.order, e.Name())
	return nil
}

// Get returns the evaluator with the given name.
func (r *Registry) Get(name string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[name]
	return e, ok
}

// Names returns evaluator names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// All returns the evaluators in registration order.
func (r *Registry) All() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Evaluator, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byID[name])
	}
	return out
}

// Len returns the number of registered evaluators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
