package store

import (
	"context"
	"errors"

	"github.com/SamoraDC/Tetrad/internal/models"
)

// ErrNotFound is returned when a pattern lookup matches nothing.
var ErrNotFound = errors.New("not found")

// PatternFilter specifies filters for listing patterns.
type PatternFilter struct {
	Type      models.PatternType
	Language  string
	Category  string
	Signature string
	Limit     int
}

// Reader is the read side of the pattern store.
type Reader interface {
	GetPattern(ctx context.Context, signature, category string) (*models.Pattern, error)
	ListPatternsBySignature(ctx context.Context, signature string) ([]*models.Pattern, error)
	ListPatternsByKeyword(ctx context.Context, keyword, language string, limit int) ([]*models.Pattern, error)
	ListPatterns(ctx context.Context, filter PatternFilter) ([]*models.Pattern, error)
	CountPatterns(ctx context.Context) (int, error)

	ListTrajectories(ctx context.Context, limit int) ([]*models.Trajectory, error)
	CountTrajectories(ctx context.Context) (int, error)
	AverageLoopsToConsensus(ctx context.Context) (float64, error)
}

// Writer is handed to Update callbacks. Its writes commit together or not at all.
type Writer interface {
	Reader

	CreatePattern(ctx context.Context, p *models.Pattern) error
	UpdatePattern(ctx context.Context, p *models.Pattern) error
	DeletePattern(ctx context.Context, id string) error
	ReassignTrajectories(ctx context.Context, fromPatternID, toPatternID string) (int64, error)
	CreateTrajectory(ctx context.Context, t *models.Trajectory) error
}

// Store defines the persistence interface for learned patterns and trajectories.
//
// Mutations only happen inside Update, and Update calls are serialized: there
// is exactly one writer at a time. Reads never observe a partially applied
// Update; View gives a consistent snapshot across several reads.
type Store interface {
	Reader

	View(ctx context.Context, fn func(r Reader) error) error
	Update(ctx context.Context, fn func(w Writer) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
