package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/SamoraDC/Tetrad/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
//
// Writes go through a single-connection pool guarded by a mutex. Reads use a
// separate query_only pool so they proceed while a write transaction is open.
type SQLiteStore struct {
	reader

	db *sql.DB // writer
	ro *sql.DB // readers
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	ro, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	ro.SetMaxOpenConns(4)

	return &SQLiteStore{reader: reader{q: ro}, db: db, ro: ro}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	roErr := s.ro.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return roErr
}

// Update runs fn inside a write transaction. Update calls are serialized.
// If fn returns an error nothing it wrote is kept.
func (s *SQLiteStore) Update(ctx context.Context, fn func(w Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(writer{reader{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// View runs fn against a single read transaction so every read inside it sees
// the same snapshot.
func (s *SQLiteStore) View(ctx context.Context, fn func(r Reader) error) error {
	tx, err := s.ro.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(reader{q: tx})
}

// reader implements Reader over any queryer.
type reader struct {
	q queryer
}

// writer implements Writer. It is only handed out inside Update.
type writer struct {
	reader
}

const patternColumns = `id, pattern_type, code_signature, language, issue_category, description, solution,
	success_count, failure_count, confidence, protected, last_seen, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*models.Pattern, error) {
	p := &models.Pattern{}
	var typ string
	err := row.Scan(&p.ID, &typ, &p.CodeSignature, &p.Language, &p.IssueCategory, &p.Description, &p.Solution,
		&p.SuccessCount, &p.FailureCount, &p.Confidence, &p.Protected, &p.LastSeen, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = models.PatternType(typ)
	return p, nil
}

func (r reader) listPatterns(ctx context.Context, query string, args ...any) ([]*models.Pattern, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []*models.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// --- Patterns ---

func (w writer) CreatePattern(ctx context.Context, p *models.Pattern) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = now
	}

	_, err := w.q.ExecContext(ctx,
		`INSERT INTO patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Type), p.CodeSignature, p.Language, p.IssueCategory, p.Description, p.Solution,
		p.SuccessCount, p.FailureCount, p.Confidence, boolToInt(p.Protected), p.LastSeen.UTC(), p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create pattern: %w", err)
	}
	return nil
}

func (r reader) GetPattern(ctx context.Context, signature, category string) (*models.Pattern, error) {
	p, err := scanPattern(r.q.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE code_signature = ? AND issue_category = ?`,
		signature, category,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pattern %s/%s: %w", signature, category, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern: %w", err)
	}
	return p, nil
}

func (r reader) ListPatternsBySignature(ctx context.Context, signature string) ([]*models.Pattern, error) {
	return r.listPatterns(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE code_signature = ?
		ORDER BY confidence DESC, last_seen DESC, id`, signature)
}

// ListPatternsByKeyword matches keyword against the category and description
// of patterns whose language is lang or "any".
func (r reader) ListPatternsByKeyword(ctx context.Context, keyword, language string, limit int) ([]*models.Pattern, error) {
	if limit <= 0 {
		limit = -1
	}
	like := "%" + likeEscape(strings.ToLower(keyword)) + "%"
	return r.listPatterns(ctx,
		`SELECT `+patternColumns+` FROM patterns
		WHERE (language = ? OR language = 'any')
		AND (LOWER(issue_category) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')
		ORDER BY confidence DESC, last_seen DESC, id
		LIMIT ?`, language, like, like, limit)
}

func (r reader) ListPatterns(ctx context.Context, filter PatternFilter) ([]*models.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE 1=1`
	var args []any

	if filter.Type != "" {
		query += " AND pattern_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Language != "" {
		query += " AND language = ?"
		args = append(args, filter.Language)
	}
	if filter.Category != "" {
		query += " AND issue_category = ?"
		args = append(args, filter.Category)
	}
	if filter.Signature != "" {
		query += " AND code_signature = ?"
		args = append(args, filter.Signature)
	}

	query += " ORDER BY (success_count + failure_count) DESC, last_seen DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return r.listPatterns(ctx, query, args...)
}

func (r reader) CountPatterns(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM patterns").Scan(&n); err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return n, nil
}

func (w writer) UpdatePattern(ctx context.Context, p *models.Pattern) error {
	res, err := w.q.ExecContext(ctx,
		`UPDATE patterns SET pattern_type=?, code_signature=?, language=?, issue_category=?, description=?, solution=?,
		success_count=?, failure_count=?, confidence=?, protected=?, last_seen=?
		WHERE id=?`,
		string(p.Type), p.CodeSignature, p.Language, p.IssueCategory, p.Description, p.Solution,
		p.SuccessCount, p.FailureCount, p.Confidence, boolToInt(p.Protected), p.LastSeen.UTC(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("pattern %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (w writer) DeletePattern(ctx context.Context, id string) error {
	res, err := w.q.ExecContext(ctx, "DELETE FROM patterns WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Trajectories ---

func (w writer) CreateTrajectory(ctx context.Context, t *models.Trajectory) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	var patternID sql.NullString
	if t.PatternID != "" {
		patternID = sql.NullString{String: t.PatternID, Valid: true}
	}

	_, err := w.q.ExecContext(ctx,
		`INSERT INTO trajectories (id, pattern_id, request_id, code_hash, initial_score, final_score, loops_to_consensus, was_successful, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, patternID, t.RequestID, t.CodeHash, t.InitialScore, t.FinalScore, t.LoopsToConsensus,
		boolToInt(t.WasSuccessful), t.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create trajectory: %w", err)
	}
	return nil
}

// ReassignTrajectories points every trajectory of one pattern at another.
func (w writer) ReassignTrajectories(ctx context.Context, fromPatternID, toPatternID string) (int64, error) {
	res, err := w.q.ExecContext(ctx,
		"UPDATE trajectories SET pattern_id = ? WHERE pattern_id = ?", toPatternID, fromPatternID)
	if err != nil {
		return 0, fmt.Errorf("reassign trajectories: %w", err)
	}
	return res.RowsAffected()
}

// ListTrajectories returns the most recent trajectories first.
func (r reader) ListTrajectories(ctx context.Context, limit int) ([]*models.Trajectory, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, pattern_id, request_id, code_hash, initial_score, final_score, loops_to_consensus, was_successful, timestamp
		FROM trajectories ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trajectories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trajectories []*models.Trajectory
	for rows.Next() {
		t := &models.Trajectory{}
		var patternID sql.NullString
		if err := rows.Scan(&t.ID, &patternID, &t.RequestID, &t.CodeHash, &t.InitialScore, &t.FinalScore,
			&t.LoopsToConsensus, &t.WasSuccessful, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trajectory: %w", err)
		}
		t.PatternID = patternID.String
		trajectories = append(trajectories, t)
	}
	return trajectories, rows.Err()
}

func (r reader) CountTrajectories(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM trajectories").Scan(&n); err != nil {
		return 0, fmt.Errorf("count trajectories: %w", err)
	}
	return n, nil
}

func (r reader) AverageLoopsToConsensus(ctx context.Context) (float64, error) {
	var avg float64
	err := r.q.QueryRowContext(ctx,
		"SELECT COALESCE(AVG(loops_to_consensus), 0) FROM trajectories").Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average loops: %w", err)
	}
	return avg, nil
}

// likeEscape escapes LIKE wildcards so keywords match literally.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
