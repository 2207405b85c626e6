// Package persistence archives pipeline runs in SQLite: run summaries, the
// pages they produced, their queue tasks and their message log.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/scheduler"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RunRecord is the archived summary of one run.
type RunRecord struct {
	ID          string
	Status      string
	ProductName string
	Expected    []string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// OutputRecord is one archived page, kept as JSON.
type OutputRecord struct {
	RunID string
	Name  string
	Page  json.RawMessage
}

// MessageRecord is one entry of a run's message log.
type MessageRecord struct {
	RunID     string
	MessageID string
	Topic     string
	Source    string
	Target    string
	Timestamp time.Time
}

// Store defines the run archive.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)

	// Pages
	SaveOutput(ctx context.Context, runID, name string, page any) error
	GetOutputs(ctx context.Context, runID string) ([]OutputRecord, error)

	// Queue tasks
	SaveTask(ctx context.Context, runID string, task *scheduler.Task) error
	ListTasks(ctx context.Context, runID string) ([]*scheduler.Task, error)

	// Message log
	SaveMessages(ctx context.Context, runID string, msgs []events.Message) error
	GetHistory(ctx context.Context, runID string) ([]MessageRecord, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite doesn't support _foreign_keys in the connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates a private in-memory store for testing. The shared
// cache lets the pool's connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// PRAGMA foreign_keys is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
