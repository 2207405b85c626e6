package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist. Timestamps are
// stored as unix nanoseconds; zero means unset.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		product_name TEXT NOT NULL DEFAULT '',
		expected TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS outputs (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		page TEXT NOT NULL,
		PRIMARY KEY (run_id, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		type TEXT NOT NULL,
		capability TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_run_id ON tasks(run_id);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (task_id, depends_on_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (depends_on_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_run_seq ON messages(run_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
