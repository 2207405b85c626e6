package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/contentmesh/internal/scheduler"
)

// SaveTask saves or updates a queue task and its dependencies under a run.
// Dependencies must already be saved.
func (s *SQLiteStore) SaveTask(ctx context.Context, runID string, task *scheduler.Task) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var completedAt int64
	if task.CompletedAt != nil {
		completedAt = unixNano(*task.CompletedAt)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, run_id, type, capability, priority, status, assigned_to, retry_count, max_retries, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assigned_to = excluded.assigned_to,
			retry_count = excluded.retry_count,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, task.ID, runID, task.Type, task.RequiredCapability, int(task.Priority), string(task.Status),
		task.AssignedTo, task.RetryCount, task.MaxRetries, task.Error, unixNano(task.CreatedAt), completedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, task.ID); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}

	for _, depID := range task.Dependencies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, depends_on_id)
			VALUES (?, ?)
		`, task.ID, depID)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListTasks returns a run's tasks in creation order with their dependencies.
func (s *SQLiteStore) ListTasks(ctx context.Context, runID string) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, capability, priority, status, assigned_to, retry_count, max_retries, error, created_at, completed_at
		FROM tasks
		WHERE run_id = ?
		ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []*scheduler.Task
	byID := make(map[string]*scheduler.Task)
	for rows.Next() {
		task := &scheduler.Task{Dependencies: []string{}}
		var priority int
		var status string
		var created, completed int64
		err := rows.Scan(&task.ID, &task.Type, &task.RequiredCapability, &priority, &status,
			&task.AssignedTo, &task.RetryCount, &task.MaxRetries, &task.Error, &created, &completed)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Priority = scheduler.Priority(priority)
		task.Status = scheduler.TaskStatus(status)
		task.CreatedAt = fromUnixNano(created)
		if completed != 0 {
			t := fromUnixNano(completed)
			task.CompletedAt = &t
		}
		tasks = append(tasks, task)
		byID[task.ID] = task
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	// Dependencies are loaded after the task cursor is closed; the pool has
	// one connection
	depRows, err := s.db.QueryContext(ctx, `
		SELECT d.task_id, d.depends_on_id
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.run_id = ?
		ORDER BY d.rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer depRows.Close()

	for depRows.Next() {
		var taskID, depID string
		if err := depRows.Scan(&taskID, &depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if task, ok := byID[taskID]; ok {
			task.Dependencies = append(task.Dependencies, depID)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return tasks, nil
}
