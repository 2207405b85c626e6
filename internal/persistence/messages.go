package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/contentmesh/internal/events"
)

// SaveMessages appends messages to a run's log. Messages are append-only.
func (s *SQLiteStore) SaveMessages(ctx context.Context, runID string, msgs []events.Message) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (run_id, message_id, topic, source, target, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		if _, err := stmt.ExecContext(ctx, runID, msg.ID, msg.Topic, msg.Source, msg.Target, unixNano(msg.Timestamp)); err != nil {
			return fmt.Errorf("failed to save message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetHistory returns a run's message log in the order it was saved.
func (s *SQLiteStore) GetHistory(ctx context.Context, runID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, message_id, topic, source, target, timestamp
		FROM messages
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var ts int64
		if err := rows.Scan(&rec.RunID, &rec.MessageID, &rec.Topic, &rec.Source, &rec.Target, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		rec.Timestamp = fromUnixNano(ts)
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}
