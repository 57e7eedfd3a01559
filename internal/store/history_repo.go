package store

import (
	"context"
	"fmt"
	"time"

	"routinely/internal/core"
)

// AddHistory inserts one terminal-session record and prunes the table down to
// MaxHistoryEntries, oldest first.
func (s *Store) AddHistory(ctx context.Context, record *core.SessionHistory) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO history (id, routine_id, routine_name, status, started_at, completed_at,
			total_duration, tasks_completed, tasks_skipped, total_tasks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.RoutineID, record.RoutineName, string(record.Status),
		record.StartedAt.Format(time.RFC3339Nano), record.CompletedAt.Format(time.RFC3339Nano),
		record.TotalDuration, record.TasksCompleted, record.TasksSkipped, record.TotalTasks,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		DELETE FROM history WHERE id NOT IN (
			SELECT id FROM history ORDER BY created_at DESC LIMIT ?
		)
	`, MaxHistoryEntries)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// ListHistory returns the most recent records, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]*core.SessionHistory, error) {
	if limit <= 0 || limit > MaxHistoryEntries {
		limit = MaxHistoryEntries
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, routine_id, routine_name, status, started_at, completed_at,
			total_duration, tasks_completed, tasks_skipped, total_tasks
		FROM history
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var records []*core.SessionHistory
	for rows.Next() {
		var (
			record      core.SessionHistory
			status      string
			startedAt   string
			completedAt string
		)
		if err := rows.Scan(&record.ID, &record.RoutineID, &record.RoutineName, &status,
			&startedAt, &completedAt, &record.TotalDuration, &record.TasksCompleted,
			&record.TasksSkipped, &record.TotalTasks); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		record.Status = core.SessionStatus(status)
		record.StartedAt = mustParseTime(startedAt)
		record.CompletedAt = mustParseTime(completedAt)
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
