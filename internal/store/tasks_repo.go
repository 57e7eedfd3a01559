package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"routinely/internal/core"
)

var ErrTaskNotFound = errors.New("task not found")

func (s *Store) InsertTask(ctx context.Context, task *core.Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tasks (id, name, duration, icon, advancement_mode, confirm_window,
			description, notification_message, spoken_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Name, task.Duration, task.Icon, string(task.AdvancementMode),
		nullableInt(task.ConfirmWindow), nullableString(task.Description),
		nullableString(task.NotificationMessage), nullableString(task.SpokenMessage),
		task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *core.Task) error {
	task.UpdatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, duration = ?, icon = ?, advancement_mode = ?, confirm_window = ?,
			description = ?, notification_message = ?, spoken_message = ?, updated_at = ?
		WHERE id = ?
	`, task.Name, task.Duration, task.Icon, string(task.AdvancementMode),
		nullableInt(task.ConfirmWindow), nullableString(task.Description),
		nullableString(task.NotificationMessage), nullableString(task.SpokenMessage),
		task.UpdatedAt.Format(time.RFC3339Nano), task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task and strips its id from every routine.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTaskNotFound
	}

	routines, err := s.ListRoutines(ctx)
	if err != nil {
		return fmt.Errorf("list routines for task removal: %w", err)
	}
	for _, routine := range routines {
		filtered := routine.TaskIDs[:0]
		removed := false
		for _, tid := range routine.TaskIDs {
			if tid == id {
				removed = true
				continue
			}
			filtered = append(filtered, tid)
		}
		if removed {
			routine.TaskIDs = filtered
			if err := s.UpdateRoutine(ctx, routine); err != nil {
				return fmt.Errorf("remove task from routine %s: %w", routine.ID, err)
			}
		}
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, duration, icon, advancement_mode, confirm_window,
			description, notification_message, spoken_message, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, duration, icon, advancement_mode, confirm_window,
			description, notification_message, spoken_message, created_at, updated_at
		FROM tasks
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.Task, error) {
	var (
		id            string
		name          string
		duration      int
		icon          string
		mode          string
		confirmWindow sql.NullInt64
		description   sql.NullString
		notifMessage  sql.NullString
		spokenMessage sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := scanner.Scan(&id, &name, &duration, &icon, &mode, &confirmWindow,
		&description, &notifMessage, &spokenMessage, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.Task{
		ID:              id,
		Name:            name,
		Duration:        duration,
		Icon:            icon,
		AdvancementMode: core.AdvancementMode(mode),
		CreatedAt:       mustParseTime(createdAt),
		UpdatedAt:       mustParseTime(updatedAt),
	}
	if confirmWindow.Valid {
		val := int(confirmWindow.Int64)
		task.ConfirmWindow = &val
	}
	if description.Valid {
		task.Description = &description.String
	}
	if notifMessage.Valid {
		task.NotificationMessage = &notifMessage.String
	}
	if spokenMessage.Valid {
		task.SpokenMessage = &spokenMessage.String
	}
	return task, nil
}
