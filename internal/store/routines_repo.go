package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"routinely/internal/core"
)

var ErrRoutineNotFound = errors.New("routine not found")

func (s *Store) InsertRoutine(ctx context.Context, routine *core.Routine) error {
	now := time.Now().UTC()
	routine.CreatedAt = now
	routine.UpdatedAt = now
	taskIDs, tags, days, notif, err := marshalRoutineFields(routine)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO routines (id, name, icon, task_ids, tags, schedule_time, schedule_days,
			notification_settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, routine.ID, routine.Name, routine.Icon, taskIDs, tags,
		nullableScheduleTime(routine.ScheduleTime), days, notif,
		routine.CreatedAt.Format(time.RFC3339Nano), routine.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert routine: %w", err)
	}
	return nil
}

func (s *Store) UpdateRoutine(ctx context.Context, routine *core.Routine) error {
	routine.UpdatedAt = time.Now().UTC()
	taskIDs, tags, days, notif, err := marshalRoutineFields(routine)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE routines
		SET name = ?, icon = ?, task_ids = ?, tags = ?, schedule_time = ?, schedule_days = ?,
			notification_settings = ?, updated_at = ?
		WHERE id = ?
	`, routine.Name, routine.Icon, taskIDs, tags,
		nullableScheduleTime(routine.ScheduleTime), days, notif,
		routine.UpdatedAt.Format(time.RFC3339Nano), routine.ID)
	if err != nil {
		return fmt.Errorf("update routine: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update routine rows: %w", err)
	}
	if rows == 0 {
		return ErrRoutineNotFound
	}
	return nil
}

func (s *Store) DeleteRoutine(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete routine: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRoutineNotFound
	}
	return nil
}

func (s *Store) GetRoutine(ctx context.Context, id string) (*core.Routine, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, icon, task_ids, tags, schedule_time, schedule_days,
			notification_settings, created_at, updated_at
		FROM routines WHERE id = ?
	`, id)
	routine, err := scanRoutine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoutineNotFound
		}
		return nil, err
	}
	return routine, nil
}

func (s *Store) ListRoutines(ctx context.Context) ([]*core.Routine, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, icon, task_ids, tags, schedule_time, schedule_days,
			notification_settings, created_at, updated_at
		FROM routines
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query routines: %w", err)
	}
	defer rows.Close()
	var routines []*core.Routine
	for rows.Next() {
		routine, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		routines = append(routines, routine)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return routines, nil
}

// RoutineTasks resolves a routine's task ids in order, dropping dangling ids.
func (s *Store) RoutineTasks(ctx context.Context, routine *core.Routine) ([]*core.Task, error) {
	tasks := make([]*core.Task, 0, len(routine.TaskIDs))
	for _, id := range routine.TaskIDs {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// RoutineDuration sums task durations in seconds, excluding the given ids.
func (s *Store) RoutineDuration(ctx context.Context, routine *core.Routine, excludeIDs []string) (int, error) {
	exclude := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = true
	}
	total := 0
	tasks, err := s.RoutineTasks(ctx, routine)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		if !exclude[task.ID] {
			total += task.Duration
		}
	}
	return total, nil
}

func marshalRoutineFields(routine *core.Routine) (taskIDs, tags, days string, notif any, err error) {
	idsData, err := json.Marshal(routine.TaskIDs)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("marshal task ids: %w", err)
	}
	tagsData, err := json.Marshal(routine.Tags)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("marshal tags: %w", err)
	}
	daysData, err := json.Marshal(routine.ScheduleDays)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("marshal schedule days: %w", err)
	}
	var notifVal any
	if routine.Notification != nil {
		notifData, err := json.Marshal(routine.Notification)
		if err != nil {
			return "", "", "", nil, fmt.Errorf("marshal notification settings: %w", err)
		}
		notifVal = string(notifData)
	}
	return string(idsData), string(tagsData), string(daysData), notifVal, nil
}

func nullableScheduleTime(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func scanRoutine(scanner interface {
	Scan(dest ...any) error
}) (*core.Routine, error) {
	var (
		id           string
		name         string
		icon         string
		taskIDs      string
		tags         string
		scheduleTime sql.NullString
		scheduleDays string
		notif        sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := scanner.Scan(&id, &name, &icon, &taskIDs, &tags, &scheduleTime,
		&scheduleDays, &notif, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan routine: %w", err)
	}
	routine := &core.Routine{
		ID:        id,
		Name:      name,
		Icon:      icon,
		CreatedAt: mustParseTime(createdAt),
		UpdatedAt: mustParseTime(updatedAt),
	}
	if err := json.Unmarshal([]byte(taskIDs), &routine.TaskIDs); err != nil {
		return nil, fmt.Errorf("unmarshal task ids: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &routine.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(scheduleDays), &routine.ScheduleDays); err != nil {
		return nil, fmt.Errorf("unmarshal schedule days: %w", err)
	}
	if scheduleTime.Valid {
		routine.ScheduleTime = scheduleTime.String
	}
	if notif.Valid && notif.String != "" {
		var settings core.NotificationSettings
		if err := json.Unmarshal([]byte(notif.String), &settings); err != nil {
			return nil, fmt.Errorf("unmarshal notification settings: %w", err)
		}
		routine.Notification = &settings
	}
	return routine, nil
}
