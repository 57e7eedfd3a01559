package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"routinely/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.DB.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, s.DB.Close())

	// Reopening must not re-apply migrations.
	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	s.DB.Close()
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	window := 45
	desc := "stretch and breathe"
	task := &core.Task{
		ID:              core.NewID(),
		Name:            "Warmup",
		Duration:        300,
		Icon:            "mdi:run",
		AdvancementMode: core.AdvanceConfirm,
		ConfirmWindow:   &window,
		Description:     &desc,
	}
	require.NoError(t, s.InsertTask(ctx, task))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Warmup", got.Name)
	assert.Equal(t, 300, got.Duration)
	assert.Equal(t, core.AdvanceConfirm, got.AdvancementMode)
	require.NotNil(t, got.ConfirmWindow)
	assert.Equal(t, 45, *got.ConfirmWindow)
	require.NotNil(t, got.Description)
	assert.Equal(t, desc, *got.Description)
	assert.Nil(t, got.SpokenMessage)

	got.Name = "Warmup v2"
	got.ConfirmWindow = nil
	require.NoError(t, s.UpdateTask(ctx, got))

	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Warmup v2", got.Name)
	assert.Nil(t, got.ConfirmWindow)

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskNotFoundErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, s.DeleteTask(ctx, "missing"), ErrTaskNotFound)
	assert.ErrorIs(t, s.UpdateTask(ctx, &core.Task{ID: "missing", AdvancementMode: core.AdvanceAuto}), ErrTaskNotFound)
}

func TestDeleteTaskStripsRoutineReferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	taskA := &core.Task{ID: core.NewID(), Name: "A", Duration: 60, AdvancementMode: core.AdvanceAuto}
	taskB := &core.Task{ID: core.NewID(), Name: "B", Duration: 60, AdvancementMode: core.AdvanceAuto}
	require.NoError(t, s.InsertTask(ctx, taskA))
	require.NoError(t, s.InsertTask(ctx, taskB))

	routine := &core.Routine{
		ID:      core.NewID(),
		Name:    "Morning",
		TaskIDs: []string{taskA.ID, taskB.ID},
	}
	require.NoError(t, s.InsertRoutine(ctx, routine))

	require.NoError(t, s.DeleteTask(ctx, taskA.ID))

	got, err := s.GetRoutine(ctx, routine.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{taskB.ID}, got.TaskIDs)
}

func TestRoutineRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	override := core.DefaultNotificationSettings()
	override.NotifyRemaining = []int{120}
	routine := &core.Routine{
		ID:           core.NewID(),
		Name:         "Evening",
		Icon:         "mdi:weather-night",
		TaskIDs:      []string{"t1", "t2"},
		Tags:         []string{"night"},
		ScheduleTime: "21:30",
		ScheduleDays: []string{"mon", "tue"},
		Notification: &override,
	}
	require.NoError(t, s.InsertRoutine(ctx, routine))

	got, err := s.GetRoutine(ctx, routine.ID)
	require.NoError(t, err)
	assert.Equal(t, routine.TaskIDs, got.TaskIDs)
	assert.Equal(t, routine.Tags, got.Tags)
	assert.Equal(t, "21:30", got.ScheduleTime)
	assert.Equal(t, []string{"mon", "tue"}, got.ScheduleDays)
	require.NotNil(t, got.Notification)
	assert.Equal(t, []int{120}, got.Notification.NotifyRemaining)

	got.Notification = nil
	got.ScheduleTime = ""
	require.NoError(t, s.UpdateRoutine(ctx, got))

	got, err = s.GetRoutine(ctx, routine.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Notification)
	assert.Empty(t, got.ScheduleTime)

	require.NoError(t, s.DeleteRoutine(ctx, routine.ID))
	_, err = s.GetRoutine(ctx, routine.ID)
	assert.ErrorIs(t, err, ErrRoutineNotFound)
}

func TestRoutineTasksSkipsDanglingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &core.Task{ID: core.NewID(), Name: "Real", Duration: 90, AdvancementMode: core.AdvanceAuto}
	require.NoError(t, s.InsertTask(ctx, task))

	routine := &core.Routine{
		ID:      core.NewID(),
		Name:    "Mixed",
		TaskIDs: []string{"ghost", task.ID},
	}
	require.NoError(t, s.InsertRoutine(ctx, routine))

	tasks, err := s.RoutineTasks(ctx, routine)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	duration, err := s.RoutineDuration(ctx, routine, nil)
	require.NoError(t, err)
	assert.Equal(t, 90, duration)

	duration, err = s.RoutineDuration(ctx, routine, []string{task.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, duration)
}

func TestSettingsDefaultsAndOverrides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Nothing stored yet: built-in defaults apply.
	settings := s.GlobalNotificationSettings(ctx)
	assert.Equal(t, core.DefaultNotificationSettings(), settings)
	assert.True(t, s.NotificationsEnabled(ctx))
	assert.Equal(t, core.DefaultEndingWarning, s.EndingWarning(ctx))

	require.NoError(t, s.SetSetting(ctx, SettingNotifyRemaining, []int{45}))
	require.NoError(t, s.SetSetting(ctx, SettingEnableNotifications, false))
	require.NoError(t, s.SetSetting(ctx, SettingEndingWarning, 20))

	settings = s.GlobalNotificationSettings(ctx)
	assert.Equal(t, []int{45}, settings.NotifyRemaining)
	assert.False(t, s.NotificationsEnabled(ctx))
	assert.Equal(t, 20, s.EndingWarning(ctx))

	// Overwrites replace, not append.
	require.NoError(t, s.SetSetting(ctx, SettingEndingWarning, 15))
	assert.Equal(t, 15, s.EndingWarning(ctx))

	all, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistoryPruning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < MaxHistoryEntries+10; i++ {
		record := &core.SessionHistory{
			ID:          fmt.Sprintf("session-%03d", i),
			RoutineID:   "r1",
			RoutineName: "Morning",
			Status:      core.SessionCompleted,
			StartedAt:   now.Add(time.Duration(i) * time.Minute),
			CompletedAt: now.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		require.NoError(t, s.AddHistory(ctx, record))
	}

	records, err := s.ListHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, MaxHistoryEntries)

	limited, err := s.ListHistory(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, limited, 5)
}
