package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"routinely/internal/bus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog is an in-memory Catalog for engine tests.
type fakeCatalog struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	routines map[string]*Routine
	settings NotificationSettings
	enabled  bool
	warning  int
	history  []*SessionHistory
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tasks:    make(map[string]*Task),
		routines: make(map[string]*Routine),
		settings: DefaultNotificationSettings(),
		enabled:  true,
		warning:  DefaultEndingWarning,
	}
}

func (c *fakeCatalog) addTask(id string, duration int, mode AdvancementMode) *Task {
	task := &Task{ID: id, Name: "task " + id, Duration: duration, AdvancementMode: mode}
	c.tasks[id] = task
	return task
}

func (c *fakeCatalog) addRoutine(id string, taskIDs ...string) *Routine {
	routine := &Routine{ID: id, Name: "routine " + id, TaskIDs: taskIDs}
	c.routines[id] = routine
	return routine
}

func (c *fakeCatalog) GetTask(ctx context.Context, id string) (*Task, error) {
	if task, ok := c.tasks[id]; ok {
		return task, nil
	}
	return nil, fmt.Errorf("task not found: %s", id)
}

func (c *fakeCatalog) GetRoutine(ctx context.Context, id string) (*Routine, error) {
	if routine, ok := c.routines[id]; ok {
		return routine, nil
	}
	return nil, fmt.Errorf("routine not found: %s", id)
}

func (c *fakeCatalog) RoutineTasks(ctx context.Context, routine *Routine) ([]*Task, error) {
	tasks := make([]*Task, 0, len(routine.TaskIDs))
	for _, id := range routine.TaskIDs {
		if task, ok := c.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (c *fakeCatalog) RoutineDuration(ctx context.Context, routine *Routine, excludeIDs []string) (int, error) {
	exclude := make(map[string]bool)
	for _, id := range excludeIDs {
		exclude[id] = true
	}
	total := 0
	for _, id := range routine.TaskIDs {
		if task, ok := c.tasks[id]; ok && !exclude[id] {
			total += task.Duration
		}
	}
	return total, nil
}

func (c *fakeCatalog) GlobalNotificationSettings(ctx context.Context) NotificationSettings {
	return c.settings
}

func (c *fakeCatalog) NotificationsEnabled(ctx context.Context) bool { return c.enabled }
func (c *fakeCatalog) EndingWarning(ctx context.Context) int         { return c.warning }

func (c *fakeCatalog) AddHistory(ctx context.Context, record *SessionHistory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, record)
	return nil
}

func (c *fakeCatalog) historyRecords() []*SessionHistory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*SessionHistory(nil), c.history...)
}

// recordingNotifier counts notification calls by kind.
type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{calls: make(map[string]int)}
}

func (n *recordingNotifier) record(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[name]++
	return nil
}

func (n *recordingNotifier) count(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[name]
}

func (n *recordingNotifier) RoutineStarted(ctx context.Context, r *Routine, total, estimated int) error {
	return n.record("routine_started")
}
func (n *recordingNotifier) RoutinePaused(ctx context.Context, r *Routine) error {
	return n.record("routine_paused")
}
func (n *recordingNotifier) RoutineResumed(ctx context.Context, r *Routine, current *Task) error {
	return n.record("routine_resumed")
}
func (n *recordingNotifier) RoutineCompleted(ctx context.Context, r *Routine, completed, skipped, duration int) error {
	return n.record("routine_completed")
}
func (n *recordingNotifier) RoutineCancelled(ctx context.Context, r *Routine) error {
	return n.record("routine_cancelled")
}
func (n *recordingNotifier) TaskStarted(ctx context.Context, t *Task, routineName string, index, total int) error {
	return n.record("task_started")
}
func (n *recordingNotifier) TaskEndingSoon(ctx context.Context, t *Task, seconds int) error {
	return n.record("task_ending_soon")
}
func (n *recordingNotifier) TimeUntilTask(ctx context.Context, t *Task, seconds int) error {
	return n.record("time_until_task")
}
func (n *recordingNotifier) TimeRemaining(ctx context.Context, t *Task, seconds int) error {
	return n.record("time_remaining")
}
func (n *recordingNotifier) TaskOverdue(ctx context.Context, t *Task, seconds int) error {
	return n.record("task_overdue")
}
func (n *recordingNotifier) TaskComplete(ctx context.Context, t *Task) error {
	return n.record("task_complete")
}
func (n *recordingNotifier) TaskAwaitingInput(ctx context.Context, t *Task, confirm bool, window int) error {
	return n.record("awaiting_input")
}
func (n *recordingNotifier) SetActiveRoutineTargets(targets string) {}
func (n *recordingNotifier) ClearActiveRoutineTargets()            {}
func (n *recordingNotifier) ClearNotifications(ctx context.Context) error {
	return n.record("clear")
}

func newTestEngine(catalog *fakeCatalog, notifier Notifier) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(catalog, notifier, bus.New(), logger)
	// Park the real loop so tests drive ticks by hand.
	e.tickEvery = time.Hour
	return e
}

// tickN steps the engine n seconds.
func tickN(e *Engine, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		e.tick(ctx)
	}
}

func TestStartRoutineActivatesFirstTask(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addTask("b", 3, AdvanceManual)
	catalog.addRoutine("morning", "a", "b")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	session := e.Session()
	require.NotNil(t, session)
	assert.Equal(t, SessionRunning, session.Status)
	assert.Equal(t, 0, session.CurrentTaskIndex)
	assert.Equal(t, TaskActive, session.TaskStates[0].Status)
	assert.Equal(t, TaskPending, session.TaskStates[1].Status)
	assert.NotNil(t, session.TaskStates[0].StartedAt)
}

func TestStartRoutineRejectsSecondSession(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addRoutine("one", "a")
	catalog.addRoutine("two", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "one", StartOptions{}))
	assert.False(t, e.StartRoutine(context.Background(), "two", StartOptions{}))
}

func TestStartRoutineUnknownRoutine(t *testing.T) {
	catalog := newFakeCatalog()
	e := newTestEngine(catalog, newRecordingNotifier())
	assert.False(t, e.StartRoutine(context.Background(), "missing", StartOptions{}))
}

func TestStartRoutineAllPreSkippedCompletesImmediately(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addTask("b", 3, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b")

	e := newTestEngine(catalog, newRecordingNotifier())
	sub := e.events.Subscribe(bus.TopicRoutineCompleted)
	defer e.events.Unsubscribe(sub)

	ok := e.StartRoutine(context.Background(), "morning", StartOptions{
		SkipTaskIDs: []string{"a", "b"},
	})
	require.True(t, ok)
	assert.Nil(t, e.Session())
	assert.False(t, e.IsActive())

	select {
	case ev := <-sub.Ch():
		assert.Equal(t, bus.TopicRoutineCompleted, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected completion event")
	}
}

func TestStartRoutineCustomOrderAppendsMissing(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addTask("b", 3, AdvanceAuto)
	catalog.addTask("c", 2, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b", "c")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{
		TaskOrder: []string{"c", "a"},
	}))

	session := e.Session()
	require.NotNil(t, session)
	assert.Equal(t, []string{"c", "a", "b"}, session.TaskIDs)
}

func TestAutoTaskCompletesExactlyAtDuration(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addTask("b", 3, AdvanceManual)
	catalog.addRoutine("morning", "a", "b")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 4)
	session := e.Session()
	assert.Equal(t, 0, session.CurrentTaskIndex)
	assert.Equal(t, 4, session.TaskElapsedTime)

	tickN(e, 1)
	session = e.Session()
	require.NotNil(t, session)
	assert.Equal(t, 1, session.CurrentTaskIndex)
	assert.Equal(t, TaskCompleted, session.TaskStates[0].Status)
	assert.True(t, session.TaskStates[0].WasAutoAdvanced)
	require.NotNil(t, session.TaskStates[0].ActualDuration)
	assert.Equal(t, 5, *session.TaskStates[0].ActualDuration)
	assert.Equal(t, 0, session.TaskElapsedTime)
	assert.Equal(t, 5, session.ElapsedTime)
}

func TestManualTaskWaitsAndGoesOverdue(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 3, AdvanceManual)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 5)
	session := e.Session()
	require.NotNil(t, session)
	assert.Equal(t, TaskActive, session.TaskStates[0].Status)
	assert.Equal(t, -2, e.TimeRemaining(context.Background()))

	require.True(t, e.CompleteTask(context.Background()))
	assert.Nil(t, e.Session())
}

func TestCompleteTaskRejectsAutoMode(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))
	assert.False(t, e.CompleteTask(context.Background()))
}

func TestConfirmWindowOpensAndAutoCompletes(t *testing.T) {
	catalog := newFakeCatalog()
	window := 10
	task := catalog.addTask("a", 2, AdvanceConfirm)
	task.ConfirmWindow = &window
	catalog.addTask("b", 3, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 2)
	session := e.Session()
	require.NotNil(t, session)
	assert.True(t, session.ConfirmWindowActive)
	assert.Equal(t, 10, session.ConfirmWindowRemaining)
	assert.Equal(t, 10, e.TimeRemaining(context.Background()))

	// Snooze extends by exactly the requested amount.
	require.True(t, e.Snooze(context.Background(), 5))
	assert.Equal(t, 15, e.Session().ConfirmWindowRemaining)

	tickN(e, 15)
	session = e.Session()
	require.NotNil(t, session)
	assert.Equal(t, 1, session.CurrentTaskIndex)
	assert.Equal(t, TaskCompleted, session.TaskStates[0].Status)
	assert.True(t, session.TaskStates[0].WasAutoAdvanced)
	assert.False(t, session.ConfirmWindowActive)
}

func TestConfirmCompletesWithoutAutoFlag(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 1, AdvanceConfirm)
	catalog.addTask("b", 3, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 1)
	require.True(t, e.Session().ConfirmWindowActive)

	require.True(t, e.Confirm(context.Background()))
	session := e.Session()
	assert.Equal(t, TaskCompleted, session.TaskStates[0].Status)
	assert.False(t, session.TaskStates[0].WasAutoAdvanced)
}

func TestSnoozeDefaultsAndRequiresWindow(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceConfirm)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	// No window open yet.
	assert.False(t, e.Snooze(context.Background(), 10))

	tickN(e, 5)
	require.True(t, e.Session().ConfirmWindowActive)
	before := e.Session().ConfirmWindowRemaining

	require.True(t, e.Snooze(context.Background(), 0))
	assert.Equal(t, before+DefaultSnoozeSeconds, e.Session().ConfirmWindowRemaining)
}

func TestPauseFreezesTime(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 10, AdvanceAuto)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 3)
	require.True(t, e.Pause(context.Background()))

	// Ticks while paused must not advance any counter.
	tickN(e, 5)
	session := e.Session()
	assert.Equal(t, SessionPaused, session.Status)
	assert.Equal(t, 3, session.ElapsedTime)
	assert.Equal(t, 3, session.TaskElapsedTime)

	require.True(t, e.Resume(context.Background()))
	assert.Equal(t, SessionRunning, e.Session().Status)
	tickN(e, 1)
	assert.Equal(t, 4, e.Session().ElapsedTime)
}

func TestPauseRequiresRunning(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 10, AdvanceAuto)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	assert.False(t, e.Pause(context.Background()))
	assert.False(t, e.Resume(context.Background()))

	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))
	require.True(t, e.Pause(context.Background()))
	assert.False(t, e.Pause(context.Background()))
}

func TestSkipTaskRecordsAndAdvances(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addTask("b", 3, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 2)
	require.True(t, e.SkipTask(context.Background()))

	session := e.Session()
	require.NotNil(t, session)
	assert.Equal(t, TaskSkipped, session.TaskStates[0].Status)
	assert.NotNil(t, session.TaskStates[0].SkippedAt)
	require.NotNil(t, session.TaskStates[0].ActualDuration)
	assert.Equal(t, 2, *session.TaskStates[0].ActualDuration)
	assert.Equal(t, 1, session.CurrentTaskIndex)

	// Skipping the last task completes the routine.
	require.True(t, e.SkipTask(context.Background()))
	assert.Nil(t, e.Session())

	records := catalog.historyRecords()
	require.Len(t, records, 1)
	assert.Equal(t, SessionCompleted, records[0].Status)
	assert.Equal(t, 0, records[0].TasksCompleted)
	assert.Equal(t, 2, records[0].TasksSkipped)
}

func TestPreSkippedTasksAreNeverActivated(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 2, AdvanceAuto)
	catalog.addTask("b", 3, AdvanceAuto)
	catalog.addTask("c", 2, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b", "c")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{
		SkipTaskIDs: []string{"b"},
	}))

	session := e.Session()
	assert.True(t, session.TaskStates[1].PreSkipped())

	// a completes at 2; the engine must land on c, not b.
	tickN(e, 2)
	session = e.Session()
	require.NotNil(t, session)
	assert.Equal(t, 2, session.CurrentTaskIndex)
	assert.Nil(t, session.TaskStates[1].StartedAt)

	p := e.Progress()
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 2, p.ActiveTotal)
}

func TestCancelRecordsHistory(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 10, AdvanceAuto)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))
	tickN(e, 4)

	require.True(t, e.Cancel(context.Background()))
	assert.Nil(t, e.Session())
	assert.False(t, e.Cancel(context.Background()))

	records := catalog.historyRecords()
	require.Len(t, records, 1)
	assert.Equal(t, SessionCancelled, records[0].Status)
	assert.Equal(t, 4, records[0].TotalDuration)
}

func TestAdjustTaskTimeClampsExtension(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 10, AdvanceAuto)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))
	tickN(e, 3)

	// +5 seconds of extra time.
	require.True(t, e.AdjustTaskTime(context.Background(), 5))
	assert.Equal(t, -2, e.Session().TaskElapsedTime)
	assert.Equal(t, 12, e.TimeRemaining(context.Background()))

	// Extension is capped at one hour.
	require.True(t, e.AdjustTaskTime(context.Background(), 100000))
	assert.Equal(t, MinTaskElapsed, e.Session().TaskElapsedTime)

	// Removing time can expire the task on the next tick.
	require.True(t, e.AdjustTaskTime(context.Background(), -(3600 + 9)))
	tickN(e, 1)
	assert.Nil(t, e.Session())
}

func TestRemainingThresholdFiresExactlyOnce(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.settings.NotifyRemaining = []int{3}
	catalog.addTask("a", 5, AdvanceManual)
	catalog.addRoutine("morning", "a")

	notifier := newRecordingNotifier()
	e := newTestEngine(catalog, notifier)
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 1)
	assert.Empty(t, e.Session().TaskStates[0].SentRemaining)

	tickN(e, 1) // remaining == 3
	assert.Equal(t, []int{3}, e.Session().TaskStates[0].SentRemaining)
	require.Eventually(t, func() bool {
		return notifier.count("time_remaining") == 1
	}, time.Second, 10*time.Millisecond)

	tickN(e, 3)
	assert.Equal(t, []int{3}, e.Session().TaskStates[0].SentRemaining)
	assert.Equal(t, 1, notifier.count("time_remaining"))
}

func TestOverdueThresholdsFireInOrder(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.settings.NotifyOverdue = []int{1, 3}
	catalog.addTask("a", 2, AdvanceManual)
	catalog.addRoutine("morning", "a")

	notifier := newRecordingNotifier()
	e := newTestEngine(catalog, notifier)
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 3) // overdue == 1
	assert.Equal(t, []int{1}, e.Session().TaskStates[0].SentOverdue)

	tickN(e, 2) // overdue == 3
	assert.Equal(t, []int{1, 3}, e.Session().TaskStates[0].SentOverdue)

	tickN(e, 5)
	assert.Equal(t, []int{1, 3}, e.Session().TaskStates[0].SentOverdue)
}

func TestOverdueNeverFiresForAutoTasks(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.settings.NotifyOverdue = []int{1}
	catalog.addTask("a", 2, AdvanceAuto)
	catalog.addTask("b", 100, AdvanceManual)
	catalog.addRoutine("morning", "a", "b")

	notifier := newRecordingNotifier()
	e := newTestEngine(catalog, notifier)
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 3)
	assert.Equal(t, 0, notifier.count("task_overdue"))
}

func TestBeforeThresholdMarksNextTask(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.settings.AutoNextNotifyBefore = []int{3}
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addTask("b", 5, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b")

	notifier := newRecordingNotifier()
	e := newTestEngine(catalog, notifier)
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 2) // remaining == 3 on a
	session := e.Session()
	assert.Equal(t, []int{3}, session.TaskStates[1].SentBefore)
	require.Eventually(t, func() bool {
		return notifier.count("time_until_task") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEndingSoonFiresOnce(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.warning = 2
	catalog.addTask("a", 4, AdvanceManual)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	sub := e.events.Subscribe(bus.TopicTaskEndingSoon)
	defer e.events.Unsubscribe(sub)

	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))
	tickN(e, 6)

	select {
	case ev := <-sub.Ch():
		payload, ok := ev.Payload.(bus.TaskEvent)
		require.True(t, ok)
		assert.Equal(t, 2, payload.TimeRemaining)
	case <-time.After(time.Second):
		t.Fatal("expected ending soon event")
	}
	select {
	case <-sub.Ch():
		t.Fatal("ending soon fired twice")
	default:
	}
}

func TestDisabledNotificationsStillMarkNothing(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.enabled = false
	catalog.settings.NotifyRemaining = []int{3}
	catalog.addTask("a", 5, AdvanceManual)
	catalog.addRoutine("morning", "a")

	notifier := newRecordingNotifier()
	e := newTestEngine(catalog, notifier)
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 5)
	assert.Empty(t, e.Session().TaskStates[0].SentRemaining)
	assert.Equal(t, 0, notifier.count("time_remaining"))
	assert.Equal(t, 0, notifier.count("routine_started"))
}

func TestCompletionHistoryCounts(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addTask("b", 3, AdvanceManual)
	catalog.addRoutine("morning", "a", "b")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 5) // a completes, b active
	tickN(e, 3) // b expires, awaiting input
	require.True(t, e.CompleteTask(context.Background()))
	assert.Nil(t, e.Session())

	records := catalog.historyRecords()
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, SessionCompleted, record.Status)
	assert.Equal(t, 2, record.TasksCompleted)
	assert.Equal(t, 0, record.TasksSkipped)
	assert.Equal(t, 2, record.TotalTasks)
	assert.Equal(t, 8, record.TotalDuration)
}

func TestRoutineNotificationOverrideWins(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.settings.NotifyRemaining = []int{4}
	catalog.addTask("a", 5, AdvanceManual)
	routine := catalog.addRoutine("morning", "a")
	routine.Notification = &NotificationSettings{NotifyRemaining: []int{2}}

	notifier := newRecordingNotifier()
	e := newTestEngine(catalog, notifier)
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	tickN(e, 1) // remaining == 4, global threshold must not fire
	assert.Empty(t, e.Session().TaskStates[0].SentRemaining)

	tickN(e, 2) // remaining == 2, override threshold fires
	assert.Equal(t, []int{2}, e.Session().TaskStates[0].SentRemaining)
}

func TestTimeRemainingClampsOnlyAuto(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("m", 2, AdvanceManual)
	catalog.addRoutine("manual", "m")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "manual", StartOptions{}))
	tickN(e, 4)
	assert.Equal(t, -2, e.TimeRemaining(context.Background()))
}

func TestSessionCloneIsIsolated(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 5, AdvanceAuto)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	clone := e.Session()
	clone.TaskStates[0].Status = TaskSkipped
	clone.TaskIDs[0] = "mutated"

	fresh := e.Session()
	assert.Equal(t, TaskActive, fresh.TaskStates[0].Status)
	assert.Equal(t, "a", fresh.TaskIDs[0])
}

func TestEngineStaysHealthy(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 2, AdvanceAuto)
	catalog.addRoutine("morning", "a")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))
	tickN(e, 2)
	assert.Nil(t, e.Session())
	assert.True(t, e.Healthy())
}

func TestCancelledSessionDoesNotLeakIntoNext(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.warning = 1
	catalog.addTask("hold", 2, AdvanceManual)
	catalog.addTask("quick", 3, AdvanceAuto)
	catalog.addRoutine("first", "hold")
	catalog.addRoutine("second", "quick")

	e := newTestEngine(catalog, newRecordingNotifier())

	// Run the manual task past both one-shot points: the ending-soon warning
	// at remaining 1 and the timer expiry at remaining 0. Then cancel.
	require.True(t, e.StartRoutine(context.Background(), "first", StartOptions{}))
	tickN(e, 2)
	require.True(t, e.Cancel(context.Background()))

	sub := e.events.Subscribe(bus.TopicTaskEndingSoon)
	defer e.events.Unsubscribe(sub)

	// A fresh session must fire its own warning and expiry as if nothing
	// came before it.
	require.True(t, e.StartRoutine(context.Background(), "second", StartOptions{}))
	tickN(e, 2)
	select {
	case ev := <-sub.Ch():
		payload, ok := ev.Payload.(bus.TaskEvent)
		require.True(t, ok)
		assert.Equal(t, "quick", payload.TaskID)
		assert.Equal(t, 1, payload.TimeRemaining)
	default:
		t.Fatal("expected ending-soon event in the second session")
	}

	tickN(e, 1)
	assert.Nil(t, e.Session(), "auto task must complete exactly at its duration")
}

func TestDeletedTaskSkippedOnAdvance(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addTask("a", 2, AdvanceAuto)
	catalog.addTask("b", 2, AdvanceAuto)
	catalog.addTask("c", 2, AdvanceAuto)
	catalog.addRoutine("morning", "a", "b", "c")

	e := newTestEngine(catalog, newRecordingNotifier())
	require.True(t, e.StartRoutine(context.Background(), "morning", StartOptions{}))

	// Deleting a definition mid-session must not shift later tasks onto the
	// wrong state slot; the gone task is skipped in place.
	delete(catalog.tasks, "b")
	tickN(e, 2)

	session := e.Session()
	require.NotNil(t, session)
	assert.Equal(t, 2, session.CurrentTaskIndex)
	assert.Equal(t, TaskCompleted, session.TaskStates[0].Status)
	assert.Equal(t, TaskSkipped, session.TaskStates[1].Status)
	assert.Equal(t, TaskActive, session.TaskStates[2].Status)

	tickN(e, 2)
	assert.Nil(t, e.Session())

	records := catalog.historyRecords()
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].TasksCompleted)
	assert.Equal(t, 1, records[0].TasksSkipped)
}
