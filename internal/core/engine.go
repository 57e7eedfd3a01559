package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"routinely/internal/bus"
)

// Catalog abstracts the definition store the engine reads from.
type Catalog interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	GetRoutine(ctx context.Context, id string) (*Routine, error)
	RoutineTasks(ctx context.Context, routine *Routine) ([]*Task, error)
	RoutineDuration(ctx context.Context, routine *Routine, excludeIDs []string) (int, error)
	GlobalNotificationSettings(ctx context.Context) NotificationSettings
	NotificationsEnabled(ctx context.Context) bool
	EndingWarning(ctx context.Context) int
	AddHistory(ctx context.Context, record *SessionHistory) error
}

// Notifier is the delivery boundary for push/voice notifications. Implementations
// fan a structured intent out to configured channels; the engine never waits on
// delivery and swallows failures.
type Notifier interface {
	RoutineStarted(ctx context.Context, routine *Routine, totalTasks, estimatedDuration int) error
	RoutinePaused(ctx context.Context, routine *Routine) error
	RoutineResumed(ctx context.Context, routine *Routine, current *Task) error
	RoutineCompleted(ctx context.Context, routine *Routine, completed, skipped, totalDuration int) error
	RoutineCancelled(ctx context.Context, routine *Routine) error
	TaskStarted(ctx context.Context, task *Task, routineName string, taskIndex, totalTasks int) error
	TaskEndingSoon(ctx context.Context, task *Task, secondsRemaining int) error
	TimeUntilTask(ctx context.Context, task *Task, secondsUntil int) error
	TimeRemaining(ctx context.Context, task *Task, secondsRemaining int) error
	TaskOverdue(ctx context.Context, task *Task, secondsOverdue int) error
	TaskComplete(ctx context.Context, task *Task) error
	TaskAwaitingInput(ctx context.Context, task *Task, confirmMode bool, confirmWindow int) error
	SetActiveRoutineTargets(targets string)
	ClearActiveRoutineTargets()
	ClearNotifications(ctx context.Context) error
}

// StartOptions tune a single run of a routine.
type StartOptions struct {
	// SkipTaskIDs lists tasks excluded from this run; they never become active.
	SkipTaskIDs []string
	// TaskOrder overrides the routine's default order. Tasks in the routine but
	// missing from the order are appended at the end.
	TaskOrder []string
}

// Engine executes routines. It owns at most one session at a time and is the
// sole mutator of session state; all public operations serialize on one mutex.
type Engine struct {
	catalog  Catalog
	notifier Notifier
	events   *bus.Bus
	logger   *slog.Logger

	mu       sync.Mutex
	session  *ExecutionSession
	onUpdate func()

	loopCancel context.CancelFunc
	tickEvery  time.Duration

	// One-shot markers for the current task, reset on advancement.
	endingSoonFired  bool
	taskTimerExpired bool

	// Latched false when the tick loop dies unexpectedly.
	healthy bool
}

// NewEngine constructs an engine. notifier may be nil to disable notifications.
func NewEngine(catalog Catalog, notifier Notifier, events *bus.Bus, logger *slog.Logger) *Engine {
	return &Engine{
		catalog:   catalog,
		notifier:  notifier,
		events:    events,
		logger:    logger,
		tickEvery: time.Second,
		healthy:   true,
	}
}

// SetUpdateCallback registers a callback invoked after every observable state
// change. Used by the coordinator to refresh its snapshot promptly.
func (e *Engine) SetUpdateCallback(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// Session returns a deep copy of the current session, or nil when idle.
func (e *Engine) Session() *ExecutionSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Healthy reports whether the tick loop has ever faulted.
func (e *Engine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

// IsActive reports whether a session is running or paused.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isActive()
}

func (e *Engine) isActive() bool {
	return e.session != nil &&
		(e.session.Status == SessionRunning || e.session.Status == SessionPaused)
}

// CurrentTask returns the task definition at the session's current index.
func (e *Engine) CurrentTask(ctx context.Context) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTask(ctx)
}

func (e *Engine) currentTask(ctx context.Context) *Task {
	if e.session == nil || e.session.CurrentTaskIndex >= len(e.session.TaskIDs) {
		return nil
	}
	task, err := e.catalog.GetTask(ctx, e.session.TaskIDs[e.session.CurrentTaskIndex])
	if err != nil {
		return nil
	}
	return task
}

// TimeRemaining returns seconds left on the current task: the confirm-window
// countdown while that window is open, otherwise duration minus elapsed.
// Non-auto tasks may go negative (overdue); auto tasks clamp at zero.
func (e *Engine) TimeRemaining(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeRemaining(ctx)
}

func (e *Engine) timeRemaining(ctx context.Context) int {
	if !e.isActive() {
		return 0
	}
	task := e.currentTask(ctx)
	if task == nil {
		return 0
	}
	if e.session.ConfirmWindowActive {
		return e.session.ConfirmWindowRemaining
	}
	remaining := task.Duration - e.session.TaskElapsedTime
	if task.AdvancementMode != AdvanceAuto {
		return remaining
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Progress returns completed/skipped/total counters for the session.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress()
}

func (e *Engine) progress() Progress {
	if e.session == nil {
		return Progress{}
	}
	var p Progress
	p.Total = len(e.session.TaskStates)
	for _, ts := range e.session.TaskStates {
		switch ts.Status {
		case TaskCompleted:
			p.Completed++
		case TaskSkipped:
			p.Skipped++
		}
		if !ts.PreSkipped() {
			p.ActiveTotal++
		}
	}
	return p
}

// ActiveTaskIndex returns the current index counted over non-pre-skipped tasks.
func (e *Engine) ActiveTaskIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return 0
	}
	idx := 0
	for i := 0; i < e.session.CurrentTaskIndex && i < len(e.session.TaskStates); i++ {
		if !e.session.TaskStates[i].PreSkipped() {
			idx++
		}
	}
	return idx
}

// StartRoutine begins executing a routine. Returns false if a session is
// already active, the routine is unknown, or it resolves to zero tasks.
func (e *Engine) StartRoutine(ctx context.Context, routineID string, opts StartOptions) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isActive() {
		e.logger.Warn("cannot start routine: another routine is active",
			"requested", routineID, "active", e.session.RoutineID)
		return false
	}

	routine, err := e.catalog.GetRoutine(ctx, routineID)
	if err != nil {
		e.logger.Error("routine not found", "routine_id", routineID, "err", err)
		return false
	}

	tasks := e.orderedTasks(ctx, routine, opts.TaskOrder)
	if len(tasks) == 0 {
		e.logger.Error("routine has no tasks", "routine_id", routineID, "name", routine.Name)
		return false
	}

	// Fresh run: one-shot markers from a prior session must not carry over.
	e.endingSoonFired = false
	e.taskTimerExpired = false

	now := time.Now()
	skip := make(map[string]bool, len(opts.SkipTaskIDs))
	for _, id := range opts.SkipTaskIDs {
		skip[id] = true
	}

	taskIDs := make([]string, len(tasks))
	states := make([]*TaskState, len(tasks))
	for i, t := range tasks {
		taskIDs[i] = t.ID
		state := &TaskState{TaskID: t.ID, Status: TaskPending}
		if skip[t.ID] {
			state.Status = TaskSkipped
			skippedAt := now
			state.SkippedAt = &skippedAt
		}
		states[i] = state
	}

	startedAt := now
	e.session = &ExecutionSession{
		ID:         NewID(),
		RoutineID:  routineID,
		Status:     SessionRunning,
		TaskStates: states,
		TaskIDs:    taskIDs,
		StartedAt:  &startedAt,
	}

	firstActive := -1
	for i, state := range states {
		if state.Status != TaskSkipped {
			firstActive = i
			break
		}
	}

	if firstActive < 0 {
		// Every task was pre-skipped: complete immediately, no loop.
		e.logger.Warn("all tasks pre-skipped, completing routine immediately", "routine_id", routineID)
		e.session.Status = SessionCompleted
		completedAt := time.Now()
		e.session.CompletedAt = &completedAt
		e.events.Publish(bus.TopicRoutineCompleted, bus.RoutineEvent{
			RoutineID:   routineID,
			RoutineName: routine.Name,
		})
		e.session = nil
		e.notifyUpdate()
		return true
	}

	e.session.CurrentTaskIndex = firstActive
	states[firstActive].Status = TaskActive
	states[firstActive].StartedAt = &startedAt

	activeCount := 0
	for _, state := range states {
		if !state.PreSkipped() {
			activeCount++
		}
	}

	e.events.Publish(bus.TopicRoutineStarted, bus.RoutineEvent{
		RoutineID:   routineID,
		RoutineName: routine.Name,
		TotalTasks:  activeCount,
		Skipped:     len(opts.SkipTaskIDs),
	})
	e.publishTaskStarted(tasks[firstActive], firstActive)

	estimated, err := e.catalog.RoutineDuration(ctx, routine, opts.SkipTaskIDs)
	if err != nil {
		e.logger.Warn("estimate routine duration", "routine_id", routineID, "err", err)
	}
	settings := e.notificationSettings(ctx, routine)

	if e.notificationsEnabled(ctx) {
		if settings.NotificationTargets != "" {
			e.notifier.SetActiveRoutineTargets(settings.NotificationTargets)
		}
		first := tasks[firstActive]
		name := routine.Name
		total := len(tasks)
		e.dispatch("routine_started", func(ctx context.Context) error {
			return e.notifier.RoutineStarted(ctx, routine, activeCount, estimated)
		})
		if settings.NotifyOnStart {
			states[firstActive].SentStart = true
			e.dispatch("task_started", func(ctx context.Context) error {
				return e.notifier.TaskStarted(ctx, first, name, firstActive, total)
			})
		}
	}

	e.startLoop()
	e.notifyUpdate()

	e.logger.Info("routine started",
		"routine_id", routineID,
		"name", routine.Name,
		"total_tasks", len(tasks),
		"skipped_tasks", len(opts.SkipTaskIDs),
		"estimated_duration", estimated)
	return true
}

// orderedTasks resolves the routine's tasks, applying a custom order when given.
func (e *Engine) orderedTasks(ctx context.Context, routine *Routine, order []string) []*Task {
	all, err := e.catalog.RoutineTasks(ctx, routine)
	if err != nil {
		e.logger.Error("load routine tasks", "routine_id", routine.ID, "err", err)
		return nil
	}
	if len(order) == 0 {
		return all
	}
	byID := make(map[string]*Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}
	ordered := make([]*Task, 0, len(all))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
			seen[id] = true
		} else {
			e.logger.Warn("ordered task not in routine", "task_id", id)
		}
	}
	for _, t := range all {
		if !seen[t.ID] {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// Pause suspends a running session. No-op unless running.
func (e *Engine) Pause(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.session.Status != SessionRunning {
		e.logger.Debug("cannot pause: no running routine")
		return false
	}

	e.stopLoop()
	e.session.Status = SessionPaused
	pausedAt := time.Now()
	e.session.PausedAt = &pausedAt

	routine, _ := e.catalog.GetRoutine(ctx, e.session.RoutineID)
	e.events.Publish(bus.TopicRoutinePaused, bus.RoutineEvent{
		RoutineID:   e.session.RoutineID,
		RoutineName: routineName(routine),
	})

	if e.notificationsEnabled(ctx) && routine != nil {
		e.dispatch("routine_paused", func(ctx context.Context) error {
			return e.notifier.RoutinePaused(ctx, routine)
		})
	}

	e.notifyUpdate()
	e.logger.Info("routine paused", "routine_id", e.session.RoutineID, "elapsed_time", e.session.ElapsedTime)
	return true
}

// Resume restarts a paused session. No-op unless paused.
func (e *Engine) Resume(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.session.Status != SessionPaused {
		e.logger.Debug("cannot resume: no paused routine")
		return false
	}

	e.session.Status = SessionRunning
	e.session.PausedAt = nil

	routine, _ := e.catalog.GetRoutine(ctx, e.session.RoutineID)
	e.events.Publish(bus.TopicRoutineResumed, bus.RoutineEvent{
		RoutineID:   e.session.RoutineID,
		RoutineName: routineName(routine),
	})

	if e.notificationsEnabled(ctx) && routine != nil {
		if task := e.currentTask(ctx); task != nil {
			e.dispatch("routine_resumed", func(ctx context.Context) error {
				return e.notifier.RoutineResumed(ctx, routine, task)
			})
		}
	}

	e.startLoop()
	e.notifyUpdate()
	e.logger.Info("routine resumed", "routine_id", e.session.RoutineID)
	return true
}

// SkipTask skips the current task and advances. Valid while running or paused.
// Skipping never sends completion notifications.
func (e *Engine) SkipTask(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActive() {
		e.logger.Debug("cannot skip: no active routine")
		return false
	}

	task := e.currentTask(ctx)
	state := e.session.TaskStates[e.session.CurrentTaskIndex]
	state.Status = TaskSkipped
	skippedAt := time.Now()
	state.SkippedAt = &skippedAt
	actual := e.session.TaskElapsedTime
	state.ActualDuration = &actual

	e.events.Publish(bus.TopicTaskSkipped, bus.TaskEvent{
		RoutineID: e.session.RoutineID,
		TaskID:    taskID(task),
		TaskName:  taskName(task),
	})

	e.logger.Info("task skipped", "task_id", taskID(task), "task_name", taskName(task), "elapsed", actual)
	e.advance(ctx)
	return true
}

// CompleteTask manually completes the current task. Rejected for auto-advancing
// tasks, which complete themselves.
func (e *Engine) CompleteTask(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActive() {
		e.logger.Debug("cannot complete: no active routine")
		return false
	}
	task := e.currentTask(ctx)
	if task == nil {
		e.logger.Debug("cannot complete: no current task")
		return false
	}
	if task.AdvancementMode == AdvanceAuto {
		e.logger.Debug("cannot manually complete auto-advance task", "task_id", task.ID)
		return false
	}

	e.logger.Info("task manually completed", "task_id", task.ID, "task_name", task.Name)
	e.completeCurrentTask(ctx, false)
	return true
}

// Confirm acknowledges the confirm window and completes the task.
func (e *Engine) Confirm(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || !e.session.ConfirmWindowActive {
		e.logger.Debug("cannot confirm: no confirm window active")
		return false
	}

	task := e.currentTask(ctx)
	e.logger.Info("task confirmed", "task_id", taskID(task))
	e.session.ConfirmWindowActive = false
	e.completeCurrentTask(ctx, false)
	return true
}

// Snooze extends the confirm-window countdown by seconds (default 30).
func (e *Engine) Snooze(ctx context.Context, seconds int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || !e.session.ConfirmWindowActive {
		e.logger.Debug("cannot snooze: no confirm window active")
		return false
	}
	if seconds <= 0 {
		seconds = DefaultSnoozeSeconds
	}
	e.session.ConfirmWindowRemaining += seconds
	e.logger.Info("confirm window snoozed",
		"added_seconds", seconds, "new_remaining", e.session.ConfirmWindowRemaining)
	e.notifyUpdate()
	return true
}

// Cancel aborts the active session. The session is recorded in history and
// discarded; the engine returns to idle.
func (e *Engine) Cancel(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActive() {
		e.logger.Debug("cannot cancel: no active routine")
		return false
	}

	e.stopLoop()

	routine, _ := e.catalog.GetRoutine(ctx, e.session.RoutineID)
	routineID := e.session.RoutineID
	elapsed := e.session.ElapsedTime

	e.session.Status = SessionCancelled
	completedAt := time.Now()
	e.session.CompletedAt = &completedAt

	e.saveHistory(ctx, routine)

	e.events.Publish(bus.TopicRoutineCancelled, bus.RoutineEvent{
		RoutineID:   routineID,
		RoutineName: routineName(routine),
	})

	if e.notificationsEnabled(ctx) && routine != nil {
		e.dispatch("routine_cancelled", func(ctx context.Context) error {
			if err := e.notifier.RoutineCancelled(ctx, routine); err != nil {
				return err
			}
			return e.notifier.ClearNotifications(ctx)
		})
		e.notifier.ClearActiveRoutineTargets()
	}

	e.session = nil
	e.notifyUpdate()
	e.logger.Info("routine cancelled", "routine_id", routineID, "name", routineName(routine), "elapsed_time", elapsed)
	return true
}

// AdjustTaskTime shifts the current task's elapsed counter by -seconds, so a
// positive input extends remaining time. Elapsed is clamped at MinTaskElapsed.
func (e *Engine) AdjustTaskTime(ctx context.Context, seconds int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActive() {
		e.logger.Debug("cannot adjust time: no active routine")
		return false
	}
	task := e.currentTask(ctx)
	if task == nil {
		e.logger.Debug("cannot adjust time: no current task")
		return false
	}

	newElapsed := e.session.TaskElapsedTime - seconds
	if newElapsed < MinTaskElapsed {
		newElapsed = MinTaskElapsed
	}
	e.session.TaskElapsedTime = newElapsed
	e.notifyUpdate()

	e.logger.Info("task time adjusted",
		"task_id", task.ID,
		"adjustment", seconds,
		"new_elapsed", newElapsed,
		"time_remaining", task.Duration-newElapsed)
	return true
}

// completeCurrentTask marks the current task completed and advances.
// Caller holds the lock.
func (e *Engine) completeCurrentTask(ctx context.Context, autoAdvanced bool) {
	if e.session == nil {
		return
	}

	task := e.currentTask(ctx)
	state := e.session.TaskStates[e.session.CurrentTaskIndex]
	state.Status = TaskCompleted
	completedAt := time.Now()
	state.CompletedAt = &completedAt
	actual := e.session.TaskElapsedTime
	state.ActualDuration = &actual
	state.WasAutoAdvanced = autoAdvanced

	e.logger.Debug("task completed",
		"task_id", taskID(task), "auto_advanced", autoAdvanced, "actual_duration", actual)

	e.events.Publish(bus.TopicTaskCompleted, bus.TaskEvent{
		RoutineID:       e.session.RoutineID,
		TaskID:          taskID(task),
		TaskName:        taskName(task),
		WasAutoAdvanced: autoAdvanced,
		ActualDuration:  actual,
	})

	if e.notificationsEnabled(ctx) && task != nil {
		routine, _ := e.catalog.GetRoutine(ctx, e.session.RoutineID)
		settings := e.notificationSettings(ctx, routine)
		if settings.NotifyOnComplete && !state.SentComplete {
			state.SentComplete = true
			e.dispatch("task_complete", func(ctx context.Context) error {
				return e.notifier.TaskComplete(ctx, task)
			})
		}
	}

	e.advance(ctx)
}

// advance moves to the next eligible task or completes the routine.
// Caller holds the lock.
func (e *Engine) advance(ctx context.Context) {
	if e.session == nil {
		return
	}

	e.stopLoop()
	e.session.ConfirmWindowActive = false
	e.endingSoonFired = false
	e.taskTimerExpired = false

	next := e.session.CurrentTaskIndex + 1
	routine, _ := e.catalog.GetRoutine(ctx, e.session.RoutineID)

	// Indices follow the session's snapshotted TaskIDs so TaskStates stay
	// aligned even when a definition is deleted mid-session. Walk past
	// pre-skipped tasks; an unresolvable task is skipped rather than started.
	var nextTask *Task
	for next < len(e.session.TaskIDs) {
		state := e.session.TaskStates[next]
		if state.Status == TaskSkipped {
			next++
			continue
		}
		task, err := e.catalog.GetTask(ctx, e.session.TaskIDs[next])
		if err != nil {
			e.logger.Warn("task definition gone, skipping",
				"task_id", e.session.TaskIDs[next], "index", next)
			state.Status = TaskSkipped
			skippedAt := time.Now()
			state.SkippedAt = &skippedAt
			next++
			continue
		}
		nextTask = task
		break
	}
	if nextTask == nil {
		e.completeRoutine(ctx, routine)
		return
	}

	e.session.CurrentTaskIndex = next
	e.session.TaskElapsedTime = 0

	state := e.session.TaskStates[next]
	state.Status = TaskActive
	startedAt := time.Now()
	state.StartedAt = &startedAt
	e.logger.Info("task started",
		"task_id", nextTask.ID,
		"task_name", nextTask.Name,
		"task_index", next,
		"duration", nextTask.Duration,
		"mode", nextTask.AdvancementMode)

	e.publishTaskStarted(nextTask, next)

	if e.notificationsEnabled(ctx) && routine != nil {
		settings := e.notificationSettings(ctx, routine)
		if settings.NotifyOnStart {
			state.SentStart = true
			name := routine.Name
			total := len(e.session.TaskIDs)
			e.dispatch("task_started", func(ctx context.Context) error {
				return e.notifier.TaskStarted(ctx, nextTask, name, next, total)
			})
		}
	}

	if e.session.Status == SessionRunning {
		e.startLoop()
	}
	e.notifyUpdate()
}

// completeRoutine finishes the session, records history, and discards it.
// Caller holds the lock.
func (e *Engine) completeRoutine(ctx context.Context, routine *Routine) {
	if e.session == nil {
		return
	}

	e.session.Status = SessionCompleted
	completedAt := time.Now()
	e.session.CompletedAt = &completedAt

	p := e.progress()
	elapsed := e.session.ElapsedTime
	routineID := e.session.RoutineID

	e.events.Publish(bus.TopicRoutineCompleted, bus.RoutineEvent{
		RoutineID:   routineID,
		RoutineName: routineName(routine),
		Completed:   p.Completed,
		Skipped:     p.Skipped,
		Duration:    elapsed,
	})

	e.saveHistory(ctx, routine)

	if e.notificationsEnabled(ctx) && routine != nil {
		e.dispatch("routine_completed", func(ctx context.Context) error {
			if err := e.notifier.RoutineCompleted(ctx, routine, p.Completed, p.Skipped, elapsed); err != nil {
				return err
			}
			return e.notifier.ClearNotifications(ctx)
		})
		e.notifier.ClearActiveRoutineTargets()
	}

	e.logger.Info("routine completed",
		"routine_id", routineID,
		"name", routineName(routine),
		"tasks_completed", p.Completed,
		"tasks_skipped", p.Skipped,
		"total_duration", elapsed)

	e.session = nil
	e.notifyUpdate()
}

// saveHistory appends a terminal record for the current session.
// Caller holds the lock; the session must still be present.
func (e *Engine) saveHistory(ctx context.Context, routine *Routine) {
	if e.session == nil {
		return
	}
	p := e.progress()
	startedAt := time.Now()
	if e.session.StartedAt != nil {
		startedAt = *e.session.StartedAt
	}
	completedAt := time.Now()
	if e.session.CompletedAt != nil {
		completedAt = *e.session.CompletedAt
	}
	record := &SessionHistory{
		ID:             e.session.ID,
		RoutineID:      e.session.RoutineID,
		RoutineName:    routineName(routine),
		Status:         e.session.Status,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		TotalDuration:  e.session.ElapsedTime,
		TasksCompleted: p.Completed,
		TasksSkipped:   p.Skipped,
		TotalTasks:     p.Total,
	}
	if err := e.catalog.AddHistory(ctx, record); err != nil {
		e.logger.Error("save session history", "session_id", record.ID, "err", err)
	}
}

func (e *Engine) publishTaskStarted(task *Task, index int) {
	e.events.Publish(bus.TopicTaskStarted, bus.TaskEvent{
		RoutineID:       e.session.RoutineID,
		TaskID:          task.ID,
		TaskName:        task.Name,
		TaskIndex:       index,
		Duration:        task.Duration,
		AdvancementMode: string(task.AdvancementMode),
	})
}

func (e *Engine) notificationsEnabled(ctx context.Context) bool {
	return e.notifier != nil && e.catalog.NotificationsEnabled(ctx)
}

// notificationSettings returns the routine override when present, otherwise the
// global settings.
func (e *Engine) notificationSettings(ctx context.Context, routine *Routine) NotificationSettings {
	if routine != nil && routine.Notification != nil {
		return *routine.Notification
	}
	return e.catalog.GlobalNotificationSettings(ctx)
}

// dispatch sends a notification without blocking the caller. Failures are
// logged and swallowed so a broken channel cannot stall the tick loop.
func (e *Engine) dispatch(name string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Warn("notification send failed", "notification", name, "err", err)
		}
	}()
}

func (e *Engine) notifyUpdate() {
	if e.onUpdate != nil {
		e.onUpdate()
	}
}

func routineName(r *Routine) string {
	if r == nil {
		return ""
	}
	return r.Name
}

func taskID(t *Task) string {
	if t == nil {
		return ""
	}
	return t.ID
}

func taskName(t *Task) string {
	if t == nil {
		return ""
	}
	return t.Name
}
