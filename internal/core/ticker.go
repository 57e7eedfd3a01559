package core

import (
	"context"
	"time"

	"routinely/internal/bus"
)

// startLoop launches the tick loop goroutine. Idempotent: a second call while
// a loop is running is a no-op. Caller holds the lock.
func (e *Engine) startLoop() {
	if e.loopCancel != nil {
		e.logger.Debug("tick loop already running")
		return
	}
	e.logger.Debug("starting tick loop")
	ctx, cancel := context.WithCancel(context.Background())
	e.loopCancel = cancel
	go e.runLoop(ctx)
}

// stopLoop cancels the running loop, if any. Cancellation is immediate: the
// loop never ticks again once its context is done. Caller holds the lock.
func (e *Engine) stopLoop() {
	if e.loopCancel != nil {
		e.logger.Debug("stopping tick loop")
		e.loopCancel()
		e.loopCancel = nil
	}
}

// runLoop ticks once per second while the session is running. An unexpected
// panic is logged and latches the health flag; the session is left in its last
// consistent state rather than silently corrupted.
func (e *Engine) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick loop fault", "panic", r)
			e.mu.Lock()
			e.healthy = false
			e.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("tick loop cancelled")
			return
		case <-ticker.C:
		}
		if !e.tick(ctx) {
			return
		}
	}
}

// tick performs one one-second step and reports whether the loop should keep
// going. Exposed to in-package tests for deterministic stepping.
func (e *Engine) tick(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	if e.session == nil || e.session.Status != SessionRunning {
		e.logger.Debug("tick loop exiting: session ended or paused")
		return false
	}

	e.session.ElapsedTime++
	e.session.TaskElapsedTime++

	task := e.currentTask(ctx)
	if task == nil {
		e.logger.Warn("tick loop: no current task found")
		return false
	}

	if e.session.ConfirmWindowActive {
		e.tickConfirmWindow(ctx)
	} else {
		e.tickTask(ctx, task)
	}

	e.notifyUpdate()
	return e.session != nil && e.session.Status == SessionRunning
}

// tickConfirmWindow counts the confirm window down and auto-completes at zero.
func (e *Engine) tickConfirmWindow(ctx context.Context) {
	e.session.ConfirmWindowRemaining--
	if e.session.ConfirmWindowRemaining <= 0 {
		e.session.ConfirmWindowActive = false
		e.completeCurrentTask(ctx, true)
	}
}

// tickTask handles one second of normal task execution: threshold
// notifications, the legacy ending-soon warning, and timer expiry.
func (e *Engine) tickTask(ctx context.Context, task *Task) {
	remaining := task.Duration - e.session.TaskElapsedTime
	overdue := 0
	if remaining < 0 {
		overdue = -remaining
	}

	state := e.session.TaskStates[e.session.CurrentTaskIndex]
	routine, _ := e.catalog.GetRoutine(ctx, e.session.RoutineID)
	settings := e.notificationSettings(ctx, routine)

	isAuto := task.AdvancementMode == AdvanceAuto
	notifyBefore := settings.NotifyBefore
	notifyRemaining := settings.NotifyRemaining
	if isAuto {
		notifyBefore = settings.AutoNextNotifyBefore
		notifyRemaining = settings.AutoNextNotifyRemaining
	}

	if e.notificationsEnabled(ctx) {
		// Equality, not <=: ticks are exactly one second apart, so each
		// threshold is crossed exactly once.
		for _, seconds := range notifyRemaining {
			if remaining == seconds && !containsInt(state.SentRemaining, seconds) {
				state.SentRemaining = append(state.SentRemaining, seconds)
				sec := seconds
				e.dispatch("time_remaining", func(ctx context.Context) error {
					return e.notifier.TimeRemaining(ctx, task, sec)
				})
			}
		}

		if overdue > 0 && !isAuto {
			for _, seconds := range settings.NotifyOverdue {
				if overdue >= seconds && !containsInt(state.SentOverdue, seconds) {
					state.SentOverdue = append(state.SentOverdue, seconds)
					sec := seconds
					e.dispatch("task_overdue", func(ctx context.Context) error {
						return e.notifier.TaskOverdue(ctx, task, sec)
					})
				}
			}
		}

		// Advance warning for the upcoming task: the current task's remaining
		// time is exactly the time until the next task starts. Indices walk
		// the session's snapshotted TaskIDs to stay aligned with TaskStates.
		nextIndex := e.session.CurrentTaskIndex + 1
		for nextIndex < len(e.session.TaskIDs) && e.session.TaskStates[nextIndex].Status == TaskSkipped {
			nextIndex++
		}
		if nextIndex < len(e.session.TaskIDs) && remaining > 0 {
			if nextTask, err := e.catalog.GetTask(ctx, e.session.TaskIDs[nextIndex]); err == nil {
				nextState := e.session.TaskStates[nextIndex]
				for _, seconds := range notifyBefore {
					if remaining == seconds && !containsInt(nextState.SentBefore, seconds) {
						nextState.SentBefore = append(nextState.SentBefore, seconds)
						sec := seconds
						e.dispatch("time_until_task", func(ctx context.Context) error {
							return e.notifier.TimeUntilTask(ctx, nextTask, sec)
						})
					}
				}
			}
		}
	}

	// Legacy one-shot ending-soon warning at a single configured offset.
	warning := e.catalog.EndingWarning(ctx)
	if remaining == warning && !e.endingSoonFired {
		e.endingSoonFired = true
		e.events.Publish(bus.TopicTaskEndingSoon, bus.TaskEvent{
			RoutineID:     e.session.RoutineID,
			TaskID:        task.ID,
			TaskName:      task.Name,
			TimeRemaining: remaining,
		})
		if e.notificationsEnabled(ctx) {
			sec := remaining
			e.dispatch("task_ending_soon", func(ctx context.Context) error {
				return e.notifier.TaskEndingSoon(ctx, task, sec)
			})
		}
	}

	if remaining <= 0 && !e.taskTimerExpired {
		e.taskTimerExpired = true
		e.handleTimerExpired(ctx, task)
	}
}

// handleTimerExpired dispatches on the task's advancement mode the first time
// its timer reaches zero.
func (e *Engine) handleTimerExpired(ctx context.Context, task *Task) {
	switch task.AdvancementMode {
	case AdvanceAuto:
		e.completeCurrentTask(ctx, true)

	case AdvanceManual:
		e.events.Publish(bus.TopicTaskAwaitingInput, bus.TaskEvent{
			RoutineID:       e.session.RoutineID,
			TaskID:          task.ID,
			TaskName:        task.Name,
			AdvancementMode: string(task.AdvancementMode),
		})
		if e.notificationsEnabled(ctx) {
			e.dispatch("awaiting_input", func(ctx context.Context) error {
				return e.notifier.TaskAwaitingInput(ctx, task, false, 0)
			})
		}

	case AdvanceConfirm:
		window := task.ConfirmWindowOrDefault()
		e.session.ConfirmWindowActive = true
		e.session.ConfirmWindowRemaining = window
		e.events.Publish(bus.TopicTaskAwaitingInput, bus.TaskEvent{
			RoutineID:       e.session.RoutineID,
			TaskID:          task.ID,
			TaskName:        task.Name,
			AdvancementMode: string(task.AdvancementMode),
		})
		if e.notificationsEnabled(ctx) {
			e.dispatch("awaiting_input", func(ctx context.Context) error {
				return e.notifier.TaskAwaitingInput(ctx, task, true, window)
			})
		}
	}
}
