package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"routinely/internal/core"
)

// Action identifies an actionable button attached to a push notification.
type Action string

const (
	ActionPause    Action = "ROUTINELY_PAUSE"
	ActionResume   Action = "ROUTINELY_RESUME"
	ActionSkip     Action = "ROUTINELY_SKIP"
	ActionComplete Action = "ROUTINELY_COMPLETE"
	ActionConfirm  Action = "ROUTINELY_CONFIRM"
	ActionSnooze   Action = "ROUTINELY_SNOOZE"
	ActionCancel   Action = "ROUTINELY_CANCEL"
)

// ActionTitle returns the display label for an action button.
func ActionTitle(a Action) string {
	switch a {
	case ActionPause:
		return "Pause"
	case ActionResume:
		return "Resume"
	case ActionSkip:
		return "Skip"
	case ActionComplete:
		return "Done"
	case ActionConfirm:
		return "Continue"
	case ActionSnooze:
		return "+30s"
	case ActionCancel:
		return "Cancel"
	}
	return string(a)
}

// Message is one fully rendered notification intent handed to delivery channels.
type Message struct {
	Type     string
	Title    string
	Body     string
	Spoken   string
	Critical bool
	Actions  []Action
	// Targets optionally scopes delivery, comma-separated channel-specific ids.
	// Empty means every configured destination.
	Targets string
}

// Channel delivers rendered messages over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Clearer is implemented by channels that can retract previously sent
// notifications.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Dispatcher renders notification intents into messages and fans them out to
// all configured channels. Channel failures are logged and never propagated;
// one dead transport must not break the rest.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger

	mu             sync.Mutex
	routineTargets string
}

func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		logger:   logger,
	}
}

// SetActiveRoutineTargets scopes subsequent notifications to the given
// targets until cleared. Used for per-routine target overrides.
func (d *Dispatcher) SetActiveRoutineTargets(targets string) {
	d.mu.Lock()
	d.routineTargets = targets
	d.mu.Unlock()
}

// ClearActiveRoutineTargets removes the per-routine target override.
func (d *Dispatcher) ClearActiveRoutineTargets() {
	d.mu.Lock()
	d.routineTargets = ""
	d.mu.Unlock()
}

func (d *Dispatcher) activeTargets() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.routineTargets
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	if msg.Targets == "" {
		msg.Targets = d.activeTargets()
	}
	if msg.Spoken == "" {
		msg.Spoken = msg.Body
	}
	for _, ch := range d.channels {
		if err := ch.Send(ctx, msg); err != nil {
			d.logger.Error("notification channel failed",
				"channel", ch.Name(), "type", msg.Type, "err", err)
		}
	}
	return nil
}

func (d *Dispatcher) RoutineStarted(ctx context.Context, routine *core.Routine, totalTasks, estimatedDuration int) error {
	minutes := float64(estimatedDuration) / 60
	return d.send(ctx, Message{
		Type:    "routine_started",
		Title:   routine.Name,
		Body:    fmt.Sprintf("Starting %s - %d tasks, ~%.1f minutes", routine.Name, totalTasks, minutes),
		Spoken:  fmt.Sprintf("Starting %s. %d tasks, about %d minutes.", routine.Name, totalTasks, int(minutes)),
		Actions: []Action{ActionPause, ActionCancel},
	})
}

func (d *Dispatcher) RoutinePaused(ctx context.Context, routine *core.Routine) error {
	return d.send(ctx, Message{
		Type:    "routine_paused",
		Title:   routine.Name,
		Body:    fmt.Sprintf("%s paused", routine.Name),
		Actions: []Action{ActionResume, ActionCancel},
	})
}

func (d *Dispatcher) RoutineResumed(ctx context.Context, routine *core.Routine, current *core.Task) error {
	currentName := ""
	if current != nil {
		currentName = current.Name
	}
	return d.send(ctx, Message{
		Type:    "routine_resumed",
		Title:   routine.Name,
		Body:    fmt.Sprintf("%s resumed - %s", routine.Name, currentName),
		Spoken:  fmt.Sprintf("%s resumed. Current task: %s.", routine.Name, currentName),
		Actions: []Action{ActionPause, ActionSkip},
	})
}

func (d *Dispatcher) RoutineCompleted(ctx context.Context, routine *core.Routine, completed, skipped, totalDuration int) error {
	spoken := fmt.Sprintf("%s complete! %d tasks finished in %s.",
		routine.Name, completed, formatDurationSpoken(totalDuration))
	if skipped > 0 {
		spoken += fmt.Sprintf(" %d tasks skipped.", skipped)
	}
	return d.send(ctx, Message{
		Type:   "routine_completed",
		Title:  fmt.Sprintf("%s Complete!", routine.Name),
		Body:   fmt.Sprintf("%s complete! %d tasks in %s", routine.Name, completed, formatDuration(totalDuration)),
		Spoken: spoken,
	})
}

func (d *Dispatcher) RoutineCancelled(ctx context.Context, routine *core.Routine) error {
	return d.send(ctx, Message{
		Type:  "routine_cancelled",
		Title: routine.Name,
		Body:  fmt.Sprintf("%s cancelled", routine.Name),
	})
}

func (d *Dispatcher) TaskStarted(ctx context.Context, task *core.Task, routineName string, taskIndex, totalTasks int) error {
	body := fmt.Sprintf("%s - %s", task.Name, formatDuration(task.Duration))
	if task.NotificationMessage != nil && *task.NotificationMessage != "" {
		body = *task.NotificationMessage
	}
	spoken := fmt.Sprintf("%s. %s.", task.Name, formatDurationSpoken(task.Duration))
	if task.SpokenMessage != nil && *task.SpokenMessage != "" {
		spoken = *task.SpokenMessage
	}
	actions := []Action{ActionSkip, ActionPause}
	if task.AdvancementMode == core.AdvanceManual {
		actions = append([]Action{ActionComplete}, actions...)
	}
	return d.send(ctx, Message{
		Type:    "task_started",
		Title:   task.Name,
		Body:    fmt.Sprintf("%s (%d/%d)", body, taskIndex+1, totalTasks),
		Spoken:  spoken,
		Actions: actions,
	})
}

func (d *Dispatcher) TaskEndingSoon(ctx context.Context, task *core.Task, secondsRemaining int) error {
	return d.send(ctx, Message{
		Type:     "task_ending",
		Title:    task.Name,
		Body:     fmt.Sprintf("%s ending in %d seconds", task.Name, secondsRemaining),
		Critical: true,
		Actions:  []Action{ActionSkip, ActionComplete},
	})
}

func (d *Dispatcher) TimeUntilTask(ctx context.Context, task *core.Task, secondsUntil int) error {
	return d.send(ctx, Message{
		Type:    "task_upcoming",
		Title:   task.Name,
		Body:    fmt.Sprintf("%s until %s", formatDurationSpoken(secondsUntil), task.Name),
		Actions: []Action{ActionPause},
	})
}

func (d *Dispatcher) TimeRemaining(ctx context.Context, task *core.Task, secondsRemaining int) error {
	return d.send(ctx, Message{
		Type:    "task_remaining",
		Title:   task.Name,
		Body:    fmt.Sprintf("%s remaining in %s", formatDurationSpoken(secondsRemaining), task.Name),
		Actions: []Action{ActionComplete, ActionSkip},
	})
}

func (d *Dispatcher) TaskOverdue(ctx context.Context, task *core.Task, secondsOverdue int) error {
	return d.send(ctx, Message{
		Type:     "task_overdue",
		Title:    fmt.Sprintf("%s Overdue", task.Name),
		Body:     fmt.Sprintf("%s over on %s", formatDurationSpoken(secondsOverdue), task.Name),
		Critical: true,
		Actions:  []Action{ActionComplete, ActionSkip},
	})
}

func (d *Dispatcher) TaskComplete(ctx context.Context, task *core.Task) error {
	return d.send(ctx, Message{
		Type:  "task_completed",
		Title: task.Name,
		Body:  fmt.Sprintf("%s completed", task.Name),
	})
}

func (d *Dispatcher) TaskAwaitingInput(ctx context.Context, task *core.Task, confirmMode bool, confirmWindow int) error {
	if confirmMode {
		return d.send(ctx, Message{
			Type:     "awaiting_input",
			Title:    task.Name,
			Body:     fmt.Sprintf("%s complete. Tap to continue or wait %ds", task.Name, confirmWindow),
			Spoken:   fmt.Sprintf("%s complete. Tap continue or snooze.", task.Name),
			Critical: true,
			Actions:  []Action{ActionConfirm, ActionSnooze},
		})
	}
	return d.send(ctx, Message{
		Type:     "awaiting_input",
		Title:    task.Name,
		Body:     fmt.Sprintf("%s timer finished. Mark complete when ready.", task.Name),
		Critical: true,
		Actions:  []Action{ActionComplete, ActionSkip},
	})
}

// ClearNotifications asks every channel that supports it to retract
// outstanding notifications.
func (d *Dispatcher) ClearNotifications(ctx context.Context) error {
	for _, ch := range d.channels {
		clearer, ok := ch.(Clearer)
		if !ok {
			continue
		}
		if err := clearer.Clear(ctx); err != nil {
			d.logger.Error("clear notifications failed", "channel", ch.Name(), "err", err)
		}
	}
	return nil
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	secs := seconds % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}

func formatDurationSpoken(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := seconds / 60
	secs := seconds % 60
	result := fmt.Sprintf("%d minutes", minutes)
	if minutes == 1 {
		result = "1 minute"
	}
	if secs > 0 {
		result += fmt.Sprintf(" %d seconds", secs)
	}
	return result
}
