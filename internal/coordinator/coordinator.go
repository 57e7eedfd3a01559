package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"routinely/internal/bus"
	"routinely/internal/core"
)

// Snapshot is the flattened read model of the engine, refreshed once per
// second while a session is live and immediately on every state change.
// Everything a status display needs in one struct.
type Snapshot struct {
	Active bool   `json:"active"`
	Status string `json:"status"`

	RoutineID   string `json:"routine_id,omitempty"`
	RoutineName string `json:"routine_name,omitempty"`
	RoutineIcon string `json:"routine_icon,omitempty"`

	TaskIndex       int    `json:"task_index"`
	TaskName        string `json:"task_name,omitempty"`
	TaskIcon        string `json:"task_icon,omitempty"`
	TaskDuration    int    `json:"task_duration"`
	AdvancementMode string `json:"advancement_mode,omitempty"`

	TimeRemaining          int    `json:"time_remaining"`
	TimeRemainingFormatted string `json:"time_remaining_formatted"`
	ElapsedTime            int    `json:"elapsed_time"`
	TaskElapsedTime        int    `json:"task_elapsed_time"`

	TasksCompleted  int     `json:"tasks_completed"`
	TasksSkipped    int     `json:"tasks_skipped"`
	TotalTasks      int     `json:"total_tasks"`
	ProgressPercent float64 `json:"progress_percent"`

	ConfirmWindowActive bool   `json:"confirm_window_active"`
	StartedAt           string `json:"started_at,omitempty"`
	Healthy             bool   `json:"healthy"`
	UpdatedAt           string `json:"updated_at"`
}

// Coordinator maintains the snapshot and republishes it on the event bus so
// interface layers never reach into the engine on their own cadence.
type Coordinator struct {
	engine  *core.Engine
	catalog core.Catalog
	events  *bus.Bus
	logger  *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot

	// poke wakes the refresh loop outside the regular cadence.
	poke chan struct{}
}

func New(engine *core.Engine, catalog core.Catalog, events *bus.Bus, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		engine:  engine,
		catalog: catalog,
		events:  events,
		logger:  logger,
		poke:    make(chan struct{}, 1),
	}
	c.snapshot = Snapshot{Status: string(core.SessionIdle), Healthy: true}
	engine.SetUpdateCallback(c.Poke)
	return c
}

// Poke requests an immediate refresh. Safe to call from any goroutine,
// including engine callbacks holding the engine lock.
func (c *Coordinator) Poke() {
	select {
	case c.poke <- struct{}{}:
	default:
	}
}

// Run refreshes the snapshot once per second until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	c.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		case <-c.poke:
			c.refresh(ctx)
		}
	}
}

// Snapshot returns the latest read model.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Coordinator) refresh(ctx context.Context) {
	snap := c.build(ctx)
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	c.events.Publish(bus.TopicSnapshot, snap)
}

func (c *Coordinator) build(ctx context.Context) Snapshot {
	now := time.Now().UTC().Format(time.RFC3339)
	session := c.engine.Session()
	snap := Snapshot{
		Status:    string(core.SessionIdle),
		Healthy:   c.engine.Healthy(),
		UpdatedAt: now,
	}
	if session == nil {
		return snap
	}

	snap.Active = true
	snap.Status = string(session.Status)
	snap.RoutineID = session.RoutineID
	snap.ElapsedTime = session.ElapsedTime
	snap.TaskElapsedTime = session.TaskElapsedTime
	snap.ConfirmWindowActive = session.ConfirmWindowActive
	if session.StartedAt != nil {
		snap.StartedAt = session.StartedAt.UTC().Format(time.RFC3339)
	}

	if routine, err := c.catalog.GetRoutine(ctx, session.RoutineID); err == nil {
		snap.RoutineName = routine.Name
		snap.RoutineIcon = routine.Icon
	}

	p := c.engine.Progress()
	snap.TasksCompleted = p.Completed
	snap.TasksSkipped = p.Skipped
	snap.TotalTasks = p.ActiveTotal
	snap.TaskIndex = c.engine.ActiveTaskIndex()

	remaining := c.engine.TimeRemaining(ctx)
	snap.TimeRemaining = remaining
	snap.TimeRemainingFormatted = FormatClock(remaining)

	task := c.engine.CurrentTask(ctx)
	if task != nil {
		snap.TaskName = task.Name
		snap.TaskIcon = task.Icon
		snap.TaskDuration = task.Duration
		snap.AdvancementMode = string(task.AdvancementMode)
		snap.ProgressPercent = progressPercent(p, session.TaskElapsedTime, task.Duration)
	}
	return snap
}

// progressPercent counts finished tasks plus the fraction of the active one.
func progressPercent(p core.Progress, taskElapsed, taskDuration int) float64 {
	if p.ActiveTotal == 0 {
		return 0
	}
	frac := 0.0
	if taskDuration > 0 && taskElapsed > 0 {
		frac = float64(taskElapsed) / float64(taskDuration)
		if frac > 1 {
			frac = 1
		}
	}
	pct := (float64(p.Completed) + frac) / float64(p.ActiveTotal) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// FormatClock renders seconds as MM:SS, or H:MM:SS past an hour. Negative
// values (overdue) are prefixed with a minus sign.
func FormatClock(seconds int) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d", sign, hours, minutes, secs)
	}
	return fmt.Sprintf("%s%02d:%02d", sign, minutes, secs)
}
