package core

import (
	"time"
)

// AdvancementMode controls how a task moves to the next one when its timer expires.
type AdvancementMode string

const (
	AdvanceAuto    AdvancementMode = "auto"
	AdvanceManual  AdvancementMode = "manual"
	AdvanceConfirm AdvancementMode = "confirm"
)

// SessionStatus describes the lifecycle state of an execution session.
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// TaskStatus describes a task's state within a session.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

// Limits and defaults for task and session behavior.
const (
	MinTaskDuration      = 1
	MaxTaskDuration      = 86400
	MinConfirmWindow     = 5
	MaxConfirmWindow     = 300
	MaxNameLength        = 100
	MaxDescriptionLength = 500

	DefaultConfirmWindow = 30
	DefaultSnoozeSeconds = 30
	DefaultEndingWarning = 10

	// Elapsed time may go this far negative, i.e. a task can be extended by at
	// most one hour beyond its nominal duration.
	MinTaskElapsed = -3600
)

// Task is an immutable timed unit of work. Owned by the catalog and referenced
// by id from routines and sessions.
type Task struct {
	ID                  string
	Name                string
	Duration            int // seconds
	Icon                string
	AdvancementMode     AdvancementMode
	ConfirmWindow       *int
	Description         *string
	NotificationMessage *string
	SpokenMessage       *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ConfirmWindowOrDefault returns the task's confirm window, falling back to the default.
func (t *Task) ConfirmWindowOrDefault() int {
	if t.ConfirmWindow != nil && *t.ConfirmWindow > 0 {
		return *t.ConfirmWindow
	}
	return DefaultConfirmWindow
}

// NotificationSettings holds notification timing lists in seconds.
type NotificationSettings struct {
	NotifyBefore            []int  `json:"notify_before"`
	NotifyOnStart           bool   `json:"notify_on_start"`
	NotifyRemaining         []int  `json:"notify_remaining"`
	NotifyOverdue           []int  `json:"notify_overdue"`
	NotifyOnComplete        bool   `json:"notify_on_complete"`
	AutoNextNotifyBefore    []int  `json:"autonext_notify_before"`
	AutoNextNotifyRemaining []int  `json:"autonext_notify_remaining"`
	NotificationTargets     string `json:"notification_targets,omitempty"`
}

// DefaultNotificationSettings returns the built-in timing defaults. Auto-advancing
// tasks get shorter lead times since they never wait on the user.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		NotifyBefore:            []int{600, 300, 60},
		NotifyOnStart:           true,
		NotifyRemaining:         []int{300, 60},
		NotifyOverdue:           []int{60, 300, 600},
		NotifyOnComplete:        false,
		AutoNextNotifyBefore:    []int{300, 60},
		AutoNextNotifyRemaining: []int{60},
	}
}

// Routine is an ordered collection of task references.
type Routine struct {
	ID           string
	Name         string
	Icon         string
	TaskIDs      []string
	Tags         []string
	ScheduleTime string   // display hint, e.g. "08:00"
	ScheduleDays []string // display hint, e.g. ["mon", "tue"]
	Notification *NotificationSettings
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskState is the mutable per-session state of one task instance.
type TaskState struct {
	TaskID          string
	Status          TaskStatus
	StartedAt       *time.Time
	CompletedAt     *time.Time
	SkippedAt       *time.Time
	ActualDuration  *int
	WasAutoAdvanced bool

	// Sent-notification markers guarantee each timed notification fires at
	// most once per task instance, surviving pause/resume.
	SentBefore    []int
	SentRemaining []int
	SentOverdue   []int
	SentStart     bool
	SentComplete  bool
}

// PreSkipped reports whether this task was excluded before the run began.
// Pre-skipped tasks never became active and carry no start timestamp.
func (ts *TaskState) PreSkipped() bool {
	return ts.Status == TaskSkipped && ts.StartedAt == nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// ExecutionSession is the single active run of a routine.
type ExecutionSession struct {
	ID               string
	RoutineID        string
	Status           SessionStatus
	CurrentTaskIndex int
	TaskStates       []*TaskState
	// Task order captured at session start so in-flight routine edits do not
	// corrupt an active run.
	TaskIDs []string

	StartedAt   *time.Time
	PausedAt    *time.Time
	CompletedAt *time.Time

	ElapsedTime     int
	TaskElapsedTime int

	ConfirmWindowActive    bool
	ConfirmWindowRemaining int
}

// Clone returns a deep copy safe to hand to readers outside the engine lock.
func (s *ExecutionSession) Clone() *ExecutionSession {
	if s == nil {
		return nil
	}
	out := *s
	out.TaskIDs = append([]string(nil), s.TaskIDs...)
	out.TaskStates = make([]*TaskState, len(s.TaskStates))
	for i, ts := range s.TaskStates {
		cp := *ts
		cp.SentBefore = append([]int(nil), ts.SentBefore...)
		cp.SentRemaining = append([]int(nil), ts.SentRemaining...)
		cp.SentOverdue = append([]int(nil), ts.SentOverdue...)
		out.TaskStates[i] = &cp
	}
	return &out
}

// Progress summarizes a session. ActiveTotal excludes pre-skipped tasks.
type Progress struct {
	Completed   int
	Skipped     int
	Total       int
	ActiveTotal int
}

// SessionHistory is an immutable record of a terminal session.
type SessionHistory struct {
	ID             string
	RoutineID      string
	RoutineName    string
	Status         SessionStatus
	StartedAt      time.Time
	CompletedAt    time.Time
	TotalDuration  int
	TasksCompleted int
	TasksSkipped   int
	TotalTasks     int
}
