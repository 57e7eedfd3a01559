package bus

// Routine lifecycle topics.
const (
	TopicRoutineStarted   = "routine.started"
	TopicRoutinePaused    = "routine.paused"
	TopicRoutineResumed   = "routine.resumed"
	TopicRoutineCompleted = "routine.completed"
	TopicRoutineCancelled = "routine.cancelled"
)

// Task lifecycle topics.
const (
	TopicTaskStarted       = "task.started"
	TopicTaskEndingSoon    = "task.ending_soon"
	TopicTaskCompleted     = "task.completed"
	TopicTaskSkipped       = "task.skipped"
	TopicTaskAwaitingInput = "task.awaiting_input"
)

// Presentation topic.
const (
	TopicSnapshot = "coordinator.snapshot"
)

// RoutineEvent is published on routine lifecycle transitions.
type RoutineEvent struct {
	RoutineID   string // Routine ID
	RoutineName string // Routine display name
	TotalTasks  int    // Tasks in this run, excluding pre-skipped (started only)
	Skipped     int    // Skipped count (completed/cancelled only)
	Completed   int    // Completed count (completed only)
	Duration    int    // Whole-session elapsed seconds (completed only)
}

// TaskEvent is published on task lifecycle transitions within a session.
type TaskEvent struct {
	RoutineID       string
	TaskID          string
	TaskName        string
	TaskIndex       int    // Index within the session order
	Duration        int    // Nominal duration in seconds
	AdvancementMode string // auto, manual or confirm
	TimeRemaining   int    // For ending_soon
	WasAutoAdvanced bool   // For completed
	ActualDuration  int    // For completed
}
