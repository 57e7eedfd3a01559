package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"routinely/internal/coordinator"
	"routinely/internal/core"
	"routinely/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	store       *store.Store
	engine      *core.Engine
	coordinator *coordinator.Coordinator
	logger      *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(st *store.Store, engine *core.Engine, coord *coordinator.Coordinator, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		store:       st,
		engine:      engine,
		coordinator: coord,
		logger:      logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"routinely",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("routine_list",
		mcp.WithDescription("List all routines with their tasks and schedules"),
	), s.handleListRoutines)

	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List all task definitions"),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("routine_start",
		mcp.WithDescription("Start executing a routine. Fails if another routine is already active"),
		mcp.WithString("routine_id",
			mcp.Required(),
			mcp.Description("Routine ID"),
		),
	), s.handleStartRoutine)

	mcpServer.AddTool(mcp.NewTool("routine_status",
		mcp.WithDescription("Get the current execution status: active routine, current task and time remaining"),
	), s.handleStatus)

	mcpServer.AddTool(mcp.NewTool("routine_pause",
		mcp.WithDescription("Pause the running routine"),
	), s.handlePause)

	mcpServer.AddTool(mcp.NewTool("routine_resume",
		mcp.WithDescription("Resume a paused routine"),
	), s.handleResume)

	mcpServer.AddTool(mcp.NewTool("routine_skip_task",
		mcp.WithDescription("Skip the current task and move to the next"),
	), s.handleSkip)

	mcpServer.AddTool(mcp.NewTool("routine_complete_task",
		mcp.WithDescription("Mark the current task complete. Only valid for manual or confirm tasks"),
	), s.handleComplete)

	mcpServer.AddTool(mcp.NewTool("routine_confirm",
		mcp.WithDescription("Acknowledge the confirm window and advance to the next task"),
	), s.handleConfirm)

	mcpServer.AddTool(mcp.NewTool("routine_snooze",
		mcp.WithDescription("Extend the confirm window countdown"),
		mcp.WithNumber("seconds",
			mcp.Description("Seconds to add, default 30"),
			mcp.Min(0),
		),
	), s.handleSnooze)

	mcpServer.AddTool(mcp.NewTool("routine_adjust_time",
		mcp.WithDescription("Add or remove time on the current task. Positive seconds extend it"),
		mcp.WithNumber("seconds",
			mcp.Required(),
			mcp.Description("Seconds to add (positive) or remove (negative)"),
		),
	), s.handleAdjustTime)

	mcpServer.AddTool(mcp.NewTool("routine_cancel",
		mcp.WithDescription("Cancel the active routine and discard the session"),
	), s.handleCancel)

	mcpServer.AddTool(mcp.NewTool("routine_history",
		mcp.WithDescription("Show recent routine completion history"),
		mcp.WithNumber("limit",
			mcp.Description("Number of records to return, default 10"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleHistory)

	s.logger.Info("MCP tools registered", "count", 13)
}

func (s *MCPServer) handleListRoutines(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routines, err := s.store.ListRoutines(ctx)
	if err != nil {
		s.logger.Error("list routines", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list routines: %v", err)), nil
	}
	if len(routines) == 0 {
		return mcp.NewToolResultText("No routines defined"), nil
	}

	result := fmt.Sprintf("Found %d routines:\n\n", len(routines))
	for _, routine := range routines {
		duration, _ := s.store.RoutineDuration(ctx, routine, nil)
		result += fmt.Sprintf("%s\n", routine.ID)
		result += fmt.Sprintf("  Name: %s\n", routine.Name)
		result += fmt.Sprintf("  Tasks: %d (~%s)\n", len(routine.TaskIDs), formatDuration(duration))
		if routine.ScheduleTime != "" {
			result += fmt.Sprintf("  Schedule: %s %v\n", routine.ScheduleTime, routine.ScheduleDays)
		}
		result += "\n"
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks defined"), nil
	}

	result := fmt.Sprintf("Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		result += fmt.Sprintf("%s\n", t.ID)
		result += fmt.Sprintf("  Name: %s\n", t.Name)
		result += fmt.Sprintf("  Duration: %s\n", formatDuration(t.Duration))
		result += fmt.Sprintf("  Mode: %s\n", t.AdvancementMode)
		result += "\n"
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleStartRoutine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routineID := mcp.ParseString(request, "routine_id", "")

	routine, err := s.store.GetRoutine(ctx, routineID)
	if err != nil {
		if errors.Is(err, store.ErrRoutineNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("routine not found: %s", routineID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to load routine: %v", err)), nil
	}

	if !s.engine.StartRoutine(ctx, routine.ID, core.StartOptions{}) {
		return mcp.NewToolResultError("cannot start: another routine is active or the routine has no tasks"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Started %s (%d tasks)", routine.Name, len(routine.TaskIDs))), nil
}

func (s *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.coordinator.Snapshot()
	if !snap.Active {
		return mcp.NewToolResultText("No routine is running"), nil
	}

	result := fmt.Sprintf("Routine: %s (%s)\n", snap.RoutineName, snap.Status)
	result += fmt.Sprintf("Task: %s (%d/%d)\n", snap.TaskName, snap.TaskIndex+1, snap.TotalTasks)
	result += fmt.Sprintf("Time remaining: %s\n", snap.TimeRemainingFormatted)
	result += fmt.Sprintf("Progress: %.0f%% (%d done, %d skipped)\n",
		snap.ProgressPercent, snap.TasksCompleted, snap.TasksSkipped)
	if snap.ConfirmWindowActive {
		result += "Waiting for confirmation\n"
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.engine.Pause(ctx) {
		return mcp.NewToolResultError("no running routine to pause"), nil
	}
	return mcp.NewToolResultText("Routine paused"), nil
}

func (s *MCPServer) handleResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.engine.Resume(ctx) {
		return mcp.NewToolResultError("no paused routine to resume"), nil
	}
	return mcp.NewToolResultText("Routine resumed"), nil
}

func (s *MCPServer) handleSkip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.engine.SkipTask(ctx) {
		return mcp.NewToolResultError("no active routine"), nil
	}
	return mcp.NewToolResultText("Task skipped"), nil
}

func (s *MCPServer) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.engine.CompleteTask(ctx) {
		return mcp.NewToolResultError("task cannot be completed manually"), nil
	}
	return mcp.NewToolResultText("Task completed"), nil
}

func (s *MCPServer) handleConfirm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.engine.Confirm(ctx) {
		return mcp.NewToolResultError("no confirm window active"), nil
	}
	return mcp.NewToolResultText("Task confirmed"), nil
}

func (s *MCPServer) handleSnooze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seconds := int(mcp.ParseFloat64(request, "seconds", 0))
	if !s.engine.Snooze(ctx, seconds) {
		return mcp.NewToolResultError("no confirm window active"), nil
	}
	return mcp.NewToolResultText("Confirm window extended"), nil
}

func (s *MCPServer) handleAdjustTime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seconds := int(mcp.ParseFloat64(request, "seconds", 0))
	if seconds == 0 {
		return mcp.NewToolResultError("seconds must be non-zero"), nil
	}
	if !s.engine.AdjustTaskTime(ctx, seconds) {
		return mcp.NewToolResultError("no active routine"), nil
	}
	remaining := s.engine.TimeRemaining(ctx)
	return mcp.NewToolResultText(fmt.Sprintf("Time adjusted, %s remaining", formatDuration(remaining))), nil
}

func (s *MCPServer) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.engine.Cancel(ctx) {
		return mcp.NewToolResultError("no active routine to cancel"), nil
	}
	return mcp.NewToolResultText("Routine cancelled"), nil
}

func (s *MCPServer) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 10))
	records, err := s.store.ListHistory(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list history: %v", err)), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("No history yet"), nil
	}

	result := fmt.Sprintf("Last %d sessions:\n\n", len(records))
	for _, record := range records {
		result += fmt.Sprintf("[%s] %s\n", record.Status, record.RoutineName)
		result += fmt.Sprintf("    Started: %s\n", record.StartedAt.Format("2006-01-02 15:04:05"))
		result += fmt.Sprintf("    Duration: %s\n", formatDuration(record.TotalDuration))
		result += fmt.Sprintf("    Tasks: %d done, %d skipped of %d\n",
			record.TasksCompleted, record.TasksSkipped, record.TotalTasks)
		result += "\n"
	}
	return mcp.NewToolResultText(result), nil
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	d := time.Duration(seconds) * time.Second
	return d.String()
}
