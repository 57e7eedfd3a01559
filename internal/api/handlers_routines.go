package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"routinely/internal/core"
	"routinely/internal/store"

	"github.com/go-chi/chi/v5"
)

type createRoutineRequest struct {
	Name         string                     `json:"name"`
	Icon         string                     `json:"icon"`
	TaskIDs      []string                   `json:"task_ids"`
	Tags         []string                   `json:"tags"`
	ScheduleTime string                     `json:"schedule_time"`
	ScheduleDays []string                   `json:"schedule_days"`
	Notification *core.NotificationSettings `json:"notification_settings"`
}

type updateRoutineRequest struct {
	Name         *string                    `json:"name"`
	Icon         *string                    `json:"icon"`
	TaskIDs      *[]string                  `json:"task_ids"`
	Tags         *[]string                  `json:"tags"`
	ScheduleTime *string                    `json:"schedule_time"`
	ScheduleDays *[]string                  `json:"schedule_days"`
	Notification *core.NotificationSettings `json:"notification_settings"`
}

type routineResponse struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Icon         string                     `json:"icon,omitempty"`
	TaskIDs      []string                   `json:"task_ids"`
	Tags         []string                   `json:"tags,omitempty"`
	ScheduleTime string                     `json:"schedule_time,omitempty"`
	ScheduleDays []string                   `json:"schedule_days,omitempty"`
	Notification *core.NotificationSettings `json:"notification_settings,omitempty"`
	Duration     int                        `json:"duration_s"`
	CreatedAt    string                     `json:"created_at"`
	UpdatedAt    string                     `json:"updated_at"`
}

type startRoutineRequest struct {
	SkipTaskIDs []string `json:"skip_task_ids"`
	TaskOrder   []string `json:"task_order"`
}

// validateRoutineTasks verifies every referenced task exists.
func (s *Server) validateRoutineTasks(r *http.Request, taskIDs []string) string {
	for _, id := range taskIDs {
		if _, err := s.store.GetTask(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				return "unknown task id: " + id
			}
			return "failed to verify task ids"
		}
	}
	return ""
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	var req createRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	name, msg := validateTaskName(req.Name)
	if msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_input", msg)
		return
	}
	if msg := s.validateRoutineTasks(r, req.TaskIDs); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_input", msg)
		return
	}
	if req.ScheduleTime != "" {
		if _, err := core.ScheduleExpr(req.ScheduleTime, req.ScheduleDays); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
			return
		}
	}

	routine := &core.Routine{
		ID:           core.NewID(),
		Name:         name,
		Icon:         strings.TrimSpace(req.Icon),
		TaskIDs:      req.TaskIDs,
		Tags:         req.Tags,
		ScheduleTime: req.ScheduleTime,
		ScheduleDays: req.ScheduleDays,
		Notification: req.Notification,
	}
	if routine.TaskIDs == nil {
		routine.TaskIDs = []string{}
	}
	if routine.Tags == nil {
		routine.Tags = []string{}
	}
	if routine.ScheduleDays == nil {
		routine.ScheduleDays = []string{}
	}

	if err := s.store.InsertRoutine(r.Context(), routine); err != nil {
		s.logger.Error("insert routine", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to insert routine")
		return
	}
	writeJSON(w, http.StatusCreated, s.routineToResponse(r, routine))
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := s.store.ListRoutines(r.Context())
	if err != nil {
		s.logger.Error("list routines", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list routines")
		return
	}
	res := make([]routineResponse, 0, len(routines))
	for _, routine := range routines {
		res = append(res, s.routineToResponse(r, routine))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	routine, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.routineToResponse(r, routine))
}

func (s *Server) handleUpdateRoutine(w http.ResponseWriter, r *http.Request) {
	routine, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}

	var req updateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if req.Name != nil {
		name, msg := validateTaskName(*req.Name)
		if msg != "" {
			writeError(w, http.StatusBadRequest, "invalid_input", msg)
			return
		}
		routine.Name = name
	}
	if req.Icon != nil {
		routine.Icon = strings.TrimSpace(*req.Icon)
	}
	if req.TaskIDs != nil {
		if msg := s.validateRoutineTasks(r, *req.TaskIDs); msg != "" {
			writeError(w, http.StatusBadRequest, "invalid_input", msg)
			return
		}
		routine.TaskIDs = *req.TaskIDs
	}
	if req.Tags != nil {
		routine.Tags = *req.Tags
	}
	if req.ScheduleTime != nil {
		routine.ScheduleTime = strings.TrimSpace(*req.ScheduleTime)
	}
	if req.ScheduleDays != nil {
		routine.ScheduleDays = *req.ScheduleDays
	}
	if routine.ScheduleTime != "" {
		if _, err := core.ScheduleExpr(routine.ScheduleTime, routine.ScheduleDays); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
			return
		}
	}
	if req.Notification != nil {
		routine.Notification = req.Notification
	}

	if err := s.store.UpdateRoutine(r.Context(), routine); err != nil {
		s.logger.Error("update routine", "routine_id", routine.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update routine")
		return
	}
	writeJSON(w, http.StatusOK, s.routineToResponse(r, routine))
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	routineID := chi.URLParam(r, "routineID")
	if err := s.store.DeleteRoutine(r.Context(), routineID); err != nil {
		if errors.Is(err, store.ErrRoutineNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "routine not found")
		} else {
			s.logger.Error("delete routine", "routine_id", routineID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete routine")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoutineAddTask(w http.ResponseWriter, r *http.Request) {
	routine, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}

	var req struct {
		TaskID   string `json:"task_id"`
		Position *int   `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if msg := s.validateRoutineTasks(r, []string{req.TaskID}); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_input", msg)
		return
	}

	pos := len(routine.TaskIDs)
	if req.Position != nil && *req.Position >= 0 && *req.Position < pos {
		pos = *req.Position
	}
	routine.TaskIDs = append(routine.TaskIDs, "")
	copy(routine.TaskIDs[pos+1:], routine.TaskIDs[pos:])
	routine.TaskIDs[pos] = req.TaskID

	if err := s.store.UpdateRoutine(r.Context(), routine); err != nil {
		s.logger.Error("add task to routine", "routine_id", routine.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update routine")
		return
	}
	writeJSON(w, http.StatusOK, s.routineToResponse(r, routine))
}

func (s *Server) handleRoutineRemoveTask(w http.ResponseWriter, r *http.Request) {
	routine, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	filtered := routine.TaskIDs[:0]
	removed := false
	for _, id := range routine.TaskIDs {
		if id == taskID {
			removed = true
			continue
		}
		filtered = append(filtered, id)
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", "task not in routine")
		return
	}
	routine.TaskIDs = filtered

	if err := s.store.UpdateRoutine(r.Context(), routine); err != nil {
		s.logger.Error("remove task from routine", "routine_id", routine.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update routine")
		return
	}
	writeJSON(w, http.StatusOK, s.routineToResponse(r, routine))
}

func (s *Server) handleRoutineReorderTasks(w http.ResponseWriter, r *http.Request) {
	routine, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}

	var req struct {
		TaskIDs []string `json:"task_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	// The new order must be a permutation of the current membership.
	if len(req.TaskIDs) != len(routine.TaskIDs) {
		writeError(w, http.StatusBadRequest, "invalid_input", "task_ids must contain exactly the routine's tasks")
		return
	}
	current := make(map[string]int, len(routine.TaskIDs))
	for _, id := range routine.TaskIDs {
		current[id]++
	}
	for _, id := range req.TaskIDs {
		if current[id] == 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "task_ids must contain exactly the routine's tasks")
			return
		}
		current[id]--
	}
	routine.TaskIDs = req.TaskIDs

	if err := s.store.UpdateRoutine(r.Context(), routine); err != nil {
		s.logger.Error("reorder routine tasks", "routine_id", routine.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update routine")
		return
	}
	writeJSON(w, http.StatusOK, s.routineToResponse(r, routine))
}

func (s *Server) handleStartRoutine(w http.ResponseWriter, r *http.Request) {
	routine, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}

	var req startRoutineRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}

	started := s.engine.StartRoutine(r.Context(), routine.ID, core.StartOptions{
		SkipTaskIDs: req.SkipTaskIDs,
		TaskOrder:   req.TaskOrder,
	})
	if !started {
		writeError(w, http.StatusConflict, "conflict", "another routine is active or the routine has no tasks")
		return
	}
	writeJSON(w, http.StatusAccepted, s.coordinator.Snapshot())
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	routine, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}
	if routine.ScheduleTime == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "routine has no schedule")
		return
	}

	expr, err := core.ScheduleExpr(routine.ScheduleTime, routine.ScheduleDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
		return
	}
	schedule, err := core.ParseSchedule(expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
		return
	}

	count := parseIntDefault(r.URL.Query().Get("count"), 3)
	if count < 1 || count > 10 {
		count = 3
	}
	occurrences := core.NextOccurrences(schedule, time.Now(), count)
	formatted := make([]string, 0, len(occurrences))
	for _, t := range occurrences {
		formatted = append(formatted, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expr": expr,
		"next": formatted,
	})
}

func (s *Server) loadRoutine(w http.ResponseWriter, r *http.Request) (*core.Routine, bool) {
	routineID := chi.URLParam(r, "routineID")
	routine, err := s.store.GetRoutine(r.Context(), routineID)
	if err != nil {
		if errors.Is(err, store.ErrRoutineNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "routine not found")
		} else {
			s.logger.Error("get routine", "routine_id", routineID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load routine")
		}
		return nil, false
	}
	return routine, true
}

func (s *Server) routineToResponse(r *http.Request, routine *core.Routine) routineResponse {
	duration, err := s.store.RoutineDuration(r.Context(), routine, nil)
	if err != nil {
		s.logger.Warn("compute routine duration", "routine_id", routine.ID, "err", err)
	}
	return routineResponse{
		ID:           routine.ID,
		Name:         routine.Name,
		Icon:         routine.Icon,
		TaskIDs:      routine.TaskIDs,
		Tags:         routine.Tags,
		ScheduleTime: routine.ScheduleTime,
		ScheduleDays: routine.ScheduleDays,
		Notification: routine.Notification,
		Duration:     duration,
		CreatedAt:    routine.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    routine.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
