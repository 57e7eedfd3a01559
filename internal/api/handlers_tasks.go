package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"routinely/internal/core"
	"routinely/internal/store"

	"github.com/go-chi/chi/v5"
)

type createTaskRequest struct {
	Name                string  `json:"name"`
	Duration            int     `json:"duration_s"`
	Icon                string  `json:"icon"`
	AdvancementMode     string  `json:"advancement_mode"`
	ConfirmWindow       *int    `json:"confirm_window_s"`
	Description         *string `json:"description"`
	NotificationMessage *string `json:"notification_message"`
	SpokenMessage       *string `json:"spoken_message"`
}

type updateTaskRequest struct {
	Name                *string `json:"name"`
	Duration            *int    `json:"duration_s"`
	Icon                *string `json:"icon"`
	AdvancementMode     *string `json:"advancement_mode"`
	ConfirmWindow       *int    `json:"confirm_window_s"`
	Description         *string `json:"description"`
	NotificationMessage *string `json:"notification_message"`
	SpokenMessage       *string `json:"spoken_message"`
}

type taskResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Duration            int     `json:"duration_s"`
	Icon                string  `json:"icon,omitempty"`
	AdvancementMode     string  `json:"advancement_mode"`
	ConfirmWindow       *int    `json:"confirm_window_s,omitempty"`
	Description         *string `json:"description,omitempty"`
	NotificationMessage *string `json:"notification_message,omitempty"`
	SpokenMessage       *string `json:"spoken_message,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

func validateTaskName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "name is required"
	}
	if len(name) > core.MaxNameLength {
		return "", "name exceeds maximum length"
	}
	return name, ""
}

func validateAdvancementMode(mode string) (core.AdvancementMode, string) {
	switch core.AdvancementMode(mode) {
	case core.AdvanceAuto, core.AdvanceManual, core.AdvanceConfirm:
		return core.AdvancementMode(mode), ""
	case "":
		return core.AdvanceAuto, ""
	}
	return "", "advancement_mode must be auto, manual or confirm"
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	name, msg := validateTaskName(req.Name)
	if msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_input", msg)
		return
	}
	if req.Duration < core.MinTaskDuration || req.Duration > core.MaxTaskDuration {
		writeError(w, http.StatusBadRequest, "invalid_input", "duration_s must be between 1 and 86400")
		return
	}
	mode, msg := validateAdvancementMode(req.AdvancementMode)
	if msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_input", msg)
		return
	}
	if req.ConfirmWindow != nil &&
		(*req.ConfirmWindow < core.MinConfirmWindow || *req.ConfirmWindow > core.MaxConfirmWindow) {
		writeError(w, http.StatusBadRequest, "invalid_input", "confirm_window_s must be between 5 and 300")
		return
	}
	if req.Description != nil && len(*req.Description) > core.MaxDescriptionLength {
		writeError(w, http.StatusBadRequest, "invalid_input", "description exceeds maximum length")
		return
	}

	task := &core.Task{
		ID:                  core.NewID(),
		Name:                name,
		Duration:            req.Duration,
		Icon:                strings.TrimSpace(req.Icon),
		AdvancementMode:     mode,
		ConfirmWindow:       req.ConfirmWindow,
		Description:         trimmedPtr(req.Description),
		NotificationMessage: trimmedPtr(req.NotificationMessage),
		SpokenMessage:       trimmedPtr(req.SpokenMessage),
	}

	if err := s.store.InsertTask(r.Context(), task); err != nil {
		s.logger.Error("insert task", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to insert task")
		return
	}
	writeJSON(w, http.StatusCreated, taskToResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
		} else {
			s.logger.Error("get task", "task_id", taskID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		}
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
		} else {
			s.logger.Error("get task for update", "task_id", taskID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		}
		return
	}

	var req updateTaskRequest
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
		task.Name = name
	}
	if req.Duration != nil {
		if *req.Duration < core.MinTaskDuration || *req.Duration > core.MaxTaskDuration {
			writeError(w, http.StatusBadRequest, "invalid_input", "duration_s must be between 1 and 86400")
			return
		}
		task.Duration = *req.Duration
	}
	if req.Icon != nil {
		task.Icon = strings.TrimSpace(*req.Icon)
	}
	if req.AdvancementMode != nil {
		mode, msg := validateAdvancementMode(*req.AdvancementMode)
		if msg != "" {
			writeError(w, http.StatusBadRequest, "invalid_input", msg)
			return
		}
		task.AdvancementMode = mode
	}
	if req.ConfirmWindow != nil {
		if *req.ConfirmWindow == 0 {
			task.ConfirmWindow = nil
		} else if *req.ConfirmWindow < core.MinConfirmWindow || *req.ConfirmWindow > core.MaxConfirmWindow {
			writeError(w, http.StatusBadRequest, "invalid_input", "confirm_window_s must be between 5 and 300")
			return
		} else {
			window := *req.ConfirmWindow
			task.ConfirmWindow = &window
		}
	}
	if req.Description != nil {
		if len(*req.Description) > core.MaxDescriptionLength {
			writeError(w, http.StatusBadRequest, "invalid_input", "description exceeds maximum length")
			return
		}
		task.Description = trimmedPtr(req.Description)
	}
	if req.NotificationMessage != nil {
		task.NotificationMessage = trimmedPtr(req.NotificationMessage)
	}
	if req.SpokenMessage != nil {
		task.SpokenMessage = trimmedPtr(req.SpokenMessage)
	}

	if err := s.store.UpdateTask(r.Context(), task); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		s.logger.Error("update task", "task_id", taskID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.store.DeleteTask(r.Context(), taskID); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
		} else {
			s.logger.Error("delete task", "task_id", taskID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete task")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func taskToResponse(task *core.Task) taskResponse {
	return taskResponse{
		ID:                  task.ID,
		Name:                task.Name,
		Duration:            task.Duration,
		Icon:                task.Icon,
		AdvancementMode:     string(task.AdvancementMode),
		ConfirmWindow:       task.ConfirmWindow,
		Description:         task.Description,
		NotificationMessage: task.NotificationMessage,
		SpokenMessage:       task.SpokenMessage,
		CreatedAt:           task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           task.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
