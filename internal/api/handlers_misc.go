package api

import (
	"encoding/json"
	"net/http"
	"time"

	"routinely/internal/core"
	"routinely/internal/store"
)

type historyResponse struct {
	ID             string `json:"id"`
	RoutineID      string `json:"routine_id"`
	RoutineName    string `json:"routine_name"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at"`
	CompletedAt    string `json:"completed_at"`
	TotalDuration  int    `json:"total_duration_s"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksSkipped   int    `json:"tasks_skipped"`
	TotalTasks     int    `json:"total_tasks"`
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	records, err := s.store.ListHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("list history", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list history")
		return
	}
	res := make([]historyResponse, 0, len(records))
	for _, record := range records {
		res = append(res, historyResponse{
			ID:             record.ID,
			RoutineID:      record.RoutineID,
			RoutineName:    record.RoutineName,
			Status:         string(record.Status),
			StartedAt:      record.StartedAt.UTC().Format(time.RFC3339),
			CompletedAt:    record.CompletedAt.UTC().Format(time.RFC3339),
			TotalDuration:  record.TotalDuration,
			TasksCompleted: record.TasksCompleted,
			TasksSkipped:   record.TasksSkipped,
			TotalTasks:     record.TotalTasks,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

type settingsResponse struct {
	NotificationsEnabled bool                      `json:"notifications_enabled"`
	EndingWarning        int                       `json:"task_ending_warning_s"`
	Notification         core.NotificationSettings `json:"notification_settings"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{
		NotificationsEnabled: s.store.NotificationsEnabled(r.Context()),
		EndingWarning:        s.store.EndingWarning(r.Context()),
		Notification:         s.store.GlobalNotificationSettings(r.Context()),
	})
}

type updateSettingsRequest struct {
	NotificationsEnabled    *bool   `json:"notifications_enabled"`
	EndingWarning           *int    `json:"task_ending_warning_s"`
	NotifyBefore            *[]int  `json:"notify_before"`
	NotifyOnStart           *bool   `json:"notify_on_start"`
	NotifyRemaining         *[]int  `json:"notify_remaining"`
	NotifyOverdue           *[]int  `json:"notify_overdue"`
	NotifyOnComplete        *bool   `json:"notify_on_complete"`
	AutoNextNotifyBefore    *[]int  `json:"autonext_notify_before"`
	AutoNextNotifyRemaining *[]int  `json:"autonext_notify_remaining"`
	NotificationTargets     *string `json:"notification_targets"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.EndingWarning != nil && *req.EndingWarning < 1 {
		writeError(w, http.StatusBadRequest, "invalid_input", "task_ending_warning_s must be positive")
		return
	}

	updates := map[string]any{}
	if req.NotificationsEnabled != nil {
		updates[store.SettingEnableNotifications] = *req.NotificationsEnabled
	}
	if req.EndingWarning != nil {
		updates[store.SettingEndingWarning] = *req.EndingWarning
	}
	if req.NotifyBefore != nil {
		updates[store.SettingNotifyBefore] = *req.NotifyBefore
	}
	if req.NotifyOnStart != nil {
		updates[store.SettingNotifyOnStart] = *req.NotifyOnStart
	}
	if req.NotifyRemaining != nil {
		updates[store.SettingNotifyRemaining] = *req.NotifyRemaining
	}
	if req.NotifyOverdue != nil {
		updates[store.SettingNotifyOverdue] = *req.NotifyOverdue
	}
	if req.NotifyOnComplete != nil {
		updates[store.SettingNotifyOnComplete] = *req.NotifyOnComplete
	}
	if req.AutoNextNotifyBefore != nil {
		updates[store.SettingAutoNextBefore] = *req.AutoNextNotifyBefore
	}
	if req.AutoNextNotifyRemaining != nil {
		updates[store.SettingAutoNextRemaining] = *req.AutoNextNotifyRemaining
	}
	if req.NotificationTargets != nil {
		updates[store.SettingNotificationTargets] = *req.NotificationTargets
	}

	for key, value := range updates {
		if err := s.store.SetSetting(r.Context(), key, value); err != nil {
			s.logger.Error("update setting", "key", key, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to update settings")
			return
		}
	}
	s.handleGetSettings(w, r)
}

// handleTestNotification sends a test message through every configured channel.
func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		writeError(w, http.StatusConflict, "conflict", "no notification channels configured")
		return
	}
	routine := &core.Routine{Name: "Test"}
	if err := s.notifier.RoutineStarted(r.Context(), routine, 0, 0); err != nil {
		s.logger.Error("test notification", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to send test notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.engine.Healthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
