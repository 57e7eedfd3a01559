package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"routinely/internal/core"
)

// Settings keys. Values are stored as JSON so lists and booleans round-trip.
const (
	SettingEnableNotifications = "enable_notifications"
	SettingNotifyBefore        = "notify_before"
	SettingNotifyOnStart       = "notify_on_start"
	SettingNotifyRemaining     = "notify_remaining"
	SettingNotifyOverdue       = "notify_overdue"
	SettingNotifyOnComplete    = "notify_on_complete"
	SettingAutoNextBefore      = "autonext_notify_before"
	SettingAutoNextRemaining   = "autonext_notify_remaining"
	SettingNotificationTargets = "notification_targets"
	SettingEndingWarning       = "task_ending_warning"
)

// Setting reads one raw JSON value. Returns ok=false when the key is absent.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts one setting. The value is JSON-encoded before storage.
func (s *Store) SetSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// Settings returns all stored settings as raw JSON values keyed by name.
func (s *Store) Settings(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) settingIntList(ctx context.Context, key string, fallback []int) []int {
	raw, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var out []int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback
	}
	return out
}

func (s *Store) settingBool(ctx context.Context, key string, fallback bool) bool {
	raw, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var out bool
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback
	}
	return out
}

func (s *Store) settingInt(ctx context.Context, key string, fallback int) int {
	raw, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var out int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback
	}
	return out
}

func (s *Store) settingString(ctx context.Context, key string, fallback string) string {
	raw, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var out string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback
	}
	return out
}

// GlobalNotificationSettings assembles the configured timing lists, falling
// back to built-in defaults per key. Unreadable values fall back rather than
// fail so a bad setting cannot stall the tick loop.
func (s *Store) GlobalNotificationSettings(ctx context.Context) core.NotificationSettings {
	defaults := core.DefaultNotificationSettings()
	return core.NotificationSettings{
		NotifyBefore:            s.settingIntList(ctx, SettingNotifyBefore, defaults.NotifyBefore),
		NotifyOnStart:           s.settingBool(ctx, SettingNotifyOnStart, defaults.NotifyOnStart),
		NotifyRemaining:         s.settingIntList(ctx, SettingNotifyRemaining, defaults.NotifyRemaining),
		NotifyOverdue:           s.settingIntList(ctx, SettingNotifyOverdue, defaults.NotifyOverdue),
		NotifyOnComplete:        s.settingBool(ctx, SettingNotifyOnComplete, defaults.NotifyOnComplete),
		AutoNextNotifyBefore:    s.settingIntList(ctx, SettingAutoNextBefore, defaults.AutoNextNotifyBefore),
		AutoNextNotifyRemaining: s.settingIntList(ctx, SettingAutoNextRemaining, defaults.AutoNextNotifyRemaining),
		NotificationTargets:     s.settingString(ctx, SettingNotificationTargets, ""),
	}
}

// NotificationsEnabled reports the global notification switch, default on.
func (s *Store) NotificationsEnabled(ctx context.Context) bool {
	return s.settingBool(ctx, SettingEnableNotifications, true)
}

// EndingWarning returns the seconds-before-expiry mark for the ending-soon alert.
func (s *Store) EndingWarning(ctx context.Context) int {
	v := s.settingInt(ctx, SettingEndingWarning, core.DefaultEndingWarning)
	if v <= 0 {
		return core.DefaultEndingWarning
	}
	return v
}
