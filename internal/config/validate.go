package config

import (
	"fmt"
	"strings"

	logx "nudge/pkg/logx"
)

// Validate checks field-level constraints. Component-specific parsing
// (cron schedules, storage drivers) is layered on by the caller.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file.path is required when logging.file.enabled is true")
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	tg := cfg.Dispatch.Telegram
	if tg.RatePerSec < 0 {
		return fmt.Errorf("dispatch.telegram.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("dispatch.telegram.timeout", tg.Timeout); err != nil {
		return err
	}
	if tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			return fmt.Errorf("dispatch.telegram.token is required when telegram dispatch is enabled")
		}
		if tg.ChatID == 0 {
			return fmt.Errorf("dispatch.telegram.chat_id is required when telegram dispatch is enabled")
		}
	}

	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required when http.enabled is true")
	}
	for key, raw := range map[string]string{
		"http.read_timeout":  cfg.HTTP.ReadTimeout,
		"http.write_timeout": cfg.HTTP.WriteTimeout,
		"http.idle_timeout":  cfg.HTTP.IdleTimeout,
	} {
		if _, err := ParseDurationField(key, raw); err != nil {
			return err
		}
	}
	return nil
}
