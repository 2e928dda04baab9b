package app

import (
	"fmt"
	"strings"
	"time"

	"nudge/internal/api"
	"nudge/internal/config"
	"nudge/internal/dispatch"
	"nudge/internal/storage"
	"nudge/internal/ticker"
	logx "nudge/pkg/logx"
)

func mapLogConfig(cfg *config.Config, stderr bool) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Stderr: stderr,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver, err := storage.NormalizeDriver(sc.Driver)
	if err != nil {
		return storage.Config{}, fmt.Errorf("storage.driver: %w", err)
	}
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case storage.DriverFile:
		if path == "" {
			path = storage.DefaultPath
		}
	case storage.DriverSQLite:
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapTickerConfig(cfg *config.Config) ticker.Config {
	return ticker.Config{
		Schedule:   strings.TrimSpace(cfg.Ticker.Schedule),
		RunOnStart: cfg.Ticker.RunOnStart,
	}
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	timeout, err := config.ParseDurationOrDefault("dispatch.telegram.timeout", d.Telegram.Timeout, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = dispatch.DefaultTitle
	}
	return dispatch.Config{
		Title:   title,
		Console: dispatch.ConsoleConfig{Enabled: d.Console.Enabled},
		Log:     dispatch.LogConfig{Enabled: d.Log.Enabled},
		Telegram: dispatch.TelegramConfig{
			Enabled:    d.Telegram.Enabled,
			Token:      strings.TrimSpace(d.Telegram.Token),
			ChatID:     d.Telegram.ChatID,
			ThreadID:   d.Telegram.ThreadID,
			RatePerSec: d.Telegram.RatePerSec,
			Timeout:    timeout,
		},
	}, nil
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	write, err := config.ParseDurationField("http.write_timeout", h.WriteTimeout)
	if err != nil {
		return api.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Enabled:       h.Enabled,
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Metrics:       h.Metrics,
		Pprof:         h.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// validateConfig runs the component-level checks config.Validate cannot:
// schedule syntax, driver names and the api bind policy. It is the hot
// reload validator, so a bad edit is rejected before anything is applied.
func validateConfig(cfg *config.Config) error {
	if _, err := ticker.ParseSchedule(cfg.Ticker.Schedule); err != nil {
		return fmt.Errorf("ticker.schedule: %w", err)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	ac, err := mapAPIConfig(cfg)
	if err != nil {
		return err
	}
	if ac.Enabled && !ac.AllowInsecure && ac.Token == "" && !api.IsLoopbackAddr(ac.Addr) {
		return fmt.Errorf("http.addr %q is not loopback: set http.token or http.allow_insecure", ac.Addr)
	}
	return nil
}
