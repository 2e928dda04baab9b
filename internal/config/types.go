package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1m").
//
// Files are decoded on top of Default(), so any omitted key keeps its
// default value.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Ticker   TickerConfig   `json:"ticker"`
	Dispatch DispatchConfig `json:"dispatch"`
	HTTP     HTTPConfig     `json:"http"`
	Systemd  SystemdConfig  `json:"systemd"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects where reminders are persisted.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./reminders.db", "busy_timeout": "2s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// TickerConfig controls the minute check. Schedule accepts a cron
// expression, "@every 1m", or a plain duration.
type TickerConfig struct {
	Schedule   string `json:"schedule"`
	RunOnStart bool   `json:"run_on_start"`
}

type DispatchConfig struct {
	Title    string           `json:"title,omitempty"`
	Console  ConsoleDispatch  `json:"console"`
	Log      LogDispatch      `json:"log"`
	Telegram TelegramDispatch `json:"telegram"`
}

type ConsoleDispatch struct {
	Enabled bool `json:"enabled"`
}

type LogDispatch struct {
	Enabled bool `json:"enabled"`
}

type TelegramDispatch struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"` // never logged
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// HTTPConfig controls the local API.
//
// Security note:
//   - Prefer binding to localhost (the default).
//   - A non-loopback address requires a token or allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
			File:    LoggingFile{Enabled: false, Path: "./nudge.log"},
		},
		Storage: StorageConfig{
			Driver:      "file",
			Path:        "./reminders.json",
			BusyTimeout: "1s",
		},
		Ticker: TickerConfig{
			Schedule:   "* * * * *",
			RunOnStart: true,
		},
		Dispatch: DispatchConfig{
			Title:   "Reminder!",
			Console: ConsoleDispatch{Enabled: true},
			Telegram: TelegramDispatch{
				RatePerSec: 1,
				Timeout:    "10s",
			},
		},
		HTTP: HTTPConfig{
			Enabled:     true,
			Addr:        "127.0.0.1:8089",
			Metrics:     true,
			ReadTimeout: "10s",
			IdleTimeout: "60s",
		},
		Systemd: SystemdConfig{Notify: true},
	}
}
