package config

import (
	"reflect"
	"strings"

	logx "nudge/pkg/logx"
)

// Sections that cannot be applied to a running process.
var restartSections = map[string]bool{
	"storage": true,
	"systemd": true,
}

// SummarizeConfigChange lists the changed top-level sections and returns
// log-safe attributes describing the new values. Tokens are never included,
// only whether one is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Ticker, newCfg.Ticker) {
		changed = append(changed, "ticker")
		attrs = append(attrs,
			logx.String("ticker.schedule", newCfg.Ticker.Schedule),
			logx.Bool("ticker.run_on_start", newCfg.Ticker.RunOnStart),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		tg := newCfg.Dispatch.Telegram
		attrs = append(attrs,
			logx.Bool("dispatch.console", newCfg.Dispatch.Console.Enabled),
			logx.Bool("dispatch.log", newCfg.Dispatch.Log.Enabled),
			logx.Bool("dispatch.telegram", tg.Enabled),
			logx.Bool("dispatch.telegram.token_set", strings.TrimSpace(tg.Token) != ""),
			logx.Int64("dispatch.telegram.chat_id", tg.ChatID),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
			logx.Bool("http.metrics", newCfg.HTTP.Metrics),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	return changed, attrs
}

// RestartRequired filters sections down to those a reload cannot apply.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}
