package dispatch

import "time"

// Config selects the delivery channels.
type Config struct {
	Title    string
	Console  ConsoleConfig
	Log      LogConfig
	Telegram TelegramConfig
}

type ConsoleConfig struct {
	Enabled bool
}

type LogConfig struct {
	Enabled bool
}

type TelegramConfig struct {
	Enabled    bool
	Token      string
	ChatID     int64
	ThreadID   int
	RatePerSec int
	Timeout    time.Duration
}

type HistoryItem struct {
	At       time.Time `json:"at"`
	Text     string    `json:"text"`
	Channels []string  `json:"channels"`
	Error    string    `json:"error,omitempty"`
}

const historyMax = 300
