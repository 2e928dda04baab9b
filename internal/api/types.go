package api

import (
	"context"
	"time"

	"nudge/internal/dispatch"
	"nudge/internal/engine"
	"nudge/internal/observability/metrics"
	"nudge/internal/reminder"
	"nudge/internal/runtime/supervisor"
	"nudge/internal/ticker"
)

// Config controls the local HTTP API.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Metrics       bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Reminders is the engine surface the API serves. *engine.Engine implements it.
type Reminders interface {
	Add(ctx context.Context, in reminder.Input) (string, error)
	Remove(ctx context.Context, id string)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Toggle(ctx context.Context, id string) (bool, error)
	List() []reminder.Reminder
	Get(id string) (reminder.Reminder, bool)
	NextTimes(id string) []string
	Reschedule()
	Snapshot() engine.Snapshot
}

type TickerStatus interface {
	Status() ticker.Status
}

type Deliveries interface {
	Channels() []string
	History() []dispatch.HistoryItem
}

type Counters interface {
	Counters() supervisor.Counters
}

// Deps are the components behind the routes. Only Reminders is required.
type Deps struct {
	Reminders  Reminders
	Ticker     TickerStatus
	Deliveries Deliveries
	Supervisor Counters
	Metrics    *metrics.Metrics
}

// reminderView is a reminder plus today's firing times.
type reminderView struct {
	reminder.Reminder
	NextTimes []string `json:"next_times"`
}

// createRequest uses pointers so omitted fields take the form defaults.
type createRequest struct {
	Text      string `json:"text"`
	Frequency *int   `json:"frequency"`
	IsRandom  *bool  `json:"is_random"`
	StartHour *int   `json:"start_hour"`
	EndHour   *int   `json:"end_hour"`
}

func (c createRequest) input() reminder.Input {
	in := reminder.Input{
		Text:      c.Text,
		Frequency: reminder.DefaultFrequency,
		IsRandom:  reminder.DefaultIsRandom,
		StartHour: reminder.DefaultStartHour,
		EndHour:   reminder.DefaultEndHour,
	}
	if c.Frequency != nil {
		in.Frequency = *c.Frequency
	}
	if c.IsRandom != nil {
		in.IsRandom = *c.IsRandom
	}
	if c.StartHour != nil {
		in.StartHour = *c.StartHour
	}
	if c.EndHour != nil {
		in.EndHour = *c.EndHour
	}
	return in
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type statusResponse struct {
	Engine     engine.Snapshot     `json:"engine"`
	Ticker     *ticker.Status      `json:"ticker,omitempty"`
	Channels   []string            `json:"channels,omitempty"`
	Supervisor *supervisor.Counters `json:"supervisor,omitempty"`
}
