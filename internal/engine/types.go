package engine

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("reminder not found")

// Recorder receives engine counters. *metrics.Metrics implements it.
type Recorder interface {
	ReminderFired()
	DeliveryFailed()
	SaveFailed()
	Rescheduled()
	TickObserved(d time.Duration)
	ReminderCount(enabled, disabled int)
}

type nopRecorder struct{}

func (nopRecorder) ReminderFired()             {}
func (nopRecorder) DeliveryFailed()            {}
func (nopRecorder) SaveFailed()                {}
func (nopRecorder) Rescheduled()               {}
func (nopRecorder) TickObserved(time.Duration) {}
func (nopRecorder) ReminderCount(int, int)     {}

// Event types published on the bus.
const (
	EventAdded       = "reminder.added"
	EventRemoved     = "reminder.removed"
	EventEnabled     = "reminder.enabled"
	EventDisabled    = "reminder.disabled"
	EventRescheduled = "reminder.rescheduled"
	EventFired       = "reminder.fired"
)

// ReminderEvent is the Data of every reminder.* event.
type ReminderEvent struct {
	ID    string   `json:"id,omitempty"`
	Text  string   `json:"text,omitempty"`
	Times []string `json:"times,omitempty"`
	Count int      `json:"count,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Snapshot is a point-in-time summary for health and status output.
type Snapshot struct {
	Total     int       `json:"total"`
	Enabled   int       `json:"enabled"`
	Scheduled int       `json:"scheduled"`
	LastTick  time.Time `json:"last_tick,omitempty"`
	Fired     uint64    `json:"fired"`
	Failed    uint64    `json:"failed"`
}

type delivery struct {
	id   string
	text string
}
