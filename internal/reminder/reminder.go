// Package reminder holds the reminder definition shared by the engine,
// the stores and the presentation surfaces.
package reminder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every validation error so callers can test
// for "the input was rejected" without matching each case.
var ErrInvalid = errors.New("invalid reminder")

var (
	ErrEmptyText = fmt.Errorf("%w: text is empty", ErrInvalid)
	ErrFrequency = fmt.Errorf("%w: frequency must be within 1..%d", ErrInvalid, MaxFrequency)
	ErrHourRange = fmt.Errorf("%w: hours must be within 0..23", ErrInvalid)
	ErrWindow    = fmt.Errorf("%w: start hour must be before end hour", ErrInvalid)
	ErrMissingID = fmt.Errorf("%w: id is empty", ErrInvalid)
)

// MaxFrequency caps firings per day at one per minute.
const MaxFrequency = 24 * 60

// Defaults used by the presentation surfaces when a field is omitted.
const (
	DefaultFrequency = 3
	DefaultStartHour = 8
	DefaultEndHour   = 22
	DefaultIsRandom  = true
)

// Reminder is the durable definition of a recurring daily reminder.
// The JSON/YAML field names are the on-disk schema.
type Reminder struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Frequency int    `json:"frequency" yaml:"frequency"`
	IsRandom  bool   `json:"is_random" yaml:"is_random"`
	StartHour int    `json:"start_hour" yaml:"start_hour"`
	EndHour   int    `json:"end_hour" yaml:"end_hour"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Input carries the user-supplied fields of a new reminder.
type Input struct {
	Text      string
	Frequency int
	IsRandom  bool
	StartHour int
	EndHour   int
}

// Validate checks the input against the reminder invariants.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return ErrEmptyText
	}
	if in.Frequency < 1 || in.Frequency > MaxFrequency {
		return ErrFrequency
	}
	if in.StartHour < 0 || in.StartHour > 23 || in.EndHour < 0 || in.EndHour > 23 {
		return ErrHourRange
	}
	if in.StartHour >= in.EndHour {
		return ErrWindow
	}
	return nil
}

// Validate checks a stored reminder; used when loading persisted data.
func (r Reminder) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	return r.Input().Validate()
}

// Input returns the schedule-affecting fields of r.
func (r Reminder) Input() Input {
	return Input{
		Text:      r.Text,
		Frequency: r.Frequency,
		IsRandom:  r.IsRandom,
		StartHour: r.StartHour,
		EndHour:   r.EndHour,
	}
}

// Mode returns a short label for the distribution mode.
func (r Reminder) Mode() string {
	if r.IsRandom {
		return "random"
	}
	return "uniform"
}

// Occurrence is one firing time within a day.
type Occurrence struct {
	Hour   int
	Minute int
}

func (o Occurrence) String() string {
	return fmt.Sprintf("%02d:%02d", o.Hour, o.Minute)
}

// Less orders occurrences by (hour, minute).
func (o Occurrence) Less(other Occurrence) bool {
	if o.Hour != other.Hour {
		return o.Hour < other.Hour
	}
	return o.Minute < other.Minute
}

// MinuteOfDay returns minutes since local midnight.
func (o Occurrence) MinuteOfDay() int { return o.Hour*60 + o.Minute }
