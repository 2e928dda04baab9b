package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nudge/internal/dispatch"
	"nudge/internal/eventbus"
	"nudge/internal/reminder"
	"nudge/internal/schedule"
	"nudge/internal/storage"
	logx "nudge/pkg/logx"
)

type Engine struct {
	store    storage.Store
	dispatch dispatch.Dispatcher
	log      logx.Logger
	bus      eventbus.Bus
	metrics  Recorder
	newID    func() string

	mu         sync.Mutex
	rng        schedule.Rand
	reminders  []reminder.Reminder
	occ        map[string][]reminder.Occurrence
	lastMinute time.Time

	fired  atomic.Uint64
	failed atomic.Uint64
}

type Option func(*Engine)

// WithRand replaces the occurrence placement source.
func WithRand(r schedule.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

func WithBus(b eventbus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

func WithMetrics(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithIDFunc replaces the id allocator (uuid by default).
func WithIDFunc(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newID = f
		}
	}
}

func New(store storage.Store, d dispatch.Dispatcher, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if store == nil {
		store = storage.NewMemory()
	}
	if d == nil {
		d = dispatch.NewLog(log)
	}
	e := &Engine{
		store:    store,
		dispatch: d,
		log:      log,
		metrics:  nopRecorder{},
		newID:    uuid.NewString,
		rng:      schedule.NewRand(),
		occ:      map[string][]reminder.Occurrence{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Restore replaces the in-memory collection with the stored one and
// schedules every enabled reminder. A load error leaves the engine empty;
// the error is returned for the caller to report.
func (e *Engine) Restore(ctx context.Context) error {
	loaded, err := e.store.Load(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.reminders = nil
	e.occ = map[string][]reminder.Occurrence{}
	if err != nil {
		e.countLocked()
		return fmt.Errorf("load reminders: %w", err)
	}

	seen := make(map[string]struct{}, len(loaded))
	for _, r := range loaded {
		if verr := r.Validate(); verr != nil {
			e.log.Warn("skipping stored reminder", logx.String("id", r.ID), logx.Err(verr))
			continue
		}
		if _, dup := seen[r.ID]; dup {
			e.log.Warn("skipping duplicate stored reminder", logx.String("id", r.ID))
			continue
		}
		seen[r.ID] = struct{}{}
		e.reminders = append(e.reminders, r)
		if r.Enabled {
			e.occ[r.ID] = schedule.ForReminder(e.rng, r)
		}
	}
	e.countLocked()
	e.log.Info("reminders restored", logx.Int("count", len(e.reminders)), logx.Int("scheduled", len(e.occ)))
	return nil
}

// Add validates in, stores a new enabled reminder and schedules it.
func (e *Engine) Add(ctx context.Context, in reminder.Input) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := reminder.Reminder{
		ID:        e.newID(),
		Text:      in.Text,
		Frequency: in.Frequency,
		IsRandom:  in.IsRandom,
		StartHour: in.StartHour,
		EndHour:   in.EndHour,
		Enabled:   true,
	}
	e.reminders = append(e.reminders, r)
	e.occ[r.ID] = schedule.ForReminder(e.rng, r)

	e.persistLocked(ctx)
	e.countLocked()
	e.publish(EventAdded, ReminderEvent{ID: r.ID, Text: r.Text, Times: schedule.Format(e.occ[r.ID])})
	e.log.Debug("reminder added", logx.String("id", r.ID), logx.String("mode", r.Mode()), logx.Int("frequency", r.Frequency))
	return r.ID, nil
}

// Remove deletes the reminder. Unknown ids are a no-op.
func (e *Engine) Remove(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexLocked(id)
	if i < 0 {
		return
	}
	e.reminders = append(e.reminders[:i], e.reminders[i+1:]...)
	delete(e.occ, id)

	e.persistLocked(ctx)
	e.countLocked()
	e.publish(EventRemoved, ReminderEvent{ID: id})
}

// SetEnabled updates the flag and persists. Enabling a disabled reminder
// computes fresh occurrences; disabling drops them.
func (e *Engine) SetEnabled(ctx context.Context, id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setEnabledLocked(ctx, id, enabled)
}

// Toggle flips the flag and returns the new value.
func (e *Engine) Toggle(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexLocked(id)
	if i < 0 {
		return false, ErrNotFound
	}
	next := !e.reminders[i].Enabled
	return next, e.setEnabledLocked(ctx, id, next)
}

func (e *Engine) setEnabledLocked(ctx context.Context, id string, enabled bool) error {
	i := e.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	r := &e.reminders[i]
	was := r.Enabled
	r.Enabled = enabled

	if enabled {
		if _, ok := e.occ[id]; !ok || !was {
			e.occ[id] = schedule.ForReminder(e.rng, *r)
		}
	} else {
		delete(e.occ, id)
	}

	e.persistLocked(ctx)
	e.countLocked()
	if was != enabled {
		if enabled {
			e.publish(EventEnabled, ReminderEvent{ID: id, Times: schedule.Format(e.occ[id])})
		} else {
			e.publish(EventDisabled, ReminderEvent{ID: id})
		}
	}
	return nil
}

// List returns a copy of the reminders in insertion order.
func (e *Engine) List() []reminder.Reminder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]reminder.Reminder{}, e.reminders...)
}

func (e *Engine) Get(id string) (reminder.Reminder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexLocked(id)
	if i < 0 {
		return reminder.Reminder{}, false
	}
	return e.reminders[i], true
}

// NextTimes returns today's occurrences of id as sorted "HH:MM" strings.
// Unknown or disabled reminders yield an empty slice.
func (e *Engine) NextTimes(id string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	occ, ok := e.occ[id]
	if !ok {
		return []string{}
	}
	return schedule.Format(occ)
}

// Tick checks now's wall-clock minute against every enabled reminder and
// delivers the matches. See the package documentation for the steps.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	started := time.Now()
	minute := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())
	hh, mm := now.Hour(), now.Minute()

	e.mu.Lock()
	if minute.Equal(e.lastMinute) {
		e.mu.Unlock()
		return
	}
	e.lastMinute = minute

	var due []delivery
	for _, r := range e.reminders {
		if !r.Enabled {
			continue
		}
		occ, ok := e.occ[r.ID]
		if !ok {
			occ = schedule.ForReminder(e.rng, r)
			e.occ[r.ID] = occ
		}
		for range schedule.Count(occ, hh, mm) {
			due = append(due, delivery{id: r.ID, text: r.Text})
		}
	}
	rollover := hh == 0 && mm == 0
	if rollover {
		e.rescheduleLocked()
	}
	e.mu.Unlock()

	if rollover {
		e.log.Info("daily rollover", logx.Time("at", minute))
	}
	for _, d := range due {
		if ctx.Err() != nil {
			e.log.Warn("tick cancelled before delivery", logx.String("id", d.id))
			break
		}
		e.deliver(ctx, d)
	}
	e.metrics.TickObserved(time.Since(started))
}

// Reschedule recomputes every enabled reminder's occurrences now.
func (e *Engine) Reschedule() {
	e.mu.Lock()
	e.rescheduleLocked()
	e.mu.Unlock()
}

func (e *Engine) rescheduleLocked() {
	n := 0
	for _, r := range e.reminders {
		if !r.Enabled {
			delete(e.occ, r.ID)
			continue
		}
		e.occ[r.ID] = schedule.ForReminder(e.rng, r)
		n++
	}
	e.metrics.Rescheduled()
	e.publish(EventRescheduled, ReminderEvent{Count: n})
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Total:     len(e.reminders),
		Scheduled: len(e.occ),
		LastTick:  e.lastMinute,
		Fired:     e.fired.Load(),
		Failed:    e.failed.Load(),
	}
	for _, r := range e.reminders {
		if r.Enabled {
			s.Enabled++
		}
	}
	return s
}

// deliver runs one dispatch with its own panic recovery so a failing
// channel never aborts the rest of the tick.
func (e *Engine) deliver(ctx context.Context, d delivery) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("dispatcher panic: %v", r)
			}
		}()
		return e.dispatch.Deliver(ctx, d.text)
	}()

	e.fired.Add(1)
	e.metrics.ReminderFired()
	ev := ReminderEvent{ID: d.id, Text: d.text}
	if err != nil {
		e.failed.Add(1)
		e.metrics.DeliveryFailed()
		ev.Error = err.Error()
		e.log.Warn("reminder delivery failed", logx.String("id", d.id), logx.Err(err))
	} else {
		e.log.Debug("reminder delivered", logx.String("id", d.id))
	}
	e.publish(EventFired, ev)
}

// persistLocked writes the whole collection. A failure is logged and the
// in-memory state stays authoritative.
func (e *Engine) persistLocked(ctx context.Context) {
	snapshot := append([]reminder.Reminder{}, e.reminders...)
	if err := e.store.Save(ctx, snapshot); err != nil {
		e.metrics.SaveFailed()
		e.log.Error("saving reminders failed", logx.Int("count", len(snapshot)), logx.Err(err))
	}
}

func (e *Engine) countLocked() {
	enabled := 0
	for _, r := range e.reminders {
		if r.Enabled {
			enabled++
		}
	}
	e.metrics.ReminderCount(enabled, len(e.reminders)-enabled)
}

func (e *Engine) indexLocked(id string) int {
	for i, r := range e.reminders {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) publish(typ string, ev ReminderEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
