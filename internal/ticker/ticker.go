// Package ticker drives the engine's minute check.
//
// One goroutine ticks, computes the next fire time from a cron schedule and
// sleeps on the clock until then, so ticks never overlap. A tick that has
// started runs to completion even if Stop is called meanwhile.
package ticker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	logx "nudge/pkg/logx"
)

// Target is what the ticker drives; *engine.Engine implements it.
type Target interface {
	Tick(ctx context.Context, now time.Time)
}

type TargetFunc func(ctx context.Context, now time.Time)

func (f TargetFunc) Tick(ctx context.Context, now time.Time) { f(ctx, now) }

type Config struct {
	Schedule   string
	RunOnStart bool
}

type Status struct {
	Schedule string    `json:"schedule"`
	Running  bool      `json:"running"`
	Ticks    uint64    `json:"ticks"`
	Skipped  uint64    `json:"skipped_minutes"`
	LastTick time.Time `json:"last_tick,omitempty"`
	Next     time.Time `json:"next,omitempty"`
}

type Ticker struct {
	clock  clock.Clock
	log    logx.Logger
	target Target

	mu         sync.Mutex
	spec       string
	sched      cron.Schedule
	runOnStart bool
	cancel     context.CancelFunc
	done       chan struct{}
	lastTick   time.Time
	next       time.Time

	reset   chan struct{}
	ticks   atomic.Uint64
	skipped atomic.Uint64
}

type Option func(*Ticker)

// WithClock replaces the wall clock; tests pass clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(t *Ticker) {
		if c != nil {
			t.clock = c
		}
	}
}

func New(cfg Config, target Target, log logx.Logger, opts ...Option) (*Ticker, error) {
	if target == nil {
		return nil, fmt.Errorf("ticker target is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Ticker{
		clock:  clock.New(),
		log:    log,
		target: target,
		reset:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(t)
	}
	if err := t.Apply(cfg); err != nil {
		return nil, err
	}
	return t, nil
}

// Apply swaps the schedule. A running loop re-arms its timer immediately.
func (t *Ticker) Apply(cfg Config) error {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	spec := cfg.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}

	t.mu.Lock()
	changed := t.spec != spec
	t.spec = spec
	t.sched = sched
	t.runOnStart = cfg.RunOnStart
	t.mu.Unlock()

	if changed {
		select {
		case t.reset <- struct{}{}:
		default:
		}
		t.log.Debug("ticker schedule applied", logx.String("schedule", spec))
	}
	return nil
}

// Start launches the loop. It is a no-op when already running.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	// Drain a reset left over from Apply calls made before Start.
	select {
	case <-t.reset:
	default:
	}
	cctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(cctx, t.done, t.runOnStart)
	t.log.Info("ticker started", logx.String("schedule", t.spec), logx.Bool("run_on_start", t.runOnStart))
}

// Stop cancels the loop and waits for an in-flight tick, bounded by ctx.
func (t *Ticker) Stop(ctx context.Context) {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
		t.log.Info("ticker stopped")
	case <-ctx.Done():
		t.log.Warn("ticker stop timed out; tick still running")
	}
}

func (t *Ticker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Schedule: t.spec,
		Running:  t.cancel != nil,
		Ticks:    t.ticks.Load(),
		Skipped:  t.skipped.Load(),
		LastTick: t.lastTick,
		Next:     t.next,
	}
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}, runOnStart bool) {
	defer close(done)

	var last time.Time
	if runOnStart {
		last = t.clock.Now()
		t.tick(ctx, last)
	}
	for {
		t.mu.Lock()
		sched := t.sched
		now := t.clock.Now()
		next := sched.Next(now)
		t.next = next
		t.mu.Unlock()

		if !last.IsZero() {
			t.checkOverrun(last, now, next)
			last = time.Time{}
		}

		timer := t.clock.Timer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.reset:
			timer.Stop()
		case at := <-timer.C:
			last = at
			t.tick(ctx, at)
		}
	}
}

// checkOverrun counts the minutes strictly between the tick at `at` and the
// next fire. Their reminders are not matched.
func (t *Ticker) checkOverrun(at, now, next time.Time) {
	missed := int(next.Truncate(time.Minute).Sub(at.Truncate(time.Minute))/time.Minute) - 1
	if missed <= 0 {
		return
	}
	t.skipped.Add(uint64(missed))
	t.log.Warn("tick overran; minutes skipped",
		logx.Int("skipped", missed),
		logx.Time("tick", at),
		logx.Duration("took", now.Sub(at)),
		logx.Time("next", next),
	)
}

// tick runs one check. Cancellation of ctx does not reach the target: a
// started tick delivers everything it matched.
func (t *Ticker) tick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tick panicked", logx.Any("panic", r))
		}
	}()
	t.ticks.Add(1)
	t.mu.Lock()
	t.lastTick = now
	t.mu.Unlock()

	t.target.Tick(context.WithoutCancel(ctx), now)
}
