package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coreos/go-systemd/v22/daemon"

	"nudge/internal/api"
	"nudge/internal/config"
	"nudge/internal/dispatch"
	"nudge/internal/engine"
	"nudge/internal/eventbus"
	"nudge/internal/observability/metrics"
	"nudge/internal/runtime/supervisor"
	"nudge/internal/storage"
	"nudge/internal/ticker"
	logx "nudge/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics *metrics.Metrics

	router *dispatch.Router
	engine *engine.Engine
	ticker *ticker.Ticker
	api    *api.Service

	logStderr bool
	notify    func(state string)
}

type options struct {
	stdout    io.Writer
	logStderr bool
	clock     clock.Clock
	notify    func(state string)
}

type Option func(*options)

// WithStdout redirects the console delivery channel.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStdio reserves stdout for a protocol: console logs and console
// deliveries both go to stderr.
func WithStdio() Option {
	return func(o *options) {
		o.stdout = os.Stderr
		o.logStderr = true
	}
}

// WithClock replaces the ticker clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func withNotify(fn func(state string)) Option {
	return func(o *options) { o.notify = fn }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.NewService(mapLogConfig(cfg, o.logStderr))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	m := metrics.New()
	bus := eventbus.New()

	router := dispatch.NewRouter(root.With(logx.String("comp", "dispatch")), dispatch.WithStdout(o.stdout))
	dc, err := mapDispatchConfig(cfg)
	if err == nil {
		err = router.Apply(dc)
	}
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	eng := engine.New(store, router, root.With(logx.String("comp", "engine")),
		engine.WithBus(bus),
		engine.WithMetrics(m),
	)

	tk, err := ticker.New(mapTickerConfig(cfg), eng, root.With(logx.String("comp", "ticker")), ticker.WithClock(o.clock))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		metrics:   m,
		router:    router,
		engine:    eng,
		ticker:    tk,
		logStderr: o.logStderr,
		notify:    o.notify,
	}
	if a.notify == nil {
		a.notify = a.sdNotify
	}

	ac, err := mapAPIConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.api = api.New(ac, api.Deps{
		Reminders:  eng,
		Ticker:     tk,
		Deliveries: router,
		Supervisor: supCounters{a},
		Metrics:    m,
	}, root.With(logx.String("comp", "api")))

	return a, nil
}

// supCounters reads the app supervisor lazily; it exists only after Start.
type supCounters struct{ a *App }

func (s supCounters) Counters() supervisor.Counters {
	if s.a.sup == nil {
		return supervisor.Counters{}
	}
	return s.a.sup.Counters()
}

func (a *App) Engine() *engine.Engine { return a.engine }

func (a *App) Ticker() *ticker.Ticker { return a.ticker }

// Logger is the root logger; it follows logging config reloads.
func (a *App) Logger() logx.Logger { return a.logs.Logger() }

// APIAddr is the bound HTTP address, or "" when the API is not serving.
func (a *App) APIAddr() string { return a.api.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	// A load failure leaves the engine empty; keep running so the user can
	// still add reminders.
	if err := a.engine.Restore(run); err != nil {
		a.log.Error("loading reminders failed; starting empty", logx.Err(err))
	}

	a.ticker.Start(run)
	if a.api.Enabled() {
		a.api.Start(run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Systemd.Notify {
		a.notify(daemon.SdNotifyReady)
	}
	a.log.Info("app started", logx.Int("reminders", len(a.engine.List())))
	return nil
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strs("sections", restart))
	}

	a.logs.Apply(mapLogConfig(next, a.logStderr))

	if err := a.ticker.Apply(mapTickerConfig(next)); err != nil {
		a.log.Warn("invalid ticker config; keeping previous", logx.Err(err))
	}

	if dc, err := mapDispatchConfig(next); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else if err := a.router.Apply(dc); err != nil {
		a.log.Warn("dispatch channels not applied; keeping previous", logx.Err(err))
	}

	if ac, err := mapAPIConfig(next); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.api.Reconfigure(ctx, ac)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if cfg := a.cfgm.Get(); cfg != nil && cfg.Systemd.Notify {
		a.notify(daemon.SdNotifyStopping)
	}

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Ticker before storage: an in-flight tick may still read the engine.
	a.step(ctx, "ticker", 3*time.Second, func(c context.Context) error { a.ticker.Stop(c); return nil })
	a.step(ctx, "api", 2*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	a.step(ctx, "storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}

// sdNotify is a no-op outside systemd (NOTIFY_SOCKET unset).
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("systemd notified", logx.String("state", state))
	}
}
