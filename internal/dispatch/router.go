package dispatch

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	logx "nudge/pkg/logx"
)

// Router is the Dispatcher handed to the engine. Its channel set can be
// swapped with Apply at any time.
type Router struct {
	log    logx.Logger
	stdout io.Writer

	mu     sync.RWMutex
	active Multi

	newTelegram func(TelegramConfig, string) (Dispatcher, error)

	hmu     sync.Mutex
	history []HistoryItem
	now     func() time.Time
}

type RouterOption func(*Router)

// WithStdout redirects the console channel.
func WithStdout(w io.Writer) RouterOption {
	return func(r *Router) {
		if w != nil {
			r.stdout = w
		}
	}
}

func withTelegramFactory(f func(TelegramConfig, string) (Dispatcher, error)) RouterOption {
	return func(r *Router) { r.newTelegram = f }
}

func NewRouter(log logx.Logger, opts ...RouterOption) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:    log,
		stdout: os.Stdout,
		now:    time.Now,
		newTelegram: func(cfg TelegramConfig, title string) (Dispatcher, error) {
			return NewTelegram(cfg, title)
		},
	}
	for _, o := range opts {
		o(r)
	}
	r.active = Multi{{Name: "log", Dispatcher: NewLog(r.log)}}
	return r
}

// Apply rebuilds the channel set. On error the previous set stays active.
// With no channel enabled, reminders go to the log.
func (r *Router) Apply(cfg Config) error {
	var next Multi
	if cfg.Console.Enabled {
		next = append(next, Named{Name: "console", Dispatcher: NewConsole(r.stdout, cfg.Title)})
	}
	if cfg.Telegram.Enabled {
		tg, err := r.newTelegram(cfg.Telegram, cfg.Title)
		if err != nil {
			return err
		}
		next = append(next, Named{Name: "telegram", Dispatcher: tg})
	}
	if cfg.Log.Enabled || len(next) == 0 {
		next = append(next, Named{Name: "log", Dispatcher: NewLog(r.log)})
	}

	r.mu.Lock()
	r.active = next
	r.mu.Unlock()

	r.log.Info("dispatch channels applied", logx.Strs("channels", next.Names()))
	return nil
}

// Channels lists the active channel names.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active.Names()
}

func (r *Router) Deliver(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmpty
	}
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()
	if len(active) == 0 {
		return ErrNoTarget
	}

	err := active.Deliver(ctx, text)
	r.appendHistory(text, active.Names(), err)
	return err
}

// History returns recent deliveries, oldest first.
func (r *Router) History() []HistoryItem {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	return append([]HistoryItem(nil), r.history...)
}

func (r *Router) appendHistory(text string, channels []string, err error) {
	item := HistoryItem{At: r.now(), Text: text, Channels: channels}
	if err != nil {
		item.Error = err.Error()
	}
	r.hmu.Lock()
	r.history = append(r.history, item)
	if len(r.history) > historyMax {
		r.history = r.history[len(r.history)-historyMax:]
	}
	r.hmu.Unlock()
}
