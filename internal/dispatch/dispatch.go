package dispatch

import (
	"context"
	"errors"
	"fmt"

	logx "nudge/pkg/logx"
)

var (
	ErrNoTarget = errors.New("dispatch target not configured")
	ErrEmpty    = errors.New("empty reminder text")
)

// Dispatcher delivers one reminder text.
type Dispatcher interface {
	Deliver(ctx context.Context, text string) error
}

// Func adapts a plain function to Dispatcher.
type Func func(ctx context.Context, text string) error

func (f Func) Deliver(ctx context.Context, text string) error { return f(ctx, text) }

// Named attaches a channel name used in error messages and logs.
type Named struct {
	Name string
	Dispatcher
}

// Multi fans a delivery out to every channel. A failing channel does not
// stop the others; all failures are joined.
type Multi []Named

func (m Multi) Deliver(ctx context.Context, text string) error {
	var errs []error
	for _, d := range m {
		if d.Dispatcher == nil {
			continue
		}
		if err := d.Deliver(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Names lists the channels in m.
func (m Multi) Names() []string {
	out := make([]string, 0, len(m))
	for _, d := range m {
		out = append(out, d.Name)
	}
	return out
}

// Log writes each reminder as an info log line.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log}
}

func (l *Log) Deliver(ctx context.Context, text string) error {
	_ = ctx
	l.log.Info("reminder", logx.String("text", text))
	return nil
}
