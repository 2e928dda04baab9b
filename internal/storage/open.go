package storage

import (
	"context"
	"fmt"
	"strings"

	"nudge/internal/reminder"
	logx "nudge/pkg/logx"
)

// Store is the persistence API used by the engine.
type Store interface {
	// Load returns the persisted reminders in file order.
	// It returns an empty slice and no error if nothing was saved yet.
	Load(ctx context.Context) ([]reminder.Reminder, error)
	// Save replaces the persisted collection with rs.
	Save(ctx context.Context, rs []reminder.Reminder) error
	Close() error
}

// NormalizeDriver maps aliases onto the canonical driver names.
func NormalizeDriver(driver string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(driver))
	switch d {
	case "", DriverFile, "json", "yaml":
		return DriverFile, nil
	case DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	case DriverMemory, "none":
		return DriverMemory, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case DriverFile:
		return openFile(cfg, log)
	case DriverSQLite:
		return openSQLite(cfg, log)
	default:
		return NewMemory(), nil
	}
}
