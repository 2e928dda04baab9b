package storage

import (
	"context"
	"sync"

	"nudge/internal/reminder"
)

// Memory is a Store that lives only as long as the process.
// Tests use it directly; it is also the "memory"/"none" driver.
type Memory struct {
	mu     sync.Mutex
	items  []reminder.Reminder
	saves  int
	closed bool
}

func NewMemory(seed ...reminder.Reminder) *Memory {
	return &Memory{items: append([]reminder.Reminder(nil), seed...)}
}

func (m *Memory) Load(ctx context.Context) ([]reminder.Reminder, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]reminder.Reminder{}, m.items...), nil
}

func (m *Memory) Save(ctx context.Context, rs []reminder.Reminder) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.items = append([]reminder.Reminder(nil), rs...)
	m.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
