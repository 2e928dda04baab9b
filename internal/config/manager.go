package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "nudge/pkg/logx"
)

const (
	// Editors emit several events per save; reload once things go quiet.
	reloadDebounce = 250 * time.Millisecond
	watchRetryMin  = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
)

// Manager owns the current config and republishes it when the file changes.
type Manager struct {
	path  string
	log   logx.Logger
	check func(*Config) error

	mu      sync.RWMutex
	current *Config
	sum     uint64

	subsMu sync.Mutex
	subs   []chan *Config
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator adds a check run after Validate on every load and reload.
func (m *Manager) SetValidator(fn func(*Config) error) { m.check = fn }

// Load reads, validates and commits the file. A missing file means Default().
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.read()
	if errors.Is(err, fs.ErrNotExist) {
		m.log.Info("config file not found; using defaults", logx.String("path", m.path))
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := m.accept(cfg); err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe returns a channel receiving every committed reload. A slow
// subscriber loses older configs, never the newest.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// read decodes the file over Default(). Unknown keys and trailing data fail.
func (m *Manager) read() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return decode(m.path, b)
}

func decode(path string, b []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(b)) == 0 {
		return cfg, nil
	}
	if isYAML(path) {
		j, err := yamlToJSON(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		// A YAML file holding only comments.
		if string(j) == "null" {
			return cfg, nil
		}
		b = j
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: trailing data after config", filepath.Base(path))
	}
	return cfg, nil
}

func (m *Manager) accept(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.check != nil {
		return m.check(cfg)
	}
	return nil
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.current = cfg
	m.sum = checksum(cfg)
	m.mu.Unlock()
}

func checksum(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				// Full: drop the oldest and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload re-reads the file and publishes it when it decodes, passes
// validation and differs from the committed config.
func (m *Manager) reload() {
	cfg, err := m.read()
	if err != nil {
		m.log.Warn("config reload failed; keeping current", logx.String("path", m.path), logx.Err(err))
		return
	}
	sum := checksum(cfg)
	m.mu.RLock()
	same := sum != 0 && sum == m.sum
	m.mu.RUnlock()
	if same {
		m.log.Debug("config file touched without changes")
		return
	}
	if err := m.accept(cfg); err != nil {
		m.log.Warn("config rejected; keeping current", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("sum", fmt.Sprintf("%016x", sum)))
}

// Watch follows the config file until ctx ends. The directory is watched
// so editors that replace the file (rename over it) are seen. A failed
// watcher is recreated after a jittered, doubling delay.
func (m *Manager) Watch(ctx context.Context) error {
	retry := watchRetryMin
	for {
		err := m.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			retry = watchRetryMin
		}
		wait := retry + rand.N(retry/2+1)
		retry = min(2*retry, watchRetryMax)
		m.log.Warn("config watcher stopped; retrying", logx.Duration("in", wait), logx.Err(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// follow runs one fsnotify watcher. It returns an error only when the
// watcher could not be set up.
func (m *Manager) follow(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer func() { _ = w.Close() }()

	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("dir", dir))

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	const touched = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settle.C:
			m.reload()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), name) && ev.Op&touched != 0 {
				settle.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; reloading")
				settle.Reset(reloadDebounce)
				continue
			}
			if err != nil {
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
