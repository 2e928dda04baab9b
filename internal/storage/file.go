package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	"nudge/internal/reminder"
	logx "nudge/pkg/logx"
)

// fileStore keeps the whole collection in one human-readable document.
//
// Format is chosen by extension: ".yaml"/".yml" is a YAML sequence,
// anything else is an indented JSON array. Saves go through
// <path>.tmp + rename so readers never observe a partial write.
type fileStore struct {
	log  logx.Logger
	path string
	yaml bool

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	return &fileStore{
		log:  log,
		path: path,
		yaml: ext == ".yaml" || ext == ".yml",
	}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]reminder.Reminder, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []reminder.Reminder{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []reminder.Reminder{}, nil
	}

	var out []reminder.Reminder
	if s.yaml {
		err = yaml.Unmarshal(b, &out)
	} else {
		err = json.Unmarshal(b, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if out == nil {
		out = []reminder.Reminder{}
	}
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, rs []reminder.Reminder) error {
	_ = ctx
	if rs == nil {
		rs = []reminder.Reminder{}
	}

	var (
		b   []byte
		err error
	)
	if s.yaml {
		b, err = yaml.Marshal(rs)
	} else {
		b, err = json.MarshalIndent(rs, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode reminders: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Debug("reminders saved", logx.String("path", s.path), logx.Int("count", len(rs)))
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
