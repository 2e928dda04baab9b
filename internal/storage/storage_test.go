package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/reminder"
	logx "nudge/pkg/logx"
)

func sample() []reminder.Reminder {
	return []reminder.Reminder{
		{ID: "b", Text: "Drink water", Frequency: 3, IsRandom: false, StartHour: 8, EndHour: 11, Enabled: true},
		{ID: "a", Text: "Stretch", Frequency: 5, IsRandom: true, StartHour: 9, EndHour: 18, Enabled: false},
		{ID: "c", Text: "Встать и пройтись", Frequency: 1, IsRandom: true, StartHour: 0, EndHour: 23, Enabled: true},
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		driver string
		file   string
	}{
		{name: "json", driver: "file", file: "reminders.json"},
		{name: "yaml", driver: "file", file: "reminders.yaml"},
		{name: "sqlite", driver: "sqlite", file: "reminders.db"},
		{name: "nested dir", driver: "file", file: filepath.Join("nested", "dir", "reminders.json")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), tt.file)

			st, err := Open(Config{Driver: tt.driver, Path: path}, logx.Nop())
			require.NoError(t, err)

			got, err := st.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, st.Save(ctx, sample()))
			require.NoError(t, st.Close())

			// Reopen to prove the data is on disk.
			st, err = Open(Config{Driver: tt.driver, Path: path}, logx.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })

			got, err = st.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sample(), got)

			// Wholesale rewrite.
			require.NoError(t, st.Save(ctx, sample()[:1]))
			got, err = st.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sample()[:1], got)
		})
	}
}

func TestFileLoadCorruptLeavesFileIntact(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	_, err = st.Load(context.Background())
	require.Error(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(b))
}

func TestFileSchemaFieldNames(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	st, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), sample()[:1]))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"id"`, `"text"`, `"frequency"`, `"is_random"`, `"start_hour"`, `"end_hour"`, `"enabled"`} {
		assert.Contains(t, string(b), key)
	}
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestFileEmptyDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.yml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

	st, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	got, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open(Config{Driver: "postgres"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)
}

func TestMemoryClosed(t *testing.T) {
	t.Parallel()
	m := NewMemory(sample()...)
	got, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)

	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Save(context.Background(), nil), ErrClosed)
}
