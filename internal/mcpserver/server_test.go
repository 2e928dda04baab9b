package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/dispatch"
	"nudge/internal/engine"
	"nudge/internal/reminder"
	"nudge/internal/storage"
	logx "nudge/pkg/logx"
)

func newServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	n := 0
	eng := engine.New(storage.NewMemory(), dispatch.NewLog(logx.Nop()), logx.Nop(),
		engine.WithIDFunc(func() string { n++; return fmt.Sprintf("r%d", n) }),
	)
	return New(eng, logx.Nop()), eng
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestAddListAndTimes(t *testing.T) {
	t.Parallel()
	s, eng := newServer(t)
	ctx := context.Background()

	res, err := s.handleAdd(ctx, call("add_reminder", map[string]any{
		"text": "Drink water", "frequency": float64(3), "is_random": false, "start_hour": float64(8), "end_hour": float64(11),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var added listItem
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &added))
	assert.Equal(t, "r1", added.ID)
	assert.Len(t, added.NextTimes, 3)

	res, err = s.handleList(ctx, call("list_reminders", nil))
	require.NoError(t, err)
	var list []listItem
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Drink water", list[0].Text)

	res, err = s.handleNextTimes(ctx, call("next_times", map[string]any{"id": "r1"}))
	require.NoError(t, err)
	var times []string
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &times))
	assert.Equal(t, eng.NextTimes("r1"), times)
}

func TestAddUsesDefaults(t *testing.T) {
	t.Parallel()
	s, eng := newServer(t)

	res, err := s.handleAdd(context.Background(), call("add_reminder", map[string]any{"text": "Stretch"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	r, ok := eng.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 3, r.Frequency)
	assert.True(t, r.IsRandom)
	assert.Equal(t, 8, r.StartHour)
	assert.Equal(t, 22, r.EndHour)
}

func TestValidationAndNotFound(t *testing.T) {
	t.Parallel()
	s, _ := newServer(t)
	ctx := context.Background()

	res, err := s.handleAdd(ctx, call("add_reminder", map[string]any{"text": "x", "start_hour": float64(9), "end_hour": float64(9)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleAdd(ctx, call("add_reminder", map[string]any{"text": "x", "frequency": float64(5_000_000)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "frequency")

	res, err = s.handleSetEnabled(ctx, call("set_reminder_enabled", map[string]any{"id": "nope", "enabled": true}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "not found")

	res, err = s.handleSetEnabled(ctx, call("set_reminder_enabled", map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleNextTimes(ctx, call("next_times", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleList(ctx, call("list_reminders", nil))
	require.NoError(t, err)
	assert.Equal(t, "No reminders found.", text(t, res))
}

func TestDisableAndRemove(t *testing.T) {
	t.Parallel()
	s, eng := newServer(t)
	ctx := context.Background()
	_, err := eng.Add(ctx, reminder.Input{Text: "Walk", Frequency: 2, StartHour: 8, EndHour: 20})
	require.NoError(t, err)

	res, err := s.handleSetEnabled(ctx, call("set_reminder_enabled", map[string]any{"id": "r1", "enabled": false}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Empty(t, eng.NextTimes("r1"))

	res, err = s.handleRemove(ctx, call("remove_reminder", map[string]any{"id": "r1"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Empty(t, eng.List())

	// Removing again is not an error.
	res, err = s.handleRemove(ctx, call("remove_reminder", map[string]any{"id": "r1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}
