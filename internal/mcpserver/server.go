// Package mcpserver exposes the reminder engine as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"nudge/internal/engine"
	"nudge/internal/reminder"
	logx "nudge/pkg/logx"
)

const (
	serverName    = "nudge"
	serverVersion = "1.0.0"
)

// Reminders is the engine surface the tools use. *engine.Engine implements it.
type Reminders interface {
	Add(ctx context.Context, in reminder.Input) (string, error)
	Remove(ctx context.Context, id string)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	List() []reminder.Reminder
	Get(id string) (reminder.Reminder, bool)
	NextTimes(id string) []string
}

type Server struct {
	mcpServer *server.MCPServer
	reminders Reminders
	log       logx.Logger
}

func New(rs Reminders, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{reminders: rs, log: log}
	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying server for ServeStdio.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Add a daily reminder fired frequency times between start_hour and end_hour"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text delivered when the reminder fires")),
			mcp.WithNumber("frequency", mcp.Description("Firings per day, 1-1440 (default 3)"), mcp.DefaultNumber(reminder.DefaultFrequency),
				mcp.Min(1), mcp.Max(reminder.MaxFrequency)),
			mcp.WithBoolean("is_random", mcp.Description("Random placement instead of evenly spaced (default true)"), mcp.DefaultBool(reminder.DefaultIsRandom)),
			mcp.WithNumber("start_hour", mcp.Description("Window start hour 0-23 (default 8)"), mcp.DefaultNumber(reminder.DefaultStartHour)),
			mcp.WithNumber("end_hour", mcp.Description("Window end hour 0-23, exclusive (default 22)"), mcp.DefaultNumber(reminder.DefaultEndHour)),
		),
		s.handleAdd,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List all reminders with today's firing times"),
		),
		s.handleList,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("remove_reminder",
			mcp.WithDescription("Delete a reminder permanently"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleRemove,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_reminder_enabled",
			mcp.WithDescription("Enable or disable a reminder"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			mcp.WithBoolean("enabled", mcp.Required(), mcp.Description("New enabled state")),
		),
		s.handleSetEnabled,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("next_times",
			mcp.WithDescription("Today's firing times of a reminder as HH:MM"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleNextTimes,
	)
}

type listItem struct {
	reminder.Reminder
	NextTimes []string `json:"next_times"`
}

func (s *Server) handleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := reminder.Input{
		Text:      req.GetString("text", ""),
		Frequency: req.GetInt("frequency", reminder.DefaultFrequency),
		IsRandom:  req.GetBool("is_random", reminder.DefaultIsRandom),
		StartHour: req.GetInt("start_hour", reminder.DefaultStartHour),
		EndHour:   req.GetInt("end_hour", reminder.DefaultEndHour),
	}
	id, err := s.reminders.Add(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add reminder: %v", err)), nil
	}
	s.log.Info("reminder created", logx.String("id", id), logx.String("via", "mcp"))
	return jsonResult(listItem{Reminder: mustGet(s.reminders, id), NextTimes: s.reminders.NextTimes(id)})
}

func (s *Server) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rs := s.reminders.List()
	if len(rs) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}
	out := make([]listItem, 0, len(rs))
	for _, r := range rs {
		out = append(out, listItem{Reminder: r, NextTimes: s.reminders.NextTimes(r.ID)})
	}
	return jsonResult(out)
}

func (s *Server) handleRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := requireID(req)
	if res != nil {
		return res, nil
	}
	s.reminders.Remove(ctx, id)
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s removed.", id)), nil
}

func (s *Server) handleSetEnabled(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := requireID(req)
	if res != nil {
		return res, nil
	}
	enabled, err := req.RequireBool("enabled")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.reminders.SetEnabled(ctx, id, enabled); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("reminder %s not found", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to update reminder: %v", err)), nil
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s %s.", id, state)), nil
}

func (s *Server) handleNextTimes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := requireID(req)
	if res != nil {
		return res, nil
	}
	if _, ok := s.reminders.Get(id); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("reminder %s not found", id)), nil
	}
	return jsonResult(s.reminders.NextTimes(id))
}

func requireID(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return "", mcp.NewToolResultError("id is required")
	}
	return id, nil
}

func mustGet(rs Reminders, id string) reminder.Reminder {
	r, _ := rs.Get(id)
	return r
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
