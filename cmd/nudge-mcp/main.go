// Command nudge-mcp runs the reminder engine with its tools served over
// MCP on stdio. Logs and console deliveries go to stderr.
//
// Usage:
//
//	nudge-mcp -config ./nudge.yaml
//
// Point it at its own storage path: a daemon sharing the same file would
// overwrite its changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"nudge/internal/app"
	"nudge/internal/mcpserver"
	logx "nudge/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./nudge.yaml", "path to config file (.yaml, .yml or .json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.WithStdio())
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	log := a.Logger().With(logx.String("comp", "mcp"))
	s := mcpserver.New(a.Engine(), log)

	served := make(chan error, 1)
	go func() { served <- server.ServeStdio(s.MCPServer()) }()

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	case err := <-served:
		reason = app.StopStdinEOF
		if err != nil {
			log.Error("mcp server stopped", logx.Err(err))
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
}
