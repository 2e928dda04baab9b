package dispatch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const DefaultTitle = "Reminder!"

// Console renders reminders as a bordered box on a terminal.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	title lipgloss.Style
	box   lipgloss.Style
	head  string
}

func NewConsole(out io.Writer, title string) *Console {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:   out,
		head:  title,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1),
	}
}

func (c *Console) Deliver(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	body := c.box.Render(c.title.Render(c.head) + "\n" + text)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, body)
	return err
}
