// File: internal/transport/console.go
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/agent"
)

// Replier accepts human replies. agent.Controller implements it.
type Replier interface {
	Reply(text string) error
}

// Console is a terminal human channel: events print to out and each input
// line is delivered as a reply.
type Console struct {
	out    io.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

var _ schemas.HumanChannel = (*Console)(nil)

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer, logger *zap.Logger) *Console {
	return &Console{out: out, logger: logger.Named("console")}
}

// Emit implements schemas.HumanChannel.
func (c *Console) Emit(_ context.Context, ev schemas.Event) {
	var line string
	switch ev.Type {
	case schemas.EventObservation:
		line = fmt.Sprintf("Page observation: %s\n", ev.Text)
	case schemas.EventResponse:
		line = fmt.Sprintf("Agent: %s\n", ev.Text)
	case schemas.EventRequestInput:
		line = fmt.Sprintf("Agent: %s\nYou: ", ev.Text)
	case schemas.EventTaskFinished:
		if ev.Text != "" {
			line = fmt.Sprintf("Task finished: %s\n", ev.Text)
		} else {
			line = "Task finished.\n"
		}
	default:
		line = fmt.Sprintf("%s: %s\n", ev.Type, ev.Text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, line); err != nil {
		c.logger.Warn("Failed to write to console.", zap.Error(err))
	}
}

// ReadReplies delivers each non-empty line of in to replier until in is
// exhausted or ctx is done. Lines typed while no question is pending are
// ignored with a notice.
func (c *Console) ReadReplies(ctx context.Context, in io.Reader, replier Replier) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			c.deliver(replier, strings.TrimSpace(line))
		}
	}
}

func (c *Console) deliver(replier Replier, line string) {
	if line == "" {
		return
	}
	err := replier.Reply(line)
	switch {
	case err == nil:
		c.logger.Debug("Delivered console reply.")
	case errors.Is(err, agent.ErrNoPendingQuestion), errors.Is(err, agent.ErrReplyPending):
		c.Emit(context.Background(), schemas.Event{Type: schemas.EventResponse, Text: "I'm working on it; I'll ask when I need your input."})
	default:
		c.logger.Warn("Failed to deliver console reply.", zap.Error(err))
	}
}
