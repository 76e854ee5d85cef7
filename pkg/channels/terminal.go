package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/logger"
)

// LineReader is the input side of a terminal; *readline.Instance is one.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// TerminalChannel lets a local user talk to Connor from a shell.
type TerminalChannel struct {
	*BaseChannel
	username string
	in       LineReader
	out      io.Writer
	outMu    sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewReadlineTerminal opens a readline prompt on the controlling terminal.
func NewReadlineTerminal(username string, historyFile string, msgBus *bus.MessageBus) (*TerminalChannel, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36m" + username + "> \033[0m",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	return NewTerminalChannel(username, rl, rl.Stdout(), msgBus), nil
}

func NewTerminalChannel(username string, in LineReader, out io.Writer, msgBus *bus.MessageBus) *TerminalChannel {
	return &TerminalChannel{
		BaseChannel: NewBaseChannel("terminal", msgBus, nil),
		username:    username,
		in:          in,
		out:         out,
		done:        make(chan struct{}),
	}
}

// Done is closed when the user leaves (EOF, ^C or "exit").
func (c *TerminalChannel) Done() <-chan struct{} {
	return c.done
}

func (c *TerminalChannel) Start(ctx context.Context) error {
	c.setRunning(true)
	go c.readLoop(ctx)
	return nil
}

func (c *TerminalChannel) readLoop(ctx context.Context) {
	defer c.finish()
	for {
		line, err := c.in.Readline()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, readline.ErrInterrupt) {
				logger.WarnCF("terminal", "Read failed", map[string]any{"error": err.Error()})
			}
			return
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.HandleMessage("local", "terminal", line, map[string]string{"username": c.username})
	}
}

func (c *TerminalChannel) finish() {
	c.stopOnce.Do(func() {
		c.setRunning(false)
		close(c.done)
	})
}

func (c *TerminalChannel) Stop(ctx context.Context) error {
	err := c.in.Close()
	c.finish()
	return err
}

// Send prints a message. Side announcements are labelled with their kind.
func (c *TerminalChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()

	var err error
	switch msg.Kind {
	case "", bus.KindMain:
		_, err = fmt.Fprintf(c.out, "\n%s\n\n", msg.Content)
	default:
		_, err = fmt.Fprintf(c.out, "\n\033[90m[%s]\n%s\033[0m\n\n", msg.Kind, msg.Content)
	}
	return err
}
