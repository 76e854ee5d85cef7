package commands

import (
	"context"
	"strings"
)

// Prefix marks a chat message as a command.
const Prefix = "!"

type Handler func(ctx context.Context, req Request) error

type Request struct {
	Channel  string
	ChatID   string
	SenderID string
	Username string
	Text     string
	Reply    func(text string) error
}

// Args are the whitespace-separated words after the command name.
func (r Request) Args() []string {
	fields := strings.Fields(r.Text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// ArgText is everything after the command name, trimmed.
func (r Request) ArgText() string {
	_, rest, _ := strings.Cut(strings.TrimSpace(r.Text), " ")
	return strings.TrimSpace(rest)
}

type Result struct {
	Matched bool
	Handled bool
	Command string
	Err     error
}

type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Dispatch runs the command named by req.Text. Unknown commands and plain
// text come back unmatched so the caller can treat them as conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	cmdName, ok := parseCommandName(req.Text)
	if !ok {
		return Result{Matched: false}
	}

	def, found := d.reg.Lookup(req.Channel, cmdName)
	if !found {
		return Result{Matched: false, Command: cmdName}
	}
	if def.Handler == nil {
		return Result{Matched: false, Handled: false, Command: def.Name}
	}
	err := def.Handler(ctx, req)
	return Result{Matched: true, Handled: true, Command: def.Name, Err: err}
}

func firstToken(input string) string {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func parseCommandName(input string) (string, bool) {
	token := firstToken(input)
	if token == "" || !strings.HasPrefix(token, Prefix) {
		return "", false
	}

	name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(token, Prefix)))
	if name == "" {
		return "", false
	}
	return name, true
}
