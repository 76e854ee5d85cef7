package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/sipeed/connor/pkg/bus"
)

// Channel is a chat surface Connor can listen and speak on.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel holds what every channel shares: its name, the bus and the
// sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed checks senderID against the allowlist. Sender ids and list
// entries may be compound "id|username"; a username entry may carry a
// leading "@".
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	id, user, _ := strings.Cut(senderID, "|")
	for _, allowed := range c.allowList {
		allowed = strings.TrimPrefix(strings.TrimSpace(allowed), "@")
		allowedID, allowedUser, _ := strings.Cut(allowed, "|")
		switch {
		case allowed == senderID:
			return true
		case allowedID != "" && allowedID == id:
			return true
		case user != "" && (allowedID == user || allowedUser == user):
			return true
		}
	}
	return false
}

// HandleMessage publishes an allowed inbound message to the bus. A
// "username" in metadata takes part in the allowlist check.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, metadata map[string]string) {
	who := senderID
	if name := metadata["username"]; name != "" && !strings.Contains(senderID, "|") {
		who = senderID + "|" + name
	}
	if !c.IsAllowed(who) {
		return
	}
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:  c.name,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Metadata: metadata,
	})
}
