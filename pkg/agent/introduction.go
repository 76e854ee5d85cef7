package agent

import (
	"fmt"
	"sync"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/storage"
)

// introductions remembers what people asked to be called and who Connor
// is still waiting on a name from.
type introductions struct {
	store *storage.Store

	mu       sync.Mutex
	names    map[string]string
	awaiting map[string]bool
}

func newIntroductions(store *storage.Store) *introductions {
	names, err := store.Usernames()
	if err != nil {
		logger.WarnCF("agent", "Username registry unreadable", map[string]any{"error": err.Error()})
		names = make(map[string]string)
	}
	return &introductions{store: store, names: names, awaiting: make(map[string]bool)}
}

func (in *introductions) name(senderID string) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	name, ok := in.names[senderID]
	return name, ok
}

func (in *introductions) waitingOn(senderID string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.awaiting[senderID]
}

func (in *introductions) ask(senderID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.awaiting[senderID] = true
}

func (in *introductions) remember(senderID, name string) {
	in.mu.Lock()
	in.names[senderID] = name
	delete(in.awaiting, senderID)
	in.mu.Unlock()
	if err := in.store.SaveUsername(senderID, name); err != nil {
		logger.ErrorCF("agent", "Failed to save username", map[string]any{"error": err.Error()})
	}
}

// username is the introduced name, or whatever the channel reported.
func (al *AgentLoop) username(msg bus.InboundMessage) string {
	if name, ok := al.intro.name(msg.SenderID); ok {
		return name
	}
	return msg.Username()
}

// introduce handles first contact in direct messages and the main
// channel. It reports whether msg was consumed.
func (al *AgentLoop) introduce(msg bus.InboundMessage) bool {
	if al.intro.waitingOn(msg.SenderID) {
		al.intro.remember(msg.SenderID, msg.Content)
		logger.InfoCF("agent", "User introduced", map[string]any{"sender_id": msg.SenderID, "username": msg.Content})
		al.reply(msg, fmt.Sprintf("Nice to meet you, %s! What's on your mind?", msg.Content))
		return true
	}
	if !al.needsIntroduction(msg) {
		return false
	}
	al.intro.ask(msg.SenderID)
	al.reply(msg, "Hey, I don't recognize you! What's your name?")
	return true
}

func (al *AgentLoop) needsIntroduction(msg bus.InboundMessage) bool {
	if _, known := al.intro.name(msg.SenderID); known {
		return false
	}
	if msg.Metadata["is_dm"] == "true" {
		return true
	}
	main := al.mainChatID(msg.Channel)
	return main != "" && msg.ChatID == main
}
