// Package agent runs Connor's conversation loop. It consumes inbound
// messages, dispatches "!" commands, and turns everything else into an
// exchange that moves his chemistry, his memory and his mood.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/commands"
	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/knowledge"
	"github.com/sipeed/connor/pkg/lifecycle"
	"github.com/sipeed/connor/pkg/llm"
	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/storage"
	"github.com/sipeed/connor/pkg/thought"
	"github.com/sipeed/connor/pkg/utils"
)

// Deps are the collaborators an AgentLoop needs.
type Deps struct {
	Config    *config.Config
	Bus       *bus.MessageBus
	Gen       llm.Client
	Store     *storage.Store
	Log       storage.InteractionLog
	Digest    *knowledge.Digest
	Lifecycle *lifecycle.Controller
	Thoughts  *thought.Engine
}

type AgentLoop struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	gen      llm.Client
	store    *storage.Store
	log      storage.InteractionLog
	digest   *knowledge.Digest
	life     *lifecycle.Controller
	thoughts *thought.Engine
	commands *commands.Dispatcher
	intro    *introductions
	running  atomic.Bool
}

var _ commands.Runtime = (*AgentLoop)(nil)

func NewAgentLoop(d Deps) *AgentLoop {
	return &AgentLoop{
		cfg:      d.Config,
		bus:      d.Bus,
		gen:      d.Gen,
		store:    d.Store,
		log:      d.Log,
		digest:   d.Digest,
		life:     d.Lifecycle,
		thoughts: d.Thoughts,
		commands: commands.NewDispatcher(commands.NewRegistry(commands.BuiltinDefinitions())),
		intro:    newIntroductions(d.Store),
	}
}

// Run handles inbound messages one at a time until ctx is done, the bus
// closes or Stop is called.
func (al *AgentLoop) Run(ctx context.Context) error {
	al.running.Store(true)
	logger.InfoC("agent", "Agent loop started")

	for al.running.Load() {
		msg, ok := al.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		al.processMessage(ctx, msg)
	}

	logger.InfoC("agent", "Agent loop stopped")
	return nil
}

func (al *AgentLoop) Stop() {
	al.running.Store(false)
}

func (al *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) {
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" {
		return
	}

	logger.InfoCF("agent", "Processing message", map[string]any{
		"channel":   msg.Channel,
		"chat_id":   msg.ChatID,
		"sender_id": msg.SenderID,
		"preview":   utils.Truncate(msg.Content, 80),
	})

	if al.handleCommand(ctx, msg) {
		return
	}
	if al.introduce(msg) {
		return
	}
	al.converse(ctx, msg, al.username(msg))
}

func (al *AgentLoop) handleCommand(ctx context.Context, msg bus.InboundMessage) bool {
	res := al.commands.Dispatch(commands.WithRuntime(ctx, al), commands.Request{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Username: al.username(msg),
		Text:     msg.Content,
		Reply: func(text string) error {
			al.reply(msg, text)
			return nil
		},
	})
	if res.Err != nil {
		logger.WarnCF("agent", "Command failed", map[string]any{"command": res.Command, "error": res.Err.Error()})
		al.reply(msg, fmt.Sprintf("Command failed: %v", res.Err))
	}
	return res.Handled
}

// reply answers in the conversation msg came from.
func (al *AgentLoop) reply(msg bus.InboundMessage, text string) {
	al.bus.Reply(msg, text)
}

// replyAndMirror answers in place and also posts to the main channel when
// the conversation happened elsewhere.
func (al *AgentLoop) replyAndMirror(msg bus.InboundMessage, text string) {
	al.reply(msg, text)
	if main := al.mainChatID(msg.Channel); main != "" && msg.ChatID != main {
		al.bus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, Kind: bus.KindMain, Content: text})
	}
}

// announce broadcasts to every channel, routed by kind.
func (al *AgentLoop) announce(kind bus.Kind, text string) {
	al.bus.Announce(kind, text)
}

func (al *AgentLoop) mainChatID(channel string) string {
	if channel == "discord" {
		return al.cfg.Channels.Discord.MainChannelID
	}
	return ""
}

func (al *AgentLoop) Config() *config.Config {
	return al.cfg
}

func (al *AgentLoop) Status() lifecycle.Status {
	return al.life.Status()
}

func (al *AgentLoop) TogglePartyMode() bool {
	on := al.life.TogglePartyMode()
	logger.InfoCF("agent", "Party mode toggled", map[string]any{"party_mode": on})
	return on
}

// AdvanceAge forces a birthday and announces it.
func (al *AgentLoop) AdvanceAge(ctx context.Context) lifecycle.Transition {
	tr := al.life.AdvanceAge(ctx)
	al.announceTransition(tr)
	return tr
}

// Rebirth starts the next cycle when the current one is over.
func (al *AgentLoop) Rebirth(ctx context.Context) (lifecycle.Transition, bool) {
	tr, ok := al.life.RebirthIfDue(ctx)
	if ok {
		al.announceTransition(tr)
	}
	return tr, ok
}

func (al *AgentLoop) Thoughts() *thought.Engine {
	return al.thoughts
}

func (al *AgentLoop) RecentInteractions(ctx context.Context, n int) ([]storage.Interaction, error) {
	return al.log.Recent(ctx, n)
}

func (al *AgentLoop) LoadVolume(cycle int) (lifecycle.Volume, error) {
	var v lifecycle.Volume
	if err := al.store.LoadVolume(cycle, &v); err != nil {
		return lifecycle.Volume{}, err
	}
	return v, nil
}
