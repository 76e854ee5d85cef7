package channels

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/config"
)

type fakeSession struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (s *fakeSession) AddHandler(any) func() { return func() {} }
func (s *fakeSession) Open() error           { return nil }
func (s *fakeSession) Close() error          { return nil }
func (s *fakeSession) User(string, ...discordgo.RequestOption) (*discordgo.User, error) {
	return &discordgo.User{ID: "bot", Username: "connor"}, nil
}
func (s *fakeSession) ChannelTyping(string, ...discordgo.RequestOption) error { return nil }
func (s *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]string)
	}
	s.sent[channelID] = append(s.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newTestDiscord(t *testing.T, cfg config.DiscordConfig, msgBus *bus.MessageBus) (*DiscordChannel, *fakeSession) {
	t.Helper()
	session := &fakeSession{}
	c := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}
	require.NoError(t, c.Start(t.Context()))
	return c, session
}

var routedConfig = config.DiscordConfig{
	MainChannelID:      "main",
	ThoughtsChannelID:  "thoughts",
	BeliefsChannelID:   "beliefs",
	KnowledgeChannelID: "knowledge",
}

func TestDiscordResolveChannelID(t *testing.T) {
	c, _ := newTestDiscord(t, routedConfig, bus.NewMessageBus())
	tests := []struct {
		name string
		msg  bus.OutboundMessage
		want string
	}{
		{"main kind defaults to main channel", bus.OutboundMessage{Kind: bus.KindMain}, "main"},
		{"reply goes back to conversation", bus.OutboundMessage{Kind: bus.KindMain, ChatID: "dm-1"}, "dm-1"},
		{"thoughts channel wins over chat", bus.OutboundMessage{Kind: bus.KindThoughts, ChatID: "dm-1"}, "thoughts"},
		{"beliefs", bus.OutboundMessage{Kind: bus.KindBeliefs}, "beliefs"},
		{"knowledge", bus.OutboundMessage{Kind: bus.KindKnowledge}, "knowledge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.resolveChannelID(tt.msg))
		})
	}

	bare, _ := newTestDiscord(t, config.DiscordConfig{MainChannelID: "main"}, bus.NewMessageBus())
	assert.Equal(t, "main", bare.resolveChannelID(bus.OutboundMessage{Kind: bus.KindBeliefs}))
}

func TestDiscordSend_SplitsLongMessages(t *testing.T) {
	c, session := newTestDiscord(t, routedConfig, bus.NewMessageBus())
	long := strings.Repeat("word ", 700)
	require.NoError(t, c.Send(t.Context(), bus.OutboundMessage{Kind: bus.KindMain, Content: long}))

	chunks := session.sent["main"]
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), discordChunkLimit)
	}
}

func TestDiscordSend_NotRunning(t *testing.T) {
	c, _ := newTestDiscord(t, routedConfig, bus.NewMessageBus())
	require.NoError(t, c.Stop(t.Context()))
	assert.Error(t, c.Send(t.Context(), bus.OutboundMessage{Content: "hi"}))
}

func TestDiscordSend_NoDestinationIsDropped(t *testing.T) {
	c, session := newTestDiscord(t, config.DiscordConfig{}, bus.NewMessageBus())
	require.NoError(t, c.Send(t.Context(), bus.OutboundMessage{Kind: bus.KindThoughts, Content: "hmm"}))
	assert.Empty(t, session.sent)
}

func TestDiscordHandleMessage(t *testing.T) {
	msgBus := bus.NewMessageBus()
	c, _ := newTestDiscord(t, config.DiscordConfig{AllowFrom: []string{"@ana"}}, msgBus)

	c.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "c1", Content: "hello connor",
		Author: &discordgo.User{ID: "7", Username: "ana"},
	}})
	c.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "c1", Content: "ignored",
		Author: &discordgo.User{ID: "8", Username: "bob"},
	}})
	c.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "c1", Content: "echo",
		Author: &discordgo.User{ID: "bot", Username: "connor"},
	}})

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	in, ok := msgBus.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello connor", in.Content)
	assert.Equal(t, "ana", in.Username())
	assert.Equal(t, "c1", in.ChatID)
	assert.Equal(t, "true", in.Metadata["is_dm"])

	short, cancelShort := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancelShort()
	_, ok = msgBus.ConsumeInbound(short)
	assert.False(t, ok)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 100))

	text := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	chunks := splitMessage(text, 80)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 60), chunks[0])
	assert.Equal(t, strings.Repeat("b", 60), chunks[1])

	beliefs := "**Updated Beliefs**:\n```json\n" + strings.Repeat("{\"k\": \"v\"}\n", 10) + "```"
	for _, chunk := range splitMessage(strings.Repeat("x ", 30)+beliefs, 60) {
		assert.Equal(t, 0, strings.Count(chunk, "```")%2, "chunk splits a code block: %q", chunk)
	}
}
