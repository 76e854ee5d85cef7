package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/config"
)

type recordingChannel struct {
	*BaseChannel
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func newRecordingChannel(name string) *recordingChannel {
	return &recordingChannel{BaseChannel: NewBaseChannel(name, nil, nil)}
}

func (c *recordingChannel) Start(context.Context) error { c.setRunning(true); return nil }
func (c *recordingChannel) Stop(context.Context) error  { c.setRunning(false); return nil }
func (c *recordingChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestManager_RoutesAndBroadcasts(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m, err := NewManager(config.DefaultConfig(), msgBus)
	require.NoError(t, err)

	a, b := newRecordingChannel("a"), newRecordingChannel("b")
	m.RegisterChannel("a", a)
	m.RegisterChannel("b", b)
	assert.Equal(t, []string{"a", "b"}, m.GetEnabledChannels())

	require.NoError(t, m.StartAll(t.Context()))

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "a", Content: "reply"})
	msgBus.PublishOutbound(bus.OutboundMessage{Kind: bus.KindBeliefs, Content: "beliefs"})
	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "ghost", Content: "lost"})

	eventually(t, func() bool { return a.count() == 2 && b.count() == 1 })
	require.NoError(t, m.StopAll(t.Context()))
	assert.False(t, a.IsRunning())
}

func TestManager_NoChannels(t *testing.T) {
	m, err := NewManager(config.DefaultConfig(), bus.NewMessageBus())
	require.NoError(t, err)
	assert.Error(t, m.StartAll(t.Context()))
}

func TestManager_DiscordNeedsToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels.Discord.Enabled = true
	_, err := NewManager(cfg, bus.NewMessageBus())
	assert.Error(t, err)
}
