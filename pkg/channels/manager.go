package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/logger"
)

const defaultChannelQueueSize = 100

type channelWorker struct {
	ch      Channel
	queue   chan bus.OutboundMessage
	done    chan struct{}
	started bool
}

// Manager owns the enabled channels and fans outbound bus messages out to
// them, one worker per channel.
type Manager struct {
	channels     map[string]Channel
	workers      map[string]*channelWorker
	bus          *bus.MessageBus
	dispatchTask *asyncTask
	dispatchDone chan struct{}
	mu           sync.RWMutex
}

type asyncTask struct {
	cancel context.CancelFunc
}

// NewManager builds the channels enabled in cfg. More can be added with
// RegisterChannel before StartAll.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		workers:  make(map[string]*channelWorker),
		bus:      messageBus,
	}

	if cfg != nil && cfg.Channels.Discord.Enabled {
		if cfg.Channels.Discord.Token == "" {
			return nil, fmt.Errorf("discord enabled but no token configured")
		}
		discord, err := NewDiscordChannel(cfg.Channels.Discord, messageBus)
		if err != nil {
			return nil, err
		}
		m.RegisterChannel(discord.Name(), discord)
	}

	logger.InfoCF("channels", "Channel initialization completed", map[string]any{
		"enabled_channels": len(m.channels),
	})
	return m, nil
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		return fmt.Errorf("no channels enabled")
	}

	logger.InfoC("channels", "Starting all channels")

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchTask = &asyncTask{cancel: cancel}

	for name, channel := range m.channels {
		logger.InfoCF("channels", "Starting channel", map[string]any{
			"channel": name,
		})
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	for name, w := range m.workers {
		w.started = true
		go m.runWorker(dispatchCtx, name, w)
	}

	m.dispatchDone = make(chan struct{})
	go m.dispatchOutbound(dispatchCtx, m.dispatchDone)

	logger.InfoC("channels", "All channels started")
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	logger.InfoC("channels", "Stopping all channels")

	// The dispatcher takes the read lock, so it is drained before locking.
	m.mu.Lock()
	task, done := m.dispatchTask, m.dispatchDone
	m.dispatchTask = nil
	m.mu.Unlock()
	if task != nil {
		task.cancel()
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.workers {
		if w.started {
			close(w.queue)
			<-w.done
			w.started = false
		}
	}

	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels stopped")
	return nil
}

func (m *Manager) runWorker(ctx context.Context, name string, w *channelWorker) {
	defer close(w.done)
	for {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			if err := w.ch.Send(ctx, msg); err != nil {
				logger.ErrorCF("channels", "Error sending message", map[string]any{
					"channel": name,
					"kind":    string(msg.Kind),
					"error":   err.Error(),
				})
			}
		case <-ctx.Done():
			return
		}
	}
}

// dispatchOutbound routes bus messages to their channel's worker. A
// message without a channel is a broadcast.
func (m *Manager) dispatchOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	logger.InfoC("channels", "Outbound dispatcher started")

	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			logger.InfoC("channels", "Outbound dispatcher stopped")
			return
		}

		m.mu.RLock()
		var targets []*channelWorker
		if msg.Channel == "" {
			for _, w := range m.workers {
				targets = append(targets, w)
			}
		} else if w, exists := m.workers[msg.Channel]; exists {
			targets = append(targets, w)
		}
		m.mu.RUnlock()

		if len(targets) == 0 {
			logger.WarnCF("channels", "Unknown channel for outbound message", map[string]any{
				"channel": msg.Channel,
			})
			continue
		}

		for _, w := range targets {
			select {
			case w.queue <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

func (m *Manager) GetStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]any)
	for name, channel := range m.channels {
		status[name] = map[string]any{
			"enabled": true,
			"running": channel.IsRunning(),
		}
	}
	return status
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
	m.workers[name] = &channelWorker{
		ch:    channel,
		queue: make(chan bus.OutboundMessage, defaultChannelQueueSize),
		done:  make(chan struct{}),
	}
}
