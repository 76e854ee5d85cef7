package bus

import (
	"context"
	"sync"
)

// queueSize bounds how far chat surfaces and the agent loop may drift apart
// before publishers block.
const queueSize = 100

// MessageBus joins Connor's chat surfaces to the agent loop. Chat lines flow
// in on one queue; replies and announcements flow out on the other. Once
// closed, publishes are dropped and readers see ok == false.
type MessageBus struct {
	mu       sync.RWMutex
	closed   bool
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueSize),
		outbound: make(chan OutboundMessage, queueSize),
	}
}

// PublishInbound queues a chat line for the agent loop.
func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if !mb.closed {
		mb.inbound <- msg
	}
}

// ConsumeInbound waits for the next chat line. ok is false once ctx ends or
// the bus is closed.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (msg InboundMessage, ok bool) {
	select {
	case msg, ok = <-mb.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound queues a message for the channel manager.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if !mb.closed {
		mb.outbound <- msg
	}
}

// Reply answers in the conversation in came from.
func (mb *MessageBus) Reply(in InboundMessage, content string) {
	mb.PublishOutbound(OutboundMessage{
		Channel: in.Channel,
		ChatID:  in.ChatID,
		Kind:    KindMain,
		Content: content,
	})
}

// Announce broadcasts content to every channel; each channel posts it where
// it routes kind.
func (mb *MessageBus) Announce(kind Kind, content string) {
	mb.PublishOutbound(OutboundMessage{Kind: kind, Content: content})
}

// SubscribeOutbound waits for the next reply or announcement. ok is false
// once ctx ends or the bus is closed.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (msg OutboundMessage, ok bool) {
	select {
	case msg, ok = <-mb.outbound:
		return msg, ok
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Close is idempotent.
func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}
