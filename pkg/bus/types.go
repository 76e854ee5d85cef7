package bus

// Kind routes an outbound message to one of Connor's announcement
// channels.
type Kind string

const (
	KindMain      Kind = "main"
	KindThoughts  Kind = "thoughts"
	KindBeliefs   Kind = "beliefs"
	KindKnowledge Kind = "knowledge"
)

type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Username is the display name the channel attached, or the sender id.
func (m InboundMessage) Username() string {
	if name := m.Metadata["username"]; name != "" {
		return name
	}
	return m.SenderID
}

// OutboundMessage is sent to Channel, or to every channel when Channel is
// empty. ChatID pins a specific conversation; otherwise the channel picks
// its destination from Kind.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}
