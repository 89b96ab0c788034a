package bus

import "time"

// Kind discriminates the inbound event union.
type Kind string

const (
	KindMessage  Kind = "message"
	KindReaction Kind = "reaction"
	KindSystem   Kind = "system"
)

// Message is a chat message received from a transport.
type Message struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ThreadID    string            `json:"thread_id"`
	MessageID   string            `json:"message_id"`
	ReplyToID   string            `json:"reply_to_id,omitempty"` // ID of the message this one replies to
	Body        string            `json:"body"`
	Attachments []string          `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
}

// SessionKey returns the composite identity for conversation state.
func (m *Message) SessionKey() string {
	return m.Channel + ":" + m.ThreadID + ":" + m.SenderID
}

// Reaction is an emoji reaction on a prior message.
type Reaction struct {
	Channel   string `json:"channel"`
	SenderID  string `json:"sender_id"`
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"` // message the reaction targets
	Emoji     string `json:"emoji"`
}

// SystemEvent covers presence changes and other platform notifications
// that the pipeline does not route to handlers.
type SystemEvent struct {
	Channel string         `json:"channel"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// InboundEvent is the discriminated union delivered by the bus.
// Exactly one of Message, Reaction, System is non-nil, matching Kind.
type InboundEvent struct {
	Kind     Kind         `json:"kind"`
	Message  *Message     `json:"message,omitempty"`
	Reaction *Reaction    `json:"reaction,omitempty"`
	System   *SystemEvent `json:"system,omitempty"`
}

// NewMessageEvent wraps a Message, stamping ReceivedAt if unset.
func NewMessageEvent(m Message) InboundEvent {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now()
	}
	return InboundEvent{Kind: KindMessage, Message: &m}
}

// NewReactionEvent wraps a Reaction.
func NewReactionEvent(r Reaction) InboundEvent {
	return InboundEvent{Kind: KindReaction, Reaction: &r}
}

// NewSystemEvent wraps a SystemEvent.
func NewSystemEvent(s SystemEvent) InboundEvent {
	return InboundEvent{Kind: KindSystem, System: &s}
}
