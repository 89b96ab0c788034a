package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/reefbot/pkg/bus"
)

// Outbound records one message the local transport "sent".
type Outbound struct {
	ThreadID  string
	ReplyToID string
	MessageID string
	Content   string
	Emoji     string // set for reactions
}

// Local is an in-process transport used by the console command and tests.
// Sent messages get generated IDs and are handed to an optional callback.
type Local struct {
	bus     *bus.EventBus
	running atomic.Bool

	mu       sync.Mutex
	sent     []Outbound
	onOutput func(Outbound)
}

func NewLocal(eb *bus.EventBus) *Local {
	return &Local{bus: eb}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Start(context.Context) error {
	l.running.Store(true)
	return nil
}

func (l *Local) Stop(context.Context) error {
	l.running.Store(false)
	return nil
}

func (l *Local) IsConnected() bool { return l.running.Load() }

// SetOutputFunc registers a callback invoked for every outbound action.
func (l *Local) SetOutputFunc(fn func(Outbound)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onOutput = fn
}

// Sent returns a copy of everything sent so far.
func (l *Local) Sent() []Outbound {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Outbound, len(l.sent))
	copy(out, l.sent)
	return out
}

func (l *Local) Send(_ context.Context, threadID, content string) (string, error) {
	return l.record(Outbound{ThreadID: threadID, Content: content}), nil
}

func (l *Local) Reply(_ context.Context, threadID, messageID, content string) (string, error) {
	return l.record(Outbound{ThreadID: threadID, ReplyToID: messageID, Content: content}), nil
}

func (l *Local) React(_ context.Context, threadID, messageID, emoji string) error {
	l.record(Outbound{ThreadID: threadID, ReplyToID: messageID, Emoji: emoji})
	return nil
}

// Inject publishes an inbound message as if a user had typed it.
func (l *Local) Inject(ctx context.Context, senderID, threadID, replyToID, body string) (string, error) {
	id := uuid.New().String()
	err := l.bus.Publish(ctx, bus.NewMessageEvent(bus.Message{
		Channel:    l.Name(),
		SenderID:   senderID,
		ThreadID:   threadID,
		MessageID:  id,
		ReplyToID:  replyToID,
		Body:       body,
		ReceivedAt: time.Now(),
	}))
	return id, err
}

func (l *Local) record(o Outbound) string {
	o.MessageID = uuid.New().String()
	l.mu.Lock()
	l.sent = append(l.sent, o)
	fn := l.onOutput
	l.mu.Unlock()
	if fn != nil {
		fn(o)
	}
	return o.MessageID
}
