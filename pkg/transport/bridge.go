package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/logger"
)

const (
	bridgeReadLimit        = 1 << 20 // 1MB
	bridgeReconnectDelay   = 5 * time.Second
	bridgeHandshakeTimeout = 10 * time.Second
)

// BridgeConfig configures the websocket bridge transport.
type BridgeConfig struct {
	URL string // ws:// or wss:// endpoint of the relay process
}

// bridgeFrame is the JSON frame exchanged with the relay in both
// directions. For outbound sends the client assigns MessageID and the
// relay adopts it as the canonical identifier, so replies referencing a
// bot message resolve without a round trip.
type bridgeFrame struct {
	Type        string         `json:"type"`
	SenderID    string         `json:"sender_id,omitempty"`
	ThreadID    string         `json:"thread_id,omitempty"`
	MessageID   string         `json:"message_id,omitempty"`
	ReplyToID   string         `json:"reply_to_id,omitempty"`
	Body        string         `json:"body,omitempty"`
	Content     string         `json:"content,omitempty"`
	Emoji       string         `json:"emoji,omitempty"`
	Attachments []string       `json:"attachments,omitempty"`
	EventType   string         `json:"event_type,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Bridge connects to an external relay process that fronts a chat
// platform, exchanging JSON frames over a websocket.
type Bridge struct {
	cfg BridgeConfig
	bus *bus.EventBus

	cancel    context.CancelFunc
	connected atomic.Bool

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewBridge(cfg BridgeConfig, eb *bus.EventBus) *Bridge {
	return &Bridge{cfg: cfg, bus: eb}
}

func (b *Bridge) Name() string { return "bridge" }

func (b *Bridge) Start(ctx context.Context) error {
	if b.cfg.URL == "" {
		return fmt.Errorf("bridge URL not configured")
	}
	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
	return nil
}

func (b *Bridge) Stop(context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected.Store(false)
	return nil
}

func (b *Bridge) IsConnected() bool { return b.connected.Load() }

func (b *Bridge) Send(_ context.Context, threadID, content string) (string, error) {
	id := uuid.New().String()
	err := b.write(bridgeFrame{Type: "send", ThreadID: threadID, MessageID: id, Content: content})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (b *Bridge) Reply(_ context.Context, threadID, messageID, content string) (string, error) {
	id := uuid.New().String()
	err := b.write(bridgeFrame{
		Type: "reply", ThreadID: threadID, ReplyToID: messageID, MessageID: id, Content: content,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (b *Bridge) React(_ context.Context, threadID, messageID, emoji string) error {
	return b.write(bridgeFrame{Type: "react", ThreadID: threadID, MessageID: messageID, Emoji: emoji})
}

func (b *Bridge) write(f bridgeFrame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("bridge not connected")
	}
	if err := b.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// run dials the relay and pumps frames until ctx is cancelled,
// reconnecting with a fixed delay on any failure.
func (b *Bridge) run(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: bridgeHandshakeTimeout}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := dialer.DialContext(ctx, b.cfg.URL, nil)
		if err != nil {
			logger.WarnCF("bridge", "Dial failed, retrying", map[string]any{
				"url": b.cfg.URL, "error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(bridgeReconnectDelay):
				continue
			}
		}

		conn.SetReadLimit(bridgeReadLimit)
		b.writeMu.Lock()
		b.conn = conn
		b.writeMu.Unlock()
		b.connected.Store(true)
		logger.InfoCF("bridge", "Connected", map[string]any{"url": b.cfg.URL})

		err = b.readLoop(ctx, conn)

		b.connected.Store(false)
		b.writeMu.Lock()
		b.conn = nil
		b.writeMu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		logger.WarnCF("bridge", "Disconnected, reconnecting", map[string]any{
			"error": fmt.Sprint(err),
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(bridgeReconnectDelay):
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var f bridgeFrame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.WarnCF("bridge", "Invalid frame", map[string]any{"error": err.Error()})
			continue
		}

		var ev bus.InboundEvent
		switch f.Type {
		case "message":
			ev = bus.NewMessageEvent(bus.Message{
				Channel:     b.Name(),
				SenderID:    f.SenderID,
				ThreadID:    f.ThreadID,
				MessageID:   f.MessageID,
				ReplyToID:   f.ReplyToID,
				Body:        f.Body,
				Attachments: f.Attachments,
				ReceivedAt:  time.Now(),
			})
		case "reaction":
			ev = bus.NewReactionEvent(bus.Reaction{
				Channel:   b.Name(),
				SenderID:  f.SenderID,
				ThreadID:  f.ThreadID,
				MessageID: f.MessageID,
				Emoji:     f.Emoji,
			})
		case "event":
			ev = bus.NewSystemEvent(bus.SystemEvent{
				Channel: b.Name(),
				Type:    f.EventType,
				Payload: f.Payload,
			})
		default:
			continue
		}

		if err := b.bus.Publish(ctx, ev); err != nil {
			logger.WarnCF("bridge", "Dropping inbound frame", map[string]any{
				"type": f.Type, "error": err.Error(),
			})
		}
	}
}
