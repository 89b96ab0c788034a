package transport

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tinyland-inc/reefbot/pkg/bus"
)

func TestSplitMessage_NoSplitNeeded(t *testing.T) {
	chunks := SplitMessage("short", 100)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("got %q", chunks)
	}

	// max 0 means unlimited
	long := strings.Repeat("a", 5000)
	chunks = SplitMessage(long, 0)
	if len(chunks) != 1 {
		t.Errorf("unlimited split produced %d chunks", len(chunks))
	}
}

func TestSplitMessage_PrefersNewlines(t *testing.T) {
	content := "first paragraph\nsecond paragraph\nthird paragraph"
	chunks := SplitMessage(content, 20)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	if chunks[0] != "first paragraph" {
		t.Errorf("first chunk: got %q", chunks[0])
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 20 {
			t.Errorf("chunk %d exceeds max: %q", i, c)
		}
	}
	if joined := strings.Join(chunks, "\n"); joined != content {
		t.Errorf("content lost in split: got %q", joined)
	}
}

func TestSplitMessage_FallsBackToSpaces(t *testing.T) {
	content := "one two three four five six seven eight nine ten"
	chunks := SplitMessage(content, 16)
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 16 {
			t.Errorf("chunk %d exceeds max: %q", i, c)
		}
	}
	if joined := strings.Join(chunks, " "); joined != content {
		t.Errorf("content lost in split: got %q", joined)
	}
}

func TestSplitMessage_HardSplitWithoutBoundaries(t *testing.T) {
	content := strings.Repeat("a", 25)
	chunks := SplitMessage(content, 10)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if total := strings.Join(chunks, ""); total != content {
		t.Error("content lost in hard split")
	}
}

func TestSplitMessage_MultibyteRunes(t *testing.T) {
	content := strings.Repeat("ü", 15)
	chunks := SplitMessage(content, 10)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if utf8.RuneCountInString(c) > 10 {
			t.Errorf("chunk %d exceeds max runes", i)
		}
	}
}

func TestLocal_RoundTrip(t *testing.T) {
	eb := bus.NewEventBus()
	l := NewLocal(eb)
	ctx := context.Background()

	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !l.IsConnected() {
		t.Error("not connected after start")
	}

	var seen []Outbound
	l.SetOutputFunc(func(o Outbound) { seen = append(seen, o) })

	id, err := l.Send(ctx, "t1", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id == "" {
		t.Error("send returned empty message ID")
	}
	replyID, err := l.Reply(ctx, "t1", id, "answer")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if replyID == id {
		t.Error("reply reused the sent message ID")
	}
	if err := l.React(ctx, "t1", id, "👍"); err != nil {
		t.Fatalf("react: %v", err)
	}

	sent := l.Sent()
	if len(sent) != 3 || len(seen) != 3 {
		t.Fatalf("recorded %d, callback %d, want 3 each", len(sent), len(seen))
	}
	if sent[1].ReplyToID != id {
		t.Errorf("reply target: got %q, want %q", sent[1].ReplyToID, id)
	}
	if sent[2].Emoji != "👍" {
		t.Errorf("reaction emoji: got %q", sent[2].Emoji)
	}
}

func TestLocal_InjectPublishes(t *testing.T) {
	eb := bus.NewEventBus()
	l := NewLocal(eb)
	ctx := context.Background()

	id, err := l.Inject(ctx, "123|alice", "t1", "prev", "hello there")
	if err != nil {
		t.Fatalf("inject: %v", err)
	}

	ev, ok := eb.Consume(ctx)
	if !ok || ev.Kind != bus.KindMessage {
		t.Fatalf("consume: ok=%v kind=%v", ok, ev.Kind)
	}
	m := ev.Message
	if m.MessageID != id || m.ReplyToID != "prev" || m.Body != "hello there" || m.Channel != "local" {
		t.Errorf("injected message: %+v", m)
	}
}
