package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/llm"
	"github.com/tinyland-inc/reefbot/pkg/store"
)

func TestPutGet(t *testing.T) {
	s := NewStore(nil, Options{})
	ctx := context.Background()

	sess := NewSession("discord:t1:alice", "model-x", "be helpful")
	s.Put(ctx, "discord:t1:alice", sess)

	got, ok := s.Get(ctx, "discord:t1:alice")
	if !ok {
		t.Fatal("session not found")
	}
	if got.Model != "model-x" || got.SystemPrompt != "be helpful" {
		t.Errorf("got %+v", got)
	}

	if _, ok := s.Get(ctx, "discord:t1:bob"); ok {
		t.Error("found session for unknown key")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(nil, Options{})
	ctx := context.Background()

	s.Put(ctx, "k", NewSession("k", "m", ""))
	s.AppendTurn(ctx, "k", llm.RoleUser, "hello")

	got, _ := s.Get(ctx, "k")
	got.Turns[0].Content = "mutated"

	again, _ := s.Get(ctx, "k")
	if again.Turns[0].Content != "hello" {
		t.Error("store state was mutated through a returned session")
	}
}

func TestAppendTurn_TrimsOldest(t *testing.T) {
	s := NewStore(nil, Options{MaxTurns: 4})
	ctx := context.Background()

	s.Put(ctx, "k", NewSession("k", "m", ""))
	for i := 0; i < 6; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		if _, ok := s.AppendTurn(ctx, "k", role, fmt.Sprintf("turn-%d", i)); !ok {
			t.Fatalf("append %d: session missing", i)
		}
	}

	got, _ := s.Get(ctx, "k")
	if len(got.Turns) != 4 {
		t.Fatalf("turns: got %d, want 4", len(got.Turns))
	}
	if got.Turns[0].Content != "turn-2" || got.Turns[3].Content != "turn-5" {
		t.Errorf("wrong turns kept: first=%q last=%q", got.Turns[0].Content, got.Turns[3].Content)
	}
}

func TestAppendTurn_MissingSession(t *testing.T) {
	s := NewStore(nil, Options{})
	if _, ok := s.AppendTurn(context.Background(), "nope", llm.RoleUser, "x"); ok {
		t.Error("append to missing session reported ok")
	}
}

func TestClear(t *testing.T) {
	s := NewStore(nil, Options{})
	ctx := context.Background()

	s.Put(ctx, "k", NewSession("k", "m", ""))
	s.Flush()
	s.Clear(ctx, "k")
	s.Flush()

	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("session survived clear")
	}
}

func TestGet_RepopulatesFromMirror(t *testing.T) {
	cache := store.NewMemoryCache()
	s := NewStore(cache, Options{})
	ctx := context.Background()

	s.Put(ctx, "k", NewSession("k", "model-x", "sys"))
	s.AppendTurn(ctx, "k", llm.RoleUser, "hi")
	s.Flush()

	// Simulate a restart: fresh store, same cache.
	s2 := NewStore(cache, Options{})
	got, ok := s2.Get(ctx, "k")
	if !ok {
		t.Fatal("session not recovered from mirror")
	}
	if got.Model != "model-x" || len(got.Turns) != 1 || got.Turns[0].Content != "hi" {
		t.Errorf("recovered session wrong: %+v", got)
	}
}

func TestPendingReply_ConsumedExactlyOnce(t *testing.T) {
	s := NewStore(nil, Options{})
	ctx := context.Background()

	cont := Continuation{Handler: "ai", SenderID: "alice", SessionKey: "k"}
	s.RegisterPendingReply(ctx, "msg-1", cont)
	s.Flush()

	if !s.HasPendingReply(ctx, "msg-1") {
		t.Fatal("registered pending reply not found")
	}

	got, ok := s.ConsumePendingReply(ctx, "msg-1")
	if !ok {
		t.Fatal("consume failed")
	}
	if got.Handler != "ai" || got.SessionKey != "k" {
		t.Errorf("continuation: got %+v", got)
	}

	s.Flush()
	if _, ok := s.ConsumePendingReply(ctx, "msg-1"); ok {
		t.Error("second consume succeeded, want read-once")
	}
	if s.HasPendingReply(ctx, "msg-1") {
		t.Error("pending reply still visible after consume")
	}
}

func TestPendingReply_WarmStartFromMirror(t *testing.T) {
	cache := store.NewMemoryCache()
	s := NewStore(cache, Options{})
	ctx := context.Background()

	s.RegisterPendingReply(ctx, "msg-1", Continuation{Handler: "ai", SessionKey: "k"})
	s.Flush()

	s2 := NewStore(cache, Options{})
	if !s2.HasPendingReply(ctx, "msg-1") {
		t.Fatal("pending reply not visible after restart")
	}
	got, ok := s2.ConsumePendingReply(ctx, "msg-1")
	if !ok || got.Handler != "ai" {
		t.Fatalf("warm-start consume: ok=%v cont=%+v", ok, got)
	}
	s2.Flush()
	if _, ok := s2.ConsumePendingReply(ctx, "msg-1"); ok {
		t.Error("warm-start entry consumed twice")
	}
}

func TestSweep(t *testing.T) {
	s := NewStore(nil, Options{SessionTTL: time.Minute, PendingTTL: time.Minute})
	ctx := context.Background()

	s.Put(ctx, "stale", NewSession("stale", "m", ""))
	s.Put(ctx, "fresh", NewSession("fresh", "m", ""))
	s.RegisterPendingReply(ctx, "old-msg", Continuation{Handler: "ai"})

	// Age the stale entries directly.
	s.mu.Lock()
	s.sessions["stale"].LastUsedAt = time.Now().Add(-2 * time.Minute)
	e := s.pending["old-msg"]
	e.expiresAt = time.Now().Add(-time.Second)
	s.pending["old-msg"] = e
	s.mu.Unlock()

	sessions, pending := s.Sweep()
	if sessions != 1 || pending != 1 {
		t.Errorf("sweep: got (%d, %d), want (1, 1)", sessions, pending)
	}
	if _, ok := s.sessions["fresh"]; !ok {
		t.Error("fresh session was swept")
	}
	if s.Len() != 1 {
		t.Errorf("len: got %d, want 1", s.Len())
	}
}
