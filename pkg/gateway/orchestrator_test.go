package gateway

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/command"
	"github.com/tinyland-inc/reefbot/pkg/dispatch"
	"github.com/tinyland-inc/reefbot/pkg/llm"
	"github.com/tinyland-inc/reefbot/pkg/ratelimit"
	"github.com/tinyland-inc/reefbot/pkg/security"
	"github.com/tinyland-inc/reefbot/pkg/session"
	"github.com/tinyland-inc/reefbot/pkg/transport"
)

type echoProvider struct{}

func (echoProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	return "echo: " + req.Turns[len(req.Turns)-1].Content, nil
}
func (echoProvider) DefaultModel() string { return "echo" }

type harness struct {
	orch     *Orchestrator
	local    *transport.Local
	stats    *AggregateStats
	sessions *session.Store
	registry *command.Registry
}

func newHarness(t *testing.T, grace time.Duration) *harness {
	t.Helper()

	eb := bus.NewEventBus()
	local := transport.NewLocal(eb)
	transports := map[string]transport.Transport{local.Name(): local}

	sessions := session.NewStore(nil, session.Options{})
	limiter := ratelimit.NewLimiter(time.Minute, 100)
	stats := NewAggregateStats()

	registry := command.NewRegistry()
	err := dispatch.RegisterBuiltins(registry, echoProvider{}, sessions, stats, "test",
		transports, dispatch.AIOptions{MaxTokens: 64})
	if err != nil {
		t.Fatalf("register builtins: %v", err)
	}

	dispatcher := dispatch.NewDispatcher(registry, security.NewGate(security.Config{}),
		limiter, sessions, transports, stats, dispatch.Options{})

	orch := NewOrchestrator(eb, dispatcher, transports, sessions, limiter, nil, stats,
		Options{ShutdownGrace: grace})
	return &harness{orch: orch, local: local, stats: stats, sessions: sessions, registry: registry}
}

// waitForSent polls until the local transport has sent n messages.
func (h *harness) waitForSent(t *testing.T, n int) []transport.Outbound {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sent := h.local.Sent(); len(sent) >= n {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, have %d", n, len(h.local.Sent()))
	return nil
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.orch.Stop(context.Background())

	if !h.orch.Ready() {
		t.Error("not ready with a connected transport")
	}

	if _, err := h.local.Inject(ctx, "123|alice", "t1", "", "ai hello"); err != nil {
		t.Fatalf("inject: %v", err)
	}
	sent := h.waitForSent(t, 1)
	if !strings.Contains(sent[0].Content, "echo: hello") {
		t.Errorf("answer: %q", sent[0].Content)
	}

	// The pending reply is registered just after the answer is sent;
	// wait for it before replying.
	deadline := time.Now().Add(3 * time.Second)
	for !h.sessions.HasPendingReply(ctx, sent[0].MessageID) {
		if time.Now().After(deadline) {
			t.Fatal("pending reply never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Reply continuation flows through the same path.
	if _, err := h.local.Inject(ctx, "123|alice", "t1", sent[0].MessageID, "again"); err != nil {
		t.Fatalf("inject: %v", err)
	}
	sent = h.waitForSent(t, 2)
	if !strings.Contains(sent[1].Content, "echo: again") {
		t.Errorf("continuation answer: %q", sent[1].Content)
	}

	snap := h.stats.StatsSnapshot()
	if snap.Messages != 2 || snap.Commands != 2 || snap.Errors != 0 {
		t.Errorf("stats: %+v", snap)
	}
}

func TestOrchestrator_StopIsOrderly(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.local.Inject(ctx, "123|alice", "t1", "", "ping"); err != nil {
		t.Fatalf("inject: %v", err)
	}
	h.waitForSent(t, 1)

	done := make(chan struct{})
	go func() {
		h.orch.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not complete")
	}

	if h.local.IsConnected() {
		t.Error("transport still connected after stop")
	}
	if h.orch.Ready() {
		t.Error("ready after stop")
	}
}

func TestOrchestrator_Health(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.orch.Stop(context.Background())

	health := h.orch.Health(ctx)
	channels, ok := health["channels"].(map[string]bool)
	if !ok || !channels["local"] {
		t.Errorf("health channels: %+v", health["channels"])
	}
	if cacheOK, _ := health["cache"].(bool); !cacheOK {
		t.Error("cache reported unhealthy")
	}
}

type stallHandler struct {
	started chan struct{}
	release chan struct{} // never closed during the test
}

func (h *stallHandler) Name() string { return "stall" }
func (h *stallHandler) Execute(context.Context, *command.Request, command.Responder) error {
	close(h.started)
	<-h.release
	return nil
}

func TestOrchestrator_StopAbandonsStalledHandler(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond)
	ctx := context.Background()

	stall := &stallHandler{started: make(chan struct{}), release: make(chan struct{})}
	if err := h.registry.Register(&command.Descriptor{Name: "stall", Handler: stall}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.local.Inject(ctx, "123|alice", "t1", "", "stall"); err != nil {
		t.Fatalf("inject: %v", err)
	}
	<-stall.started

	// The handler ignores cancellation entirely; Stop must still return
	// once both bounded waits elapse.
	done := make(chan struct{})
	go func() {
		h.orch.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop blocked on a stalled handler")
	}
	close(stall.release)
}

func TestAggregateStats_Concurrent(t *testing.T) {
	s := NewAggregateStats()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.MessageProcessed()
			s.CommandExecuted()
			s.ErrorOccurred()
			s.ReactionSeen()
		}()
	}
	wg.Wait()

	snap := s.StatsSnapshot()
	if snap.Messages != 50 || snap.Commands != 50 || snap.Errors != 50 || snap.Reactions != 50 {
		t.Errorf("snapshot: %+v", snap)
	}
	if snap.StartTime.IsZero() {
		t.Error("start time not set")
	}
}
