package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/command"
	"github.com/tinyland-inc/reefbot/pkg/llm"
	"github.com/tinyland-inc/reefbot/pkg/session"
	"github.com/tinyland-inc/reefbot/pkg/transport"
)

// RegisterBuiltins installs the stock command set on the registry.
func RegisterBuiltins(
	reg *command.Registry,
	provider llm.Provider,
	sessions *session.Store,
	stats StatsProvider,
	version string,
	transports map[string]transport.Transport,
	ai AIOptions,
) error {
	descriptors := []*command.Descriptor{
		{
			Name:        "ai",
			Aliases:     []string{"ask", "chat"},
			Description: "Ask the assistant a question",
			Handler:     NewAIHandler(provider, sessions, ai),
		},
		{
			Name:        "clear",
			Aliases:     []string{"reset"},
			Description: "Forget the current conversation",
			Handler:     NewClearHandler(sessions),
		},
		{
			Name:        "help",
			Description: "List available commands",
			Handler:     NewHelpHandler(reg),
		},
		{
			Name:        "status",
			Description: "Show uptime, counters, and channel state",
			Handler:     NewStatusHandler(stats, version, transports),
		},
		{
			Name:        "ping",
			Description: "Measure pipeline latency",
			Handler:     NewPingHandler(),
		},
	}
	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// StatsSnapshot is a point-in-time copy of the aggregate counters.
type StatsSnapshot struct {
	StartTime time.Time
	Messages  int64
	Commands  int64
	Errors    int64
	Reactions int64
}

// StatsProvider hands read-only snapshots to the status command.
type StatsProvider interface {
	StatsSnapshot() StatsSnapshot
}

// AIOptions tunes the ai command.
type AIOptions struct {
	Model        string // empty picks the provider default
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// AIHandler runs one model exchange per invocation, keeping the
// conversation in the session store and arming a pending reply on the
// sent answer so the user can continue by replying to it.
type AIHandler struct {
	provider llm.Provider
	sessions *session.Store
	opts     AIOptions
}

func NewAIHandler(provider llm.Provider, sessions *session.Store, opts AIOptions) *AIHandler {
	return &AIHandler{provider: provider, sessions: sessions, opts: opts}
}

func (h *AIHandler) Name() string { return "ai" }

func (h *AIHandler) Execute(ctx context.Context, req *command.Request, resp command.Responder) error {
	prompt := strings.TrimSpace(req.Args)
	if prompt == "" {
		_, err := resp.Reply(ctx, req.Event.ThreadID, req.Event.MessageID,
			"Ask me something: ai <question>")
		return err
	}

	key := req.Event.SessionKey()
	if req.Cont != nil && req.Cont.SessionKey != "" {
		key = req.Cont.SessionKey
	}

	sess, ok := h.sessions.Get(ctx, key)
	if !ok {
		model := h.opts.Model
		if model == "" {
			model = h.provider.DefaultModel()
		}
		sess = session.NewSession(key, model, h.opts.SystemPrompt)
		h.sessions.Put(ctx, key, sess)
	}

	// The user turn rides along in the request only; it is persisted
	// after the model call succeeds, so a failed call leaves the
	// session exactly as it was.
	turns := append(sess.Turns, llm.Turn{
		Role:      llm.RoleUser,
		Content:   prompt,
		Timestamp: time.Now(),
	})

	answer, err := h.provider.Complete(ctx, llm.Request{
		Model:        sess.Model,
		SystemPrompt: sess.SystemPrompt,
		Turns:        turns,
		MaxTokens:    h.opts.MaxTokens,
		Temperature:  h.opts.Temperature,
	})
	if err != nil {
		return err
	}

	h.sessions.AppendTurn(ctx, key, llm.RoleUser, prompt)
	h.sessions.AppendTurn(ctx, key, llm.RoleAssistant, answer)

	sentID, err := resp.Reply(ctx, req.Event.ThreadID, req.Event.MessageID, answer)
	if err != nil {
		return fmt.Errorf("deliver answer: %w", err)
	}
	if sentID != "" {
		h.sessions.RegisterPendingReply(ctx, sentID, session.Continuation{
			Handler:    h.Name(),
			SenderID:   req.Event.SenderID,
			SessionKey: key,
		})
	}
	return nil
}

// ClearHandler drops the caller's conversation state.
type ClearHandler struct {
	sessions *session.Store
}

func NewClearHandler(sessions *session.Store) *ClearHandler {
	return &ClearHandler{sessions: sessions}
}

func (h *ClearHandler) Name() string { return "clear" }

func (h *ClearHandler) Execute(ctx context.Context, req *command.Request, resp command.Responder) error {
	key := req.Event.SessionKey()
	if req.Cont != nil && req.Cont.SessionKey != "" {
		key = req.Cont.SessionKey
	}
	h.sessions.Clear(ctx, key)
	_, err := resp.Reply(ctx, req.Event.ThreadID, req.Event.MessageID,
		"Conversation cleared. The next ai command starts fresh.")
	return err
}

// HelpHandler lists the registered commands. Admin-only commands are
// shown to admins only.
type HelpHandler struct {
	registry *command.Registry
}

func NewHelpHandler(registry *command.Registry) *HelpHandler {
	return &HelpHandler{registry: registry}
}

func (h *HelpHandler) Name() string { return "help" }

func (h *HelpHandler) Execute(ctx context.Context, req *command.Request, resp command.Responder) error {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, d := range h.registry.List() {
		if d.AdminOnly && !req.IsAdmin {
			continue
		}
		b.WriteString("  ")
		b.WriteString(d.Name)
		if len(d.Aliases) > 0 {
			aliases := append([]string(nil), d.Aliases...)
			sort.Strings(aliases)
			b.WriteString(" (")
			b.WriteString(strings.Join(aliases, ", "))
			b.WriteString(")")
		}
		if d.Description != "" {
			b.WriteString(": ")
			b.WriteString(d.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply to one of my answers to continue the conversation.")
	_, err := resp.Reply(ctx, req.Event.ThreadID, req.Event.MessageID, b.String())
	return err
}

// StatusHandler reports uptime, aggregate counters, and transport
// connectivity.
type StatusHandler struct {
	stats      StatsProvider
	version    string
	transports map[string]transport.Transport
}

func NewStatusHandler(stats StatsProvider, version string, transports map[string]transport.Transport) *StatusHandler {
	return &StatusHandler{stats: stats, version: version, transports: transports}
}

func (h *StatusHandler) Name() string { return "status" }

func (h *StatusHandler) Execute(ctx context.Context, req *command.Request, resp command.Responder) error {
	snap := h.stats.StatsSnapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "reefbot %s\n", h.version)
	fmt.Fprintf(&b, "uptime: %s\n", time.Since(snap.StartTime).Round(time.Second))
	fmt.Fprintf(&b, "messages: %d, commands: %d, errors: %d, reactions: %d\n",
		snap.Messages, snap.Commands, snap.Errors, snap.Reactions)

	names := make([]string, 0, len(h.transports))
	for name := range h.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := "disconnected"
		if h.transports[name].IsConnected() {
			state = "connected"
		}
		fmt.Fprintf(&b, "channel %s: %s\n", name, state)
	}

	_, err := resp.Reply(ctx, req.Event.ThreadID, req.Event.MessageID,
		strings.TrimRight(b.String(), "\n"))
	return err
}

// PingHandler answers with the pipeline latency for the triggering message.
type PingHandler struct{}

func NewPingHandler() *PingHandler { return &PingHandler{} }

func (h *PingHandler) Name() string { return "ping" }

func (h *PingHandler) Execute(ctx context.Context, req *command.Request, resp command.Responder) error {
	latency := time.Since(req.Event.ReceivedAt).Round(time.Millisecond)
	_, err := resp.Reply(ctx, req.Event.ThreadID, req.Event.MessageID,
		fmt.Sprintf("pong (%s)", latency))
	return err
}
