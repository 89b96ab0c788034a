// Package dispatch turns raw inbound events into routed command
// invocations: classification, security and rate-limit gating, cooldowns,
// handler execution, and outcome accounting.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/command"
	"github.com/tinyland-inc/reefbot/pkg/llm"
	"github.com/tinyland-inc/reefbot/pkg/logger"
	"github.com/tinyland-inc/reefbot/pkg/ratelimit"
	"github.com/tinyland-inc/reefbot/pkg/security"
	"github.com/tinyland-inc/reefbot/pkg/session"
	"github.com/tinyland-inc/reefbot/pkg/transport"
)

// Outcome is the terminal state of one dispatched event.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeDenied     Outcome = "denied" // command-level role requirement not met
	OutcomeOnCooldown Outcome = "on_cooldown"
	OutcomeNotFound   Outcome = "not_found" // continuation had no pending entry
	OutcomeExecuted   Outcome = "executed"
	OutcomeFailed     Outcome = "failed"
	OutcomeReacted    Outcome = "reacted"
)

// Counters is the slice of aggregate stats the dispatcher mutates.
// The orchestrator owns the underlying state and hands it in at
// construction; the dispatcher never touches ambient globals.
type Counters interface {
	MessageProcessed()
	CommandExecuted()
	ErrorOccurred()
	ReactionSeen()
}

// Options configures a Dispatcher.
type Options struct {
	HandlerTimeout  time.Duration
	DefaultCooldown time.Duration // applied when a descriptor has none
}

// Dispatcher routes one inbound event at a time. Distinct events may be
// dispatched concurrently; per-key state (rate windows, sessions) is
// linearized inside the respective components.
type Dispatcher struct {
	registry   *command.Registry
	cooldowns  *command.Cooldowns
	gate       *security.Gate
	limiter    *ratelimit.Limiter
	sessions   *session.Store
	transports map[string]transport.Transport
	counters   Counters
	opts       Options
}

func NewDispatcher(
	registry *command.Registry,
	gate *security.Gate,
	limiter *ratelimit.Limiter,
	sessions *session.Store,
	transports map[string]transport.Transport,
	counters Counters,
	opts Options,
) *Dispatcher {
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 2 * time.Minute
	}
	return &Dispatcher{
		registry:   registry,
		cooldowns:  command.NewCooldowns(),
		gate:       gate,
		limiter:    limiter,
		sessions:   sessions,
		transports: transports,
		counters:   counters,
		opts:       opts,
	}
}

// Cooldowns exposes the cooldown tracker for periodic sweeping.
func (d *Dispatcher) Cooldowns() *command.Cooldowns { return d.cooldowns }

// Dispatch processes one inbound event to a terminal state. It never
// returns an error: every failure is contained, counted, and logged here
// so nothing can propagate to the event-stream subscription.
func (d *Dispatcher) Dispatch(ctx context.Context, ev bus.InboundEvent) Outcome {
	switch ev.Kind {
	case bus.KindMessage:
		return d.dispatchMessage(ctx, ev.Message)
	case bus.KindReaction:
		return d.dispatchReaction(ctx, ev.Reaction)
	default:
		return OutcomeIgnored
	}
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, msg *bus.Message) Outcome {
	d.counters.MessageProcessed()

	// Classify. An explicit new command beats an implicit continuation.
	token, args := splitCommand(msg.Body)
	desc, isFresh := d.registry.Resolve(token)
	isCont := false
	if !isFresh && msg.ReplyToID != "" {
		isCont = d.sessions.HasPendingReply(ctx, msg.ReplyToID)
	}
	if !isFresh && !isCont {
		return OutcomeIgnored
	}

	// Gate: security first, then admission control. Both denials are
	// terminal with no outbound action.
	if !d.gate.Check(msg) {
		return OutcomeBlocked
	}
	if !d.limiter.Admit(msg.SenderID) {
		logger.InfoCF("dispatch", "Rate limited", map[string]any{
			"sender_id": msg.SenderID,
		})
		return OutcomeBlocked
	}

	if isFresh {
		return d.executeFresh(ctx, msg, desc, args)
	}
	return d.executeContinuation(ctx, msg)
}

func (d *Dispatcher) executeFresh(ctx context.Context, msg *bus.Message, desc *command.Descriptor, args string) Outcome {
	isAdmin := d.gate.IsAdmin(msg.SenderID)
	if desc.AdminOnly && !isAdmin {
		d.reply(ctx, msg, "That command is restricted to administrators.")
		return OutcomeDenied
	}

	cooldown := desc.Cooldown
	if cooldown <= 0 {
		cooldown = d.opts.DefaultCooldown
	}
	if rem := d.cooldowns.Remaining(msg.SenderID, desc.Name, cooldown); rem > 0 {
		d.reply(ctx, msg, fmt.Sprintf("Easy there, try %s again in %s.",
			desc.Name, rem.Round(time.Second)))
		return OutcomeOnCooldown
	}
	d.cooldowns.Touch(msg.SenderID, desc.Name)

	// A fresh command typed as a reply supersedes the thread it replies
	// to: the pending entry is consumed so the old conversation cannot be
	// resumed later.
	if msg.ReplyToID != "" {
		d.sessions.ConsumePendingReply(ctx, msg.ReplyToID)
	}

	req := &command.Request{Event: msg, Args: args, IsAdmin: isAdmin}
	return d.execute(ctx, msg, desc, req)
}

func (d *Dispatcher) executeContinuation(ctx context.Context, msg *bus.Message) Outcome {
	cont, ok := d.sessions.ConsumePendingReply(ctx, msg.ReplyToID)
	if !ok {
		// Already consumed or expired: a normal negative path.
		d.reply(ctx, msg, "I couldn't find that conversation anymore. Start a new one with the ai command.")
		return OutcomeNotFound
	}

	desc, ok := d.registry.Resolve(cont.Handler)
	if !ok {
		logger.WarnCF("dispatch", "Continuation names unknown handler", map[string]any{
			"handler": cont.Handler,
		})
		d.reply(ctx, msg, "I couldn't find that conversation anymore. Start a new one with the ai command.")
		return OutcomeNotFound
	}

	req := &command.Request{
		Event:   msg,
		Args:    strings.TrimSpace(msg.Body),
		Cont:    &cont,
		IsAdmin: d.gate.IsAdmin(msg.SenderID),
	}
	return d.execute(ctx, msg, desc, req)
}

// execute runs the handler with a bounded deadline, containing panics and
// translating failures into exactly one user-visible reply.
func (d *Dispatcher) execute(ctx context.Context, msg *bus.Message, desc *command.Descriptor, req *command.Request) Outcome {
	tr, ok := d.transports[msg.Channel]
	if !ok {
		logger.ErrorCF("dispatch", "No transport for channel", map[string]any{
			"channel": msg.Channel,
		})
		d.counters.ErrorOccurred()
		return OutcomeFailed
	}

	hctx, cancel := context.WithTimeout(ctx, d.opts.HandlerTimeout)
	defer cancel()

	err := d.invoke(hctx, desc, req, &splitter{tr: tr})
	if err != nil {
		d.counters.ErrorOccurred()
		logger.ErrorCF("dispatch", "Handler failed", map[string]any{
			"command":   desc.Name,
			"sender_id": msg.SenderID,
			"thread_id": msg.ThreadID,
			"error":     err.Error(),
		})
		d.reply(ctx, msg, failureMessage(err))
		return OutcomeFailed
	}

	d.counters.CommandExecuted()
	return OutcomeExecuted
}

// invoke calls the handler, converting a panic into an error so one bad
// handler cannot take down the subscription or sibling dispatches.
func (d *Dispatcher) invoke(ctx context.Context, desc *command.Descriptor, req *command.Request, resp command.Responder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", desc.Name, r)
		}
	}()
	return desc.Handler.Execute(ctx, req, resp)
}

func (d *Dispatcher) dispatchReaction(ctx context.Context, r *bus.Reaction) Outcome {
	d.counters.ReactionSeen()

	// Acknowledge reactions on messages that are awaiting a reply;
	// everything else is platform noise.
	if !d.sessions.HasPendingReply(ctx, r.MessageID) {
		return OutcomeIgnored
	}
	tr, ok := d.transports[r.Channel]
	if !ok {
		return OutcomeIgnored
	}
	if err := tr.React(ctx, r.ThreadID, r.MessageID, r.Emoji); err != nil {
		logger.WarnCF("dispatch", "Reaction ack failed", map[string]any{
			"error": err.Error(),
		})
		return OutcomeIgnored
	}
	return OutcomeReacted
}

// reply sends the single user-visible message for a terminal state,
// best-effort.
func (d *Dispatcher) reply(ctx context.Context, msg *bus.Message, content string) {
	tr, ok := d.transports[msg.Channel]
	if !ok {
		return
	}
	if _, err := (&splitter{tr: tr}).Reply(ctx, msg.ThreadID, msg.MessageID, content); err != nil {
		logger.WarnCF("dispatch", "Reply failed", map[string]any{
			"thread_id": msg.ThreadID,
			"error":     err.Error(),
		})
	}
}

// failureMessage maps a handler error to the user-facing apology,
// distinguishing the backend sub-kinds.
func failureMessage(err error) string {
	switch llm.Classify(err) {
	case llm.KindQuotaExceeded:
		return "The AI service has run out of quota. Please try again later."
	case llm.KindRateLimited:
		return "The AI service is rate limiting us right now. Give it a moment and try again."
	case llm.KindInvalidCredential:
		return "The AI service rejected this bot's credentials. Please contact the operator."
	default:
		return "Sorry, something went wrong handling that. Please try again."
	}
}

// splitCommand returns the leading command token (with any ! or /
// prefix stripped) and the remaining arguments.
func splitCommand(body string) (token, args string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", ""
	}
	token = strings.TrimLeft(fields[0], "!/")
	args = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0]))
	return token, args
}

// splitter wraps a transport, splitting oversized outbound messages on
// the transport's advertised limit. The returned message ID is the last
// chunk's, so pending replies attach to the message users reply to.
type splitter struct {
	tr transport.Transport
}

func (s *splitter) Send(ctx context.Context, threadID, content string) (string, error) {
	max := 0
	if p, ok := s.tr.(transport.MessageLengthProvider); ok {
		max = p.MaxMessageLength()
	}
	var lastID string
	for _, chunk := range transport.SplitMessage(content, max) {
		id, err := s.tr.Send(ctx, threadID, chunk)
		if err != nil {
			return "", err
		}
		lastID = id
	}
	return lastID, nil
}

func (s *splitter) Reply(ctx context.Context, threadID, messageID, content string) (string, error) {
	max := 0
	if p, ok := s.tr.(transport.MessageLengthProvider); ok {
		max = p.MaxMessageLength()
	}
	var lastID string
	for _, chunk := range transport.SplitMessage(content, max) {
		id, err := s.tr.Reply(ctx, threadID, messageID, chunk)
		if err != nil {
			return "", err
		}
		lastID = id
	}
	return lastID, nil
}

func (s *splitter) React(ctx context.Context, threadID, messageID, emoji string) error {
	return s.tr.React(ctx, threadID, messageID, emoji)
}
