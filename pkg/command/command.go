// Package command defines command handlers and the registry that routes
// command names and aliases to them.
package command

import (
	"context"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/session"
)

// Responder is the outbound surface a handler may use. Send and Reply
// return the platform ID of the sent message so a handler can register
// a pending reply on it.
type Responder interface {
	Send(ctx context.Context, threadID, content string) (string, error)
	Reply(ctx context.Context, threadID, messageID, content string) (string, error)
	React(ctx context.Context, threadID, messageID, emoji string) error
}

// Request carries one routed invocation to a handler.
type Request struct {
	Event *bus.Message
	// Args is the body with the leading command token stripped for a
	// fresh command, or the full body for a continuation.
	Args string
	// Cont is the consumed continuation payload; non-nil only when the
	// invocation resumes a pending reply.
	Cont *session.Continuation
	// IsAdmin reports whether the sender is on the admin list.
	IsAdmin bool
}

// Handler executes one command. Returned errors are counted and logged
// by the dispatcher; they never propagate past it.
type Handler interface {
	Name() string
	Execute(ctx context.Context, req *Request, resp Responder) error
}

// Descriptor is the static registration record for a command.
type Descriptor struct {
	Name        string
	Aliases     []string
	Description string
	AdminOnly   bool
	Cooldown    time.Duration
	Handler     Handler
}
