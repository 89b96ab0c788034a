// Package session holds short-lived conversational state: multi-turn
// sessions and pending reply continuations. Memory is authoritative while
// the process is alive; an external cache mirrors both with a TTL so state
// survives a restart for a bounded grace period.
package session

import (
	"time"

	"github.com/tinyland-inc/reefbot/pkg/llm"
)

// Session is the accumulated multi-turn exchange for one sender within
// one thread, keyed by the composite channel:thread:sender identity.
type Session struct {
	Key          string     `json:"key"`
	Model        string     `json:"model"`
	SystemPrompt string     `json:"system_prompt"`
	Turns        []llm.Turn `json:"turns"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   time.Time  `json:"last_used_at"`
}

// NewSession creates an empty session.
func NewSession(key, model, systemPrompt string) *Session {
	now := time.Now()
	return &Session{
		Key:          key,
		Model:        model,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		LastUsedAt:   now,
	}
}

// clone returns a deep copy so callers never share the store's turn slice.
func (s *Session) clone() *Session {
	cp := *s
	cp.Turns = make([]llm.Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return &cp
}

// appendTurn adds a turn and trims to maxTurns from the oldest end.
func (s *Session) appendTurn(role, content string, maxTurns int) {
	s.Turns = append(s.Turns, llm.Turn{Role: role, Content: content, Timestamp: time.Now()})
	if maxTurns > 0 && len(s.Turns) > maxTurns {
		s.Turns = append(s.Turns[:0], s.Turns[len(s.Turns)-maxTurns:]...)
	}
	s.LastUsedAt = time.Now()
}

// Continuation is the one-shot payload attached to a message the bot
// sent, resumed when a reply referencing that message arrives.
type Continuation struct {
	Handler    string            `json:"handler"`
	SenderID   string            `json:"sender_id"`
	SessionKey string            `json:"session_key,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}
