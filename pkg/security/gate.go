// Package security provides pre-dispatch validation and blocking.
package security

import (
	"strings"
	"unicode"

	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/logger"
)

// Deny reasons recorded in the security log.
const (
	ReasonBlacklisted    = "blacklisted"
	ReasonNotWhitelisted = "not_whitelisted"
	ReasonNotAdmin       = "not_admin"
	ReasonBodyTooLong    = "body_too_long"
	ReasonControlChars   = "control_chars"
)

const defaultMaxBodyLength = 4000

// Config controls the gate's rules. All lists accept plain IDs,
// "@username" entries, or compound "id|username" entries.
type Config struct {
	Blacklist     []string
	Whitelist     []string
	WhitelistOnly bool
	AdminOnly     bool
	Admins        []string
	MaxBodyLength int
}

// Gate evaluates inbound messages before rate limiting and dispatch.
// It is a total function over inbound events: a denial is a normal
// negative outcome, never an error.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) *Gate {
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = defaultMaxBodyLength
	}
	return &Gate{cfg: cfg}
}

// Check reports whether the message may proceed. Denials are logged
// as security events with the sender identity and reason.
func (g *Gate) Check(msg *bus.Message) bool {
	ok, reason := g.Evaluate(msg)
	if !ok {
		logger.WarnCF("security", "Message denied", map[string]any{
			"sender_id": msg.SenderID,
			"thread_id": msg.ThreadID,
			"reason":    reason,
		})
	}
	return ok
}

// Evaluate applies the rules in order, short-circuiting on the first deny:
// blacklist, whitelist mode, admin-only mode, body sanitization.
func (g *Gate) Evaluate(msg *bus.Message) (bool, string) {
	if matchList(msg.SenderID, g.cfg.Blacklist) {
		return false, ReasonBlacklisted
	}
	if g.cfg.WhitelistOnly && !matchList(msg.SenderID, g.cfg.Whitelist) {
		return false, ReasonNotWhitelisted
	}
	if g.cfg.AdminOnly && !g.IsAdmin(msg.SenderID) {
		return false, ReasonNotAdmin
	}
	if len(msg.Body) > g.cfg.MaxBodyLength {
		return false, ReasonBodyTooLong
	}
	if hasControlSequences(msg.Body) {
		return false, ReasonControlChars
	}
	return true, ""
}

// IsAdmin reports whether senderID is on the admin list.
func (g *Gate) IsAdmin(senderID string) bool {
	return matchList(senderID, g.cfg.Admins)
}

// matchList reports whether senderID matches any list entry. Either side
// may use the compound "id|username" form, and entries may carry a
// leading "@" for username matching.
func matchList(senderID string, list []string) bool {
	if len(list) == 0 {
		return false
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, entry := range list {
		trimmed := strings.TrimPrefix(entry, "@")
		entryID := trimmed
		entryUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			entryID = trimmed[:idx]
			entryUser = trimmed[idx+1:]
		}

		if senderID == entry ||
			idPart == entry ||
			senderID == trimmed ||
			idPart == trimmed ||
			idPart == entryID ||
			(entryUser != "" && senderID == entryUser) ||
			(userPart != "" && (userPart == entry || userPart == trimmed || userPart == entryUser)) {
			return true
		}
	}

	return false
}

// hasControlSequences reports whether body contains control characters
// other than ordinary whitespace.
func hasControlSequences(body string) bool {
	for _, r := range body {
		if r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
