package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/logger"
)

const pendingKeyPrefix = "pending:"

// RegisterPendingReply attaches a continuation to a message the bot sent.
// The entry lives until consumed or until PendingTTL elapses; it is also
// mirrored so a reply arriving shortly after a restart still resolves.
func (s *Store) RegisterPendingReply(_ context.Context, sentMessageID string, cont Continuation) {
	s.mu.Lock()
	s.pending[sentMessageID] = pendingEntry{
		cont:      cont,
		expiresAt: time.Now().Add(s.opts.PendingTTL),
	}
	s.mu.Unlock()

	s.mirrorWG.Add(1)
	go func() {
		defer s.mirrorWG.Done()
		data, err := json.Marshal(cont)
		if err != nil {
			logger.ErrorCF("session", "Pending marshal failed", map[string]any{
				"message_id": sentMessageID, "error": err.Error(),
			})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.cache.Set(ctx, pendingKeyPrefix+sentMessageID, data, s.opts.PendingTTL); err != nil {
			logger.WarnCF("session", "Pending mirror write failed", map[string]any{
				"message_id": sentMessageID, "error": err.Error(),
			})
		}
	}()
}

// HasPendingReply reports whether a continuation is registered for
// messageID, without consuming it. Used during classification.
func (s *Store) HasPendingReply(ctx context.Context, messageID string) bool {
	s.mu.Lock()
	e, ok := s.pending[messageID]
	s.mu.Unlock()
	if ok {
		return time.Now().Before(e.expiresAt)
	}

	_, found, err := s.cache.Get(ctx, pendingKeyPrefix+messageID)
	if err != nil {
		logger.WarnCF("session", "Pending mirror read failed", map[string]any{
			"message_id": messageID, "error": err.Error(),
		})
		return false
	}
	return found
}

// ConsumePendingReply returns the continuation registered for messageID
// exactly once: a successful consume removes the entry, so a second reply
// referencing the same message finds nothing. That miss is a normal
// negative path, not an error.
func (s *Store) ConsumePendingReply(ctx context.Context, messageID string) (Continuation, bool) {
	s.mu.Lock()
	e, ok := s.pending[messageID]
	if ok {
		delete(s.pending, messageID)
	}
	s.mu.Unlock()

	if ok {
		s.evictPendingMirror(messageID)
		if time.Now().After(e.expiresAt) {
			return Continuation{}, false
		}
		return e.cont, true
	}

	// Warm-start path: the entry may only exist in the mirror.
	data, found, err := s.cache.Get(ctx, pendingKeyPrefix+messageID)
	if err != nil || !found {
		if err != nil {
			logger.WarnCF("session", "Pending mirror read failed", map[string]any{
				"message_id": messageID, "error": err.Error(),
			})
		}
		return Continuation{}, false
	}
	s.evictPendingMirror(messageID)

	var cont Continuation
	if err := json.Unmarshal(data, &cont); err != nil {
		logger.WarnCF("session", "Pending mirror entry corrupt", map[string]any{
			"message_id": messageID, "error": err.Error(),
		})
		return Continuation{}, false
	}
	return cont, true
}

func (s *Store) evictPendingMirror(messageID string) {
	s.mirrorWG.Add(1)
	go func() {
		defer s.mirrorWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.cache.Delete(ctx, pendingKeyPrefix+messageID); err != nil {
			logger.WarnCF("session", "Pending mirror evict failed", map[string]any{
				"message_id": messageID, "error": err.Error(),
			})
		}
	}()
}
