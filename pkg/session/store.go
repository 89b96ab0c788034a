package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/logger"
	"github.com/tinyland-inc/reefbot/pkg/store"
)

const (
	sessionKeyPrefix = "session:"
	mirrorTimeout    = 5 * time.Second
)

// Options tunes the store. Zero values pick the defaults.
type Options struct {
	MaxTurns   int           // turn-sequence cap per session
	SessionTTL time.Duration // mirror expiry and idle eviction horizon
	PendingTTL time.Duration // pending-reply lifetime
}

func (o *Options) fill() {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 40
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = time.Hour
	}
	if o.PendingTTL <= 0 {
		o.PendingTTL = time.Hour
	}
}

// Store owns in-memory sessions and pending replies, mirroring both to an
// external cache best-effort. Mutations to a single key are linearized by
// the store mutex; the critical sections never span a network call, since
// mirror writes happen on a snapshot outside the lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]pendingEntry

	cache store.Cache
	opts  Options

	mirrorWG sync.WaitGroup
}

type pendingEntry struct {
	cont      Continuation
	expiresAt time.Time
}

func NewStore(cache store.Cache, opts Options) *Store {
	opts.fill()
	if cache == nil {
		cache = store.NewMemoryCache()
	}
	return &Store{
		sessions: make(map[string]*Session),
		pending:  make(map[string]pendingEntry),
		cache:    cache,
		opts:     opts,
	}
}

// Get returns the session for key. Memory is consulted first; on a miss
// the mirror is read and, if found, repopulates memory.
func (s *Store) Get(ctx context.Context, key string) (*Session, bool) {
	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok {
		cp := sess.clone()
		s.mu.Unlock()
		return cp, true
	}
	s.mu.Unlock()

	data, found, err := s.cache.Get(ctx, sessionKeyPrefix+key)
	if err != nil {
		logger.WarnCF("session", "Mirror read failed", map[string]any{
			"key": key, "error": err.Error(),
		})
		return nil, false
	}
	if !found {
		return nil, false
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		logger.WarnCF("session", "Mirror entry corrupt", map[string]any{
			"key": key, "error": err.Error(),
		})
		return nil, false
	}

	s.mu.Lock()
	// Another dispatch may have repopulated while we read the mirror;
	// the in-memory copy wins.
	if cur, ok := s.sessions[key]; ok {
		cp := cur.clone()
		s.mu.Unlock()
		return cp, true
	}
	s.sessions[key] = &sess
	cp := sess.clone()
	s.mu.Unlock()
	return cp, true
}

// Put stores the session in memory and mirrors it asynchronously.
// The in-memory write always succeeds.
func (s *Store) Put(_ context.Context, key string, sess *Session) {
	cp := sess.clone()
	cp.Key = key

	s.mu.Lock()
	s.sessions[key] = cp
	snapshot := cp.clone()
	s.mu.Unlock()

	s.mirror(key, snapshot)
}

// AppendTurn appends a turn to the session, trims to the configured cap
// from the oldest end, and updates last-used time. Returns the updated
// session, or found=false if no session exists for key.
func (s *Store) AppendTurn(_ context.Context, key, role, content string) (*Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	sess.appendTurn(role, content, s.opts.MaxTurns)
	snapshot := sess.clone()
	s.mu.Unlock()

	s.mirror(key, snapshot)
	return snapshot, true
}

// Clear removes the session from memory and evicts the mirrored entry.
func (s *Store) Clear(_ context.Context, key string) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()

	s.mirrorWG.Add(1)
	go func() {
		defer s.mirrorWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.cache.Delete(ctx, sessionKeyPrefix+key); err != nil {
			logger.WarnCF("session", "Mirror evict failed", map[string]any{
				"key": key, "error": err.Error(),
			})
		}
	}()
}

// Len returns the number of in-memory sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle beyond the TTL and expired pending replies.
// The mirror holds the warm copy, so an evicted session can still be
// recovered by Get until its mirrored entry expires.
func (s *Store) Sweep() (sessions, pending int) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		if now.Sub(sess.LastUsedAt) > s.opts.SessionTTL {
			delete(s.sessions, key)
			sessions++
		}
	}
	for id, e := range s.pending {
		if now.After(e.expiresAt) {
			delete(s.pending, id)
			pending++
		}
	}
	return sessions, pending
}

// Flush waits for outstanding mirror writes. Used on shutdown and in tests.
func (s *Store) Flush() {
	s.mirrorWG.Wait()
}

// mirror writes the snapshot to the cache fire-and-forget. Failure is
// logged, never propagated: the mirror is eventual, no delivery guarantee.
func (s *Store) mirror(key string, snapshot *Session) {
	s.mirrorWG.Add(1)
	go func() {
		defer s.mirrorWG.Done()
		data, err := json.Marshal(snapshot)
		if err != nil {
			logger.ErrorCF("session", "Mirror marshal failed", map[string]any{
				"key": key, "error": err.Error(),
			})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.cache.Set(ctx, sessionKeyPrefix+key, data, s.opts.SessionTTL); err != nil {
			logger.WarnCF("session", "Mirror write failed", map[string]any{
				"key": key, "error": err.Error(),
			})
		}
	}()
}
