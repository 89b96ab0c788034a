// Package ratelimit provides per-identity sliding-window admission control.
package ratelimit

import (
	"sync"
	"time"
)

// window tracks admitted-event timestamps for one identity.
// Timestamps are ordered oldest-first and always within [now-windowSize, now];
// stale entries are purged lazily on the next Admit, never proactively.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	gone       bool // set by Cleanup after removal from the map
}

// Limiter admits at most maxEvents events per identity within any
// sliding window of windowSize. It never errors, only admits or rejects.
type Limiter struct {
	mu         sync.Mutex
	windows    map[string]*window
	windowSize time.Duration
	maxEvents  int

	now func() time.Time // test hook
}

func NewLimiter(windowSize time.Duration, maxEvents int) *Limiter {
	return &Limiter{
		windows:    make(map[string]*window),
		windowSize: windowSize,
		maxEvents:  maxEvents,
		now:        time.Now,
	}
}

// Admit reports whether an event from identity may proceed. On admission
// the current time is recorded against the identity's window; on rejection
// no state is mutated.
func (l *Limiter) Admit(identity string) bool {
	for {
		l.mu.Lock()
		w, ok := l.windows[identity]
		if !ok {
			w = &window{}
			l.windows[identity] = w
		}
		l.mu.Unlock()

		w.mu.Lock()
		if w.gone {
			// Lost a race with Cleanup; the map entry was removed.
			w.mu.Unlock()
			continue
		}
		now := l.now()
		w.purge(now.Add(-l.windowSize))
		if len(w.timestamps) >= l.maxEvents {
			w.mu.Unlock()
			return false
		}
		w.timestamps = append(w.timestamps, now)
		w.mu.Unlock()
		return true
	}
}

// Count returns the number of events currently inside identity's window.
func (l *Limiter) Count(identity string) int {
	l.mu.Lock()
	w, ok := l.windows[identity]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(l.now().Add(-l.windowSize))
	return len(w.timestamps)
}

// Cleanup drops windows whose most recent timestamp has aged out entirely.
// This bounds memory for inactive senders; Admit stays correct without it.
// Returns the number of windows removed.
func (l *Limiter) Cleanup() int {
	cutoff := l.now().Add(-l.windowSize)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		stale := len(w.timestamps) == 0 || w.timestamps[len(w.timestamps)-1].Before(cutoff)
		if stale {
			w.gone = true
			delete(l.windows, id)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// purge drops timestamps older than cutoff. Caller holds w.mu.
func (w *window) purge(cutoff time.Time) {
	i := 0
	for i < len(w.timestamps) && w.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}
