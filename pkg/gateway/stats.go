package gateway

import (
	"sync"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/dispatch"
)

// AggregateStats is the mutex-guarded counter block shared by the
// orchestrator and dispatcher. The orchestrator owns it and hands it to
// collaborators by reference at construction.
type AggregateStats struct {
	mu        sync.Mutex
	startTime time.Time
	messages  int64
	commands  int64
	errors    int64
	reactions int64
}

func NewAggregateStats() *AggregateStats {
	return &AggregateStats{startTime: time.Now()}
}

func (s *AggregateStats) MessageProcessed() {
	s.mu.Lock()
	s.messages++
	s.mu.Unlock()
}

func (s *AggregateStats) CommandExecuted() {
	s.mu.Lock()
	s.commands++
	s.mu.Unlock()
}

func (s *AggregateStats) ErrorOccurred() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *AggregateStats) ReactionSeen() {
	s.mu.Lock()
	s.reactions++
	s.mu.Unlock()
}

// StatsSnapshot returns a consistent copy of all counters.
func (s *AggregateStats) StatsSnapshot() dispatch.StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dispatch.StatsSnapshot{
		StartTime: s.startTime,
		Messages:  s.messages,
		Commands:  s.commands,
		Errors:    s.errors,
		Reactions: s.reactions,
	}
}
