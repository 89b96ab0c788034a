package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry maps command names and aliases to descriptors. Registration
// happens at startup only; Resolve is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Descriptor // lowercased name and aliases
	ordered []*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a descriptor. It fails if the name or any alias collides
// with an already-registered descriptor.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("descriptor requires a name")
	}
	if d.Handler == nil {
		return fmt.Errorf("command %q has no handler", d.Name)
	}

	keys := make([]string, 0, 1+len(d.Aliases))
	keys = append(keys, strings.ToLower(d.Name))
	for _, a := range d.Aliases {
		keys = append(keys, strings.ToLower(a))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if existing, ok := r.byName[k]; ok {
			return fmt.Errorf("command %q: %q already registered by %q", d.Name, k, existing.Name)
		}
	}
	for _, k := range keys {
		r.byName[k] = d
	}
	r.ordered = append(r.ordered, d)
	return nil
}

// Resolve returns the descriptor for name, case-insensitive over names
// and aliases.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Cooldowns tracks, per sender and command, when the command was last
// invoked, so the dispatcher can enforce descriptor cooldowns.
type Cooldowns struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{last: make(map[string]time.Time)}
}

// Remaining returns how long the sender must still wait before invoking
// the command again; zero means the cooldown has elapsed.
func (c *Cooldowns) Remaining(senderID, cmd string, cooldown time.Duration) time.Duration {
	if cooldown <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[senderID+"|"+cmd]
	if !ok {
		return 0
	}
	rem := cooldown - time.Since(last)
	if rem < 0 {
		return 0
	}
	return rem
}

// Touch records an invocation of cmd by senderID now.
func (c *Cooldowns) Touch(senderID, cmd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[senderID+"|"+cmd] = time.Now()
}

// Sweep drops records older than maxAge. Advisory housekeeping only.
func (c *Cooldowns) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, t := range c.last {
		if t.Before(cutoff) {
			delete(c.last, k)
			removed++
		}
	}
	return removed
}
