// Package history keeps the bounded, per-channel conversation log used to
// build completion context. Entries live for the lifetime of the process.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Role tags an entry for the completion backend.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance. It is never modified after creation.
type Entry struct {
	Role      Role
	Speaker   string
	Content   string
	CreatedAt time.Time
}

// Store maps channels to their history. Each channel keeps at most 2×N
// entries; the oldest are evicted first.
type Store struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	limit    int
	channels map[string][]Entry
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp entries.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates a store sized for a completion context of contextSize messages.
func New(contextSize int, opts ...Option) *Store {
	if contextSize < 1 {
		contextSize = 1
	}
	s := &Store{
		clock:    clockwork.NewRealClock(),
		limit:    2 * contextSize,
		channels: make(map[string][]Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limit returns the per-channel capacity.
func (s *Store) Limit() int { return s.limit }

func key(channel string) string { return strings.ToLower(channel) }

// Ensure creates an empty history for channel if none exists.
func (s *Store) Ensure(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(channel)
	if _, ok := s.channels[k]; !ok {
		s.channels[k] = make([]Entry, 0, s.limit)
	}
}

// Append records an utterance and evicts from the front past the cap.
func (s *Store) Append(channel string, role Role, speaker, content string) Entry {
	e := Entry{Role: role, Speaker: speaker, Content: content, CreatedAt: s.clock.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(channel)
	entries := append(s.channels[k], e)
	if over := len(entries) - s.limit; over > 0 {
		// Copy down so the backing array does not grow without bound.
		n := copy(entries, entries[over:])
		clear(entries[n:])
		entries = entries[:n]
	}
	s.channels[k] = entries
	return e
}

// Recent returns a copy of up to n of the newest entries, oldest first.
func (s *Store) Recent(channel string, n int) []Entry {
	if n <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.channels[key(channel)]
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Len returns the number of entries kept for channel.
func (s *Store) Len(channel string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[key(channel)])
}

// Stats returns the entry count of every known channel.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.channels))
	for k, entries := range s.channels {
		out[k] = len(entries)
	}
	return out
}
