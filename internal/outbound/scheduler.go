// Package outbound rate-limits channel messages and carves long replies into
// lines that fit the protocol's line length.
package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MaxLineBytes is the largest message body sent in one protocol line.
const MaxLineBytes = 450

// LineWriter delivers one line of text to a target.
type LineWriter interface {
	Privmsg(target, text string) error
}

// Scheduler enforces a single minimum interval between outbound lines across
// every target and every session.
type Scheduler struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	delay    time.Duration
	lastSend time.Time
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for pacing.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New returns a scheduler pacing lines delay apart.
func New(delay time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clockwork.NewRealClock(),
		delay:  delay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "outbound")
	return s
}

// Send writes text to target. The first line waits out the remainder of the
// delay since the previous line; later lines of the same text are spaced by
// half the delay. Nothing is written for blank text.
func (s *Scheduler) Send(ctx context.Context, w LineWriter, target, text string) error {
	lines := Split(text, MaxLineBytes)
	if len(lines) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, line := range lines {
		wait := s.delay / 2
		if i == 0 {
			wait = s.delay
		}
		if err := s.waitSince(ctx, wait); err != nil {
			return err
		}
		if err := w.Privmsg(target, line); err != nil {
			return fmt.Errorf("send to %s: %w", target, err)
		}
		s.lastSend = s.clock.Now()
		s.logger.DebugContext(ctx, "Sent line", "target", target, "part", i+1, "parts", len(lines), "bytes", len(line))
	}
	return nil
}

func (s *Scheduler) waitSince(ctx context.Context, interval time.Duration) error {
	if s.lastSend.IsZero() {
		return ctx.Err()
	}
	remaining := interval - s.clock.Since(s.lastSend)
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := s.clock.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
