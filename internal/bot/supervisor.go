package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/ircrelay/internal/bot/tasks"
	"github.com/edgard/ircrelay/internal/config"
	"github.com/edgard/ircrelay/internal/irc"
)

var (
	// ErrAttemptsExhausted is returned by Run once the configured number of
	// failed connection attempts has been reached.
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
	// ErrClosedBeforeWelcome marks a session that ended before registration completed.
	ErrClosedBeforeWelcome = errors.New("connection closed before welcome")
	// ErrSessionPanic marks a session whose handler panicked.
	ErrSessionPanic = errors.New("session panicked")
)

// State of the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackoff      State = "backoff"
	StateTerminated   State = "terminated"
)

// SessionHandler consumes the events of one connection at a time.
type SessionHandler interface {
	StartSession(ctx context.Context, client irc.Client)
	HandleEvent(ctx context.Context, ev irc.Event)
	Nick() string
}

// Snapshot is a point-in-time copy of the supervisor state.
type Snapshot struct {
	State       State
	SessionID   string
	Attempts    int
	Connections int
	Delay       time.Duration
	Nick        string
}

// Supervisor owns the connect, run and back off loop.
type Supervisor struct {
	cfg     *config.Config
	dialer  irc.Dialer
	handler SessionHandler
	clock   clockwork.Clock
	logger  *slog.Logger
	backoff *backoff

	mu          sync.Mutex
	state       State
	sessionID   string
	attempts    int
	connections int
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithClock sets the clock used for backoff sleeps.
func WithClock(c clockwork.Clock) SupervisorOption {
	return func(s *Supervisor) { s.clock = c }
}

// WithJitter replaces the random source of the backoff jitter. fn returns a value in [0, n).
func WithJitter(fn func(n int64) int64) SupervisorOption {
	return func(s *Supervisor) { s.backoff.jitter = fn }
}

// NewSupervisor creates a supervisor dialing through dialer and feeding handler.
func NewSupervisor(cfg *config.Config, dialer irc.Dialer, handler SessionHandler, logger *slog.Logger, opts ...SupervisorOption) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:     cfg,
		dialer:  dialer,
		handler: handler,
		clock:   clockwork.NewRealClock(),
		logger:  logger.With("component", "supervisor"),
		backoff: newBackoff(cfg.Bot.ReconnectMinDelay, cfg.Bot.ReconnectMaxDelay),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:       s.state,
		SessionID:   s.sessionID,
		Attempts:    s.attempts,
		Connections: s.connections,
		Delay:       s.backoff.Delay(),
		Nick:        s.handler.Nick(),
	}
}

// Status adapts Snapshot for the periodic tasks.
func (s *Supervisor) Status() tasks.ConnectionStatus {
	snap := s.Snapshot()
	return tasks.ConnectionStatus{
		State:       string(snap.State),
		Nick:        snap.Nick,
		SessionID:   snap.SessionID,
		Attempts:    snap.Attempts,
		Connections: snap.Connections,
		Delay:       snap.Delay,
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run connects and reconnects until ctx is canceled or the attempt cap is hit.
// It returns ctx.Err() on cancellation and wraps ErrAttemptsExhausted otherwise.
//
// Consecutive failed attempts form a streak driven by retry.Do. A session that
// reached the welcome ends the streak; the next one starts after a backoff sleep.
func (s *Supervisor) Run(ctx context.Context) error {
	maxAttempts := s.cfg.Bot.ReconnectAttempts
	s.logger.InfoContext(ctx, "Starting connection supervisor",
		"server", s.cfg.IRC.Server, "port", s.cfg.IRC.Port, "tls", s.cfg.IRC.TLS, "max_attempts", maxAttempts)

	for {
		err := retry.Do(
			func() error { return s.attempt(ctx) },
			retry.Context(ctx),
			retry.Attempts(uint(maxAttempts)), // 0 retries forever
			retry.DelayType(s.nextDelay),
			retry.WithTimer(s.clock),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(_ uint, err error) {
				s.logger.ErrorContext(ctx, "Connection attempt failed",
					"attempt", s.Snapshot().Attempts, "max_attempts", maxAttempts, "error", err)
			}),
		)
		if ctx.Err() != nil {
			return s.stopped(ctx)
		}
		if err != nil {
			attempts := s.Snapshot().Attempts
			s.setState(StateTerminated)
			s.logger.ErrorContext(ctx, "Maximum reconnect attempts reached, giving up", "attempts", attempts)
			return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, err)
		}

		s.logger.WarnContext(ctx, "Session ended, reconnecting")
		select {
		case <-ctx.Done():
			return s.stopped(ctx)
		case <-s.clock.After(s.nextDelay(0, nil, nil)):
		}
	}
}

// attempt runs one session. It returns nil only for a session that was
// welcomed and ended without a panic; every other outcome is one failed attempt.
func (s *Supervisor) attempt(ctx context.Context) error {
	welcomed, err := s.runSession(ctx)
	if ctx.Err() != nil {
		return retry.Unrecoverable(ctx.Err())
	}
	if welcomed && !errors.Is(err, ErrSessionPanic) {
		return nil
	}

	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
	if err == nil {
		err = ErrClosedBeforeWelcome
	}
	return err
}

// nextDelay returns the current backoff sleep and advances the backoff. It
// has the signature of retry.DelayTypeFunc; the retry counter is not used
// because a welcome resets the delay.
func (s *Supervisor) nextDelay(_ uint, _ error, _ *retry.Config) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateBackoff
	delay := s.backoff.Delay()
	s.backoff.Advance()
	s.logger.Info("Waiting before the next connection attempt", "delay", delay)
	return delay
}

func (s *Supervisor) stopped(ctx context.Context) error {
	s.setState(StateTerminated)
	s.logger.InfoContext(ctx, "Connection supervisor stopped")
	return ctx.Err()
}

// runSession dials once and pumps events until the connection ends. A panic in
// the handler ends the session with ErrSessionPanic.
func (s *Supervisor) runSession(ctx context.Context) (welcomed bool, err error) {
	sessionID := uuid.NewString()
	log := s.logger.With("session_id", sessionID)

	s.mu.Lock()
	s.state = StateConnecting
	s.sessionID = sessionID
	s.mu.Unlock()

	params := irc.Params{
		Host:               s.cfg.IRC.Server,
		Port:               s.cfg.IRC.Port,
		TLS:                s.cfg.IRC.TLS,
		InsecureSkipVerify: s.cfg.IRC.TLSInsecureSkipVerify,
		Password:           s.cfg.IRC.Password,
		Nick:               s.cfg.IRC.Nickname,
		RealName:           s.cfg.IRC.RealName,
		Timeout:            s.cfg.IRC.DialTimeout,
		PingFrequency:      s.cfg.IRC.PingFrequency,
		PingTimeout:        s.cfg.IRC.PingTimeout,
	}
	log.InfoContext(ctx, "Connecting", "addr", params.Addr(), "nick", params.Nick)

	client, err := s.dialer.Dial(ctx, params)
	if err != nil {
		return false, fmt.Errorf("connect to %s: %w", params.Addr(), err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			log.DebugContext(ctx, "Closing session", "error", cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "Session handler panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrSessionPanic, r)
		}
	}()

	s.handler.StartSession(ctx, client)
	events := client.Events()
	for {
		select {
		case <-ctx.Done():
			if qerr := client.Quit("shutting down"); qerr != nil {
				log.DebugContext(ctx, "Quit failed", "error", qerr)
			}
			return welcomed, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if !welcomed {
					return false, ErrClosedBeforeWelcome
				}
				return true, nil
			}
			if _, isWelcome := ev.(irc.Welcome); isWelcome && !welcomed {
				welcomed = true
				s.onWelcome()
				log.InfoContext(ctx, "Session established")
			}
			s.handler.HandleEvent(ctx, ev)
		}
	}
}

func (s *Supervisor) onWelcome() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnected
	s.connections++
	s.attempts = 0
	s.backoff.Reset()
}
