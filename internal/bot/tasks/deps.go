// Package tasks implements the periodic tasks run by the bot scheduler.
package tasks

import (
	"log/slog"
	"time"

	"github.com/edgard/ircrelay/internal/config"
	"github.com/edgard/ircrelay/internal/history"
)

// ConnectionStatus is the connection state reported by tasks.
type ConnectionStatus struct {
	State       string
	Nick        string
	SessionID   string
	Attempts    int
	Connections int
	Delay       time.Duration
}

// StatusProvider exposes the current connection state.
type StatusProvider interface {
	Status() ConnectionStatus
}

// BreakerReporter exposes the completion circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      *history.Store
	Connection StatusProvider
	Breaker    BreakerReporter
}
