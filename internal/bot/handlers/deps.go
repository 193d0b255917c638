package handlers

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/ircrelay/internal/config"
	"github.com/edgard/ircrelay/internal/history"
	"github.com/edgard/ircrelay/internal/outbound"
)

// Completer produces a reply for a channel prompt.
type Completer interface {
	Complete(ctx context.Context, channel, speaker, prompt, botNick string) (string, error)
}

// Sender paces and splits outbound text.
type Sender interface {
	Send(ctx context.Context, w outbound.LineWriter, target, text string) error
}

// HandlerDeps provides dependencies for the session and command handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      *history.Store
	Completion Completer
	Outbound   Sender
	Clock      clockwork.Clock
	// Version is reported by the info command and CTCP VERSION.
	Version string
}
