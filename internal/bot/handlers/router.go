package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgard/ircrelay/internal/outbound"
)

// CommandRequest is one prefix command addressed to the bot.
type CommandRequest struct {
	Channel string
	Sender  string
	Command string
	Args    string
	BotNick string
}

// CommandFunc returns the reply text for a command, without the addressee.
type CommandFunc func(ctx context.Context, req CommandRequest) string

// RegisteredCommand represents a command handler with its description.
type RegisteredCommand struct {
	Description string
	Handler     CommandFunc
}

// RegisterAllCommands initializes and returns a map of all available bot
// commands keyed by their lowercase name. Aliases share a handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredCommand {
	commands := make(map[string]RegisteredCommand)

	help := RegisteredCommand{Description: "list commands", Handler: newHelpCommand(deps)}
	commands["help"] = help
	commands["aide"] = help

	commands["ping"] = RegisteredCommand{Description: "check that the bot is alive", Handler: newPingCommand(deps)}

	info := RegisteredCommand{Description: "describe the bot", Handler: newInfoCommand(deps)}
	commands["info"] = info
	commands["source"] = info

	return commands
}

func newHelpCommand(deps HandlerDeps) CommandFunc {
	return func(_ context.Context, req CommandRequest) string {
		return expand(deps.Config.Messages.Help, map[string]string{
			"prefix":  deps.Config.IRC.CommandPrefix,
			"botnick": req.BotNick,
		})
	}
}

func newPingCommand(deps HandlerDeps) CommandFunc {
	return func(context.Context, CommandRequest) string {
		return deps.Config.Messages.Pong
	}
}

func newInfoCommand(deps HandlerDeps) CommandFunc {
	return func(_ context.Context, req CommandRequest) string {
		return expand(deps.Config.Messages.Info, map[string]string{
			"model":   deps.Config.Completion.Model,
			"version": deps.Version,
			"botnick": req.BotNick,
		})
	}
}

// Router dispatches prefix commands.
type Router struct {
	deps     HandlerDeps
	commands map[string]RegisteredCommand
	log      *slog.Logger
}

// NewRouter creates a router over RegisterAllCommands.
func NewRouter(deps HandlerDeps) *Router {
	return &Router{
		deps:     deps,
		commands: RegisterAllCommands(deps),
		log:      deps.Logger.With("handler", "command"),
	}
}

// Dispatch answers req through the outbound scheduler. Unknown commands get
// the fallback reply.
func (r *Router) Dispatch(ctx context.Context, w outbound.LineWriter, req CommandRequest) error {
	name := strings.ToLower(req.Command)

	var reply string
	if cmd, ok := r.commands[name]; ok {
		r.log.InfoContext(ctx, "Handling command", "command", name, "channel", req.Channel, "sender", req.Sender)
		reply = cmd.Handler(ctx, req)
	} else {
		r.log.DebugContext(ctx, "Unknown command", "command", req.Command, "channel", req.Channel, "sender", req.Sender)
		reply = expand(r.deps.Config.Messages.UnknownCommand, map[string]string{
			"command": req.Command,
			"prefix":  r.deps.Config.IRC.CommandPrefix,
		})
	}

	if err := r.deps.Outbound.Send(ctx, w, req.Channel, addressed(req.Sender, reply)); err != nil {
		return fmt.Errorf("reply to %s command: %w", name, err)
	}
	return nil
}
