// Package handlers reacts to protocol events: it filters channel traffic,
// answers prefix commands and turns direct mentions into completions.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/cases"

	"github.com/edgard/ircrelay/internal/completion"
	"github.com/edgard/ircrelay/internal/history"
	"github.com/edgard/ircrelay/internal/irc"
)

const (
	nickCollisionSuffix = "_"
	nickServ            = "NickServ"
)

// Session handles the events of one connection at a time. Events must be
// delivered from a single goroutine; Nick may be called from any goroutine.
type Session struct {
	deps    HandlerDeps
	router  *Router
	log     *slog.Logger
	fold    cases.Caser
	handle  irc.HandlerFunc
	blocked map[string]struct{}
	spam    []string

	client      irc.Client
	nickRetries int

	mu   sync.RWMutex
	nick string
}

// NewSession builds the handler. Middleware wraps every event, first outermost.
func NewSession(deps HandlerDeps, mw ...irc.Middleware) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	s := &Session{
		deps:    deps,
		router:  NewRouter(deps),
		log:     deps.Logger.With("component", "session"),
		fold:    cases.Fold(),
		blocked: make(map[string]struct{}),
		nick:    deps.Config.IRC.Nickname,
	}
	for _, n := range deps.Config.Security.BlockedNicks {
		s.blocked[s.fold.String(n)] = struct{}{}
	}
	for _, kw := range deps.Config.Security.SpamFilterKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			s.spam = append(s.spam, s.fold.String(kw))
		}
	}
	s.handle = irc.Chain(s.dispatch, mw...)
	return s
}

// Nick returns the nickname currently used or requested.
func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

func (s *Session) setNick(n string) {
	s.mu.Lock()
	s.nick = n
	s.mu.Unlock()
}

// StartSession binds a freshly dialed client and resets the nickname state.
func (s *Session) StartSession(_ context.Context, client irc.Client) {
	s.client = client
	s.nickRetries = 0
	s.setNick(s.deps.Config.IRC.Nickname)
}

// HandleEvent processes one event.
func (s *Session) HandleEvent(ctx context.Context, ev irc.Event) {
	s.handle(ctx, ev)
}

func (s *Session) dispatch(ctx context.Context, ev irc.Event) {
	switch e := ev.(type) {
	case irc.Welcome:
		s.onWelcome(ctx, e)
	case irc.NicknameInUse:
		s.onNicknameInUse(ctx, e)
	case irc.Kick:
		s.onKick(ctx, e)
	case irc.Disconnected:
		s.onDisconnect(ctx, e)
	case irc.CTCPRequest:
		s.onCTCP(ctx, e)
	case irc.TextMessage:
		s.onText(ctx, e)
	default:
		s.log.DebugContext(ctx, "Ignoring event", "event", ev.Name())
	}
}

func (s *Session) onWelcome(ctx context.Context, e irc.Welcome) {
	if e.Nick != "" {
		s.setNick(e.Nick)
	}
	s.log.InfoContext(ctx, "Registered with server", "server", e.Server, "nick", s.Nick())

	if secret := s.deps.Config.IRC.NickServPassword; secret != "" {
		if err := s.client.Privmsg(nickServ, "IDENTIFY "+secret); err != nil {
			s.log.ErrorContext(ctx, "Failed to identify with NickServ", "error", err)
		} else {
			s.log.InfoContext(ctx, "Identify sent, waiting before joining", "wait", s.deps.Config.Bot.IdentifyWait)
			select {
			case <-ctx.Done():
				return
			case <-s.deps.Clock.After(s.deps.Config.Bot.IdentifyWait):
			}
		}
	}

	for _, ch := range s.deps.Config.IRC.Channels {
		if err := s.client.Join(ch); err != nil {
			s.log.ErrorContext(ctx, "Failed to join channel", "channel", ch, "error", err)
			continue
		}
		s.deps.Store.Ensure(ch)
		s.log.InfoContext(ctx, "Joined channel", "channel", ch)
	}
}

func (s *Session) onNicknameInUse(ctx context.Context, e irc.NicknameInUse) {
	s.nickRetries++
	if s.nickRetries > s.deps.Config.IRC.MaxNickRetries {
		s.log.ErrorContext(ctx, "Giving up on nickname collisions", "nick", e.Nick, "retries", s.nickRetries-1)
		if err := s.client.Quit("nickname unavailable"); err != nil {
			s.log.WarnContext(ctx, "Failed to quit", "error", err)
		}
		return
	}

	next := s.Nick() + nickCollisionSuffix
	s.log.WarnContext(ctx, "Nickname in use, retrying", "nick", s.Nick(), "next", next, "attempt", s.nickRetries)
	s.setNick(next)
	if err := s.client.Nick(next); err != nil {
		s.log.ErrorContext(ctx, "Failed to change nickname", "error", err)
	}
}

func (s *Session) onKick(ctx context.Context, e irc.Kick) {
	s.log.WarnContext(ctx, "Kick", "channel", e.Channel, "nick", e.Nick, "by", e.By, "reason", e.Reason)
	if strings.EqualFold(e.Nick, s.Nick()) {
		s.log.InfoContext(ctx, "Kicked from channel, not rejoining until the next connection", "channel", e.Channel)
	}
}

func (s *Session) onDisconnect(ctx context.Context, e irc.Disconnected) {
	if e.Err != nil {
		s.log.WarnContext(ctx, "Disconnected", "reason", e.Reason, "error", e.Err)
		return
	}
	s.log.InfoContext(ctx, "Disconnected", "reason", e.Reason)
}

func (s *Session) onCTCP(ctx context.Context, e irc.CTCPRequest) {
	var reply string
	switch e.Command {
	case "VERSION":
		reply = "VERSION " + s.deps.Version
	case "PING":
		if e.Args == "" {
			return
		}
		reply = "PING " + e.Args
	default:
		return
	}
	s.log.InfoContext(ctx, "Answering CTCP", "command", e.Command, "sender", e.Sender)
	if err := s.client.CTCPReply(e.Sender, reply); err != nil {
		s.log.ErrorContext(ctx, "Failed to send CTCP reply", "error", err)
	}
}

func (s *Session) onText(ctx context.Context, e irc.TextMessage) {
	if !irc.IsChannel(e.Target) {
		return
	}
	channel, sender, text := e.Target, e.Sender, e.Text
	log := s.log.With("channel", channel, "sender", sender)

	foldedSender := s.fold.String(sender)
	if _, blocked := s.blocked[foldedSender]; blocked {
		log.DebugContext(ctx, "Dropping message from blocked sender")
		return
	}
	botNick := s.Nick()
	if strings.EqualFold(sender, botNick) || strings.Contains(foldedSender, "bot") {
		log.DebugContext(ctx, "Dropping message from a bot")
		return
	}

	s.deps.Store.Append(channel, history.RoleUser, sender, text)

	if s.isSpam(text) {
		log.InfoContext(ctx, "Spam keyword matched, not replying")
		return
	}

	prefix := s.deps.Config.IRC.CommandPrefix
	if strings.HasPrefix(text, prefix) {
		command, args := splitCommand(strings.TrimPrefix(text, prefix))
		req := CommandRequest{Channel: channel, Sender: sender, Command: command, Args: args, BotNick: botNick}
		if err := s.router.Dispatch(ctx, s.client, req); err != nil {
			log.ErrorContext(ctx, "Failed to answer command", "error", err)
		}
		return
	}

	prompt, mentioned := mentionPrompt(text, botNick)
	if !mentioned {
		return
	}
	if prompt == "" {
		hint := expand(s.deps.Config.Messages.MentionHint, map[string]string{"prefix": prefix, "botnick": botNick, "nick": sender})
		s.send(ctx, channel, addressed(sender, hint))
		return
	}

	reply, err := s.deps.Completion.Complete(ctx, channel, sender, prompt, botNick)
	if err != nil {
		log.WarnContext(ctx, "Completion failed, apologizing", "kind", completion.KindOf(err).String())
		s.send(ctx, channel, s.apology(sender, err))
		return
	}
	s.send(ctx, channel, addressed(sender, reply))
}

func (s *Session) send(ctx context.Context, channel, text string) {
	if err := s.deps.Outbound.Send(ctx, s.client, channel, text); err != nil {
		s.log.ErrorContext(ctx, "Failed to send message", "channel", channel, "error", err)
	}
}

func (s *Session) isSpam(text string) bool {
	folded := s.fold.String(text)
	for _, kw := range s.spam {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

func (s *Session) apology(sender string, err error) string {
	msgs := s.deps.Config.Messages
	vars := map[string]string{"nick": sender}

	var ce *completion.Error
	if !errors.As(err, &ce) {
		return expand(msgs.NetworkError, vars)
	}
	switch ce.Kind {
	case completion.KindTimeout:
		return expand(msgs.Timeout, vars)
	case completion.KindMalformed:
		return expand(msgs.MalformedResponse, vars)
	case completion.KindEmpty:
		if ce.Message != "" {
			vars["error"] = ce.Message
			return expand(msgs.BackendError, vars)
		}
		return expand(msgs.EmptyContent, vars)
	default:
		return expand(msgs.NetworkError, vars)
	}
}

// splitCommand separates the command token from its arguments.
func splitCommand(s string) (command, args string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i], strings.TrimSpace(s[i:])
	}
	return s, ""
}

// mentionPrompt reports whether text starts with "<nick>:" or "<nick>," and
// returns the trimmed remainder.
func mentionPrompt(text, nick string) (string, bool) {
	n := len(nick)
	if nick == "" || len(text) <= n || !strings.EqualFold(text[:n], nick) {
		return "", false
	}
	if text[n] != ':' && text[n] != ',' {
		return "", false
	}
	return strings.TrimSpace(text[n+1:]), true
}
