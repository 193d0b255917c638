// Package irc is the protocol layer of the relay. It owns the socket, the
// line framing and the server handshake, and exposes the session as a small
// command interface plus an ordered stream of events.
package irc

import (
	"context"
	"strings"
)

// Event is one protocol occurrence delivered to the session handler.
type Event interface {
	// Name is a short, stable identifier used in logs.
	Name() string
}

// Welcome is sent once the server accepted the registration (RPL_WELCOME).
type Welcome struct {
	Server string
	Nick   string
}

// NicknameInUse reports that the requested nickname is taken (ERR_NICKNAMEINUSE).
type NicknameInUse struct {
	Nick string
}

// Kick reports that Nick was removed from Channel by By.
type Kick struct {
	Channel string
	Nick    string
	By      string
	Reason  string
}

// Disconnected is the last event of a session. Err is nil for a clean close.
type Disconnected struct {
	Reason string
	Err    error
}

// CTCPRequest is a client-to-client query such as VERSION or PING.
type CTCPRequest struct {
	Sender  string
	Target  string
	Command string
	Args    string
}

// TextMessage is a PRIVMSG that is not CTCP framed.
type TextMessage struct {
	Sender string
	Target string
	Text   string
}

func (Welcome) Name() string       { return "welcome" }
func (NicknameInUse) Name() string { return "nickname_in_use" }
func (Kick) Name() string          { return "kick" }
func (Disconnected) Name() string  { return "disconnected" }
func (CTCPRequest) Name() string   { return "ctcp" }
func (TextMessage) Name() string   { return "text_message" }

// HandlerFunc processes a single event.
type HandlerFunc func(ctx context.Context, ev Event)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps handler so that the first middleware is the outermost.
func Chain(handler HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// IsChannel reports whether target names a channel rather than a user.
func IsChannel(target string) bool {
	return target != "" && strings.ContainsRune("#&+!", rune(target[0]))
}
