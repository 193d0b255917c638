package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/irc.v4"
)

const (
	eventBuffer  = 64
	writeTimeout = 30 * time.Second
)

// ErrPingTimeout is carried by Disconnected when the server sent nothing for
// a full keepalive period.
var ErrPingTimeout = errors.New("ping timeout")

// Client is the command side of one connected session. Events are delivered
// in arrival order on the Events channel, which is closed after the final
// Disconnected event.
type Client interface {
	Join(channel string) error
	Privmsg(target, text string) error
	Nick(name string) error
	CTCPReply(target, text string) error
	Quit(reason string) error
	Events() <-chan Event
	// Close releases the session. It is safe to call more than once and after Quit.
	Close() error
}

// Dialer opens sessions. Dial returns only after the registration lines were
// written; the Welcome event confirms the server accepted them.
type Dialer interface {
	Dial(ctx context.Context, p Params) (Client, error)
}

// Params describe how to reach and register with the server.
type Params struct {
	Host               string
	Port               int
	TLS                bool
	InsecureSkipVerify bool
	Password           string
	Nick               string
	RealName           string
	Timeout            time.Duration

	// PingFrequency is the interval of keepalive PINGs. Zero disables the
	// keepalive and the read deadline.
	PingFrequency time.Duration

	// PingTimeout is how long past PingFrequency the server may stay silent.
	PingTimeout time.Duration
}

// Addr returns host:port.
func (p Params) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// NetDialer dials TCP or TLS connections.
type NetDialer struct {
	Logger *slog.Logger
}

// Dial connects, registers and starts reading events.
func (d NetDialer) Dial(ctx context.Context, p Params) (Client, error) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "irc")

	nd := &net.Dialer{Timeout: p.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if p.TLS {
		td := &tls.Dialer{
			NetDialer: nd,
			Config: &tls.Config{
				ServerName:         p.Host,
				InsecureSkipVerify: p.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed test networks
				MinVersion:         tls.VersionTLS12,
			},
		}
		conn, err = td.DialContext(ctx, "tcp", p.Addr())
	} else {
		conn, err = nd.DialContext(ctx, "tcp", p.Addr())
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.Addr(), err)
	}

	log.Debug("Socket connected", "addr", p.Addr(), "tls", p.TLS)
	s := newSession(conn, log)
	s.pingEvery = p.PingFrequency
	if p.PingFrequency > 0 {
		s.readTimeout = p.PingFrequency + p.PingTimeout
	}
	if err := s.register(p); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("register with %s: %w", p.Addr(), err)
	}
	s.start()
	return s, nil
}

type session struct {
	sock   net.Conn
	conn   *irc.Conn
	log    *slog.Logger
	events chan Event

	pingEvery   time.Duration
	readTimeout time.Duration
	readDone    chan struct{}

	writeMu sync.Mutex

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu       sync.Mutex
	quitting bool
	lastErr  string
}

func newSession(sock net.Conn, log *slog.Logger) *session {
	return &session{
		sock:     sock,
		conn:     irc.NewConn(sock),
		log:      log,
		events:   make(chan Event, eventBuffer),
		stop:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

func (s *session) register(p Params) error {
	if p.Password != "" {
		if err := s.write(&irc.Message{Command: "PASS", Params: []string{p.Password}}); err != nil {
			return err
		}
	}
	if err := s.write(&irc.Message{Command: "NICK", Params: []string{p.Nick}}); err != nil {
		return err
	}
	realName := p.RealName
	if realName == "" {
		realName = p.Nick
	}
	return s.write(&irc.Message{Command: "USER", Params: []string{p.Nick, "0", "*", realName}})
}

func (s *session) start() {
	s.wg.Add(1)
	go s.readLoop()
	if s.pingEvery > 0 {
		s.wg.Add(1)
		go s.pingLoop()
	}
}

func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.events)
	defer close(s.readDone)

	for {
		if s.readTimeout > 0 {
			if err := s.sock.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				s.closeSocket()
				s.emit(s.disconnected(err))
				return
			}
		}
		m, err := s.conn.ReadMessage()
		if err != nil {
			if isMalformedLine(err) {
				s.log.Warn("Skipping malformed line", "error", err)
				continue
			}
			s.closeSocket()
			s.emit(s.disconnected(err))
			return
		}

		switch m.Command {
		case "PING":
			if werr := s.write(&irc.Message{Command: "PONG", Params: m.Params}); werr != nil {
				s.log.Warn("Failed to answer PING", "error", werr)
			}
		case "ERROR":
			s.mu.Lock()
			s.lastErr = lastParam(m)
			s.mu.Unlock()
		default:
			if ev := translate(m); ev != nil {
				if !s.emit(ev) {
					return
				}
			}
		}
	}
}

// pingLoop sends a PING every pingEvery until the session ends. Any line
// from the server, PONG included, pushes the read deadline forward.
func (s *session) pingLoop() {
	defer s.wg.Done()

	t := time.NewTicker(s.pingEvery)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.readDone:
			return
		case now := <-t.C:
			token := strconv.FormatInt(now.Unix(), 10)
			if err := s.write(&irc.Message{Command: "PING", Params: []string{token}}); err != nil {
				s.log.Debug("Failed to send keepalive PING", "error", err)
			}
		}
	}
}

func (s *session) disconnected(readErr error) Disconnected {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Disconnected{Reason: s.lastErr}
	var ne net.Error
	if !s.quitting && s.readTimeout > 0 && errors.As(readErr, &ne) && ne.Timeout() {
		ev.Err = fmt.Errorf("%w: nothing received for %s", ErrPingTimeout, s.readTimeout)
		if ev.Reason == "" {
			ev.Reason = ErrPingTimeout.Error()
		}
		return ev
	}
	if s.quitting || errors.Is(readErr, io.EOF) {
		if ev.Reason == "" {
			ev.Reason = "connection closed"
		}
		return ev
	}
	ev.Err = readErr
	if ev.Reason == "" {
		ev.Reason = readErr.Error()
	}
	return ev
}

// emit delivers ev unless the session was closed by its owner.
func (s *session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stop:
		return false
	}
}

func (s *session) write(m *irc.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.sock.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(m)
}

func (s *session) Events() <-chan Event { return s.events }

func (s *session) Join(channel string) error {
	return s.write(&irc.Message{Command: "JOIN", Params: []string{channel}})
}

func (s *session) Privmsg(target, text string) error {
	return s.write(&irc.Message{Command: "PRIVMSG", Params: []string{target, sanitizeLine(text)}})
}

func (s *session) Nick(name string) error {
	return s.write(&irc.Message{Command: "NICK", Params: []string{name}})
}

func (s *session) CTCPReply(target, text string) error {
	return s.write(&irc.Message{Command: "NOTICE", Params: []string{target, ctcpQuote(sanitizeLine(text))}})
}

func (s *session) Quit(reason string) error {
	s.mu.Lock()
	s.quitting = true
	s.mu.Unlock()

	err := s.write(&irc.Message{Command: "QUIT", Params: []string{reason}})
	s.closeSocket()
	return err
}

func (s *session) Close() error {
	s.mu.Lock()
	s.quitting = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	err := s.closeSocket()
	s.wg.Wait()
	return err
}

func (s *session) closeSocket() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sock.Close()
	})
	return err
}

// isMalformedLine reports whether err is a parse error for a single line, as
// opposed to a failure of the connection.
func isMalformedLine(err error) bool {
	return errors.Is(err, irc.ErrZeroLengthMessage) ||
		errors.Is(err, irc.ErrMissingDataAfterPrefix) ||
		errors.Is(err, irc.ErrMissingDataAfterTags) ||
		errors.Is(err, irc.ErrMissingCommand)
}

func translate(m *irc.Message) Event {
	var sender string
	if m.Prefix != nil {
		sender = m.Prefix.Name
	}

	switch m.Command {
	case "001":
		return Welcome{Server: sender, Nick: param(m, 0)}
	case "433":
		return NicknameInUse{Nick: param(m, 1)}
	case "KICK":
		return Kick{Channel: param(m, 0), Nick: param(m, 1), By: sender, Reason: param(m, 2)}
	case "PRIVMSG":
		target, text := param(m, 0), param(m, 1)
		if cmd, args, ok := parseCTCP(text); ok {
			return CTCPRequest{Sender: sender, Target: target, Command: cmd, Args: args}
		}
		return TextMessage{Sender: sender, Target: target, Text: text}
	}
	return nil
}

func param(m *irc.Message, i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

func lastParam(m *irc.Message) string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// sanitizeLine keeps a single protocol line from being split by the server.
func sanitizeLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ", "\x00", "").Replace(s)
}
