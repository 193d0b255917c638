package irc

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/irc.v4"
)

// fakeServer accepts one connection and exposes its lines.
type fakeServer struct {
	ln    net.Listener
	conn  net.Conn
	lines *bufio.Reader
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return &fakeServer{ln: ln}
}

func (f *fakeServer) params() Params {
	addr := f.ln.Addr().(*net.TCPAddr)
	return Params{Host: "127.0.0.1", Port: addr.Port, Nick: "Relay", RealName: "Relay Bot", Password: "secret", Timeout: time.Second}
}

func (f *fakeServer) acceptAsync() <-chan error {
	errc := make(chan error, 1)
	go func() {
		conn, err := f.ln.Accept()
		if err == nil {
			f.conn = conn
			f.lines = bufio.NewReader(conn)
		}
		errc <- err
	}()
	return errc
}

func (f *fakeServer) readMessage(t *testing.T) *irc.Message {
	t.Helper()
	require.NoError(t, f.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := f.lines.ReadString('\n')
	require.NoError(t, err)
	m, err := irc.ParseMessage(strings.TrimRight(line, "\r\n"))
	require.NoError(t, err)
	return m
}

func (f *fakeServer) send(t *testing.T, line string) {
	t.Helper()
	_, err := f.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

func nextEvent(t *testing.T, c Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestDialRegistersAndTranslatesEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := newFakeServer(t)
	accepted := srv.acceptAsync()

	client, err := NetDialer{}.Dial(context.Background(), srv.params())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, <-accepted)

	pass := srv.readMessage(t)
	assert.Equal(t, "PASS", pass.Command)
	assert.Equal(t, []string{"secret"}, pass.Params)
	nick := srv.readMessage(t)
	assert.Equal(t, "NICK", nick.Command)
	assert.Equal(t, []string{"Relay"}, nick.Params)
	user := srv.readMessage(t)
	assert.Equal(t, "USER", user.Command)
	assert.Equal(t, []string{"Relay", "0", "*", "Relay Bot"}, user.Params)

	srv.send(t, ":irc.example.net 433 * Relay :Nickname is already in use")
	assert.Equal(t, NicknameInUse{Nick: "Relay"}, nextEvent(t, client))

	srv.send(t, ":irc.example.net 001 Relay_ :Welcome to the network")
	assert.Equal(t, Welcome{Server: "irc.example.net", Nick: "Relay_"}, nextEvent(t, client))

	srv.send(t, "PING :token123")
	pong := srv.readMessage(t)
	assert.Equal(t, "PONG", pong.Command)
	assert.Equal(t, []string{"token123"}, pong.Params)

	srv.send(t, ":alice!a@host PRIVMSG #chat :Relay: hello there")
	assert.Equal(t, TextMessage{Sender: "alice", Target: "#chat", Text: "Relay: hello there"}, nextEvent(t, client))

	srv.send(t, ":alice!a@host PRIVMSG Relay_ :\x01PING 12345\x01")
	assert.Equal(t, CTCPRequest{Sender: "alice", Target: "Relay_", Command: "PING", Args: "12345"}, nextEvent(t, client))

	srv.send(t, ":op!o@host KICK #chat Relay_ :behave")
	assert.Equal(t, Kick{Channel: "#chat", Nick: "Relay_", By: "op", Reason: "behave"}, nextEvent(t, client))

	require.NoError(t, client.Privmsg("#chat", "hi\r\nthere"))
	msg := srv.readMessage(t)
	assert.Equal(t, "PRIVMSG", msg.Command)
	assert.Equal(t, []string{"#chat", "hi there"}, msg.Params)

	require.NoError(t, client.CTCPReply("alice", "VERSION relay 1.0"))
	notice := srv.readMessage(t)
	assert.Equal(t, "NOTICE", notice.Command)
	assert.Equal(t, []string{"alice", "\x01VERSION relay 1.0\x01"}, notice.Params)

	srv.send(t, "ERROR :Closing Link: flood")
	require.NoError(t, srv.conn.Close())

	ev := nextEvent(t, client)
	disc, ok := ev.(Disconnected)
	require.True(t, ok, "expected Disconnected, got %T", ev)
	assert.Equal(t, "Closing Link: flood", disc.Reason)

	_, open := <-client.Events()
	assert.False(t, open, "event channel must close after Disconnected")
}

func TestQuitEndsSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := newFakeServer(t)
	accepted := srv.acceptAsync()

	p := srv.params()
	p.Password = ""
	client, err := NetDialer{}.Dial(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, <-accepted)

	srv.readMessage(t) // NICK
	srv.readMessage(t) // USER

	require.NoError(t, client.Quit("bye"))
	quit := srv.readMessage(t)
	assert.Equal(t, "QUIT", quit.Command)
	assert.Equal(t, []string{"bye"}, quit.Params)

	ev := nextEvent(t, client)
	disc, ok := ev.(Disconnected)
	require.True(t, ok)
	assert.NoError(t, disc.Err)

	assert.NoError(t, client.Close())
	_ = srv.conn.Close()
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	_, err = NetDialer{}.Dial(context.Background(), Params{Host: "127.0.0.1", Port: addr.Port, Nick: "Relay", Timeout: time.Second})
	assert.Error(t, err)
}

func TestParseCTCP(t *testing.T) {
	tests := []struct {
		in     string
		cmd    string
		args   string
		isCTCP bool
	}{
		{in: "\x01VERSION\x01", cmd: "VERSION", isCTCP: true},
		{in: "\x01ping 42 43\x01", cmd: "PING", args: "42 43", isCTCP: true},
		{in: "\x01ACTION waves", cmd: "ACTION", args: "waves", isCTCP: true},
		{in: "plain text"},
		{in: "\x01\x01"},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCTCP(tt.in)
		assert.Equal(t, tt.isCTCP, ok, tt.in)
		assert.Equal(t, tt.cmd, cmd, tt.in)
		assert.Equal(t, tt.args, args, tt.in)
	}
}

func TestIsChannel(t *testing.T) {
	assert.True(t, IsChannel("#go"))
	assert.True(t, IsChannel("&local"))
	assert.False(t, IsChannel("alice"))
	assert.False(t, IsChannel(""))
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := newFakeServer(t)
	accepted := srv.acceptAsync()

	p := srv.params()
	p.Password = ""
	client, err := NetDialer{}.Dial(context.Background(), p)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, <-accepted)
	defer srv.conn.Close()

	srv.readMessage(t) // NICK
	srv.readMessage(t) // USER

	srv.send(t, "")
	srv.send(t, ":irc.example.net")
	srv.send(t, "@time=2024-01-01T00:00:00Z")
	srv.send(t, ":irc.example.net 001 Relay :Welcome to the network")

	assert.Equal(t, Welcome{Server: "irc.example.net", Nick: "Relay"}, nextEvent(t, client))
}

func TestSilentServerTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := newFakeServer(t)
	accepted := srv.acceptAsync()

	p := srv.params()
	p.Password = ""
	p.PingFrequency = 50 * time.Millisecond
	p.PingTimeout = 100 * time.Millisecond
	client, err := NetDialer{}.Dial(context.Background(), p)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, <-accepted)
	defer srv.conn.Close()

	srv.readMessage(t) // NICK
	srv.readMessage(t) // USER
	srv.send(t, ":irc.example.net 001 Relay :Welcome to the network")
	assert.Equal(t, Welcome{Server: "irc.example.net", Nick: "Relay"}, nextEvent(t, client))

	ping := srv.readMessage(t)
	assert.Equal(t, "PING", ping.Command)
	require.Len(t, ping.Params, 1)

	// The server never answers, so the read deadline expires.
	ev := nextEvent(t, client)
	disc, ok := ev.(Disconnected)
	require.True(t, ok, "expected Disconnected, got %T", ev)
	assert.ErrorIs(t, disc.Err, ErrPingTimeout)
	assert.Equal(t, "ping timeout", disc.Reason)

	_, open := <-client.Events()
	assert.False(t, open)
}

func TestPongKeepsSessionAlive(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := newFakeServer(t)
	accepted := srv.acceptAsync()

	p := srv.params()
	p.Password = ""
	p.PingFrequency = 50 * time.Millisecond
	p.PingTimeout = 150 * time.Millisecond
	client, err := NetDialer{}.Dial(context.Background(), p)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, <-accepted)
	defer srv.conn.Close()

	srv.readMessage(t) // NICK
	srv.readMessage(t) // USER

	// Answer every keepalive for well past one deadline.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		ping := srv.readMessage(t)
		require.Equal(t, "PING", ping.Command)
		srv.send(t, ":irc.example.net PONG irc.example.net :"+ping.Params[0])
	}

	select {
	case ev := <-client.Events():
		t.Fatalf("unexpected event %#v", ev)
	default:
	}
}
