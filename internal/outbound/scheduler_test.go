package outbound

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentLine struct {
	target string
	text   string
	at     time.Time
}

type recordingWriter struct {
	mu    sync.Mutex
	lines []sentLine
	err   error
}

func (w *recordingWriter) Privmsg(target, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.lines = append(w.lines, sentLine{target: target, text: text, at: time.Now()})
	return nil
}

func (w *recordingWriter) texts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.lines))
	for _, l := range w.lines {
		out = append(out, l.text)
	}
	return out
}

func quietScheduler(delay time.Duration) *Scheduler {
	return New(delay, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestSplitDropsBlankLines(t *testing.T) {
	assert.Equal(t, []string{"first", "second"}, Split("  first \n\n   \r\nsecond\r\n", MaxLineBytes))
	assert.Empty(t, Split(" \n\t\n", MaxLineBytes))
}

func TestSplitPrefersWhitespace(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("lorem ipsum ", 120))
	parts := Split(text, MaxLineBytes)
	require.Greater(t, len(parts), 1)

	for i, p := range parts {
		assert.LessOrEqual(t, len(p), MaxLineBytes)
		if i < len(parts)-1 {
			assert.GreaterOrEqual(t, len(p), MaxLineBytes*3/4)
		}
		assert.False(t, strings.HasPrefix(p, "m ") || strings.HasSuffix(p, " i"), "split inside a word: %q", p)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(parts, " ")))
}

func TestSplitHardCutsWithoutUsefulWhitespace(t *testing.T) {
	parts := Split(strings.Repeat("x", 1000), MaxLineBytes)
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 450)
	assert.Len(t, parts[1], 450)
	assert.Len(t, parts[2], 100)

	// The only space sits far below three quarters of the limit.
	parts = Split("short "+strings.Repeat("y", 600), MaxLineBytes)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 450)
	assert.True(t, strings.HasPrefix(parts[0], "short y"))
}

func TestSplitNeverBreaksCharacters(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		firstLen int
	}{
		{name: "two byte runes", text: strings.Repeat("é", 400), firstLen: 450},
		{name: "four byte runes", text: strings.Repeat("😀", 200), firstLen: 448},
		{name: "zwj clusters", text: strings.Repeat("\U0001F468\u200D\U0001F469\u200D\U0001F467\u200D\U0001F466", 40), firstLen: 450},
		{name: "oversized cluster", text: "e" + strings.Repeat("\u0301", 300), firstLen: 449},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := Split(tt.text, MaxLineBytes)
			require.NotEmpty(t, parts)
			assert.Len(t, parts[0], tt.firstLen)
			for _, p := range parts {
				assert.LessOrEqual(t, len(p), MaxLineBytes)
				assert.True(t, utf8.ValidString(p))
			}
			assert.Equal(t, tt.text, strings.Join(parts, ""))
		})
	}
}

func TestSplitRandomTextStaysWithinLimit(t *testing.T) {
	alphabet := []rune("abc xyz éü 日本語 😀\u0301\n")
	rng := rand.New(rand.NewSource(7))

	for range 200 {
		var b strings.Builder
		for range rng.Intn(2000) {
			b.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		for _, p := range Split(b.String(), MaxLineBytes) {
			require.NotEmpty(t, p)
			require.LessOrEqual(t, len(p), MaxLineBytes)
			require.True(t, utf8.ValidString(p))
			require.Equal(t, strings.TrimSpace(p), p)
		}
	}
}

func TestSendSpacesLines(t *testing.T) {
	const delay = 60 * time.Millisecond
	s := quietScheduler(delay)
	w := &recordingWriter{}
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, s.Send(ctx, w, "#go", "first"))
	assert.Less(t, time.Since(start), delay, "the very first line is not delayed")

	require.NoError(t, s.Send(ctx, w, "#rust", "second"))
	require.NoError(t, s.Send(ctx, w, "#go", "third\nfourth"))

	require.Len(t, w.lines, 4)
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, w.texts())
	assert.Equal(t, "#rust", w.lines[1].target)
	assert.GreaterOrEqual(t, w.lines[1].at.Sub(w.lines[0].at), delay)
	assert.GreaterOrEqual(t, w.lines[2].at.Sub(w.lines[1].at), delay)
	assert.GreaterOrEqual(t, w.lines[3].at.Sub(w.lines[2].at), delay/2)
}

func TestSendBlankTextWritesNothing(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, quietScheduler(time.Hour).Send(context.Background(), w, "#go", "\n  \n"))
	assert.Empty(t, w.lines)
}

func TestSendHonorsCancellation(t *testing.T) {
	s := quietScheduler(time.Hour)
	w := &recordingWriter{}
	require.NoError(t, s.Send(context.Background(), w, "#go", "first"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.Send(ctx, w, "#go", "second")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, w.texts())
}

func TestSendStopsOnWriterError(t *testing.T) {
	boom := errors.New("broken pipe")
	w := &recordingWriter{err: boom}
	err := quietScheduler(0).Send(context.Background(), w, "#go", "a\nb")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, w.lines)
}
