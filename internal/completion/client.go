// Package completion builds chat completion requests from channel history and
// maps backend failures onto a small set of recoverable error kinds.
package completion

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgard/ircrelay/internal/config"
	"github.com/edgard/ircrelay/internal/history"
)

// Client issues completions for channel prompts.
type Client struct {
	backend Backend
	store   *history.Store
	cfg     config.CompletionConfig
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient wires backend to the history store. A breaker is installed when
// cfg.Breaker.MaxFailures is positive.
func NewClient(cfg config.CompletionConfig, backend Backend, store *history.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		backend: backend,
		store:   store,
		cfg:     cfg,
		logger:  logger.With("component", "completion", "backend", backend.Name()),
	}

	if cfg.Breaker.MaxFailures > 0 {
		maxFailures := uint32(cfg.Breaker.MaxFailures) //nolint:gosec // validated non-negative
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        backend.Name(),
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				return !countsAsFailure(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// BreakerState returns the breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Messages builds the request context: the channel's system prompt, up to N-1
// recent history entries and the prompt itself.
func (c *Client) Messages(channel, speaker, prompt, botNick string) []Message {
	recent := c.store.Recent(channel, c.cfg.ContextMessages-1)

	messages := make([]Message, 0, len(recent)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: c.cfg.SystemPrompt(channel)})
	for _, e := range recent {
		if strings.EqualFold(e.Speaker, botNick) {
			messages = append(messages, Message{Role: RoleAssistant, Content: e.Content})
			continue
		}
		messages = append(messages, Message{Role: RoleUser, Content: e.Speaker + ": " + e.Content})
	}
	return append(messages, Message{Role: RoleUser, Content: speaker + ": " + prompt})
}

// Complete requests a reply to prompt. On success the reply is recorded in the
// channel history under botNick before it is returned. Failures are *Error
// and leave history untouched.
func (c *Client) Complete(ctx context.Context, channel, speaker, prompt, botNick string) (string, error) {
	req := Request{
		Model:       c.cfg.Model,
		Messages:    c.Messages(channel, speaker, prompt, botNick),
		Temperature: c.cfg.Temperature,
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	log := c.logger.With("channel", channel, "speaker", speaker)
	log.DebugContext(ctx, "Requesting completion", "messages", len(req.Messages), "model", req.Model)
	startTime := time.Now()

	text, err := c.execute(ctx, req)
	duration := time.Since(startTime)
	if err != nil {
		log.WarnContext(ctx, "Completion failed", "kind", KindOf(err).String(), "error", err, "duration", duration)
		return "", err
	}

	c.store.Append(channel, history.RoleAssistant, botNick, text)
	log.InfoContext(ctx, "Completion received", "duration", duration, "chars", len(text))
	return text, nil
}

func (c *Client) execute(ctx context.Context, req Request) (string, error) {
	if c.breaker == nil {
		return c.chat(ctx, req)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chat(ctx, req)
	})
	if err != nil {
		return "", transportError(c.backend.Name(), err)
	}
	return out.(string), nil
}

func (c *Client) chat(ctx context.Context, req Request) (string, error) {
	text, err := c.backend.Chat(ctx, req)
	if err != nil {
		return "", transportError(c.backend.Name(), err)
	}
	return text, nil
}
