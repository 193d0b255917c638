package completion

import (
	"context"
	"fmt"
	"net/http"

	"github.com/edgard/ircrelay/internal/config"
)

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the request context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single non-streaming chat completion.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
}

// Backend performs one completion. Failures are returned as *Error.
type Backend interface {
	Name() string
	Chat(ctx context.Context, req Request) (string, error)
}

// NewBackend builds the backend selected by cfg.Backend. httpClient may be nil.
//
//nolint:ireturn // the backend is chosen at runtime
func NewBackend(ctx context.Context, cfg config.CompletionConfig, httpClient *http.Client) (Backend, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	switch cfg.Backend {
	case "", "ollama":
		return NewOllama(cfg.APIURL, httpClient), nil
	case "openai":
		return NewOpenAI(cfg.APIURL, cfg.APIKey, httpClient), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIURL, cfg.APIKey, httpClient)
	default:
		return nil, fmt.Errorf("unknown completion backend %q", cfg.Backend)
	}
}
