package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 4 << 20

// Ollama talks to the /api/chat endpoint of an Ollama server, or any server
// answering with the flatter /api/generate shape.
type Ollama struct {
	url    string
	client *http.Client
}

// NewOllama returns a backend posting to url.
func NewOllama(url string, client *http.Client) *Ollama {
	if client == nil {
		client = &http.Client{}
	}
	return &Ollama{url: url, client: client}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaResponse struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (r ollamaResponse) text() string {
	if r.Message != nil && strings.TrimSpace(r.Message.Content) != "" {
		return strings.TrimSpace(r.Message.Content)
	}
	return strings.TrimSpace(r.Response)
}

// Chat posts req and extracts the reply text.
func (o *Ollama) Chat(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindNetwork, Backend: o.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", transportError(o.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", transportError(o.Name(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var parsed ollamaResponse
		_ = json.Unmarshal(body, &parsed)
		return "", &Error{
			Kind:    KindNetwork,
			Backend: o.Name(),
			Message: parsed.Error,
			Err:     fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if !json.Valid(body) {
		return "", &Error{Kind: KindMalformed, Backend: o.Name(), Err: fmt.Errorf("response is not JSON: %q", preview(body))}
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: KindEmpty, Backend: o.Name(), Err: err}
	}
	text := parsed.text()
	if text == "" {
		return "", &Error{Kind: KindEmpty, Backend: o.Name(), Message: parsed.Error}
	}
	return text, nil
}

func preview(b []byte) string {
	const n = 80
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
