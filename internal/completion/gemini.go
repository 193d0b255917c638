package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini backend. baseURL overrides the API endpoint when set.
func NewGemini(ctx context.Context, baseURL, apiKey string, httpClient *http.Client) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	gi, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: gi}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Chat sends req through Models.GenerateContent.
func (g *Gemini) Chat(ctx context.Context, req Request) (string, error) {
	contents, cfg := geminiContents(req)

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return "", &Error{Kind: KindNetwork, Backend: g.Name(), Message: apiErr.Message, Err: err}
		}
		return "", transportError(g.Name(), err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := ""
		if len(resp.Candidates) > 0 {
			reason = fmt.Sprintf("finish reason: %v", resp.Candidates[0].FinishReason)
		}
		return "", &Error{Kind: KindEmpty, Backend: g.Name(), Message: reason}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &Error{Kind: KindEmpty, Backend: g.Name()}
	}
	return text, nil
}

// geminiContents moves system messages into the system instruction and maps
// assistant turns to the model role.
func geminiContents(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	temperature := req.Temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}

	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	return contents, cfg
}
