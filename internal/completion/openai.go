package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI compatible chat completions endpoint.
type OpenAI struct {
	client *gopenai.Client
}

// NewOpenAI returns a backend for baseURL. An empty baseURL targets api.openai.com.
func NewOpenAI(baseURL, apiKey string, httpClient *http.Client) *OpenAI {
	aiConfig := gopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		aiConfig.BaseURL = baseURL
	}
	if httpClient != nil {
		aiConfig.HTTPClient = httpClient
	}
	return &OpenAI{client: gopenai.NewClientWithConfig(aiConfig)}
}

func (o *OpenAI) Name() string { return "openai" }

// Chat sends req through CreateChatCompletion.
func (o *OpenAI) Chat(ctx context.Context, req Request) (string, error) {
	messages := make([]gopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, gopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", o.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindEmpty, Backend: o.Name(), Message: "no choices returned"}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Kind: KindEmpty, Backend: o.Name()}
	}
	return text, nil
}

func (o *OpenAI) classify(err error) *Error {
	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindNetwork, Backend: o.Name(), Message: apiErr.Message, Err: err}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &Error{Kind: KindMalformed, Backend: o.Name(), Err: err}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &Error{Kind: KindEmpty, Backend: o.Name(), Err: err}
	}
	return transportError(o.Name(), err)
}
