package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"  Hi!  "}}`)
	}))
	defer srv.Close()

	text, err := NewOllama(srv.URL, nil).Chat(context.Background(), Request{
		Model:       "llama3",
		Messages:    []Message{{Role: RoleSystem, Content: "Be helpful."}, {Role: RoleUser, Content: "Alice: hello"}},
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi!", text)

	want := map[string]any{
		"model": "llama3",
		"messages": []any{
			map[string]any{"role": "system", "content": "Be helpful."},
			map[string]any{"role": "user", "content": "Alice: hello"},
		},
		"stream":  false,
		"options": map[string]any{"temperature": 0.7},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestOllamaResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantKind Kind
		wantMsg  string
	}{
		{name: "nested reply", status: 200, body: `{"message":{"content":"Hi!"}}`, want: "Hi!"},
		{name: "flat reply", status: 200, body: `{"response":" Hello \n"}`, want: "Hello"},
		{name: "empty nested falls back to flat", status: 200, body: `{"message":{"content":""},"response":"Flat"}`, want: "Flat"},
		{name: "backend error field", status: 200, body: `{"error":"model 'x' not found"}`, wantKind: KindEmpty, wantMsg: "model 'x' not found"},
		{name: "whitespace only", status: 200, body: `{"message":{"content":"   "}}`, wantKind: KindEmpty},
		{name: "empty object", status: 200, body: `{}`, wantKind: KindEmpty},
		{name: "json of wrong shape", status: 200, body: `["Hi"]`, wantKind: KindEmpty},
		{name: "not json", status: 200, body: `<html>oops</html>`, wantKind: KindMalformed},
		{name: "server error", status: 500, body: `{"error":"out of memory"}`, wantKind: KindNetwork, wantMsg: "out of memory"},
		{name: "not found", status: 404, body: `404 page not found`, wantKind: KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			text, err := NewOllama(srv.URL, nil).Chat(context.Background(), Request{Model: "llama3"})
			if tt.wantKind == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.want, text)
				return
			}

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantKind, ce.Kind)
			assert.Equal(t, tt.wantMsg, ce.Message)
			assert.Equal(t, "ollama", ce.Backend)
		})
	}
}

func TestOllamaTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := NewOllama(srv.URL, nil).Chat(ctx, Request{Model: "llama3"})
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllama(url, nil).Chat(context.Background(), Request{Model: "llama3"})
	assert.Equal(t, KindNetwork, KindOf(err))
}
