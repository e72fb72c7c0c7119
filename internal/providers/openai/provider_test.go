// internal/providers/openai/provider_test.go
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/examrag/internal/appconfig"
	"github.com/mwiater/examrag/internal/providers"
	"github.com/mwiater/examrag/internal/reformulate"
)

func newTestProvider(url string) *Provider {
	cfg := appconfig.Default()
	cfg.BaseURL = url
	cfg.APIKey = "sk-test"
	cfg.TimeoutSeconds = 5
	return New(&cfg)
}

func TestProviderStreamDisableStreamingWithSchema(t *testing.T) {
	t.Parallel()

	var capturedBody []byte
	var capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		capturedAuth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		capturedBody = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"role":"assistant","content":"{\"query\":\"q\",\"language\":\"English\"}"}}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`))
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	req := providers.StreamRequest{
		Model:            "gpt-test",
		SystemPrompt:     "be brief",
		Messages:         []providers.ChatMessage{{Role: providers.RoleUser, Content: "hi"}},
		DisableStreaming: true,
		Schema: &providers.ResponseSchema{
			Name:   "standalone_query",
			Schema: map[string]any{"type": "object"},
		},
	}

	var chunks []providers.ChatMessage
	var meta providers.StreamMetadata
	err := provider.Stream(context.Background(), req, providers.StreamCallbacks{
		OnChunk: func(msg providers.ChatMessage) error {
			chunks = append(chunks, msg)
			return nil
		},
		OnComplete: func(m providers.StreamMetadata) error {
			meta = m
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if len(chunks) != 1 || !strings.Contains(chunks[0].Content, `"language":"English"`) {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if meta.Model != "gpt-test" || !meta.Done || meta.PromptTokens != 7 || meta.CompletionTokens != 3 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if capturedAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth, got %q", capturedAuth)
	}

	var payload map[string]any
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if stream, ok := payload["stream"].(bool); !ok || stream {
		t.Fatalf("expected stream=false, got %v", payload["stream"])
	}
	format, ok := payload["response_format"].(map[string]any)
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response_format, got %v", payload["response_format"])
	}
	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system + user messages, got %v", payload["messages"])
	}
	first := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Fatalf("expected system prompt first, got %v", first)
	}
}

// strictKeywords are the schema keywords OpenAI structured outputs accept
// with strict enabled.
var strictKeywords = map[string]bool{
	"type": true, "properties": true, "required": true, "additionalProperties": true,
	"items": true, "enum": true, "const": true, "description": true,
	"anyOf": true, "$defs": true, "$ref": true,
}

func unsupportedKeywords(schema map[string]any, path string) []string {
	var bad []string
	for key, value := range schema {
		if !strictKeywords[key] {
			bad = append(bad, path+"/"+key)
			continue
		}
		switch key {
		case "properties", "$defs":
			for name, sub := range value.(map[string]any) {
				bad = append(bad, unsupportedKeywords(sub.(map[string]any), path+"/"+key+"/"+name)...)
			}
		case "items":
			if sub, ok := value.(map[string]any); ok {
				bad = append(bad, unsupportedKeywords(sub, path+"/items")...)
			}
		}
	}
	return bad
}

func TestProviderSendsStrictCompatibleReformulationSchema(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"role":"assistant","content":"{\"query\":\"q\",\"language\":\"English\"}"}}]}`))
	}))
	defer server.Close()

	_, _, err := providers.Collect(context.Background(), newTestProvider(server.URL), providers.StreamRequest{
		Model:  "gpt-test",
		Schema: &providers.ResponseSchema{Name: "standalone_query", Schema: reformulate.Schema},
	})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	format := payload["response_format"].(map[string]any)
	jsonSchema := format["json_schema"].(map[string]any)
	if jsonSchema["strict"] != true {
		t.Fatalf("expected strict mode, got %v", jsonSchema["strict"])
	}
	schema := jsonSchema["schema"].(map[string]any)
	if bad := unsupportedKeywords(schema, ""); len(bad) > 0 {
		t.Fatalf("schema uses keywords strict mode rejects: %v", bad)
	}
	if schema["additionalProperties"] != false {
		t.Fatalf("strict mode needs additionalProperties=false, got %v", schema["additionalProperties"])
	}
}

func TestProviderStreamSSE(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("expected event-stream accept header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"model\":\"gpt-test\",\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n")
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2}}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	var out strings.Builder
	var meta providers.StreamMetadata
	err := provider.Stream(context.Background(), providers.StreamRequest{Model: "gpt-test", Messages: []providers.ChatMessage{{Role: "user", Content: "hi"}}}, providers.StreamCallbacks{
		OnChunk: func(msg providers.ChatMessage) error {
			out.WriteString(msg.Content)
			return nil
		},
		OnComplete: func(m providers.StreamMetadata) error {
			meta = m
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if out.String() != "Hello" {
		t.Fatalf("expected Hello, got %q", out.String())
	}
	if meta.Model != "gpt-test" || meta.CompletionTokens != 2 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestProviderStreamCallbackErrorStopsStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	stop := errors.New("stop")
	calls := 0
	provider := newTestProvider(server.URL)
	err := provider.Stream(context.Background(), providers.StreamRequest{Model: "m"}, providers.StreamCallbacks{
		OnChunk: func(providers.ChatMessage) error {
			calls++
			if calls == 2 {
				return stop
			}
			return nil
		},
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error to be returned unchanged, got %v", err)
	}
	if providers.IsProviderError(err) {
		t.Fatalf("callback error must not be wrapped as a provider error")
	}
	if calls != 2 {
		t.Fatalf("expected 2 callback calls, got %d", calls)
	}
}

func TestProviderStreamHTTPErrorIsProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	err := provider.Stream(context.Background(), providers.StreamRequest{Model: "m"}, providers.StreamCallbacks{})
	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T %v", err, err)
	}
	if pe.StatusCode != http.StatusTooManyRequests || !strings.Contains(pe.Error(), "rate limited") {
		t.Fatalf("unexpected provider error: %v", pe)
	}
}

func TestProviderEmbed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "text-embedding-3-small" || payload["input"] != "syllabus" {
			t.Errorf("unexpected payload: %v", payload)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,-0.25,1]}]}`))
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	vec, err := provider.Embed(context.Background(), "syllabus")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[1] != -0.25 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestProviderEmbedFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"bad key"}`},
		{name: "empty vector", status: http.StatusOK, body: `{"data":[]}`},
		{name: "malformed", status: http.StatusOK, body: `{"data":`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestProvider(server.URL).Embed(context.Background(), "x")
			if !providers.IsProviderError(err) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
		})
	}
}
