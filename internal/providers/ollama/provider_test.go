// internal/providers/ollama/provider_test.go
package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/examrag/internal/appconfig"
	"github.com/mwiater/examrag/internal/providers"
)

func newTestProvider(url string) *Provider {
	cfg := appconfig.Default()
	cfg.Provider = appconfig.ProviderOllama
	cfg.BaseURL = url
	cfg.EmbeddingModel = "nomic-embed-text"
	cfg.TimeoutSeconds = 5
	return New(&cfg)
}

// TestProviderStreamNDJSON verifies that each line of the NDJSON body becomes
// one chunk and the final line fills in the metadata.
func TestProviderStreamNDJSON(t *testing.T) {
	t.Parallel()

	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		capturedBody, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":"Phy"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":"sics"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":11,"eval_count":2}`+"\n")
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	var out strings.Builder
	var meta providers.StreamMetadata
	err := provider.Stream(context.Background(), providers.StreamRequest{
		Model:        "llama3",
		SystemPrompt: "sys",
		Messages:     []providers.ChatMessage{{Role: "user", Content: "subject?"}},
		Temperature:  0.2,
	}, providers.StreamCallbacks{
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
	if out.String() != "Physics" {
		t.Fatalf("expected Physics, got %q", out.String())
	}
	if meta.PromptTokens != 11 || meta.CompletionTokens != 2 || !meta.Done {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	var payload map[string]any
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	options, _ := payload["options"].(map[string]any)
	if options["temperature"] != 0.2 {
		t.Fatalf("expected temperature option, got %v", payload["options"])
	}
	if _, ok := payload["format"]; ok {
		t.Fatalf("format must be omitted without a schema")
	}
}

func TestProviderStreamSchemaUsesFormat(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":"{\"query\":\"q\",\"language\":\"Hindi\"}"},"done":true}`)
	}))
	defer server.Close()

	content, _, err := providers.Collect(context.Background(), newTestProvider(server.URL), providers.StreamRequest{
		Model:  "llama3",
		Schema: &providers.ResponseSchema{Name: "q", Schema: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if !strings.Contains(content, "Hindi") {
		t.Fatalf("unexpected content %q", content)
	}
	if stream, _ := payload["stream"].(bool); stream {
		t.Fatalf("expected stream=false for Collect")
	}
	format, ok := payload["format"].(map[string]any)
	if !ok || format["type"] != "object" {
		t.Fatalf("expected schema in format, got %v", payload["format"])
	}
}

func TestProviderStreamInlineError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	err := newTestProvider(server.URL).Stream(context.Background(), providers.StreamRequest{Model: "x"}, providers.StreamCallbacks{})
	if !providers.IsProviderError(err) || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestProviderEmbed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"embedding":[1,0,0.5]}`))
	}))
	defer server.Close()

	vec, err := newTestProvider(server.URL).Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.5 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}
