// internal/providers/ollama/provider.go
// Package ollama provides a ChatProvider and Embedder backed by Ollama-compatible HTTP endpoints.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/examrag/internal/appconfig"
	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/providers"
)

const providerName = "ollama"

// Provider implements providers.ChatProvider and providers.Embedder using Ollama HTTP APIs.
type Provider struct {
	client         *http.Client
	timeout        time.Duration
	baseURL        string
	embeddingModel string
	debug          bool
}

// New constructs a Provider configured with the application's request timeout.
func New(cfg *appconfig.Config) *Provider {
	timeout := cfg.RequestTimeout()
	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		timeout:        timeout,
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		embeddingModel: cfg.EmbeddingModel,
		debug:          cfg.Debug,
	}
}

// streamChunk defines the structure of a single chunk in a streaming response.
type streamChunk struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Stream issues a chat request and forwards output to the provided callbacks.
// Ollama answers with one JSON object per line; with streaming disabled the
// body is a single object.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	messages := req.Messages
	if req.SystemPrompt != "" {
		messages = append([]providers.ChatMessage{{Role: providers.RoleSystem, Content: req.SystemPrompt}}, messages...)
	}
	if len(messages) == 0 {
		messages = []providers.ChatMessage{}
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"options":  map[string]any{"temperature": req.Temperature},
		"stream":   !req.DisableStreaming,
	}
	if req.Schema != nil {
		payload["format"] = req.Schema.Schema
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return providers.NewProviderError(providerName, "chat", 0, err)
	}
	logging.LogRequest("APP->LLM", p.baseURL, req.Model, "chat", body)

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return providers.NewProviderError(providerName, "chat", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(providerName, "chat", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		logging.LogRequest("LLM->APP", p.baseURL, req.Model, "chat", raw)
		return providers.NewProviderError(providerName, "chat", resp.StatusCode,
			fmt.Errorf("/api/chat returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	decoder := json.NewDecoder(resp.Body)
	var final streamChunk
	for {
		var chunk streamChunk
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return providers.NewProviderError(providerName, "chat", 0, fmt.Errorf("decode chunk: %w", err))
		}
		if p.debug {
			if data, err := json.Marshal(chunk); err == nil {
				logging.LogRequest("LLM->APP", p.baseURL, req.Model, "chat", data)
			}
		}
		if chunk.Error != "" {
			return providers.NewProviderError(providerName, "chat", 0, errors.New(chunk.Error))
		}

		if callbacks.OnChunk != nil && chunk.Message.Content != "" {
			role := chunk.Message.Role
			if role == "" {
				role = providers.RoleAssistant
			}
			if err := callbacks.OnChunk(providers.ChatMessage{Role: role, Content: chunk.Message.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			final = chunk
			break
		}
	}

	if callbacks.OnComplete != nil {
		model := final.Model
		if model == "" {
			model = req.Model
		}
		meta := providers.StreamMetadata{
			Model:            model,
			CreatedAt:        time.Now(),
			Done:             true,
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
		}
		if err := callbacks.OnComplete(meta); err != nil {
			return err
		}
	}
	return nil
}

// Embed requests an embedding vector from the configured embedding model.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(p.embeddingModel) == "" {
		return nil, providers.NewProviderError(providerName, "embed", 0, errors.New("embedding model is empty"))
	}
	body, err := json.Marshal(map[string]any{
		"model":  p.embeddingModel,
		"prompt": text,
	})
	if err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("marshal embedding request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("create embedding request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("embedding request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("read embedding response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.NewProviderError(providerName, "embed", resp.StatusCode,
			fmt.Errorf("embedding request failed: %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("parse embedding response: %w", err))
	}
	if len(parsed.Embedding) == 0 {
		return nil, providers.NewProviderError(providerName, "embed", 0, errors.New("embedding response returned empty vector"))
	}
	return parsed.Embedding, nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
