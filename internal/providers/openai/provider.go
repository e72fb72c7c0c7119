// internal/providers/openai/provider.go
// Package openai provides a ChatProvider and Embedder backed by the OpenAI
// HTTP API or any server that speaks the same /chat/completions and
// /embeddings protocol.
package openai

import (
	"bufio"
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

const providerName = "openai"

// Provider implements providers.ChatProvider and providers.Embedder.
type Provider struct {
	client         *http.Client
	timeout        time.Duration
	baseURL        string
	apiKey         string
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
		apiKey:         cfg.APIKey,
		embeddingModel: cfg.EmbeddingModel,
		debug:          cfg.Debug,
	}
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usage `json:"usage,omitempty"`
}

type chatStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *usage `json:"usage,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Stream issues a chat completion and forwards output to the provided callbacks.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	messages := req.Messages
	if req.SystemPrompt != "" {
		messages = append([]providers.ChatMessage{{Role: providers.RoleSystem, Content: req.SystemPrompt}}, messages...)
	}
	messages = sanitizeMessages(messages)

	payload := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"stream":      !req.DisableStreaming,
		"temperature": req.Temperature,
	}
	if !req.DisableStreaming {
		payload["stream_options"] = map[string]any{"include_usage": true}
	}
	if req.Schema != nil {
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.Schema.Name,
				"schema": req.Schema.Schema,
				"strict": true,
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return providers.NewProviderError(providerName, "chat", 0, err)
	}
	logging.LogRequest("APP->LLM", p.baseURL, req.Model, "chat", body)

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return providers.NewProviderError(providerName, "chat", 0, err)
	}
	p.setHeaders(httpReq)
	if !req.DisableStreaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(providerName, "chat", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		logging.LogRequest("LLM->APP", p.baseURL, req.Model, "chat", raw)
		return providers.NewProviderError(providerName, "chat", resp.StatusCode,
			fmt.Errorf("/chat/completions returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	if req.DisableStreaming {
		return p.handleNonStreaming(resp, req, callbacks)
	}
	return p.handleStreaming(resp, req, callbacks)
}

func (p *Provider) handleNonStreaming(resp *http.Response, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.NewProviderError(providerName, "chat", 0, err)
	}
	logging.LogRequest("LLM->APP", p.baseURL, req.Model, "chat", body)

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return providers.NewProviderError(providerName, "chat", 0, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return providers.NewProviderError(providerName, "chat", 0, errors.New("chat response contained no choices"))
	}

	content := parsed.Choices[0].Message.Content
	role := parsed.Choices[0].Message.Role
	if role == "" {
		role = providers.RoleAssistant
	}
	if callbacks.OnChunk != nil && content != "" {
		if err := callbacks.OnChunk(providers.ChatMessage{Role: role, Content: content}); err != nil {
			return err
		}
	}
	if callbacks.OnComplete != nil {
		meta := metadata(parsed.Model, req.Model, parsed.Usage)
		if err := callbacks.OnComplete(meta); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) handleStreaming(resp *http.Response, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	reader := bufio.NewReader(resp.Body)
	var finalModel string
	var finalUsage *usage
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return providers.NewProviderError(providerName, "chat", 0, err)
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		if p.debug {
			logging.LogRequest("LLM->APP", p.baseURL, req.Model, "chat", data)
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return providers.NewProviderError(providerName, "chat", 0, fmt.Errorf("decode stream chunk: %w", err))
		}
		if chunk.Model != "" {
			finalModel = chunk.Model
		}
		if chunk.Usage != nil {
			finalUsage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		role := delta.Role
		if role == "" {
			role = providers.RoleAssistant
		}
		if callbacks.OnChunk != nil && delta.Content != "" {
			if err := callbacks.OnChunk(providers.ChatMessage{Role: role, Content: delta.Content}); err != nil {
				return err
			}
		}
	}

	if callbacks.OnComplete != nil {
		if err := callbacks.OnComplete(metadata(finalModel, req.Model, finalUsage)); err != nil {
			return err
		}
	}
	return nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func metadata(model, fallback string, u *usage) providers.StreamMetadata {
	if model == "" {
		model = fallback
	}
	meta := providers.StreamMetadata{
		Model:     model,
		CreatedAt: time.Now(),
		Done:      true,
	}
	if u != nil {
		meta.PromptTokens = u.PromptTokens
		meta.CompletionTokens = u.CompletionTokens
	}
	return meta
}

func sanitizeMessages(messages []providers.ChatMessage) []providers.ChatMessage {
	sanitized := make([]providers.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = providers.RoleUser
		}
		if role != providers.RoleAssistant && strings.TrimSpace(msg.Content) == "" {
			continue
		}
		sanitized = append(sanitized, providers.ChatMessage{Role: role, Content: msg.Content})
	}
	return sanitized
}
