package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/providers"
)

type embeddingResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests an embedding vector for text from the configured model.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(p.embeddingModel) == "" {
		return nil, providers.NewProviderError(providerName, "embed", 0, errors.New("embedding model is empty"))
	}
	payload := map[string]any{
		"model": p.embeddingModel,
		"input": text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("marshal embedding request: %w", err))
	}
	logging.LogDebug("embedding %d chars with %s", len(text), p.embeddingModel)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("create embedding request: %w", err))
	}
	p.setHeaders(req)

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
		logging.LogRequest("LLM->APP", p.baseURL, p.embeddingModel, "embed", raw)
		return nil, providers.NewProviderError(providerName, "embed", resp.StatusCode,
			fmt.Errorf("embedding request failed: %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, providers.NewProviderError(providerName, "embed", 0, fmt.Errorf("parse embedding response: %w", err))
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, providers.NewProviderError(providerName, "embed", 0, errors.New("embedding response returned empty vector"))
	}
	return parsed.Data[0].Embedding, nil
}
