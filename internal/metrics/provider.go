// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/examrag/internal/providers"
)

// Backend is the provider surface the decorator wraps.
type Backend interface {
	providers.ChatProvider
	providers.Embedder
}

// Provider is a decorator that records timing and token counts for every
// call to the wrapped backend.
type Provider struct {
	wrapped        Backend
	aggregator     *Aggregator
	embeddingModel string
}

// NewProvider wraps backend. Embedding latency is recorded under
// embeddingModel.
func NewProvider(backend Backend, aggregator *Aggregator, embeddingModel string) *Provider {
	return &Provider{wrapped: backend, aggregator: aggregator, embeddingModel: embeddingModel}
}

// Stream times the call to the first chunk and to completion.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	start := time.Now()
	var ttft time.Duration
	completed := false

	err := p.wrapped.Stream(ctx, req, providers.StreamCallbacks{
		OnChunk: func(chunk providers.ChatMessage) error {
			if ttft == 0 {
				ttft = time.Since(start)
			}
			if callbacks.OnChunk != nil {
				return callbacks.OnChunk(chunk)
			}
			return nil
		},
		OnComplete: func(meta providers.StreamMetadata) error {
			completed = true
			if meta.Model == "" {
				meta.Model = req.Model
			}
			p.aggregator.RecordChat(meta, ttft, time.Since(start))
			if callbacks.OnComplete != nil {
				return callbacks.OnComplete(meta)
			}
			return nil
		},
	})
	if err != nil && !completed && providers.IsProviderError(err) {
		p.aggregator.RecordError(req.Model)
	}
	return err
}

// Embed times the embedding call.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := p.wrapped.Embed(ctx, text)
	if err != nil {
		p.aggregator.RecordError(p.embeddingModel)
		return nil, err
	}
	p.aggregator.RecordEmbed(p.embeddingModel, time.Since(start))
	return vec, nil
}

// Close passes the call through to the wrapped provider.
func (p *Provider) Close() error {
	return p.wrapped.Close()
}
