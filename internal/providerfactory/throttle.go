// internal/providerfactory/throttle.go
package providerfactory

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/providers"
)

// Throttled is a decorator that waits on a shared token bucket before every
// call to the wrapped backend.
type Throttled struct {
	wrapped Backend
	limiter *rate.Limiter
}

// NewThrottled wraps backend with a limiter allowing rps requests per second.
func NewThrottled(backend Backend, rps float64) *Throttled {
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	logging.LogEvent("throttling provider calls to %.2f req/s (burst %d)", rps, burst)
	return &Throttled{wrapped: backend, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Stream waits for a token, then passes the call through.
func (t *Throttled) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return providers.NewProviderError("throttle", "chat", 0, err)
	}
	return t.wrapped.Stream(ctx, req, callbacks)
}

// Embed waits for a token, then passes the call through.
func (t *Throttled) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError("throttle", "embed", 0, err)
	}
	return t.wrapped.Embed(ctx, text)
}

// Close passes the call through to the wrapped backend.
func (t *Throttled) Close() error {
	return t.wrapped.Close()
}
