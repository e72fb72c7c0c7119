// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"
	"strings"

	"github.com/mwiater/examrag/internal/appconfig"
	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/providers"
	"github.com/mwiater/examrag/internal/providers/ollama"
	"github.com/mwiater/examrag/internal/providers/openai"
)

// Backend is a provider that can both complete chats and embed text.
type Backend interface {
	providers.ChatProvider
	providers.Embedder
}

// New selects and configures the backend named by cfg.Provider. When
// cfg.RequestsPerSecond is positive the backend is wrapped so chat and
// embedding calls share one limiter.
func New(cfg *appconfig.Config) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	var backend Backend
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", appconfig.ProviderOpenAI:
		if cfg.APIKey == "" {
			logging.LogEvent("%s is not set; requests to %s will be unauthenticated", appconfig.APIKeyEnv, cfg.BaseURL)
		}
		backend = openai.New(cfg)
	case appconfig.ProviderOllama:
		backend = ollama.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	logging.LogEvent("provider ready: %s at %s (chat=%s embed=%s)", cfg.Provider, cfg.BaseURL, cfg.ChatModel, cfg.EmbeddingModel)

	if cfg.RequestsPerSecond > 0 {
		backend = NewThrottled(backend, cfg.RequestsPerSecond)
	}
	return backend, nil
}
