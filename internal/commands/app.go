// internal/commands/app.go
package examrag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mwiater/examrag/internal/appconfig"
	"github.com/mwiater/examrag/internal/chain"
	"github.com/mwiater/examrag/internal/docstore"
	"github.com/mwiater/examrag/internal/ingest"
	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/memory"
	"github.com/mwiater/examrag/internal/metrics"
	"github.com/mwiater/examrag/internal/providerfactory"
	"github.com/mwiater/examrag/internal/reformulate"
	"github.com/mwiater/examrag/internal/session"
	"github.com/mwiater/examrag/internal/telemetry"
	"github.com/mwiater/examrag/internal/transcript"
)

// newBackend is swapped in tests.
var newBackend = providerfactory.New

// app holds the long-lived components every command shares.
type app struct {
	cfg          *appconfig.Config
	backend      providerfactory.Backend
	metrics      *metrics.Aggregator
	store        *docstore.Store
	ingester     *ingest.Ingester
	reformulator *reformulate.Reformulator
	transcript   *transcript.Store
	sessions     *session.Manager
	telemetry    *telemetry.Provider
}

// newApp wires the backend, store, ingester and session manager. A store
// that fails to open is not fatal: it stays Failed and the next operation
// retries it.
func newApp(ctx context.Context, cfg *appconfig.Config) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	raw, err := newBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize provider: %w", err)
	}
	tel, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "examrag",
		ServiceVersion: appVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		Debug:          cfg.Debug,
		Writer:         logging.Writer(),
	})
	if err != nil {
		logging.LogEvent("tracing disabled: %v", err)
		tel = &telemetry.Provider{}
	}

	agg := metrics.NewAggregator(cfg.MetricsFile)
	backend := metrics.NewProvider(raw, agg, cfg.EmbeddingModel)

	store := docstore.New(cfg.DBPath, backend)
	if err := store.Open(ctx); err != nil {
		logging.LogEvent("vector store unavailable at startup: %v", err)
	}

	a := &app{
		cfg:          cfg,
		backend:      backend,
		metrics:      agg,
		store:        store,
		ingester:     ingest.New(store, cfg.ChunkSize, cfg.ChunkOverlap),
		reformulator: reformulate.New(backend, cfg.ChatModel, 0),
		transcript:   transcript.Open(cfg.ChatHistoryFile),
		telemetry:    tel,
	}
	a.sessions = session.NewManager(session.Deps{
		Store:        store,
		NewChain:     a.newChain,
		Transcript:   a.transcript,
		MemoryWindow: cfg.MemoryWindow,
	})
	return a, nil
}

func (a *app) searchOptions() docstore.SearchOptions {
	return docstore.SearchOptions{
		Type:   strings.ToLower(strings.TrimSpace(a.cfg.SearchType)),
		K:      a.cfg.TopK,
		FetchK: a.cfg.FetchK,
		Lambda: a.cfg.LambdaMult,
	}
}

func (a *app) newChain(mem *memory.Window) *chain.Chain {
	return chain.New(a.store, a.reformulator, a.backend, mem, chain.Options{
		Model:            a.cfg.ChatModel,
		Temperature:      a.cfg.Temperature,
		DisableStreaming: a.cfg.DisableStreaming,
		SystemPrompt:     a.cfg.SystemPrompt,
		Search:           a.searchOptions(),
		HistoryTurns:     a.cfg.ReformulationTurns,
		TracerProvider:   a.telemetry.TracerProvider(),
	})
}

// Close saves metrics, flushes spans and releases the store and provider
// connections.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		logging.LogEvent("trace shutdown error: %v", err)
	}
	if err := a.metrics.Save(); err != nil {
		logging.LogEvent("metrics save error: %v", err)
	}
	if err := a.store.Close(); err != nil {
		logging.LogEvent("vector store close error: %v", err)
	}
	if err := a.backend.Close(); err != nil {
		logging.LogEvent("provider shutdown error: %v", err)
	}
}
