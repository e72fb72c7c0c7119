// internal/chain/chain.go

// Package chain runs the retrieval-augmented query pipeline: reformulate
// the question, retrieve supporting chunks, assemble the prompt, stream
// the answer and remember the exchange.
package chain

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwiater/examrag/internal/docstore"
	"github.com/mwiater/examrag/internal/memory"
	"github.com/mwiater/examrag/internal/providers"
	"github.com/mwiater/examrag/internal/reformulate"
)

const tracerName = "github.com/mwiater/examrag/internal/chain"

// Stage is the position of a Run in the pipeline.
type Stage int32

const (
	Received Stage = iota
	Reformulating
	Retrieving
	ContextAssembled
	Generating
	Persisting
	Done
	Errored
)

func (s Stage) String() string {
	switch s {
	case Received:
		return "received"
	case Reformulating:
		return "reformulating"
	case Retrieving:
		return "retrieving"
	case ContextAssembled:
		return "context_assembled"
	case Generating:
		return "generating"
	case Persisting:
		return "persisting"
	case Done:
		return "done"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("stage(%d)", int32(s))
	}
}

// Retriever is the store surface the chain needs.
type Retriever interface {
	Search(ctx context.Context, query string, opts docstore.SearchOptions) ([]docstore.Result, error)
	Reinitialize(ctx context.Context) error
}

// Reformulator rewrites a question into a standalone query.
type Reformulator interface {
	Reformulate(ctx context.Context, query string, recent []memory.Turn) (reformulate.Query, error)
}

// Options tune generation and retrieval.
type Options struct {
	Model            string
	Temperature      float64
	DisableStreaming bool
	SystemPrompt     string
	Search           docstore.SearchOptions
	// HistoryTurns is how many recent turns feed the reformulator.
	HistoryTurns int
	// TracerProvider receives the stage spans; nil uses the global one.
	TracerProvider trace.TracerProvider
}

// Chain wires the pipeline for one session's memory.
type Chain struct {
	retriever    Retriever
	reformulator Reformulator
	generator    providers.ChatProvider
	memory       *memory.Window
	tracer       trace.Tracer
	opts         Options
}

// New builds a Chain. A zero HistoryTurns means 2; an empty SystemPrompt
// means DefaultSystemPrompt.
func New(retriever Retriever, reformulator Reformulator, generator providers.ChatProvider, mem *memory.Window, opts Options) *Chain {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 2
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if mem == nil {
		mem = memory.NewWindow(memory.DefaultWindow)
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Chain{
		retriever:    retriever,
		reformulator: reformulator,
		generator:    generator,
		memory:       mem,
		tracer:       tp.Tracer(tracerName),
		opts:         opts,
	}
}

// Memory returns the window the chain reads and appends to.
func (c *Chain) Memory() *memory.Window { return c.memory }

// RunOption configures a single Run.
type RunOption func(*Run)

// WithLocker holds l for as long as the run is being consumed.
func WithLocker(l sync.Locker) RunOption {
	return func(r *Run) { r.locker = l }
}

// WithCompletion registers fn to be called once the run has finished,
// whatever its outcome.
func WithCompletion(fn func(*Run)) RunOption {
	return func(r *Run) { r.onFinish = append(r.onFinish, fn) }
}

// Process prepares a Run for query. Nothing happens until the caller ranges
// over Run.Fragments.
func (c *Chain) Process(ctx context.Context, query string, opts ...RunOption) *Run {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &Run{chain: c, ctx: ctx, query: query}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fallback returns a finished single-fragment Run carrying msg. It is used
// when no chain can be built at all.
func Fallback(ctx context.Context, query, msg string, cause error, opts ...RunOption) *Run {
	r := &Run{ctx: ctx, query: query, fallback: msg, fallbackErr: cause}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
