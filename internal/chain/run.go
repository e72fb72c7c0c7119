// internal/chain/run.go
package chain

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwiater/examrag/internal/docstore"
	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/memory"
	"github.com/mwiater/examrag/internal/providers"
)

// ErrAbandoned is the Run error when the consumer stopped pulling
// fragments before generation finished.
var ErrAbandoned = errors.New("generation abandoned by consumer")

// Run is one pass of the pipeline. Its fragments can be consumed once.
type Run struct {
	chain    *Chain
	ctx      context.Context
	query    string
	locker   sync.Locker
	onFinish []func(*Run)

	fallback    string
	fallbackErr error

	started atomic.Bool
	stage   atomic.Int32

	mu         sync.Mutex
	err        error
	answer     strings.Builder
	standalone string
	language   string
	sources    []docstore.Result
}

// Query returns the question as the user asked it.
func (r *Run) Query() string { return r.query }

// Stage reports the current stage.
func (r *Run) Stage() Stage { return Stage(r.stage.Load()) }

// Err returns the internal cause of an Errored run. It is never meant for
// display.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Answer returns every fragment yielded so far, concatenated.
func (r *Run) Answer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answer.String()
}

// Standalone returns the reformulated query and detected language.
func (r *Run) Standalone() (query, language string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.standalone, r.language
}

// Sources returns the chunks that backed the answer.
func (r *Run) Sources() []docstore.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]docstore.Result, len(r.sources))
	copy(out, r.sources)
	return out
}

// Fragments returns the lazy fragment sequence. Only the first range over
// it does any work; later ranges yield nothing.
func (r *Run) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !r.started.CompareAndSwap(false, true) {
			return
		}
		if r.locker != nil {
			r.locker.Lock()
			defer r.locker.Unlock()
		}
		defer r.finish()

		if r.chain == nil {
			r.emit(yield, r.fallback)
			r.fail(r.fallbackErr)
			return
		}
		r.execute(yield)
	}
}

// Collect drains the run and returns the full answer.
func (r *Run) Collect() string {
	for range r.Fragments() {
	}
	return r.Answer()
}

func (r *Run) finish() {
	for _, fn := range r.onFinish {
		fn(r)
	}
}

func (r *Run) setStage(s Stage) { r.stage.Store(int32(s)) }

func (r *Run) fail(err error) {
	if err == nil {
		err = errors.New("run failed")
	}
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.setStage(Errored)
}

// emit records and yields one fragment, reporting whether the consumer
// wants more.
func (r *Run) emit(yield func(string) bool, fragment string) bool {
	r.mu.Lock()
	r.answer.WriteString(fragment)
	r.mu.Unlock()
	return yield(fragment)
}

func (r *Run) execute(yield func(string) bool) {
	c := r.chain
	ctx, span := c.tracer.Start(r.ctx, "chain.process")
	defer span.End()

	// Reformulating
	r.setStage(Reformulating)
	recent := c.memory.Last(c.opts.HistoryTurns)
	rctx, rspan := c.tracer.Start(ctx, "chain.reformulate", trace.WithAttributes(attribute.Int("history.turns", len(recent))))
	standalone, err := c.reformulator.Reformulate(rctx, r.query, recent)
	endSpan(rspan, err)
	if err != nil {
		logging.LogEvent("reformulation failed: %v", err)
		r.fallbackAndFail(yield, span, ProcessingMessage, err)
		return
	}
	r.mu.Lock()
	r.standalone, r.language = standalone.Query, standalone.Language
	r.mu.Unlock()

	// Retrieving
	r.setStage(Retrieving)
	sctx, sspan := c.tracer.Start(ctx, "chain.retrieve", trace.WithAttributes(
		attribute.String("search.type", c.opts.Search.Type),
		attribute.Int("search.k", c.opts.Search.K),
	))
	results, err := c.retriever.Search(sctx, standalone.Query, c.opts.Search)
	if errors.Is(err, docstore.ErrStoreUnavailable) {
		logging.LogEvent("document store unavailable; reinitializing once")
		if rerr := c.retriever.Reinitialize(sctx); rerr == nil {
			results, err = c.retriever.Search(sctx, standalone.Query, c.opts.Search)
		} else {
			err = rerr
		}
	}
	endSpan(sspan, err)
	if err != nil {
		logging.LogEvent("retrieval failed: %v", err)
		msg := RetrievalMessage
		if errors.Is(err, docstore.ErrStoreUnavailable) {
			msg = UnavailableMessage
		}
		r.fallbackAndFail(yield, span, msg, err)
		return
	}
	r.mu.Lock()
	r.sources = results
	r.mu.Unlock()

	// ContextAssembled
	contextText := FormatContext(results)
	messages := BuildMessages(contextText, c.memory.Snapshot(), standalone.Query, standalone.Language)
	r.setStage(ContextAssembled)
	logging.LogDebug("context assembled from %d chunks (%d chars)", len(results), len(contextText))

	// Generating
	r.setStage(Generating)
	gctx, gspan := c.tracer.Start(ctx, "chain.generate", trace.WithAttributes(attribute.String("llm.model", c.opts.Model)))
	yielded := 0
	stopped := false
	err = c.generator.Stream(gctx, providers.StreamRequest{
		Model:            c.opts.Model,
		SystemPrompt:     c.opts.SystemPrompt,
		Messages:         messages,
		Temperature:      c.opts.Temperature,
		DisableStreaming: c.opts.DisableStreaming,
	}, providers.StreamCallbacks{
		OnChunk: func(msg providers.ChatMessage) error {
			if msg.Content == "" {
				return nil
			}
			yielded++
			if !r.emit(yield, msg.Content) {
				stopped = true
				return ErrAbandoned
			}
			return nil
		},
	})
	gspan.SetAttributes(attribute.Int("fragments", yielded))
	endSpan(gspan, err)
	if err != nil {
		if stopped || errors.Is(err, ErrAbandoned) {
			logging.LogEvent("generation abandoned after %d fragments", yielded)
			r.failSpan(span, ErrAbandoned)
			return
		}
		logging.LogEvent("generation failed after %d fragments: %v", yielded, err)
		if yielded == 0 {
			r.fallbackAndFail(yield, span, ProcessingMessage, err)
			return
		}
		r.failSpan(span, err)
		return
	}

	// Persisting
	r.setStage(Persisting)
	full := r.Answer()
	if strings.TrimSpace(full) != "" {
		c.memory.Append(memory.Turn{Input: r.query, Output: full})
	} else {
		logging.LogEvent("empty response generated; not saving to memory")
	}
	r.setStage(Done)
}

func (r *Run) fallbackAndFail(yield func(string) bool, span trace.Span, msg string, err error) {
	r.emit(yield, msg)
	r.failSpan(span, err)
}

func (r *Run) failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, fmt.Sprintf("failed at %s", r.Stage()))
	r.fail(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
