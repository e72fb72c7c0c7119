// internal/session/session.go

// Package session owns the per-conversation state: memory, the lazily
// built chain and the transcript chat id. Nothing here is global; the
// terminal chat uses one Session and the HTTP API one per client.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/mwiater/examrag/internal/chain"
	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/memory"
	"github.com/mwiater/examrag/internal/transcript"
)

// Store is the availability surface of the document store.
type Store interface {
	Available() bool
	Reinitialize(ctx context.Context) error
}

// Deps are shared by every session.
type Deps struct {
	Store Store
	// NewChain builds a chain bound to the given memory window.
	NewChain     func(*memory.Window) *chain.Chain
	Transcript   *transcript.Store
	MemoryWindow int
}

// Session is one conversation. At most one request is in flight at a time:
// a Run holds the session lock while it is being consumed.
type Session struct {
	ID string

	deps   Deps
	memory *memory.Window

	// inflight is held by the consumer of a Run.
	inflight sync.Mutex

	mu     sync.Mutex
	chain  *chain.Chain
	chatID string
}

// New returns a session with empty memory. The transcript chat starts on
// the first question.
func New(id string, deps Deps) *Session {
	return &Session{ID: id, deps: deps, memory: memory.NewWindow(deps.MemoryWindow)}
}

// Memory exposes the session's window.
func (s *Session) Memory() *memory.Window { return s.memory }

// ChatID returns the transcript chat id, starting a chat when none exists.
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatIDLocked()
}

func (s *Session) chatIDLocked() string {
	if s.chatID == "" && s.deps.Transcript != nil {
		s.chatID = s.deps.Transcript.NewChat()
	}
	return s.chatID
}

// Ask records the question and returns the Run answering it. The run does
// nothing until its fragments are consumed.
func (s *Session) Ask(ctx context.Context, query string) *chain.Run {
	s.mu.Lock()
	chatID := s.chatIDLocked()
	s.mu.Unlock()

	s.record(chatID, transcript.RoleUser, query)

	opts := []chain.RunOption{
		chain.WithLocker(&s.inflight),
		chain.WithCompletion(func(r *chain.Run) {
			if answer := r.Answer(); strings.TrimSpace(answer) != "" {
				s.record(chatID, transcript.RoleAssistant, answer)
			}
			logging.LogEvent("session %s: run finished at %s", s.ID, r.Stage())
		}),
	}

	c, err := s.ensureChain(ctx)
	if err != nil {
		logging.LogEvent("session %s: chain unavailable: %v", s.ID, err)
		return chain.Fallback(ctx, query, chain.UnavailableMessage, err, opts...)
	}
	return c.Process(ctx, query, opts...)
}

// ensureChain builds the chain on first use, or after a failed build. A
// store that is not available gets one reinitialize.
func (s *Session) ensureChain(ctx context.Context) (*chain.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != nil {
		return s.chain, nil
	}
	if s.deps.Store != nil && !s.deps.Store.Available() {
		logging.LogEvent("document store unavailable; attempting to reinitialize")
		if err := s.deps.Store.Reinitialize(ctx); err != nil {
			return nil, err
		}
	}
	s.chain = s.deps.NewChain(s.memory)
	return s.chain, nil
}

// Reset clears the memory and starts a new transcript chat. It waits for
// any in-flight run to finish.
func (s *Session) Reset() string {
	s.inflight.Lock()
	defer s.inflight.Unlock()
	s.memory.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = ""
	id := s.chatIDLocked()
	logging.LogEvent("session %s: memory reset, new chat %s", s.ID, id)
	return id
}

// Transcript returns the messages of the current chat.
func (s *Session) Transcript() []transcript.Message {
	if s.deps.Transcript == nil {
		return []transcript.Message{}
	}
	return s.deps.Transcript.Load(s.ChatID())
}

// Feedback marks message index of the current chat "up" or "down".
func (s *Session) Feedback(index int, value string) bool {
	if s.deps.Transcript == nil {
		return false
	}
	return s.deps.Transcript.SetFeedback(s.ChatID(), index, value)
}

func (s *Session) record(chatID, role, content string) {
	if s.deps.Transcript == nil {
		return
	}
	if !s.deps.Transcript.Save(chatID, role, content) {
		logging.LogEvent("session %s: failed to save %s message", s.ID, role)
	}
}
