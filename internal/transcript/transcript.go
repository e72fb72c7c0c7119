// internal/transcript/transcript.go

// Package transcript records chat messages to a JSON file keyed by chat id.
// Every method reports failure as a false or empty result and logs the
// cause; callers never need to handle an error from here.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/examrag/internal/logging"
)

// Message roles written to the transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StartMessage seeds every new chat.
const StartMessage = "Chat session started."

// Message is one transcript entry.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Feedback  string `json:"feedback,omitempty"`
}

// Chat is the stored form of one chat.
type Chat struct {
	CreatedAt string    `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Store is a JSON transcript file. It is safe for concurrent use within
// one process.
type Store struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	current string
}

// Open prepares the transcript at path, creating the parent directory and
// an empty document when missing, and rebuilding it as {} when empty or
// malformed.
func Open(path string) *Store {
	s := &Store{path: path, now: time.Now}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureFile(); err != nil {
		logging.LogEvent("transcript %s not ready: %v", path, err)
	}
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) ensureFile() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create transcript directory: %w", err)
		}
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		logging.LogEvent("creating empty transcript at %s", s.path)
		return s.write(map[string]*Chat{})
	}
	if err != nil {
		return err
	}
	var chats map[string]*Chat
	if strings.TrimSpace(string(raw)) == "" || json.Unmarshal(raw, &chats) != nil || chats == nil {
		logging.LogEvent("transcript %s is empty or malformed; re-initializing", s.path)
		return s.write(map[string]*Chat{})
	}
	return nil
}

func (s *Store) read() (map[string]*Chat, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	chats := map[string]*Chat{}
	if strings.TrimSpace(string(raw)) == "" {
		return chats, nil
	}
	if err := json.Unmarshal(raw, &chats); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	if chats == nil {
		chats = map[string]*Chat{}
	}
	return chats, nil
}

// write replaces the file through a temp file in the same directory.
func (s *Store) write(chats map[string]*Chat) error {
	data, err := json.MarshalIndent(chats, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".transcript-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

// Save appends a message to chatID, creating the chat when needed.
func (s *Store) Save(chatID, role, content string) bool {
	if chatID == "" {
		logging.LogEvent("cannot save transcript message with empty chat id")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.read()
	if err != nil {
		if err := s.ensureFile(); err != nil {
			logging.LogEvent("error saving message to chat %s: %v", chatID, err)
			return false
		}
		chats = map[string]*Chat{}
	}
	chat, ok := chats[chatID]
	if !ok {
		chat = &Chat{CreatedAt: s.timestamp(), Messages: []Message{}}
		chats[chatID] = chat
	}
	chat.Messages = append(chat.Messages, Message{Role: role, Content: content, Timestamp: s.timestamp()})
	if err := s.write(chats); err != nil {
		logging.LogEvent("error saving message to chat %s: %v", chatID, err)
		return false
	}
	logging.LogDebug("saved %s message to chat %s", role, chatID)
	return true
}

// Load returns the messages of chatID, or an empty slice.
func (s *Store) Load(chatID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	chats, err := s.read()
	if err != nil {
		logging.LogEvent("error loading messages for chat %s: %v", chatID, err)
		return []Message{}
	}
	chat, ok := chats[chatID]
	if !ok {
		return []Message{}
	}
	return chat.Messages
}

// NewChat starts a chat with a fresh id, records the start message and
// makes it current.
func (s *Store) NewChat() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	logging.LogEvent("new chat session created with id %s", id)
	s.Save(id, RoleSystem, StartMessage)
	return id
}

// CurrentChatID returns the id of the most recently started chat.
func (s *Store) CurrentChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetFeedback stores value ("up" or "down") on message index of chatID.
// Only assistant messages accept feedback.
func (s *Store) SetFeedback(chatID string, index int, value string) bool {
	if value != "up" && value != "down" {
		logging.LogEvent("invalid feedback value %q", value)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chats, err := s.read()
	if err != nil {
		logging.LogEvent("error saving feedback for chat %s: %v", chatID, err)
		return false
	}
	chat, ok := chats[chatID]
	if !ok || index < 0 || index >= len(chat.Messages) || chat.Messages[index].Role != RoleAssistant {
		return false
	}
	chat.Messages[index].Feedback = value
	if err := s.write(chats); err != nil {
		logging.LogEvent("error saving feedback for chat %s: %v", chatID, err)
		return false
	}
	return true
}

// ChatIDs lists stored chats, oldest first.
func (s *Store) ChatIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	chats, err := s.read()
	if err != nil {
		logging.LogEvent("error listing chats: %v", err)
		return []string{}
	}
	ids := make([]string, 0, len(chats))
	for id := range chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := chats[ids[i]].CreatedAt, chats[ids[j]].CreatedAt
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}
