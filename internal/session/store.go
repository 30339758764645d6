// Package session holds the process-wide in-memory conversation history.
//
// History is keyed by session key, the client-chosen identifier that lets one
// user run several parallel conversations over one or many connections. The
// store is deliberately volatile: nothing is persisted, and all history is
// gone when the process exits.
package session

import (
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

const (
	// defaultMaxMessages caps the entries kept per session key.
	defaultMaxMessages = 100

	// defaultMaxChars caps the total content bytes kept per session key.
	// Oldest messages are dropped first when the budget is exceeded.
	defaultMaxChars = 32_000
)

// StoreConfig configures a [Store]. Zero values select the defaults.
type StoreConfig struct {
	// MaxMessages caps entries per key. Defaults to 100.
	MaxMessages int

	// MaxChars caps summed content length per key. Defaults to 32000.
	MaxChars int
}

// Store is an in-memory conversation log shared by all connections.
// Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string][]llm.Message
	maxMessages int
	maxChars    int
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Store{
		sessions:    make(map[string][]llm.Message),
		maxMessages: maxMessages,
		maxChars:    maxChars,
	}
}

// Append adds messages to the history for sessionKey, then trims the oldest
// entries until both the message and character budgets hold.
func (s *Store) Append(sessionKey string, msgs ...llm.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionKey], msgs...)
	if n := len(history) - s.maxMessages; n > 0 {
		history = history[n:]
	}
	for len(history) > 1 && totalChars(history) > s.maxChars {
		history = history[1:]
	}
	s.sessions[sessionKey] = history
}

// Messages returns a copy of the history for sessionKey, oldest first.
func (s *Store) Messages(sessionKey string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionKey]
	if len(history) == 0 {
		return nil
	}
	out := make([]llm.Message, len(history))
	copy(out, history)
	return out
}

// Len returns the number of stored messages for sessionKey.
func (s *Store) Len(sessionKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionKey])
}

// Clear removes all history for sessionKey.
func (s *Store) Clear(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey)
}

// Keys returns all session keys with stored history.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}

func totalChars(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n
}
