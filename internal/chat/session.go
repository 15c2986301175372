package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxHistoryMessages bounds per-session history to the last five
// exchanges. Older messages are evicted oldest-first.
const maxHistoryMessages = 10

var ErrSessionNotFound = errors.New("chat session not found")

// Message is one history entry.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Session is one conversation bound to a document collection. A session
// answers one question at a time: the answerer holds turn for the whole
// run, while mu guards history access only.
type Session struct {
	ID         string
	Collection string
	CreatedAt  time.Time

	turn sync.Mutex

	mu      sync.Mutex
	history []Message
}

// History returns a copy of the bounded message history.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory drops all messages but keeps the session alive.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// recordExchange appends a completed question/answer pair and evicts the
// oldest messages beyond the bound. Failed turns never reach here.
func (s *Session) recordExchange(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		Message{Role: "user", Content: question},
		Message{Role: "assistant", Content: answer},
	)
	if n := len(s.history); n > maxHistoryMessages {
		s.history = s.history[n-maxHistoryMessages:]
	}
}

// CollectionChecker reports whether a document collection exists.
// *vectorstore.Store satisfies it.
type CollectionChecker interface {
	Exists(ctx context.Context, collectionName string) (bool, error)
}

// Registry tracks live sessions by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	checker  CollectionChecker
}

func NewRegistry(checker CollectionChecker) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		checker:  checker,
	}
}

// Create opens a new session against an existing collection. A missing
// collection is a client error and no session is created.
func (r *Registry) Create(ctx context.Context, collection string) (*Session, error) {
	ok, err := r.checker.Exists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist, process a document first", collection)
	}

	s := &Session{
		ID:         uuid.NewString(),
		Collection: collection,
		CreatedAt:  time.Now().UTC(),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

// Get resolves a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

// SessionInfo is the listing view of a session.
type SessionInfo struct {
	ID         string    `json:"session_id"`
	Collection string    `json:"collection"`
	CreatedAt  time.Time `json:"created_at"`
	Messages   int       `json:"message_count"`
}

// List returns all live sessions, newest first.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.Lock()
		n := len(s.history)
		s.mu.Unlock()
		out = append(out, SessionInfo{
			ID:         s.ID,
			Collection: s.Collection,
			CreatedAt:  s.CreatedAt,
			Messages:   n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
