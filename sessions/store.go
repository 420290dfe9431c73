// Package sessions tracks per-user conversation state. Each user maps to one
// live session holding the conversation id used to key persisted history.
package sessions

import (
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is one user's conversation state. The mutex serializes turns so two
// concurrent messages from the same user cannot interleave their history
// writes. The turn counter is atomic so it can be bumped while the turn lock
// is still held.
type Session struct {
	UserID         string
	ConversationID string

	mu    sync.Mutex
	turns atomic.Int64
}

// Lock takes the session's turn lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// BumpTurns increments the completed-turn counter.
func (s *Session) BumpTurns() {
	s.turns.Add(1)
}

// Turns returns how many turns this session has completed.
func (s *Session) Turns() int {
	return int(s.turns.Load())
}

// Store holds all live sessions, keyed by user id.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *log.Logger
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   log.New(os.Stdout, "[Sessions] ", log.LstdFlags),
	}
}

// GetOrCreate returns the session for userID, creating it atomically if
// missing. Concurrent calls for the same user always receive the same
// session.
func (st *Store) GetOrCreate(userID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[userID]; ok {
		return s
	}
	s := &Session{
		UserID:         userID,
		ConversationID: uuid.New().String(),
	}
	st.sessions[userID] = s
	st.logger.Printf("created session for user %s (conversation %s)", userID, s.ConversationID)
	return s
}

// Get returns the session for userID, or nil if none exists.
func (st *Store) Get(userID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[userID]
}

// Clear drops the session for userID. Returns true if one existed. The next
// GetOrCreate starts a fresh conversation id.
func (st *Store) Clear(userID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[userID]; !ok {
		return false
	}
	delete(st.sessions, userID)
	st.logger.Printf("cleared session for user %s", userID)
	return true
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
