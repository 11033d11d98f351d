package ingest

import (
	"sync"
	"time"
)

// Conversation steps a private chat can be waiting on.
const (
	stepAwaitChatID = "await_chat_id"
	stepAwaitStart  = "await_start_time"
	stepAwaitEnd    = "await_end_time"
	stepAwaitText   = "await_notify_text"
)

// userState is one user's position in a settings conversation.
type userState struct {
	Step      string
	ChatID    int64 // the chat being configured
	ExpiresAt time.Time
}

// StateStore keeps per-user conversation state with explicit expiry, so an
// abandoned menu flow cannot pin a user forever.
type StateStore struct {
	mu     sync.Mutex
	states map[int64]*userState
	ttl    time.Duration
}

// NewStateStore creates a StateStore with the given per-entry TTL.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{
		states: make(map[int64]*userState),
		ttl:    ttl,
	}
}

// Set records the step a user is on and which chat they are configuring.
func (s *StateStore) Set(userID int64, step string, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = &userState{
		Step:      step,
		ChatID:    chatID,
		ExpiresAt: time.Now().Add(s.ttl),
	}
}

// Get returns a user's live state, expiring stale entries on read.
func (s *StateStore) Get(userID int64) (*userState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, false
	}
	if time.Now().After(st.ExpiresAt) {
		delete(s.states, userID)
		return nil, false
	}
	return st, true
}

// Clear drops a user's state.
func (s *StateStore) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// Cleanup removes all expired entries and returns how many were dropped.
func (s *StateStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	now := time.Now()
	for id, st := range s.states {
		if now.After(st.ExpiresAt) {
			delete(s.states, id)
			count++
		}
	}
	return count
}
