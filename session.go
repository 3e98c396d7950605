package auth

import (
	"fmt"
	"sync"
)

// Session is the snapshot of the current identity handed to views and
// guards.
type Session struct {
	User            *User  `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsLoading       bool   `json:"isLoading"`
	Error           string `json:"error,omitempty"`
}

// Role returns the user's role, or an empty role when anonymous.
func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Valid reports whether the authentication invariant holds.
func (s Session) Valid() bool {
	return s.IsAuthenticated == (s.User != nil)
}

func (s Session) String() string {
	user := "<nil>"
	if s.User != nil {
		user = fmt.Sprintf("%d/%s", s.User.ID, s.User.Role)
	}
	return fmt.Sprintf(
		"user=%s authenticated=%t loading=%t error=%q",
		user,
		s.IsAuthenticated,
		s.IsLoading,
		s.Error,
	)
}

// SessionStore holds the process-wide session. The Controller is its only
// writer; everything else reads snapshots or subscribes.
type SessionStore struct {
	mu          sync.RWMutex
	state       Session
	nextID      int
	subscribers map[int]func(Session)
}

// NewSessionStore returns a store in the loading state, as at app start.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		state:       Session{IsLoading: true},
		subscribers: map[int]func(Session){},
	}
}

// Snapshot returns a copy of the current session.
func (s *SessionStore) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.state)
}

// Subscribe registers fn for every session change. fn runs synchronously on
// the writer's goroutine and must not call back into the store's writers.
func (s *SessionStore) Subscribe(fn func(Session)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *SessionStore) setAuthenticated(user *User) {
	s.update(func(st *Session) {
		st.User = user.Clone()
		st.IsAuthenticated = user != nil
		st.Error = ""
	})
}

func (s *SessionStore) setAnonymous() {
	s.update(func(st *Session) {
		st.User = nil
		st.IsAuthenticated = false
	})
}

func (s *SessionStore) setLoading(loading bool) {
	s.update(func(st *Session) {
		st.IsLoading = loading
	})
}

func (s *SessionStore) setError(msg string) {
	s.update(func(st *Session) {
		st.Error = msg
	})
}

func (s *SessionStore) update(fn func(*Session)) {
	s.mu.Lock()
	next := s.state
	fn(&next)
	// isAuthenticated follows user presence, whatever the caller did
	next.IsAuthenticated = next.User != nil
	s.state = next

	snapshot := copySession(next)
	fns := make([]func(Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func copySession(s Session) Session {
	s.User = s.User.Clone()
	return s
}
