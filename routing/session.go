package routing

import (
	"sync"
	"time"

	"github.com/medbridge-ai/medgate/types"
)

// SessionState is the routing engine's per-session memory. The sensitive
// confirmation is modelled as a one-way state machine: the only allowed
// transition is unconfirmed -> confirmed, so the flag can never be unset for
// the life of the session.
type SessionState struct {
	mu sync.Mutex

	ID         string
	confirmed  bool
	LastTier   types.RiskTier
	LastIntent types.Intent
	lastSeen   time.Time
}

// ConfirmSensitive performs the single allowed transition. Calling it again
// is a no-op.
func (s *SessionState) ConfirmSensitive() {
	s.confirmed = true
}

// SensitiveConfirmed reports whether the session has ever been escalated.
func (s *SessionState) SensitiveConfirmed() bool {
	return s.confirmed
}

// SessionStore holds routing state keyed by session id. Sessions are
// created on first use and garbage-collected after TTL of inactivity; there
// is no explicit close protocol.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionStore creates a store whose sessions expire after ttl of
// inactivity. The GC loop runs until Close.
func NewSessionStore(ttl time.Duration) *SessionStore {
	st := &SessionStore{
		sessions: make(map[string]*SessionState),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go st.gcLoop()
	return st
}

// Get returns the state for id, creating it on first use.
func (st *SessionStore) Get(id string) *SessionState {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		st.touch(s)
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok = st.sessions[id]; ok {
		s.lastSeen = time.Now()
		return s
	}
	s = &SessionState{ID: id, lastSeen: time.Now()}
	st.sessions[id] = s
	return s
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Close stops the GC loop.
func (st *SessionStore) Close() {
	st.stopOnce.Do(func() { close(st.stop) })
}

func (st *SessionStore) touch(s *SessionState) {
	st.mu.Lock()
	s.lastSeen = time.Now()
	st.mu.Unlock()
}

func (st *SessionStore) gcLoop() {
	interval := st.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case now := <-ticker.C:
			st.mu.Lock()
			for id, s := range st.sessions {
				if now.Sub(s.lastSeen) > st.ttl {
					delete(st.sessions, id)
				}
			}
			st.mu.Unlock()
		}
	}
}
