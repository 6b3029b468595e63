package scratchpad

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"synapse/pkg/llm"
)

// Session owns one Scratchpad. Requests of the same session are serialised
// with Lock/Unlock; different sessions never share state.
type Session struct {
	ID         string
	Scratchpad *Scratchpad
	History    *llm.ChatHistory

	reqMu    sync.Mutex
	elem     *list.Element
	lastSeen time.Time
}

// NewSession creates a detached session, e.g. for one-shot CLI runs.
func NewSession(id string, historyLimit int) *Session {
	return &Session{
		ID:         id,
		Scratchpad: &Scratchpad{},
		History:    llm.NewChatHistory(historyLimit),
	}
}

// Lock serialises request handling for this session.
func (s *Session) Lock()   { s.reqMu.Lock() }
func (s *Session) Unlock() { s.reqMu.Unlock() }

// Store is a bounded, expiring map of sessions. Idle sessions expire after
// ttl; when full the least recently used session is evicted.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	lru          *list.List // front = most recent
	ttl          time.Duration
	max          int
	historyLimit int
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHistoryLimit sets the chat history window of new sessions.
func WithHistoryLimit(n int) Option {
	return func(s *Store) { s.historyLimit = n }
}

// NewStore creates a store. ttl <= 0 disables expiry and max <= 0 disables
// the size bound.
func NewStore(ttl time.Duration, max int, opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[string]*Session),
		lru:          list.New(),
		ttl:          ttl,
		max:          max,
		historyLimit: 20,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastSeen) > s.ttl
}

// Peek returns a live session without creating or refreshing it.
func (s *Store) Peek(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok || s.expired(sess, s.now()) {
		return nil, false
	}
	return sess, true
}

// Get returns the session for id, creating it on first use, and marks it
// as recently used.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[id]; ok {
		if !s.expired(sess, now) {
			sess.lastSeen = now
			s.lru.MoveToFront(sess.elem)
			return sess
		}
		s.removeLocked(sess)
		slog.Debug("Session expired", "session", id)
	}

	if s.max > 0 {
		for len(s.sessions) >= s.max {
			oldest := s.lru.Back()
			if oldest == nil {
				break
			}
			victim := oldest.Value.(*Session)
			s.removeLocked(victim)
			slog.Debug("Session evicted", "session", victim.ID)
		}
	}

	sess := NewSession(id, s.historyLimit)
	sess.lastSeen = now
	sess.elem = s.lru.PushFront(sess)
	s.sessions[id] = sess
	return sess
}

// Delete drops a session explicitly.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		s.removeLocked(sess)
	}
}

func (s *Store) removeLocked(sess *Session) {
	s.lru.Remove(sess.elem)
	delete(s.sessions, sess.ID)
}

// Len returns the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes every expired session and returns how many were dropped.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	// LRU order means everything behind the first live entry is older.
	for e := s.lru.Back(); e != nil; {
		sess := e.Value.(*Session)
		if !s.expired(sess, now) {
			break
		}
		prev := e.Prev()
		s.removeLocked(sess)
		n++
		e = prev
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Info("Expired sessions removed", "count", n, "remaining", s.Len())
			}
		}
	}
}
