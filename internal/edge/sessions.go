// Package edge holds the classifier state the edge stage keeps per producing
// session.
package edge

import (
	"sync"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

// Sessions is an arena of per-session classifier windows keyed by session id
// (the agent's user_id). Each session owns its window and its own lock; the
// arena lock guards lookup and eviction only, so sessions never contend on a
// window. The arena is bounded and evicts the least recently used session.
type Sessions struct {
	windowSize  int
	threshold   float64
	maxSessions int
	onResize    func(n int)

	mu      sync.Mutex
	entries map[int]*session
	head    *session // most recently used
	tail    *session // least recently used
}

type session struct {
	id     int
	mu     sync.Mutex
	window *domain.Window
	prev   *session
	next   *session
}

// NewSessions creates an arena holding at most maxSessions windows of the
// given size and threshold.
func NewSessions(windowSize int, threshold float64, maxSessions int) *Sessions {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Sessions{
		windowSize:  windowSize,
		threshold:   threshold,
		maxSessions: maxSessions,
		entries:     make(map[int]*session),
	}
}

// OnResize registers a callback invoked with the session count whenever it
// changes. It must be set before the arena is shared.
func (s *Sessions) OnResize(f func(n int)) {
	s.onResize = f
}

// Classify pushes sample into the session's window and returns the road
// state of the updated window.
func (s *Sessions) Classify(sessionID int, sample domain.Accelerometer) domain.RoadState {
	sess := s.acquire(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.window.Push(sample)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Forget drops a session's window. Unknown ids are ignored.
func (s *Sessions) Forget(sessionID int) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
		s.remove(e)
	}
	n := len(s.entries)
	s.mu.Unlock()

	if ok {
		s.resized(n)
	}
}

// acquire returns the session for id, creating it and evicting the least
// recently used one when the arena is full.
func (s *Sessions) acquire(id int) *session {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		s.moveToFront(e)
		s.mu.Unlock()
		return e
	}

	e := &session{id: id, window: domain.NewWindow(s.windowSize, s.threshold)}
	s.entries[id] = e
	s.addToFront(e)
	if len(s.entries) > s.maxSessions {
		s.evictTail()
	}
	n := len(s.entries)
	s.mu.Unlock()

	s.resized(n)
	return e
}

func (s *Sessions) resized(n int) {
	if s.onResize != nil {
		s.onResize(n)
	}
}

func (s *Sessions) moveToFront(e *session) {
	if e == s.head {
		return
	}
	s.remove(e)
	s.addToFront(e)
}

func (s *Sessions) addToFront(e *session) {
	e.next = s.head
	e.prev = nil
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *Sessions) remove(e *session) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (s *Sessions) evictTail() {
	if s.tail == nil {
		return
	}
	delete(s.entries, s.tail.id)
	s.remove(s.tail)
}
