package api

import (
	"sync"
	"time"
)

// StatusSnapshot is the loading/error state at one moment, for UI binding.
type StatusSnapshot struct {
	InFlight int
	Err      error
}

// Loading reports whether any call is in flight.
func (s StatusSnapshot) Loading() bool { return s.InFlight > 0 }

// Status tracks in-flight calls and the last error. A successful call
// clears the error. It is not part of the request protocol.
type Status struct {
	mu       sync.Mutex
	inFlight int
	lastErr  error
	subs     map[int]func(StatusSnapshot)
	nextID   int
}

func newStatus() *Status {
	return &Status{subs: make(map[int]func(StatusSnapshot))}
}

func (s *Status) Loading() bool {
	return s.Snapshot().Loading()
}

func (s *Status) Err() error {
	return s.Snapshot().Err
}

func (s *Status) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{InFlight: s.inFlight, Err: s.lastErr}
}

// Subscribe registers fn for every state change. fn runs synchronously on
// the goroutine that made the change and must not call back into Status.
func (s *Status) Subscribe(fn func(StatusSnapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Status) begin() {
	s.mu.Lock()
	s.inFlight++
	s.notifyLocked()
}

func (s *Status) end(err error) {
	s.mu.Lock()
	s.inFlight--
	s.lastErr = err
	s.notifyLocked()
}

// notifyLocked snapshots under the lock, releases it, then fans out.
func (s *Status) notifyLocked() {
	snap := StatusSnapshot{InFlight: s.inFlight, Err: s.lastErr}
	fns := make([]func(StatusSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// LogoutEvent is emitted once per forced logout. The host application
// decides how to get the user back to RedirectTo.
type LogoutEvent struct {
	Reason     error
	RedirectTo string
	At         time.Time
}

type logoutHub struct {
	mu     sync.Mutex
	subs   map[int]func(LogoutEvent)
	nextID int
}

func (h *logoutHub) subscribe(fn func(LogoutEvent)) func() {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]func(LogoutEvent))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *logoutHub) emit(ev LogoutEvent) {
	h.mu.Lock()
	fns := make([]func(LogoutEvent), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
