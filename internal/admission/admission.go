// Package admission enforces the single-active-session invariant for the
// STT server: a process-wide slot that at most one connection may hold.
package admission

import "sync"

// Slot guards the one active session a process allows at a time. Every
// successful Acquire must be paired with exactly one Release; Release is
// idempotent per holder so a caller's outermost cleanup can call it
// unconditionally without double-releasing someone else's later
// acquisition.
type Slot struct {
	mu       sync.Mutex
	occupied bool
	holder   string
}

// NewSlot returns an empty admission slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Acquire claims the slot for sessionID. It returns false if the slot is
// already occupied by a different session.
func (s *Slot) Acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occupied {
		return false
	}
	s.occupied = true
	s.holder = sessionID
	return true
}

// Release frees the slot if and only if it is currently held by
// sessionID; releasing a slot you don't hold (already released, or held
// by someone else) is a no-op, making it safe to call from every exit
// path of a connection's cleanup without tracking whether an earlier
// path already released it.
func (s *Slot) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occupied && s.holder == sessionID {
		s.occupied = false
		s.holder = ""
	}
}

// Occupied reports whether the slot is currently held by anyone.
func (s *Slot) Occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied
}
