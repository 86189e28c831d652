// Package sttsession holds the per-connection state for the STT server:
// source sample rate, dtype hint, started flag, optional authenticated
// principal, and lifecycle bookkeeping.
package sttsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dtype is the declared element encoding of incoming audio.
type Dtype string

const (
	DtypeI16 Dtype = "i16"
	DtypeF32 Dtype = "f32"
)

// Status is the lifecycle stage of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session is one per connected client. Exactly one exists globally at a
// time, enforced externally by admission.Slot.
type Session struct {
	ID        string
	Status    Status
	Principal string // authenticated subject, empty if unauthenticated

	SourceSampleRate int
	Dtype            Dtype
	Started          bool

	StartedAt      time.Time
	LastActivityAt time.Time
}

func clone(s *Session) *Session {
	c := *s
	return &c
}

// Manager tracks the (at most one, in practice) live session and expires
// it on inactivity, scoped to the admission-gated single-session world
// of Service A.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

// NewManager builds a Manager with the given idle timeout.
func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 20 * time.Second
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook installs a callback invoked once per session expired by
// the janitor.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create starts a new session with a fresh ID.
func (m *Manager) Create() *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		SourceSampleRate: 0,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

// Get returns a snapshot of a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Touch records activity, resetting the idle timer.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Start records that audio framing has begun, capturing the negotiated
// sample rate and dtype (either from an explicit `start` event or
// auto-started from the first data frame).
func (m *Manager) Start(id string, sampleRate int, dtype Dtype) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Started = true
	s.SourceSampleRate = sampleRate
	s.Dtype = dtype
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Authenticate records the verified principal for a session.
func (m *Manager) Authenticate(id, principal string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Principal = principal
	return nil
}

// End marks a session terminated and removes it from the active set.
func (m *Manager) End(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	delete(m.sessions, id)
	return clone(s), nil
}

// StartJanitor runs a background sweep that expires sessions idle for
// longer than the configured timeout, invoking the expire hook once per
// expired session (IDLE_TIMEOUT).
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		expired = append(expired, clone(s))
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
