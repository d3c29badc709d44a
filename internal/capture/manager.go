package capture

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrSessionExists is returned when a session name is already in use.
	ErrSessionExists = errors.New("a session with this name already exists")

	// ErrSessionNotFound is returned for an unknown session name.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionManager tracks the live capture sessions by batch name.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Put registers a session, rejecting duplicate names.
func (m *SessionManager) Put(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Name()]; ok {
		return ErrSessionExists
	}
	m.sessions[s.Name()] = s
	return nil
}

// Replace registers a session, overwriting any existing one with the
// same name. Used when a saved queue is reopened.
func (m *SessionManager) Replace(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Name()] = s
}

// Get looks up a session by name.
func (m *SessionManager) Get(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete discards a session.
func (m *SessionManager) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, name)
}

// Names lists the registered session names, sorted.
func (m *SessionManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
