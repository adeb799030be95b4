package sessions

import (
	"sort"
	"sync"
)

// Store is the user-menu session store keyed by chat identity.
type Store interface {
	Get(chatID string) (*Session, bool)
	GetOrCreate(chatID string) *Session
	Delete(chatID string)
	// Touch bumps the activity counter of s if it is still the stored
	// session for chatID.
	Touch(chatID string, s *Session) bool
	// IsCurrent reports whether s is stored for chatID and untouched since seq.
	IsCurrent(chatID string, s *Session, seq uint64) bool
	// Expire deletes s only if it is stored for chatID and untouched since seq.
	Expire(chatID string, s *Session, seq uint64) bool
	Len() int
}

// Manager is the in-memory Store.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the session for chatID.
func (m *Manager) Get(chatID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	return s, ok
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(chatID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[chatID]; ok {
		return s
	}
	s := New(chatID)
	m.sessions[chatID] = s
	return s
}

// Delete removes the session for chatID and stops its timers.
func (m *Manager) Delete(chatID string) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	delete(m.sessions, chatID)
	m.mu.Unlock()

	if ok {
		s.activitySeq.Add(1)
		s.timersMu.Lock()
		s.stopTimersLocked()
		s.timersMu.Unlock()
	}
}

func (m *Manager) Touch(chatID string, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[chatID] != s {
		return false
	}
	s.activitySeq.Add(1)
	return true
}

func (m *Manager) IsCurrent(chatID string, s *Session, seq uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[chatID] == s && s.activitySeq.Load() == seq
}

func (m *Manager) Expire(chatID string, s *Session, seq uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[chatID] != s || s.activitySeq.Load() != seq {
		return false
	}
	delete(m.sessions, chatID)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ChatIDs returns the chats with a live session, sorted.
func (m *Manager) ChatIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopAll stops every armed timer. Called on shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.activitySeq.Add(1)
		s.timersMu.Lock()
		s.stopTimersLocked()
		s.timersMu.Unlock()
	}
}
