package app

import (
	"sort"
	"sync"
	"time"

	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/internal/errors"
)

// Session is one loaded pair of inputs: the assay layout and the QA data
type Session struct {
	ID         core.SessionID
	LayoutName string
	QAName     string
	Layout     plate.Layout
	Data       *plate.QADataset
	CreatedAt  time.Time
	LastAccess time.Time
}

// SessionInfo is the listing view of a session
type SessionInfo struct {
	ID         core.SessionID `json:"id"`
	LayoutName string         `json:"layout_name"`
	QAName     string         `json:"qa_name"`
	Wells      int            `json:"wells"`
	Records    int            `json:"records"`
	Features   []string       `json:"features"`
	CreatedAt  time.Time      `json:"created_at"`
	LastAccess time.Time      `json:"last_access"`
}

// Info summarizes the session
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		LayoutName: s.LayoutName,
		QAName:     s.QAName,
		Wells:      s.Layout.Wells().Len(),
		Records:    s.Data.Len(),
		Features:   s.Data.Features(),
		CreatedAt:  s.CreatedAt,
		LastAccess: s.LastAccess,
	}
}

// SessionManager is the in-memory registry of analysis sessions. Sessions
// are immutable once registered; only the access time changes.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager creates a registry; sessions idle longer than ttl are
// removed by Prune. A zero ttl keeps sessions until deleted.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[core.SessionID]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create registers a new session
func (sm *SessionManager) Create(layoutName, qaName string, layout plate.Layout, data *plate.QADataset) *Session {
	now := sm.now()
	s := &Session{
		ID:         core.NewSessionID(),
		LayoutName: layoutName,
		QAName:     qaName,
		Layout:     layout,
		Data:       data,
		CreatedAt:  now,
		LastAccess: now,
	}
	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()
	return s
}

// Get returns the session and marks it as accessed
func (sm *SessionManager) Get(id core.SessionID) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, errors.NotFound("session "+id.String(), core.ErrSessionNotFound)
	}
	s.LastAccess = sm.now()
	return s, nil
}

// Delete removes a session
func (sm *SessionManager) Delete(id core.SessionID) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; !ok {
		return errors.NotFound("session "+id.String(), core.ErrSessionNotFound)
	}
	delete(sm.sessions, id)
	return nil
}

// List returns every session, oldest first
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Prune removes sessions idle for longer than the TTL and returns how many
// were removed
func (sm *SessionManager) Prune() int {
	if sm.ttl <= 0 {
		return 0
	}
	cutoff := sm.now().Add(-sm.ttl)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	removed := 0
	for id, s := range sm.sessions {
		if s.LastAccess.Before(cutoff) {
			delete(sm.sessions, id)
			removed++
		}
	}
	return removed
}
