package service

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/pkg/cryptox"
)

const (
	DefaultStandardSessionDuration = 15 * time.Minute
	DefaultElevatedSessionDuration = 5 * time.Minute
)

type sessionEntry struct {
	session domain.Session
	seq     uint64 // issue order, breaks CreatedAt ties
}

// SessionManager owns every live session in the process. Callers only hold
// tokens; all reads and writes go through the methods below and are safe
// to call concurrently with SweepExpired.
type SessionManager struct {
	standard time.Duration
	elevated time.Duration
	rand     io.Reader

	mu         sync.RWMutex
	seq        uint64
	sessions   map[string]*sessionEntry
	byIdentity map[string]map[string]struct{}
}

// NewSessionManager returns an empty manager. r feeds token generation; nil
// means crypto/rand.
func NewSessionManager(standard, elevated time.Duration, r io.Reader) (*SessionManager, error) {
	if standard <= 0 || elevated <= 0 {
		return nil, fmt.Errorf("session durations must be positive (standard=%s, elevated=%s)", standard, elevated)
	}
	if elevated > standard {
		return nil, fmt.Errorf("elevated session duration %s exceeds standard duration %s", elevated, standard)
	}
	return &SessionManager{
		standard:   standard,
		elevated:   elevated,
		rand:       r,
		sessions:   make(map[string]*sessionEntry),
		byIdentity: make(map[string]map[string]struct{}),
	}, nil
}

func (m *SessionManager) StandardDuration() time.Duration { return m.standard }
func (m *SessionManager) ElevatedDuration() time.Duration { return m.elevated }

// Issue creates a session for identity. The only failure is the random
// source failing.
func (m *SessionManager) Issue(identity string, elevated bool, now time.Time) (domain.Session, error) {
	token, err := cryptox.GenerateToken(m.rand, cryptox.TokenSize256)
	if err != nil {
		return domain.Session{}, err
	}

	ttl := m.standard
	if elevated {
		ttl = m.elevated
	}
	s := domain.Session{
		Token:            token,
		Identity:         identity,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		PHIAccessEnabled: elevated,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.sessions[token] = &sessionEntry{session: s, seq: m.seq}
	tokens, ok := m.byIdentity[identity]
	if !ok {
		tokens = make(map[string]struct{})
		m.byIdentity[identity] = tokens
	}
	tokens[token] = struct{}{}
	return s, nil
}

// Get returns the session for token. An expired session is evicted and
// reported as absent.
func (m *SessionManager) Get(token string, now time.Time) (domain.Session, bool) {
	m.mu.RLock()
	e, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return domain.Session{}, false
	}
	if !e.session.Expired(now) {
		return e.session, true
	}

	m.mu.Lock()
	if cur, ok := m.sessions[token]; ok && cur.session.Expired(now) {
		m.removeLocked(token)
	}
	m.mu.Unlock()
	return domain.Session{}, false
}

// Invalidate removes token regardless of expiry and reports whether it existed.
func (m *SessionManager) Invalidate(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[token]; !ok {
		return false
	}
	m.removeLocked(token)
	return true
}

// InvalidateAll removes every session owned by identity.
func (m *SessionManager) InvalidateAll(identity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := m.byIdentity[identity]
	n := len(tokens)
	for token := range tokens {
		delete(m.sessions, token)
	}
	delete(m.byIdentity, identity)
	return n
}

// SweepExpired removes all sessions past their expiry at now.
func (m *SessionManager) SweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for token, e := range m.sessions {
		if e.session.Expired(now) {
			m.removeLocked(token)
			n++
		}
	}
	return n
}

// MostRecentValid returns the newest unexpired session for identity.
// Expired sessions met along the way are evicted.
func (m *SessionManager) MostRecentValid(identity string, now time.Time) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *sessionEntry
	for token := range m.byIdentity[identity] {
		e := m.sessions[token]
		if e.session.Expired(now) {
			m.removeLocked(token)
			continue
		}
		if best == nil || e.session.CreatedAt.After(best.session.CreatedAt) ||
			(e.session.CreatedAt.Equal(best.session.CreatedAt) && e.seq > best.seq) {
			best = e
		}
	}
	if best == nil {
		return domain.Session{}, false
	}
	return best.session, true
}

// Count returns the number of sessions held, expired or not.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// removeLocked deletes token from both indexes. Caller holds m.mu.
func (m *SessionManager) removeLocked(token string) {
	e, ok := m.sessions[token]
	if !ok {
		return
	}
	delete(m.sessions, token)
	if tokens, ok := m.byIdentity[e.session.Identity]; ok {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(m.byIdentity, e.session.Identity)
		}
	}
}
