// Package session persists validation sessions between init and status.
//
// A session is keyed by its subject and carries the wallet's registered
// public key plus, once a submission has been processed, the signed result
// token. Expired sessions are indistinguishable from absent ones.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Status is the session lifecycle state.
type Status string

const (
	// StatusOpen - created at init, waiting for a submission.
	StatusOpen Status = "OPEN"

	// StatusReady - a submission was processed; terminal for the subject.
	StatusReady Status = "READY"
)

// ErrNotFound is returned for absent and expired sessions alike.
var ErrNotFound = errors.New("session not found")

// ErrConsumed is returned by Update when the stored session is no longer
// OPEN: a concurrent submission already won the transition.
var ErrConsumed = errors.New("session already consumed")

// Session is the persisted state for one validation subject.
type Session struct {
	Subject string `json:"subject"`
	Status  Status `json:"status"`

	// PublicKey is the wallet's registered public key (base64 DER) used to
	// verify the signature over the submitted credential.
	PublicKey string `json:"publicKey"`
	KeyType   string `json:"keyType"`

	ExpiresAt time.Time `json:"expiresAt"`

	// Callback is an optional wallet-chosen URL the result token is POSTed
	// to once the submission has been processed.
	Callback string `json:"callback,omitempty"`

	// ResultToken is the signed verdict, set when Status is READY.
	ResultToken string `json:"resultToken,omitempty"`
}

// Expired reports whether the session's TTL has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Store persists sessions. Store overwrites the subject's entry
// unconditionally (create or re-init). Update is the submit-side transition:
// it performs an atomic check-and-set that only succeeds while the stored
// session is still OPEN, so a subject transitions to READY exactly once even
// under concurrent submissions. Update returns ErrNotFound for absent or
// expired sessions and ErrConsumed when another submission got there first.
type Store interface {
	Store(ctx context.Context, s *Session) error
	Fetch(ctx context.Context, subject string) (*Session, error)
	Update(ctx context.Context, s *Session) error
}

// MemoryStore is the single-instance store: a mutex-protected map with
// expiry checked on read. No background sweeper; stale entries are dropped
// when fetched or overwritten.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Store(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Subject] = *s
	return nil
}

func (m *MemoryStore) Fetch(_ context.Context, subject string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[subject]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.Expired(time.Now()) {
		m.mu.Lock()
		delete(m.sessions, subject)
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	copied := s
	return &copied, nil
}

func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[s.Subject]
	if !ok {
		return ErrNotFound
	}
	if cur.Expired(time.Now()) {
		delete(m.sessions, s.Subject)
		return ErrNotFound
	}
	if cur.Status != StatusOpen {
		return ErrConsumed
	}

	m.sessions[s.Subject] = *s
	return nil
}
