package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"peergate.dev/peergate/internal/clock"
)

// Session represents one browser's conversation with the console. A session
// starts unauthenticated on first contact and is flipped by a successful
// credential check; only the store mutates it. Sessions live only in memory
// and are never persisted.
type Session struct {
	ID            string
	Authenticated bool
	CreatedAt     time.Time
	ExpiresAt     time.Time // zero for sessions that last until logout
	Remember      bool
}

// Store holds sessions in memory and signs the ids handed out as cookies.
// The signing secret is generated at construction, so restarting the process
// invalidates every outstanding cookie.
type Store struct {
	secret   []byte
	maxAge   time.Duration
	sessions map[string]*Session
	clk      clock.Clock
	mu       sync.RWMutex
}

// NewStore creates a session store. maxAge bounds remembered sessions;
// zero means remembered sessions never expire server-side.
func NewStore(maxAge time.Duration) (*Store, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	return &Store{
		secret:   secret,
		maxAge:   maxAge,
		sessions: make(map[string]*Session),
		clk:      clock.RealClock{},
	}, nil
}

// Create registers a new unauthenticated session, handed to every visitor
// that arrives without a valid cookie.
func (s *Store) Create() (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        hex.EncodeToString(idBytes),
		CreatedAt: s.clk.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess, nil
}

// Authenticate marks a live session as authenticated after a successful
// credential check. With remember and a configured max-age the session gets
// an absolute expiry; otherwise it lasts until logout or process restart.
func (s *Store) Authenticate(id string, remember bool) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, ErrInvalidSession
	}

	sess.Authenticated = true
	sess.Remember = remember
	if remember && s.maxAge > 0 {
		sess.ExpiresAt = s.clk.Now().Add(s.maxAge)
	}
	return sess, nil
}

// CookieValue returns the signed cookie form of a session id.
func (s *Store) CookieValue(id string) string {
	return id + "." + s.sign(id)
}

// Verify authenticates a cookie value and returns the live session behind
// it. The signature check runs before any map lookup, so forged ids never
// touch the session table.
func (s *Store) Verify(value string) (*Session, error) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return nil, ErrInvalidSession
	}

	sigBytes, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, ErrInvalidSession
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	if !hmac.Equal(sigBytes, mac.Sum(nil)) {
		return nil, ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, ErrInvalidSession
	}

	if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(s.clk.Now()) {
		delete(s.sessions, id)
		return nil, ErrInvalidSession
	}

	return sess, nil
}

// Destroy invalidates a session id. Unknown ids are ignored.
func (s *Store) Destroy(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CleanupExpired removes sessions past their expiry and returns how many
// were dropped.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	removed := 0
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs periodic cleanup until the context is cancelled.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired()
			}
		}
	}()
}

func (s *Store) sign(id string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
