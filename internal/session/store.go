// Package session holds authentication state for logged-in operators. The
// store lives purely in process memory, so a restart invalidates every
// session.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/metrics"
	"github.com/pbazhenov/lockerdesk/internal/storage"
)

type Session struct {
	Token     string    `json:"-"`
	ActorID   string    `json:"-"`
	UserName  string    `json:"user_name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"-"`
}

func (s Session) Role() string {
	if s.IsAdmin {
		return storage.RoleAdmin
	}
	return storage.RoleGuest
}

type Store struct {
	sessions *xsync.MapOf[string, Session]
	duration time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewStore(duration time.Duration, logger *zap.Logger) *Store {
	return &Store{
		sessions: xsync.NewMapOf[string, Session](),
		duration: duration,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNowFunc overrides the clock. Tests only.
func (s *Store) WithNowFunc(now func() time.Time) *Store {
	s.now = now
	return s
}

// NewToken returns 256 bits from the system CSPRNG, hex-encoded.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Store) Create(token string, sess Session) {
	sess.Token = token
	sess.CreatedAt = s.now()
	s.sessions.Store(token, sess)
	metrics.ActiveSessions.Set(float64(s.sessions.Size()))
}

// Get looks the token up without touching it. An expired entry is removed
// on discovery and reported as absent (lazy expiry).
func (s *Store) Get(token string) (Session, bool) {
	sess, found := s.sessions.Load(token)
	if !found {
		return Session{}, false
	}
	if s.now().Sub(sess.CreatedAt) >= s.duration {
		s.sessions.Delete(token)
		metrics.ActiveSessions.Set(float64(s.sessions.Size()))
		return Session{}, false
	}
	return sess, true
}

// Touch resets the session's expiry clock (rolling expiry). Called by the
// request-authentication gate on every validated access. The update runs as
// a single Compute so a concurrent logout cannot be overwritten by a stale
// re-store of the entry.
func (s *Store) Touch(token string) bool {
	now := s.now()
	touched := false
	removed := false

	s.sessions.Compute(token, func(sess Session, loaded bool) (Session, bool) {
		if !loaded {
			return sess, true
		}
		if now.Sub(sess.CreatedAt) >= s.duration {
			removed = true
			return sess, true
		}
		sess.CreatedAt = now
		touched = true
		return sess, false
	})

	if removed {
		metrics.ActiveSessions.Set(float64(s.sessions.Size()))
	}
	return touched
}

func (s *Store) Delete(token string) {
	s.sessions.Delete(token)
	metrics.ActiveSessions.Set(float64(s.sessions.Size()))
}

// SweepExpired removes every lapsed session. Bounds memory growth from
// abandoned logins; correctness never depends on it because Get already
// expires lazily.
func (s *Store) SweepExpired() int {
	now := s.now()
	var expired []string
	s.sessions.Range(func(token string, sess Session) bool {
		if now.Sub(sess.CreatedAt) >= s.duration {
			expired = append(expired, token)
		}
		return true
	})
	for _, token := range expired {
		s.sessions.Delete(token)
	}
	if len(expired) > 0 {
		metrics.ActiveSessions.Set(float64(s.sessions.Size()))
	}
	return len(expired)
}

func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.SweepExpired(); removed > 0 {
				s.logger.Debug("session sweep removed expired sessions", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
