package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	domainAccount "civicreport/internal/domain/account"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const sessionContextKey contextKey = "session"

// DefaultSessionTTL is used when a store is created without a lifetime.
const DefaultSessionTTL = 24 * time.Hour

const sessionCookieName = "civic_session"

// ErrSessionNotFound is returned by stores for unknown or expired tokens.
var ErrSessionNotFound = errors.New("session not found")

// Session represents an authenticated session.
type Session struct {
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Can reports whether the session's role grants the capability.
func (s Session) Can(c domainAccount.Capability) bool {
	return domainAccount.RoleCan(s.Role, c)
}

var _ domainAccount.Authorizer = Session{}

// SessionStore persists sessions keyed by an opaque token.
type SessionStore interface {
	Create(ctx context.Context, session Session) (string, error)
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

// sessionSweepInterval is how often MemorySessionStore drops expired sessions.
const sessionSweepInterval = 5 * time.Minute

// MemorySessionStore is an in-process session store.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemorySessionStore creates an in-memory store whose sessions live for ttl.
// Call Stop to end the background sweep of expired sessions.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	ms := &MemorySessionStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go ms.sweep(sessionSweepInterval)
	return ms
}

func (ms *MemorySessionStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ms.stop:
			return
		case <-ticker.C:
			if n := ms.removeExpired(); n > 0 {
				slog.Debug("sessions_swept", "removed", n)
			}
		}
	}
}

// removeExpired deletes every session older than the TTL and returns how many it removed.
func (ms *MemorySessionStore) removeExpired() int {
	now := ms.now()
	ms.mu.Lock()
	defer ms.mu.Unlock()
	removed := 0
	for token, session := range ms.sessions {
		if now.Sub(session.CreatedAt) > ms.ttl {
			delete(ms.sessions, token)
			removed++
		}
	}
	return removed
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (ms *MemorySessionStore) Stop() {
	ms.stopOnce.Do(func() { close(ms.stop) })
}

// Len returns the number of stored sessions, expired ones included until swept.
func (ms *MemorySessionStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sessions)
}

// Create stores a new session and returns the token.
// PRE: session.AccountID > 0
// POST: Session is stored with CreatedAt set, token is returned
func (ms *MemorySessionStore) Create(_ context.Context, session Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	session.CreatedAt = ms.now()
	ms.mu.Lock()
	ms.sessions[token] = session
	ms.mu.Unlock()
	return token, nil
}

// Get retrieves a session by token, evicting it if expired.
func (ms *MemorySessionStore) Get(_ context.Context, token string) (Session, error) {
	ms.mu.RLock()
	session, ok := ms.sessions[token]
	ms.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if ms.now().Sub(session.CreatedAt) > ms.ttl {
		ms.mu.Lock()
		delete(ms.sessions, token)
		ms.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a session by token. Unknown tokens are ignored.
func (ms *MemorySessionStore) Delete(_ context.Context, token string) error {
	ms.mu.Lock()
	delete(ms.sessions, token)
	ms.mu.Unlock()
	return nil
}

// Auth returns middleware that resolves the session cookie and stores the session in context.
// It does NOT block unauthenticated requests; use RequireAuth or RequireCapability for that.
func Auth(sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err == nil && cookie.Value != "" {
				session, err := sessions.Get(r.Context(), cookie.Value)
				switch {
				case err == nil:
					r = r.WithContext(ContextWithSession(r.Context(), session))
				case !errors.Is(err, ErrSessionNotFound):
					slog.Error("session_lookup_failed", "error", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth redirects unauthenticated requests to the login page.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability redirects anonymous requests to /login and answers 403 when the
// session's role lacks the capability.
func RequireCapability(c domainAccount.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			if !session.Can(c) {
				slog.Warn("auth_event", "event", "forbidden", "account_id", session.AccountID, "capability", string(c), "path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(Session)
	return session, ok
}

// ContextWithSession returns a context carrying the session.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// SessionToken returns the raw session token from the request cookie, if any.
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
