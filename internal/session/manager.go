package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCookieName is the name of the session cookie.
	DefaultCookieName = "session"
	// DefaultIdleTimeout is how long a session survives without a request.
	DefaultIdleTimeout = 20 * time.Minute
)

type claims struct {
	Username string  `json:"usr,omitempty"`
	Admin    bool    `json:"adm,omitempty"`
	Flashes  []Flash `json:"fl,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs, verifies and refreshes session cookies.
type Manager struct {
	secret      []byte
	cookieName  string
	idleTimeout time.Duration
	secure      bool
	now         func() time.Time
	log         logrus.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout sets the idle expiry window.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) Option {
	return func(m *Manager) { m.cookieName = name }
}

// WithSecure marks the cookie Secure (HTTPS only).
func WithSecure(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger used for cookie signing failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager that signs cookies with secret.
func NewManager(secret []byte, opts ...Option) *Manager {
	m := &Manager{
		secret:      secret,
		cookieName:  DefaultCookieName,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IdleTimeout returns the configured idle expiry window.
func (m *Manager) IdleTimeout() time.Duration {
	return m.idleTimeout
}

// Load reads the session from the request cookie. A missing, tampered or
// expired cookie yields an empty anonymous session.
func (m *Manager) Load(r *http.Request) *Session {
	s := &Session{}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return s
	}
	s.hadCookie = true

	c := &claims{}
	_, err = jwt.ParseWithClaims(cookie.Value, c, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return s
	}

	s.Username = c.Username
	s.Admin = c.Admin
	s.flashes = c.Flashes
	s.ExpiresAt = c.ExpiresAt.Time
	return s
}

// Save writes s to the response as a freshly signed cookie with a new idle
// expiry. A session with neither identity nor flashes clears the cookie.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if !s.Authenticated() && len(s.flashes) == 0 {
		if s.hadCookie {
			m.clearCookie(w)
		}
		return nil
	}

	now := m.now()
	expiresAt := now.Add(m.idleTimeout)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: s.Username,
		Admin:    s.Admin,
		Flashes:  s.flashes,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(m.secret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.idleTimeout.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.ExpiresAt = expiresAt
	s.hadCookie = true
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware loads the session into the request context and writes it back
// right before the response header goes out, so every request through it
// slides the idle expiry forward.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Load(r)
		sw := &sessionWriter{ResponseWriter: w, manager: m, session: s}
		next.ServeHTTP(sw, r.WithContext(NewContext(r.Context(), s)))
		sw.commit()
	})
}

type sessionWriter struct {
	http.ResponseWriter
	manager   *Manager
	session   *Session
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.manager.Save(w.ResponseWriter, w.session); err != nil {
		w.manager.log.WithError(err).Error("failed to save session cookie")
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
