// Package session keeps per-client login state in a signed cookie.
//
// The cookie carries an HS256 JWT holding the username, the admin flag and
// any pending flash notices. Nothing is stored server-side: a session is
// valid while its signature verifies and its expiry lies in the future, and
// every authenticated request pushes the expiry out by the idle timeout.
package session

import (
	"context"
	"time"
)

// Flash is a one-time notice shown on the next rendered page.
type Flash struct {
	Category string `json:"c,omitempty"`
	Message  string `json:"m"`
}

// Session is the state carried by one client's session cookie.
type Session struct {
	Username  string
	Admin     bool
	ExpiresAt time.Time

	flashes   []Flash
	hadCookie bool
}

// Authenticated reports whether the session carries a logged-in identity.
func (s *Session) Authenticated() bool {
	return s.Username != ""
}

// Login establishes an identity on the session.
func (s *Session) Login(username string, admin bool) {
	s.Username = username
	s.Admin = admin
}

// Logout drops the identity. It returns false when there was none.
func (s *Session) Logout() bool {
	if !s.Authenticated() {
		return false
	}
	s.Username = ""
	s.Admin = false
	return true
}

// AddFlash queues a notice for the next rendered page.
func (s *Session) AddFlash(category, message string) {
	s.flashes = append(s.flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns and clears the pending notices.
func (s *Session) PopFlashes() []Flash {
	flashes := s.flashes
	s.flashes = nil
	return flashes
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
