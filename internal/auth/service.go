// Package auth implements registration, login and logout on top of the
// user store and the cookie session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"gatekeep/internal/models"
	"gatekeep/internal/session"
	"gatekeep/internal/storage"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("username and password are required")
	// ErrUsernameTooLong is returned for usernames over MaxUsernameLength.
	ErrUsernameTooLong = fmt.Errorf("username must be at most %d characters", MaxUsernameLength)
	// ErrDuplicateUsername is returned when registering a taken username.
	ErrDuplicateUsername = storage.ErrDuplicateUsername
)

// MaxUsernameLength caps usernames, counted in characters.
const MaxUsernameLength = 64

// NormalizeUsername trims surrounding whitespace and checks the length.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return "", ErrMissingCredentials
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		return "", ErrUsernameTooLong
	}
	return username, nil
}

// UserStore is the part of the credential store the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string, admin bool) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Service handles credential checks and session identity.
type Service struct {
	users UserStore
	log   logrus.FieldLogger

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a new auth Service.
func NewService(users UserStore, log logrus.FieldLogger) *Service {
	return &Service{users: users, log: log}
}

// Register creates a non-admin user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrMissingCredentials
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, hash, false)
	if err != nil {
		return nil, err
	}

	s.log.WithField("username", user.Username).Info("user registered")
	return user, nil
}

// Authenticate checks username and password against the store.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Spend the same bcrypt work as for a real user.
			CheckPassword(password, s.fakeHash())
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and, on success, puts the identity on sess. On failure
// sess is left untouched.
func (s *Service) Login(ctx context.Context, sess *session.Session, username, password string) (*models.User, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.log.WithField("username", username).Warn("failed login attempt")
		}
		return nil, err
	}

	sess.Login(user.Username, user.Admin)
	s.log.WithFields(logrus.Fields{"username": user.Username, "admin": user.Admin}).Info("user logged in")
	return user, nil
}

// Logout clears the identity on sess. It returns false when the session was
// already anonymous.
func (s *Service) Logout(sess *session.Session) bool {
	username := sess.Username
	if !sess.Logout() {
		return false
	}
	s.log.WithField("username", username).Info("user logged out")
	return true
}

// EnsureAdmin creates an admin account unless the username is already taken.
// It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return false, err
	}
	if password == "" {
		return false, ErrMissingCredentials
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := s.users.CreateUser(ctx, username, hash, true); err != nil {
		if errors.Is(err, storage.ErrDuplicateUsername) {
			return false, nil
		}
		return false, err
	}

	s.log.WithField("username", username).Info("admin user created")
	return true, nil
}

func (s *Service) fakeHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("not-a-real-password")
	})
	return s.dummyHash
}
