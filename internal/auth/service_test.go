package auth

import (
	"context"
	"strings"
	"testing"

	"gatekeep/internal/session"
	"gatekeep/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)

	assert.NotEqual(t, "secret123", hash, "hash must never be the plaintext")
	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("wrong", hash))

	again, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "hashes are salted")
}

func TestHashPassword_LongPassword(t *testing.T) {
	long := strings.Repeat("a", 100)
	hash, err := HashPassword(long)
	require.NoError(t, err, "passwords past 72 bytes are accepted")

	assert.True(t, CheckPassword(long, hash))
	assert.False(t, CheckPassword(long[:72], hash), "bytes past 72 still count")
	assert.False(t, CheckPassword(long+"b", hash))
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"trimmed", "  alice ", "alice", nil},
		{"empty", "   ", "", ErrMissingCredentials},
		{"at limit", strings.Repeat("x", MaxUsernameLength), strings.Repeat("x", MaxUsernameLength), nil},
		{"over limit", strings.Repeat("x", MaxUsernameLength+1), "", ErrUsernameTooLong},
		{"multibyte at limit", strings.Repeat("é", MaxUsernameLength), strings.Repeat("é", MaxUsernameLength), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeUsername(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	assert.False(t, CheckPassword("secret123", "not-a-bcrypt-hash"))
}

// ServiceTestSuite exercises the auth service against an in-memory store
type ServiceTestSuite struct {
	suite.Suite
	db   *storage.DB
	svc  *Service
	hook *test.Hook
	ctx  context.Context
}

// SetupTest runs before each test
func (suite *ServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	db, err := storage.Open(suite.ctx, storage.DriverSQLite, ":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	logger, hook := test.NewNullLogger()
	suite.hook = hook
	suite.svc = NewService(db, logger)
}

// TearDownTest runs after each test
func (suite *ServiceTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *ServiceTestSuite) TestRegisterStoresHash() {
	user, err := suite.svc.Register(suite.ctx, "alice", "secret123")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "alice", user.Username)
	assert.False(suite.T(), user.Admin)
	assert.NotEqual(suite.T(), "secret123", user.PasswordHash)
	assert.True(suite.T(), CheckPassword("secret123", user.PasswordHash))
}

func (suite *ServiceTestSuite) TestRegisterTrimsUsername() {
	user, err := suite.svc.Register(suite.ctx, "  alice ", "secret123")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", user.Username)
}

func (suite *ServiceTestSuite) TestRegisterDuplicate() {
	_, err := suite.svc.Register(suite.ctx, "alice", "secret123")
	require.NoError(suite.T(), err)

	_, err = suite.svc.Register(suite.ctx, "alice", "other")
	assert.ErrorIs(suite.T(), err, ErrDuplicateUsername)

	count, err := suite.db.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *ServiceTestSuite) TestRegisterMissingCredentials() {
	cases := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "secret"},
		{"blank username", "   ", "secret"},
		{"empty password", "alice", ""},
	}
	for _, tc := range cases {
		suite.Run(tc.name, func() {
			_, err := suite.svc.Register(suite.ctx, tc.username, tc.password)
			assert.ErrorIs(suite.T(), err, ErrMissingCredentials)
		})
	}
}

func (suite *ServiceTestSuite) TestRegisterLongPassword() {
	password := strings.Repeat("p", 73)
	_, err := suite.svc.Register(suite.ctx, "carol", password)
	require.NoError(suite.T(), err)

	sess := &session.Session{}
	_, err = suite.svc.Login(suite.ctx, sess, "carol", password)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "carol", sess.Username)
}

func (suite *ServiceTestSuite) TestRegisterUsernameTooLong() {
	_, err := suite.svc.Register(suite.ctx, strings.Repeat("u", MaxUsernameLength+1), "secret")
	assert.ErrorIs(suite.T(), err, ErrUsernameTooLong)

	count, err := suite.db.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), count)
}

func (suite *ServiceTestSuite) TestLoginSuccess() {
	_, err := suite.svc.Register(suite.ctx, "alice", "secret123")
	require.NoError(suite.T(), err)

	sess := &session.Session{}
	user, err := suite.svc.Login(suite.ctx, sess, "alice", "secret123")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "alice", user.Username)
	assert.True(suite.T(), sess.Authenticated())
	assert.Equal(suite.T(), "alice", sess.Username)
	assert.False(suite.T(), sess.Admin)
}

func (suite *ServiceTestSuite) TestLoginCarriesAdminFlag() {
	created, err := suite.svc.EnsureAdmin(suite.ctx, "root", "toor")
	require.NoError(suite.T(), err)
	require.True(suite.T(), created)

	sess := &session.Session{}
	_, err = suite.svc.Login(suite.ctx, sess, "root", "toor")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), sess.Admin)
}

func (suite *ServiceTestSuite) TestLoginWrongPassword() {
	_, err := suite.svc.Register(suite.ctx, "alice", "secret123")
	require.NoError(suite.T(), err)

	sess := &session.Session{}
	_, err = suite.svc.Login(suite.ctx, sess, "alice", "wrong")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)
	assert.False(suite.T(), sess.Authenticated(), "failed login must not create a session")

	entry := suite.hook.LastEntry()
	require.NotNil(suite.T(), entry)
	assert.Equal(suite.T(), logrus.WarnLevel, entry.Level)
	assert.Equal(suite.T(), "failed login attempt", entry.Message)
}

func (suite *ServiceTestSuite) TestLoginUnknownUser() {
	sess := &session.Session{}
	_, err := suite.svc.Login(suite.ctx, sess, "nobody", "secret123")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials, "unknown user and wrong password look the same")
	assert.False(suite.T(), sess.Authenticated())
}

func (suite *ServiceTestSuite) TestLoginFailureKeepsExistingSession() {
	_, err := suite.svc.Register(suite.ctx, "alice", "secret123")
	require.NoError(suite.T(), err)

	sess := &session.Session{}
	sess.Login("bob", false)
	_, err = suite.svc.Login(suite.ctx, sess, "alice", "wrong")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)
	assert.Equal(suite.T(), "bob", sess.Username)
}

func (suite *ServiceTestSuite) TestLogout() {
	sess := &session.Session{}
	sess.Login("alice", true)

	assert.True(suite.T(), suite.svc.Logout(sess))
	assert.False(suite.T(), sess.Authenticated())
	assert.False(suite.T(), sess.Admin)

	assert.False(suite.T(), suite.svc.Logout(sess), "second logout reports already logged out")
}

func (suite *ServiceTestSuite) TestEnsureAdminExistingUser() {
	_, err := suite.svc.Register(suite.ctx, "alice", "secret123")
	require.NoError(suite.T(), err)

	created, err := suite.svc.EnsureAdmin(suite.ctx, "alice", "other")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), created)

	// Existing account is left as it was
	user, err := suite.db.GetUserByUsername(suite.ctx, "alice")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), user.Admin)
	assert.True(suite.T(), CheckPassword("secret123", user.PasswordHash))
}

func (suite *ServiceTestSuite) TestRegisterThenLoginOncePerUsername() {
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := suite.svc.Register(suite.ctx, name, name+"-pw")
		require.NoError(suite.T(), err)

		sess := &session.Session{}
		_, err = suite.svc.Login(suite.ctx, sess, name, name+"-pw")
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), name, sess.Username)

		_, err = suite.svc.Register(suite.ctx, name, "again")
		assert.ErrorIs(suite.T(), err, ErrDuplicateUsername)
	}
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
