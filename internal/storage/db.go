package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"gatekeep/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	// Import postgres driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername is returned when a username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
)

//go:embed migrations
var migrations embed.FS

type dialect struct {
	name string
	dir  string
}

var dialects = map[string]dialect{
	DriverSQLite:   {name: "sqlite3", dir: "migrations/sqlite"},
	DriverPostgres: {name: "postgres", dir: "migrations/postgres"},
}

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB wraps a sqlx.DB connection pool.
type DB struct {
	conn *sqlx.DB
	log  goose.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger routes migration output to the given logger.
func WithLogger(l goose.Logger) Option {
	return func(db *DB) { db.log = l }
}

// Open opens a database connection for driver and runs migrations.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// Every new connection to ":memory:" is a new empty database.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, log: goose.NopLogger()}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(ctx, d); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func (db *DB) migrate(ctx context.Context, d dialect) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(db.log)
	if err := goose.SetDialect(d.name); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.conn.DB, d.dir)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateUser creates a new user with the given username and password hash.
// An existing username is never overwritten; ErrDuplicateUsername is returned instead.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string, admin bool) (*models.User, error) {
	var id int64
	err := db.conn.QueryRowxContext(ctx, db.conn.Rebind(
		"INSERT INTO users (username, password, admin) VALUES (?, ?, ?) RETURNING id"),
		username, passwordHash, admin,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, username, password, admin, created_at FROM users WHERE id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, username, password, admin, created_at FROM users WHERE username = ?", username)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	if err := db.conn.GetContext(ctx, &u, db.conn.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by ID.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := db.conn.SelectContext(ctx, &users,
		"SELECT id, username, password, admin, created_at FROM users ORDER BY id",
	); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser changes a user's username and admin flag. The password hash is
// not writable through this method.
func (db *DB) UpdateUser(ctx context.Context, id int64, username string, admin bool) error {
	result, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		"UPDATE users SET username = ?, admin = ? WHERE id = ?"),
		username, admin, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectAffected(result)
}

// DeleteUser removes a user by ID.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, db.conn.Rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectAffected(result)
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM users")
	return count, err
}

func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		// Primary result code only when extended codes are off.
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
