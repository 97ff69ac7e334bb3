// Package sqlite implements the repository interfaces using SQLite as the
// storage backend. It is the default store: a single file, no server to run.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB:   a connection pool (NOT a single connection!)
//   - sql.Row:  a single result row
//   - sql.Rows: multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sakif/tasklist/internal/repository"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out the repositories built on it.
type DB struct {
	conn  *sql.DB
	users *UserDB
	tasks *TaskDB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/tasks.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
//
// maxOpenConns bounds the pool. Callers that cannot get a connection wait
// until their context expires; the repositories report that as
// apperror.ErrUnavailable.
//
// PRAGMAS:
// PRAGMA statements are per connection, so they go into the DSN (_pragma=...)
// where the driver applies them to every connection the pool opens. Running
// "PRAGMA foreign_keys=ON" once on the pool would only reach one connection
// and ON DELETE CASCADE would silently stop working on the others.
func New(dbPath string, maxOpenConns int) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" gets its own, empty database. Pin the
	// pool to one connection so all queries see the same tables.
	if isMemory(dbPath) {
		maxOpenConns = 1
	}
	if maxOpenConns > 0 {
		conn.SetMaxOpenConns(maxOpenConns)
		conn.SetMaxIdleConns(maxOpenConns)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := newFromConn(conn)
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// newFromConn wraps an existing pool without migrating. Tests use it with
// go-sqlmock to assert on statement shapes.
func newFromConn(conn *sql.DB) *DB {
	return &DB{
		conn:  conn,
		users: &UserDB{conn: conn},
		tasks: &TaskDB{conn: conn},
	}
}

func (db *DB) Users() repository.UserRepository { return db.users }

func (db *DB) Tasks() repository.TaskRepository { return db.tasks }

// Ping checks that a connection can be obtained. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// dsn appends the pragmas every connection needs.
// _time_format=sqlite stores times as "YYYY-MM-DD HH:MM:SS.fff+00:00",
// which sorts lexically in time order for UTC values.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join([]string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_time_format=sqlite",
	}, "&")
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Deleting a user removes their tasks (ON DELETE CASCADE).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			description TEXT NOT NULL,
			completed   BOOLEAN NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_completed ON tasks(user_id, completed);
	`)
	if err != nil {
		return fmt.Errorf("creating tasks table: %w", err)
	}

	return nil
}
