package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// DB wraps a sqlx connection to either SQLite or PostgreSQL.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// NewDB opens a SQLite database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	return Open(DriverSQLite, path)
}

// Open connects to the given driver and brings the schema up to date.
func Open(driver, dsn string) (*DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)
	switch driver {
	case DriverSQLite:
		conn, err = openSQLite(dsn)
	case DriverPostgres:
		conn, err = openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := runMigrations(conn, driver, dsn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{conn: conn, driver: driver}, nil
}

func openSQLite(path string) (*sqlx.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// a single connection keeps :memory: databases coherent and serializes writers
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return conn, nil
}

func openPostgres(dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return conn, nil
}

func runMigrations(conn *sqlx.DB, driver, dsn string) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("locate %s migrations: %w", driver, err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// The sqlite driver closes the *sql.DB it wraps, so it is never closed
		// here; only the source is released.
		defer src.Close()
		target, err := migratesqlite.WithInstance(conn.DB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("create sqlite migrate driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
		return up(m)
	default:
		// The postgres driver pins a connection for its lifetime; give it its own pool.
		mdb, err := sql.Open("postgres", dsn)
		if err != nil {
			src.Close()
			return fmt.Errorf("open migration database: %w", err)
		}
		target, err := migratepg.WithInstance(mdb, &migratepg.Config{})
		if err != nil {
			src.Close()
			mdb.Close()
			return fmt.Errorf("create postgres migrate driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
		if err != nil {
			src.Close()
			target.Close()
			return fmt.Errorf("create migrate instance: %w", err)
		}
		defer m.Close()
		return up(m)
	}
}

func up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Driver returns the name of the underlying database driver.
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) q(query string) string {
	return db.conn.Rebind(query)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			// extended result codes disabled
			return strings.Contains(se.Error(), "UNIQUE")
		}
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
