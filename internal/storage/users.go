package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"expensebook/internal/models"
)

const userColumns = `id, username, password_hash, created_at`

// CreateUser creates a new user with the given username and password hash.
// Usernames are unique and compared case-sensitively.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	var id int64
	err := db.conn.QueryRowxContext(ctx,
		db.q(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?) RETURNING id`),
		username, passwordHash, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %q: %w", username, models.ErrDuplicateUsername)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := db.conn.GetContext(ctx, &u, db.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, userLookupErr(err)
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := db.conn.GetContext(ctx, &u, db.q(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	if err != nil {
		return nil, userLookupErr(err)
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}

func userLookupErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user: %w", models.ErrNotFound)
	}
	return fmt.Errorf("scan user: %w", err)
}
