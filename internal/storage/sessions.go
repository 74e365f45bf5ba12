package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"expensebook/internal/models"
)

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		db.q(`INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)`),
		token, userID, expiresAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

type sessionRow struct {
	models.User
	LastActivity time.Time `db:"last_activity"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// ValidateSessionWithInfo checks that a session token exists and has not
// expired, returning the owning user and session timestamps.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error) {
	var row sessionRow
	err := db.conn.GetContext(ctx, &row, db.q(`
SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
FROM sessions s
JOIN users u ON s.user_id = u.id
WHERE s.token = ?`), token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !row.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("session expired: %w", models.ErrNotFound)
	}

	user := row.User
	return &models.SessionInfo{
		User:         &user,
		LastActivity: row.LastActivity,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		db.q(`UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?`),
		time.Now().UTC(), newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM sessions WHERE token = ?`), token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM sessions WHERE expires_at <= ?`), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
