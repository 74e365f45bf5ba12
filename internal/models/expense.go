package models

import "time"

// DateLayout is the wire and storage format of an expense date.
const DateLayout = "2006-01-02"

// Expense represents a single spend record owned by one user.
type Expense struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	SpentOn   string    `db:"spent_on" json:"date"`
	Category  string    `db:"category" json:"category"`
	Amount    float64   `db:"amount" json:"amount"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Date returns the parsed calendar date of the expense.
func (e Expense) Date() time.Time {
	d, _ := time.Parse(DateLayout, e.SpentOn)
	return d
}

// Month returns the YYYY-MM key the expense is grouped under.
func (e Expense) Month() string {
	if len(e.SpentOn) < 7 {
		return ""
	}
	return e.SpentOn[:7]
}

// User represents a user account.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Session represents a user session.
type Session struct {
	Token        string    `db:"token" json:"token"`
	UserID       int64     `db:"user_id" json:"user_id"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *User
	LastActivity time.Time
	ExpiresAt    time.Time
}
