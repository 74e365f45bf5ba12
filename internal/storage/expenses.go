package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"expensebook/internal/models"
)

const expenseColumns = `id, user_id, spent_on, category, amount, notes, created_at`

// CreateExpense inserts a new expense owned by userID.
func (db *DB) CreateExpense(ctx context.Context, userID int64, in models.ExpenseInput) (*models.Expense, error) {
	e := models.Expense{
		UserID:    userID,
		SpentOn:   in.Date.Format(models.DateLayout),
		Category:  in.Category,
		Amount:    in.Amount,
		Notes:     in.Notes,
		CreatedAt: time.Now().UTC(),
	}
	err := db.conn.QueryRowxContext(ctx,
		db.q(`INSERT INTO expenses (user_id, spent_on, category, amount, notes, created_at)
VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		e.UserID, e.SpentOn, e.Category, e.Amount, e.Notes, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}
	return &e, nil
}

// GetExpense retrieves a single expense by ID regardless of owner.
func (db *DB) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	var e models.Expense
	err := db.conn.GetContext(ctx, &e, db.q(`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("expense %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return &e, nil
}

// ListExpensesByUser returns every expense owned by userID, newest first.
func (db *DB) ListExpensesByUser(ctx context.Context, userID int64) ([]models.Expense, error) {
	expenses := []models.Expense{}
	err := db.conn.SelectContext(ctx, &expenses,
		db.q(`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY spent_on DESC, id DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense if requestingUserID owns it. It returns
// ErrNotFound for unknown ids and ErrForbidden, without deleting anything,
// when the expense belongs to another user.
func (db *DB) DeleteExpense(ctx context.Context, id, requestingUserID int64) error {
	var owner int64
	err := db.conn.GetContext(ctx, &owner, db.q(`SELECT user_id FROM expenses WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("expense %d: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("get expense owner: %w", err)
	}
	if owner != requestingUserID {
		return fmt.Errorf("expense %d: %w", id, models.ErrForbidden)
	}

	res, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM expenses WHERE id = ? AND user_id = ?`), id, requestingUserID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	// lost a race with another delete of the same row
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("expense %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteAllExpenses removes every expense owned by userID and reports how many were removed.
func (db *DB) DeleteAllExpenses(ctx context.Context, userID int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM expenses WHERE user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("delete expenses: %w", err)
	}
	return res.RowsAffected()
}
