// Package report aggregates a user's expenses into totals for display.
package report

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"expensebook/internal/models"
)

// ExpenseLister reads a user's expenses.
type ExpenseLister interface {
	ListExpensesByUser(ctx context.Context, userID int64) ([]models.Expense, error)
}

// MonthTotal is the summed spend of one calendar month.
type MonthTotal struct {
	Month string
	Total float64
}

// Summary is everything the listing view shows for one user.
type Summary struct {
	Expenses      []models.Expense
	Total         float64
	MonthlyTotals map[string]float64
	// Months holds MonthlyTotals ordered oldest first.
	Months []MonthTotal
}

// Engine computes totals over an ExpenseLister. It never writes.
type Engine struct {
	expenses ExpenseLister
}

// NewEngine creates an Engine reading from expenses.
func NewEngine(expenses ExpenseLister) *Engine {
	return &Engine{expenses: expenses}
}

// TotalForUser sums the amount of every expense owned by userID; 0 if none.
func (e *Engine) TotalForUser(ctx context.Context, userID int64) (float64, error) {
	expenses, err := e.expenses.ListExpensesByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return Total(expenses), nil
}

// MonthlyTotals sums userID's expenses per YYYY-MM. Months without
// expenses are absent from the result.
func (e *Engine) MonthlyTotals(ctx context.Context, userID int64) (map[string]float64, error) {
	expenses, err := e.expenses.ListExpensesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return MonthlyTotals(expenses), nil
}

// Summarize loads userID's expenses once and derives every total from them.
func (e *Engine) Summarize(ctx context.Context, userID int64) (Summary, error) {
	expenses, err := e.expenses.ListExpensesByUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	monthly := MonthlyTotals(expenses)
	return Summary{
		Expenses:      expenses,
		Total:         Total(expenses),
		MonthlyTotals: monthly,
		Months:        SortedMonths(monthly),
	}, nil
}

// Total sums the amounts of expenses.
func Total(expenses []models.Expense) float64 {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(decimal.NewFromFloat(e.Amount))
	}
	return sum.InexactFloat64()
}

// MonthlyTotals groups expenses by the year and month of their date.
func MonthlyTotals(expenses []models.Expense) map[string]float64 {
	sums := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		month := e.Month()
		if month == "" {
			continue
		}
		sums[month] = sums[month].Add(decimal.NewFromFloat(e.Amount))
	}

	totals := make(map[string]float64, len(sums))
	for month, sum := range sums {
		totals[month] = sum.InexactFloat64()
	}
	return totals
}

// SortedMonths flattens monthly totals into a slice ordered by month.
func SortedMonths(totals map[string]float64) []MonthTotal {
	months := make([]MonthTotal, 0, len(totals))
	for m, t := range totals {
		months = append(months, MonthTotal{Month: m, Total: t})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month < months[j].Month })
	return months
}
