package models

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ExpenseInput is a validated add-expense request.
type ExpenseInput struct {
	Date     time.Time
	Category string
	Amount   float64
	Notes    string
}

// ParseExpenseInput validates raw form values. The date must be YYYY-MM-DD,
// the amount a finite number and the category non-blank. Notes are optional.
func ParseExpenseInput(date, category, amount, notes string) (ExpenseInput, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return ExpenseInput{}, invalid("date", ErrInvalidDate)
	}

	category = strings.TrimSpace(category)
	if category == "" {
		return ExpenseInput{}, invalid("category", ErrMissingField)
	}

	a, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || math.IsNaN(a) || math.IsInf(a, 0) {
		return ExpenseInput{}, invalid("amount", ErrInvalidAmount)
	}

	return ExpenseInput{
		Date:     d,
		Category: category,
		Amount:   a,
		Notes:    strings.TrimSpace(notes),
	}, nil
}
