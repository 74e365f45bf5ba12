package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"expensebook/internal/logging"
	"expensebook/internal/models"
	"expensebook/internal/report"
)

// IndexViewModel is the data passed to the listing template.
type IndexViewModel struct {
	Page
	Expenses      []models.Expense
	Total         float64
	MonthlyTotals map[string]float64
	Months        []report.MonthTotal
	Today         string
}

// Index renders the current user's expenses with their totals.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	summary, err := h.reports.Summarize(r.Context(), identity.UserID())
	if err != nil {
		h.serverError(w, r, "summarize expenses", err)
		return
	}

	h.render(w, r, "index.html", IndexViewModel{
		Page:          Page{Username: identity.Username, Flash: h.popFlash(w, r)},
		Expenses:      summary.Expenses,
		Total:         summary.Total,
		MonthlyTotals: summary.MonthlyTotals,
		Months:        summary.Months,
		Today:         time.Now().Format(models.DateLayout),
	})
}

// AddExpense validates the submitted form and stores a new expense.
// Malformed input is reported with a flash message instead of failing the request.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.setFlash(w, r, FlashDanger, "Invalid form submission")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	in, err := models.ParseExpenseInput(
		r.FormValue("date"),
		r.FormValue("category"),
		r.FormValue("amount"),
		r.FormValue("notes"),
	)
	if err != nil {
		h.setFlash(w, r, FlashDanger, validationMessage(err))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	expense, err := h.expenses.CreateExpense(r.Context(), identity.UserID(), in)
	if err != nil {
		h.serverError(w, r, "create expense", err)
		return
	}

	logging.FromContext(r.Context()).WithFields(logrus.Fields{
		"user_id":    identity.UserID(),
		"expense_id": expense.ID,
	}).Debug("expense created")
	http.Redirect(w, r, "/", http.StatusFound)
}

// DeleteExpense removes one expense if it belongs to the current user.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	err = h.expenses.DeleteExpense(r.Context(), id, identity.UserID())
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, models.ErrForbidden):
		logging.FromContext(r.Context()).WithFields(logrus.Fields{
			"user_id":    identity.UserID(),
			"expense_id": id,
		}).Warn("delete of foreign expense refused")
		h.setFlash(w, r, FlashDanger, "You are not authorized to delete this expense.")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	case err != nil:
		h.serverError(w, r, "delete expense", err)
		return
	}

	h.setFlash(w, r, FlashSuccess, "Expense deleted successfully.")
	http.Redirect(w, r, "/", http.StatusFound)
}

// ResetExpenses deletes every expense of the current user.
func (h *Handlers) ResetExpenses(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	n, err := h.expenses.DeleteAllExpenses(r.Context(), identity.UserID())
	if err != nil {
		h.serverError(w, r, "reset expenses", err)
		return
	}

	logging.FromContext(r.Context()).WithFields(logrus.Fields{
		"user_id": identity.UserID(),
		"deleted": n,
	}).Info("expenses reset")
	h.setFlash(w, r, FlashInfo, "All your expenses have been cleared.")
	http.Redirect(w, r, "/", http.StatusFound)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidDate):
		return "Date must be a valid date in YYYY-MM-DD format."
	case errors.Is(err, models.ErrInvalidAmount):
		return "Amount must be a number."
	case errors.Is(err, models.ErrMissingField):
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return "The " + verr.Field + " field is required."
		}
		return "A required field is missing."
	default:
		return "Invalid expense."
	}
}
