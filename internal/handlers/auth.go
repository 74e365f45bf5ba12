package handlers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"expensebook/internal/logging"
	"expensebook/internal/models"
)

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, go straight to the expenses
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.auth.CurrentIdentity(r.Context(), cookie.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}
	h.render(w, r, "login.html", Page{Flash: h.popFlash(w, r)})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.setFlash(w, r, FlashDanger, "Invalid form submission")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	user, err := h.auth.Authenticate(r.Context(), r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.setFlash(w, r, FlashDanger, "Invalid username or password")
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		h.serverError(w, r, "authenticate", err)
		return
	}

	sess, err := h.auth.StartSession(r.Context(), user)
	if err != nil {
		h.serverError(w, r, "start session", err)
		return
	}

	h.setSessionCookie(w, sess.Token)
	logging.FromContext(r.Context()).WithField("user_id", user.ID).Info("user logged in")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout ends the current session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		if err := h.auth.EndSession(r.Context(), identity.Token); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("end session")
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", Page{Flash: h.popFlash(w, r)})
}

// Register creates an account and sends the user to the login page.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.setFlash(w, r, FlashDanger, "Invalid form submission")
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}

	user, err := h.auth.Register(r.Context(), r.FormValue("username"), r.FormValue("password"))
	switch {
	case errors.Is(err, models.ErrDuplicateUsername):
		h.setFlash(w, r, FlashDanger, "That username is already taken.")
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	case errors.Is(err, models.ErrMissingField):
		h.setFlash(w, r, FlashDanger, "Username and password are required.")
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	case err != nil:
		h.serverError(w, r, "register", err)
		return
	}

	logging.FromContext(r.Context()).WithFields(logrus.Fields{"user_id": user.ID}).Info("account created")
	h.setFlash(w, r, FlashSuccess, "Account created. Please log in.")
	http.Redirect(w, r, "/login", http.StatusFound)
}
