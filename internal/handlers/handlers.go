package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expensebook/internal/logging"
	"expensebook/internal/models"
	"expensebook/internal/report"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// IdentityContextKey is the context key for the authenticated identity.
	IdentityContextKey contextKey = "identity"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

// Authenticator is the auth service as seen by the handlers.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	StartSession(ctx context.Context, user *models.User) (*models.Session, error)
	EndSession(ctx context.Context, token string) error
	CurrentIdentity(ctx context.Context, token string) (*models.SessionIdentity, error)
	SessionTTL() time.Duration
}

// ExpenseStore holds the owner-scoped expense mutations.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, userID int64, in models.ExpenseInput) (*models.Expense, error)
	DeleteExpense(ctx context.Context, id, requestingUserID int64) error
	DeleteAllExpenses(ctx context.Context, userID int64) (int64, error)
}

// Summarizer produces the listing view data for a user.
type Summarizer interface {
	Summarize(ctx context.Context, userID int64) (report.Summary, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping() error
}

// Options configures Handlers.
type Options struct {
	SecureCookie bool
	// FlashSecret signs flash cookies. A random key is used when empty,
	// which invalidates pending flashes on restart.
	FlashSecret []byte
	Pinger      Pinger
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	auth         Authenticator
	expenses     ExpenseStore
	reports      Summarizer
	templates    fs.FS
	flashKey     []byte
	secureCookie bool
	pinger       Pinger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth Authenticator, expenses ExpenseStore, reports Summarizer, templates fs.FS, opts Options) (*Handlers, error) {
	key := opts.FlashSecret
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate flash key: %w", err)
		}
	}
	return &Handlers{
		auth:         auth,
		expenses:     expenses,
		reports:      reports,
		templates:    templates,
		flashKey:     key,
		secureCookie: opts.SecureCookie,
		pinger:       opts.Pinger,
	}, nil
}

// IdentityFromContext retrieves the authenticated identity from request context.
func IdentityFromContext(ctx context.Context) (*models.SessionIdentity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*models.SessionIdentity)
	return identity, ok && identity.IsAuthenticated()
}

// AuthMiddleware wraps handlers to require authentication. Requests without
// a valid session are redirected to the login page.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		identity, err := h.auth.CurrentIdentity(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, models.ErrAuthenticationRequired) {
				h.clearSessionCookie(w)
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			h.serverError(w, r, "resolve session", err)
			return
		}

		if identity.Renewed {
			h.setSessionCookie(w, identity.Token)
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RegisterRoutes wires every page and action onto r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/", h.Index)
		r.Post("/add", h.AddExpense)
		r.Post("/delete/{expenseID}", h.DeleteExpense)
		r.Post("/reset", h.ResetExpenses)
		r.Get("/logout", h.Logout)
	})
}

// SecurityHeaders sets conservative browser security headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Content-Security-Policy", "default-src 'self'; style-src 'self'; form-action 'self'; frame-ancestors 'none'; base-uri 'self'")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Health reports liveness and, when a Pinger is configured, store reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(); err != nil {
			logging.FromContext(r.Context()).WithError(err).Error("health check failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Page is the data every template receives.
type Page struct {
	Username string
	Flash    *Flash
}

var templateFuncs = template.FuncMap{
	"amount": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFS(h.templates, "templates/base.html", "templates/"+viewName)
	if err != nil {
		h.serverError(w, r, "parse templates", err)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField("view", viewName).Error("template execution")
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.FromContext(r.Context()).WithError(err).Error(op)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
