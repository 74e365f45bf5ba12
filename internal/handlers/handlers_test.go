package handlers_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"expensebook/internal/auth"
	"expensebook/internal/handlers"
	"expensebook/internal/models"
	"expensebook/internal/report"
	"expensebook/internal/storage"
	"expensebook/web"
)

// HandlersTestSuite drives the routes over HTTP against an in-memory store.
type HandlersTestSuite struct {
	suite.Suite
	db     *storage.DB
	svc    *auth.Service
	server *httptest.Server
}

func (s *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	s.Require().NoError(err)
	s.db = db

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s.svc = auth.NewService(db, auth.Options{BcryptCost: bcrypt.MinCost, Logger: logger})

	h, err := handlers.NewHandlers(s.svc, db, report.NewEngine(db), web.TemplatesFS, handlers.Options{
		FlashSecret: []byte("test-flash-secret"),
		Pinger:      db,
	})
	s.Require().NoError(err)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	s.server = httptest.NewServer(r)

	_, err = s.svc.Register(context.Background(), "alice", "alice-pw")
	s.Require().NoError(err)
	_, err = s.svc.Register(context.Background(), "bob", "bob-pw")
	s.Require().NoError(err)
}

func (s *HandlersTestSuite) TearDownTest() {
	s.server.Close()
	s.db.Close()
}

// client returns a browser-like client that keeps cookies but does not follow redirects.
func (s *HandlersTestSuite) client() *http.Client {
	jar, err := cookiejar.New(nil)
	s.Require().NoError(err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *HandlersTestSuite) loggedIn(username, password string) *http.Client {
	c := s.client()
	resp := s.post(c, "/login", url.Values{"username": {username}, "password": {password}})
	s.Require().Equal(http.StatusFound, resp.StatusCode)
	s.Require().Equal("/", resp.Header.Get("Location"))
	return c
}

func (s *HandlersTestSuite) post(c *http.Client, path string, form url.Values) *http.Response {
	resp, err := c.PostForm(s.server.URL+path, form)
	s.Require().NoError(err)
	resp.Body.Close()
	return resp
}

func (s *HandlersTestSuite) get(c *http.Client, path string) (*http.Response, string) {
	resp, err := c.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, string(body)
}

func (s *HandlersTestSuite) userID(username string) int64 {
	u, err := s.db.GetUserByUsername(context.Background(), username)
	s.Require().NoError(err)
	return u.ID
}

func (s *HandlersTestSuite) addExpense(username, date, category string, amount float64) *models.Expense {
	in, err := models.ParseExpenseInput(date, category, fmt.Sprint(amount), "")
	s.Require().NoError(err)
	e, err := s.db.CreateExpense(context.Background(), s.userID(username), in)
	s.Require().NoError(err)
	return e
}

func (s *HandlersTestSuite) expensesOf(username string) []models.Expense {
	list, err := s.db.ListExpensesByUser(context.Background(), s.userID(username))
	s.Require().NoError(err)
	return list
}

func (s *HandlersTestSuite) TestLoginFailureFlashes() {
	c := s.client()
	resp := s.post(c, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))

	_, body := s.get(c, "/login")
	s.Contains(body, "Invalid username or password")

	// the flash is shown once
	_, body = s.get(c, "/login")
	s.NotContains(body, "Invalid username or password")
}

func (s *HandlersTestSuite) TestLoginSetsHTTPOnlyCookie() {
	c := s.client()
	resp := s.post(c, "/login", url.Values{"username": {"alice"}, "password": {"alice-pw"}})
	s.Require().Equal(http.StatusFound, resp.StatusCode)

	var session *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == handlers.SessionCookieName {
			session = ck
		}
	}
	s.Require().NotNil(session)
	s.True(session.HttpOnly)
	s.NotEmpty(session.Value)

	resp, body := s.get(c, "/")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "alice")
	s.Contains(body, "No expenses yet.")

	// logged-in users skip the login form
	resp, _ = s.get(c, "/login")
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/", resp.Header.Get("Location"))
}

func (s *HandlersTestSuite) TestIndexShowsOnlyOwnExpensesAndTotals() {
	s.addExpense("alice", "2024-01-05", "Food", 10)
	s.addExpense("alice", "2024-01-20", "Fuel", 5)
	s.addExpense("alice", "2024-02-01", "Food", 3)
	s.addExpense("bob", "2024-01-09", "Books", 99)

	c := s.loggedIn("alice", "alice-pw")
	resp, body := s.get(c, "/")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	s.Equal(3, strings.Count(body, `class="expense-item"`))
	s.NotContains(body, "Books")
	s.Contains(body, "18.00")
	s.Contains(body, "<td>2024-01</td><td>15.00</td>")
	s.Contains(body, "<td>2024-02</td><td>3.00</td>")
}

func (s *HandlersTestSuite) TestAddExpense() {
	c := s.loggedIn("alice", "alice-pw")

	resp := s.post(c, "/add", url.Values{
		"date": {"2024-03-10"}, "category": {"Groceries"}, "amount": {"42.5"}, "notes": {"weekly shop"},
	})
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/", resp.Header.Get("Location"))

	list := s.expensesOf("alice")
	s.Require().Len(list, 1)
	s.Equal("2024-03-10", list[0].SpentOn)
	s.Equal("Groceries", list[0].Category)
	s.Equal(42.5, list[0].Amount)
	s.Equal("weekly shop", list[0].Notes)
	s.Empty(s.expensesOf("bob"))
}

func (s *HandlersTestSuite) TestAddExpenseRejectsInvalidInput() {
	c := s.loggedIn("alice", "alice-pw")

	cases := []struct {
		form url.Values
		msg  string
	}{
		{url.Values{"date": {"yesterday"}, "category": {"Food"}, "amount": {"1"}}, "Date must be a valid date"},
		{url.Values{"date": {"2024-01-01"}, "category": {"Food"}, "amount": {"lots"}}, "Amount must be a number."},
		{url.Values{"date": {"2024-01-01"}, "category": {""}, "amount": {"1"}}, "The category field is required."},
	}
	for _, tc := range cases {
		resp := s.post(c, "/add", tc.form)
		s.Equal(http.StatusFound, resp.StatusCode)
		s.Equal("/", resp.Header.Get("Location"))

		_, body := s.get(c, "/")
		s.Contains(body, tc.msg)
	}
	s.Empty(s.expensesOf("alice"))
}

func (s *HandlersTestSuite) TestDeleteOwnExpense() {
	e := s.addExpense("alice", "2024-01-05", "Food", 10)
	keep := s.addExpense("alice", "2024-01-06", "Fuel", 5)
	c := s.loggedIn("alice", "alice-pw")

	resp := s.post(c, fmt.Sprintf("/delete/%d", e.ID), nil)
	s.Equal(http.StatusFound, resp.StatusCode)

	list := s.expensesOf("alice")
	s.Require().Len(list, 1)
	s.Equal(keep.ID, list[0].ID)

	_, body := s.get(c, "/")
	s.Contains(body, "Expense deleted successfully.")
}

func (s *HandlersTestSuite) TestDeleteForeignExpenseIsRefused() {
	foreign := s.addExpense("bob", "2024-01-09", "Books", 99)
	own := s.addExpense("alice", "2024-01-05", "Food", 10)
	c := s.loggedIn("alice", "alice-pw")

	resp := s.post(c, fmt.Sprintf("/delete/%d", foreign.ID), nil)
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/", resp.Header.Get("Location"))

	s.Len(s.expensesOf("bob"), 1)
	s.Len(s.expensesOf("alice"), 1)
	s.Equal(own.ID, s.expensesOf("alice")[0].ID)

	_, body := s.get(c, "/")
	s.Contains(body, "You are not authorized to delete this expense.")
}

func (s *HandlersTestSuite) TestDeleteMissingExpense() {
	c := s.loggedIn("alice", "alice-pw")

	resp := s.post(c, "/delete/9999", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.post(c, "/delete/abc", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlersTestSuite) TestResetOnlyClearsOwnExpenses() {
	s.addExpense("alice", "2024-01-05", "Food", 10)
	s.addExpense("alice", "2024-01-06", "Fuel", 5)
	s.addExpense("bob", "2024-01-09", "Books", 99)
	c := s.loggedIn("alice", "alice-pw")

	resp := s.post(c, "/reset", nil)
	s.Equal(http.StatusFound, resp.StatusCode)

	s.Empty(s.expensesOf("alice"))
	s.Len(s.expensesOf("bob"), 1)

	_, body := s.get(c, "/")
	s.Contains(body, "All your expenses have been cleared.")
	s.Contains(body, "0.00")

	// resetting an empty list is fine
	resp = s.post(c, "/reset", nil)
	s.Equal(http.StatusFound, resp.StatusCode)
}

func (s *HandlersTestSuite) TestRegister() {
	c := s.client()

	resp := s.post(c, "/register", url.Values{"username": {"carol"}, "password": {"carol-pw"}})
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))

	// registering does not log in
	resp, _ = s.get(c, "/")
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))

	s.loggedIn("carol", "carol-pw")
}

func (s *HandlersTestSuite) TestRegisterDuplicate() {
	c := s.client()

	resp := s.post(c, "/register", url.Values{"username": {"alice"}, "password": {"other"}})
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/register", resp.Header.Get("Location"))

	_, body := s.get(c, "/register")
	s.Contains(body, "That username is already taken.")

	// the original credentials still work
	s.loggedIn("alice", "alice-pw")
}

func (s *HandlersTestSuite) TestRegisterMissingFields() {
	c := s.client()
	resp := s.post(c, "/register", url.Values{"username": {""}, "password": {"pw"}})
	s.Equal("/register", resp.Header.Get("Location"))

	_, body := s.get(c, "/register")
	s.Contains(body, "Username and password are required.")
}

func (s *HandlersTestSuite) TestLogout() {
	c := s.loggedIn("alice", "alice-pw")

	resp, _ := s.get(c, "/logout")
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))

	resp, _ = s.get(c, "/")
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))
}

func (s *HandlersTestSuite) TestStaleSessionCookieRedirects() {
	c := s.client()
	u, err := url.Parse(s.server.URL)
	s.Require().NoError(err)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: handlers.SessionCookieName, Value: "deadbeef", Path: "/"}})

	resp, _ := s.get(c, "/")
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))
}

func (s *HandlersTestSuite) TestTamperedFlashIsIgnored() {
	c := s.client()
	u, err := url.Parse(s.server.URL)
	s.Require().NoError(err)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: "flash", Value: "not.a.jwt", Path: "/"}})

	resp, body := s.get(c, "/login")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotContains(body, `class="flash`)
}

func (s *HandlersTestSuite) TestHealth() {
	resp, body := s.get(s.client(), "/healthz")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

type failingPinger struct{}

func (failingPinger) Ping() error { return fmt.Errorf("connection refused") }

func TestHealthReportsUnavailableStore(t *testing.T) {
	h, err := handlers.NewHandlers(nil, nil, nil, web.TemplatesFS, handlers.Options{Pinger: failingPinger{}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	handler := handlers.SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
}
