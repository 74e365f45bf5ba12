package handlers

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"expensebook/internal/logging"
)

// Flash categories.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashDanger  = "danger"
)

const (
	flashCookieName = "flash"
	flashTTL        = 5 * time.Minute
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

type flashClaims struct {
	Category string `json:"cat"`
	Message  string `json:"msg"`
	jwt.RegisteredClaims
}

// setFlash queues a message for the next page render in a signed cookie.
func (h *Handlers) setFlash(w http.ResponseWriter, r *http.Request, category, message string) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, flashClaims{
		Category: category,
		Message:  message,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(flashTTL)),
		},
	})
	signed, err := token.SignedString(h.flashKey)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("sign flash")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(flashTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash, if any, and clears it. Cookies that
// fail verification are dropped silently.
func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	var claims flashClaims
	_, err = jwt.ParseWithClaims(cookie.Value, &claims, func(*jwt.Token) (any, error) {
		return h.flashKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil
	}
	return &Flash{Category: claims.Category, Message: claims.Message}
}
