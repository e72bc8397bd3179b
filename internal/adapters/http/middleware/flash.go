package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
)

const flashCookieName = "civic_flash"

// Flash categories understood by the templates.
const (
	FlashSuccess = "success"
	FlashDanger  = "danger"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

// Flasher stores flash messages in a signed, short-lived cookie.
type Flasher struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewFlasher creates a flasher signing cookies with hashKey.
// PRE: len(hashKey) >= 32
func NewFlasher(hashKey []byte, secure bool) *Flasher {
	codec := securecookie.New(hashKey, nil)
	codec.MaxAge(300)
	return &Flasher{codec: codec, secure: secure}
}

// Set replaces any pending messages with the given ones.
func (f *Flasher) Set(w http.ResponseWriter, flashes ...Flash) {
	encoded, err := f.codec.Encode(flashCookieName, flashes)
	if err != nil {
		slog.Error("flash_encode_failed", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
}

// Pop returns pending messages and clears the cookie. Tampered cookies yield nothing.
func (f *Flasher) Pop(w http.ResponseWriter, r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	var flashes []Flash
	if err := f.codec.Decode(flashCookieName, cookie.Value, &flashes); err != nil {
		slog.Debug("flash_decode_failed", "error", err)
		return nil
	}
	return flashes
}
