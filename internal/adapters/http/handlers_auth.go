package web

import (
	"errors"
	"log/slog"
	"net/http"

	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/application/orchestrators"
	"civicreport/internal/domain/account"
)

// registrationErrors are shown to the user verbatim.
var registrationErrors = []error{
	account.ErrEmptyUsername,
	account.ErrUsernameLength,
	account.ErrUsernameChars,
	account.ErrEmptyEmail,
	account.ErrEmailTooLong,
	account.ErrInvalidEmail,
	account.ErrEmptyPassword,
}

// handleHome renders the login page, as the site's front door.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.handleLoginForm(w, r)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", "Login", nil)
}

// handleLogin authenticates and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	result, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
	}, orchestrators.LoginDeps{AccountStore: s.stores.AccountStore})
	if errors.Is(err, orchestrators.ErrInvalidCredentials) {
		s.redirectWithFlash(w, r, "/login", middleware.FlashDanger, "Invalid username or password.")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}

	// A new token on every login; any token the browser already had is dropped.
	if old := middleware.SessionToken(r); old != "" {
		if err := s.sessions.Delete(r.Context(), old); err != nil {
			slog.Warn("session_delete_failed", "error", err)
		}
	}
	token, err := s.sessions.Create(r.Context(), middleware.Session{
		AccountID: result.AccountID,
		Username:  result.Username,
		Role:      result.Role,
	})
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token, s.cfg.SessionTTL, s.cfg.SecureCookies)
	s.redirectWithFlash(w, r, "/dashboard", middleware.FlashSuccess, "Login successful!")
}

// handleLogout clears the server-side session and the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := s.sessions.Delete(r.Context(), token); err != nil {
			slog.Warn("session_delete_failed", "error", err)
		}
	}
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		slog.Info("auth_event", "event", "logout", "account_id", sess.AccountID)
	}
	middleware.ClearSessionCookie(w, s.cfg.SecureCookies)
	s.redirectWithFlash(w, r, "/login", middleware.FlashInfo, "You have been logged out.")
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "register.html", "Register", nil)
}

// handleRegister creates a citizen account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	_, err := orchestrators.ExecuteRegister(r.Context(), orchestrators.RegisterInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}, orchestrators.RegisterDeps{AccountStore: s.stores.AccountStore, Now: s.now})

	switch {
	case err == nil:
		s.redirectWithFlash(w, r, "/login", middleware.FlashSuccess, "Registration successful! Please log in.")
	case errors.Is(err, account.ErrDuplicateUsername):
		s.redirectWithFlash(w, r, "/register", middleware.FlashDanger, "Username already exists.")
	case errors.Is(err, account.ErrDuplicateEmail):
		s.redirectWithFlash(w, r, "/register", middleware.FlashDanger, "Email already registered.")
	default:
		if msg, ok := userMessage(err, registrationErrors...); ok {
			s.redirectWithFlash(w, r, "/register", middleware.FlashDanger, msg)
			return
		}
		internalError(w, err)
	}
}
