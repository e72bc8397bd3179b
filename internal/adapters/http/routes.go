package web

import (
	"net/http"

	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/domain/account"
)

// routes registers every endpoint. Global middleware is applied by Handler.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	auth := func(h http.HandlerFunc) http.Handler { return middleware.RequireAuth(h) }
	can := func(c account.Capability, h http.HandlerFunc) http.Handler {
		return middleware.RequireCapability(c)(h)
	}

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /register", s.handleRegisterForm)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /dashboard", auth(s.handleDashboard))
	mux.Handle("GET /submit_complaint", auth(s.handleSubmitForm))
	mux.Handle("POST /submit_complaint", auth(s.handleSubmitComplaint))
	mux.Handle("GET /edit_complaint/{id}", auth(s.handleEditForm))
	mux.Handle("POST /edit_complaint/{id}", auth(s.handleEditComplaint))
	mux.Handle("POST /delete_complaint/{id}", auth(s.handleDeleteComplaint))
	mux.Handle("GET /uploads/{key}", auth(s.handleUpload))

	mux.Handle("GET /admin", can(account.CapReviewComplaints, s.handleAdmin))
	mux.Handle("POST /update_status/{id}", can(account.CapReviewComplaints, s.handleUpdateStatus))
	mux.Handle("GET /admin/outbox", can(account.CapManageOutbox, s.handleAdminOutbox))
	mux.Handle("POST /admin/outbox/{id}/retry", can(account.CapManageOutbox, s.handleOutboxRetry))
	mux.Handle("POST /admin/outbox/{id}/abandon", can(account.CapManageOutbox, s.handleOutboxAbandon))
	mux.Handle("GET /admin/perf", can(account.CapViewPerf, s.handlePerf))

	mux.HandleFunc("GET /contact", s.handleInfoPage("contact"))
	mux.HandleFunc("GET /team", s.handleInfoPage("team"))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.cfg.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
	return mux
}
