package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/application/listutil"
	"civicreport/internal/application/orchestrators"
	"civicreport/internal/application/projections"
	"civicreport/internal/domain/complaint"
)

// adminReviewPage is the admin dashboard view model.
type adminReviewPage struct {
	projections.AdminReviewResult
	Links []listutil.PageLink
}

// handleAdmin lists complaints for review, optionally filtered by ?status= and paged by ?page=.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	result, err := projections.QueryGetAdminReview(r.Context(),
		projections.GetAdminReviewQuery{Status: status, Page: listutil.ParsePageParams(q)},
		projections.GetAdminReviewDeps{ComplaintStore: s.stores.ComplaintStore, AccountStore: s.stores.AccountStore})
	if err != nil {
		internalError(w, err)
		return
	}
	view := adminReviewPage{AdminReviewResult: result}
	if result.Page.ShowPagination() {
		filter := url.Values{}
		if status != "" {
			filter.Set("status", status)
		}
		view.Links = result.Page.Links("/admin", filter)
	}
	s.render(w, r, http.StatusOK, "admin_dashboard.html", "Admin Dashboard", view)
}

// handleUpdateStatus sets a complaint's status; the owner is emailed by the outbox worker.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	id, ok := pathID(r)
	if !ok {
		s.redirectWithFlash(w, r, "/admin", middleware.FlashDanger, "Complaint not found.")
		return
	}

	result, err := orchestrators.ExecuteUpdateStatus(r.Context(), orchestrators.UpdateStatusInput{
		ComplaintID: id,
		Status:      r.FormValue("status"),
		Actor:       sess,
	}, orchestrators.UpdateStatusDeps{
		ComplaintStore: s.stores.ComplaintStore,
		AccountStore:   s.stores.AccountStore,
		Outbox:         s.outbox,
		Now:            s.now,
	})
	switch {
	case err == nil:
		msg := fmt.Sprintf("Status of complaint #%d set to %s.", result.ComplaintID, result.Status)
		if result.NotificationID != "" {
			msg += " The owner will be notified by email."
		}
		s.redirectWithFlash(w, r, "/admin", middleware.FlashSuccess, msg)
	case errors.Is(err, orchestrators.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, complaint.ErrNotFound):
		s.redirectWithFlash(w, r, "/admin", middleware.FlashDanger, "Complaint not found.")
	default:
		if msg, ok := userMessage(err, complaint.ErrEmptyStatus, complaint.ErrStatusTooLong); ok {
			s.redirectWithFlash(w, r, "/admin", middleware.FlashDanger, msg)
			return
		}
		internalError(w, err)
	}
}

// handlePerf returns request and query timings for the last hour as JSON.
func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	snap := s.perf.Snapshot(s.now().Add(-time.Hour), 10)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		internalError(w, err)
	}
}

// handleHealth reports readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleInfoPage serves one of the markdown-authored pages.
func (s *Server) handleInfoPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := s.pages[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		s.render(w, r, http.StatusOK, "info.html", page.Title, page)
	}
}
