package web

import (
	"errors"
	"net/http"
	"strconv"

	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/application/projections"
	"civicreport/internal/domain/outbox"
)

// handleAdminOutbox lists failed and queued notifications.
func (s *Server) handleAdminOutbox(w http.ResponseWriter, r *http.Request) {
	limit := projections.DefaultOutboxListLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}
	result, err := projections.QueryGetOutboxOverview(r.Context(),
		projections.GetOutboxOverviewQuery{Limit: limit},
		projections.GetOutboxOverviewDeps{OutboxStore: s.stores.OutboxStore})
	if err != nil {
		internalError(w, err)
		return
	}
	s.render(w, r, http.StatusOK, "admin_outbox.html", "Notification Outbox", result)
}

// handleOutboxRetry requeues one entry for the worker, ignoring backoff.
func (s *Server) handleOutboxRetry(w http.ResponseWriter, r *http.Request) {
	_, err := s.outbox.RetryEntry(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashSuccess, "Notification queued for retry.")
	case errors.Is(err, outbox.ErrNotFound):
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashDanger, "Notification not found.")
	case errors.Is(err, outbox.ErrTerminal):
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashInfo, "Notification can no longer be retried.")
	case errors.Is(err, outbox.ErrInFlight):
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashInfo, "Notification is being delivered right now.")
	default:
		internalError(w, err)
	}
}

// handleOutboxAbandon stops further delivery attempts for one entry.
func (s *Server) handleOutboxAbandon(w http.ResponseWriter, r *http.Request) {
	err := s.outbox.AbandonEntry(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashInfo, "Notification abandoned.")
	case errors.Is(err, outbox.ErrNotFound):
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashDanger, "Notification not found.")
	case errors.Is(err, outbox.ErrTerminal):
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashInfo, "Notification was already delivered.")
	case errors.Is(err, outbox.ErrInFlight):
		s.redirectWithFlash(w, r, "/admin/outbox", middleware.FlashInfo, "Notification is being delivered right now.")
	default:
		internalError(w, err)
	}
}
