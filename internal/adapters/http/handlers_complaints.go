package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/adapters/uploads"
	"civicreport/internal/application/orchestrators"
	"civicreport/internal/application/projections"
	"civicreport/internal/domain/complaint"
)

// complaintErrors are shown to the user verbatim.
var complaintErrors = []error{
	complaint.ErrEmptyLocation,
	complaint.ErrLocationTooLong,
	complaint.ErrEmptyDescription,
	complaint.ErrDescriptionLength,
}

// formOverhead is the allowance for non-file fields in a multipart body.
const formOverhead = 1 << 20

// maxBodyBytes is the largest request body any route accepts: one image plus form fields.
func (s *Server) maxBodyBytes() int64 {
	return s.images.MaxBytes() + formOverhead
}

// complaintForm is what the submit and edit templates display.
type complaintForm struct {
	Complaint complaint.Complaint
	MaxMB     int64
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	result, err := projections.QueryGetDashboard(r.Context(), projections.GetDashboardQuery{AccountID: sess.AccountID},
		projections.GetDashboardDeps{ComplaintStore: s.stores.ComplaintStore})
	if err != nil {
		internalError(w, err)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard.html", "Dashboard", result)
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "submit_complaint.html", "Submit Complaint", complaintForm{MaxMB: s.maxImageMB()})
}

// handleSubmitComplaint stores a new complaint with an optional image.
func (s *Server) handleSubmitComplaint(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	image, closeImage, err := s.parseComplaintForm(w, r)
	if err != nil {
		s.redirectWithFlash(w, r, "/submit_complaint", middleware.FlashDanger, uploadMessage(err))
		return
	}
	defer closeImage()

	_, err = orchestrators.ExecuteSubmitComplaint(r.Context(), orchestrators.SubmitComplaintInput{
		AccountID:   sess.AccountID,
		Location:    r.FormValue("location"),
		Description: r.FormValue("description"),
		Image:       image,
	}, orchestrators.SubmitComplaintDeps{
		ComplaintStore: s.stores.ComplaintStore,
		Images:         s.images,
		Now:            s.now,
	})
	if err != nil {
		if msg, ok := complaintMessage(err); ok {
			s.redirectWithFlash(w, r, "/submit_complaint", middleware.FlashDanger, msg)
			return
		}
		internalError(w, err)
		return
	}
	s.redirectWithFlash(w, r, "/dashboard", middleware.FlashSuccess, "Complaint submitted successfully.")
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.redirectWithFlash(w, r, "/dashboard", middleware.FlashDanger, "Complaint not found or unauthorized.")
		return
	}
	c, err := orchestrators.LoadOwnedComplaint(r.Context(), s.stores.ComplaintStore, id, sess.AccountID)
	if isMissingOrForeign(err) {
		s.redirectWithFlash(w, r, "/dashboard", middleware.FlashDanger, "Complaint not found or unauthorized.")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	s.render(w, r, http.StatusOK, "edit_complaint.html", "Edit Complaint", complaintForm{Complaint: c, MaxMB: s.maxImageMB()})
}

// handleEditComplaint updates the owner's complaint; the image is replaced only when a new one is sent.
func (s *Server) handleEditComplaint(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.redirectWithFlash(w, r, "/dashboard", middleware.FlashDanger, "Complaint not found or unauthorized.")
		return
	}
	back := fmt.Sprintf("/edit_complaint/%d", id)

	image, closeImage, err := s.parseComplaintForm(w, r)
	if err != nil {
		s.redirectWithFlash(w, r, back, middleware.FlashDanger, uploadMessage(err))
		return
	}
	defer closeImage()

	_, err = orchestrators.ExecuteEditComplaint(r.Context(), orchestrators.EditComplaintInput{
		ComplaintID: id,
		AccountID:   sess.AccountID,
		Location:    r.FormValue("location"),
		Description: r.FormValue("description"),
		Image:       image,
	}, orchestrators.EditComplaintDeps{
		ComplaintStore: s.stores.ComplaintStore,
		Images:         s.images,
		Now:            s.now,
	})
	switch {
	case err == nil:
		s.redirectWithFlash(w, r, "/dashboard", middleware.FlashSuccess, "Complaint updated successfully.")
	case isMissingOrForeign(err):
		s.redirectWithFlash(w, r, "/dashboard", middleware.FlashDanger, "Complaint not found or unauthorized.")
	default:
		if msg, ok := complaintMessage(err); ok {
			s.redirectWithFlash(w, r, back, middleware.FlashDanger, msg)
			return
		}
		internalError(w, err)
	}
}

// handleDeleteComplaint removes a complaint owned by the caller, or any complaint for reviewers.
func (s *Server) handleDeleteComplaint(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	next := returnPath(r.FormValue("next"))

	id, ok := pathID(r)
	if !ok {
		s.redirectWithFlash(w, r, next, middleware.FlashDanger, "Complaint not found.")
		return
	}
	err := orchestrators.ExecuteDeleteComplaint(r.Context(), orchestrators.DeleteComplaintInput{
		ComplaintID: id,
		AccountID:   sess.AccountID,
		Actor:       sess,
	}, orchestrators.DeleteComplaintDeps{
		ComplaintStore: s.stores.ComplaintStore,
		Images:         s.images,
	})
	switch {
	case err == nil:
		s.redirectWithFlash(w, r, next, middleware.FlashSuccess, "Complaint deleted successfully.")
	case errors.Is(err, complaint.ErrNotFound):
		s.redirectWithFlash(w, r, next, middleware.FlashDanger, "Complaint not found.")
	default:
		internalError(w, err)
	}
}

// handleUpload serves a stored complaint image.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, contentType, err := s.images.Open(r.PathValue("key"))
	if errors.Is(err, uploads.ErrNotFound) || errors.Is(err, uploads.ErrInvalidKey) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// parseComplaintForm parses the multipart body and returns the attached image, if any.
// A file part with no name or no bytes counts as no image.
func (s *Server) parseComplaintForm(w http.ResponseWriter, r *http.Request) (io.Reader, func(), error) {
	noop := func() {}
	limit := s.maxBodyBytes()
	if r.ContentLength > limit {
		return nil, noop, uploads.ErrTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, noop, uploads.ErrTooLarge
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, err
		}
		// Plain urlencoded forms carry no image.
		if err := r.ParseForm(); err != nil {
			return nil, noop, err
		}
		return nil, noop, nil
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}
	if !hasContent(header) {
		file.Close()
		return nil, noop, nil
	}
	return file, func() { file.Close() }, nil
}

func hasContent(h *multipart.FileHeader) bool {
	return h.Filename != "" && h.Size > 0
}

func (s *Server) maxImageMB() int64 {
	return s.images.MaxBytes() >> 20
}

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		return "Image is too large."
	case errors.Is(err, uploads.ErrUnsupportedType):
		return "Only JPEG, PNG, GIF or WebP images are accepted."
	default:
		return "Invalid form submission."
	}
}

// complaintMessage maps validation and upload errors to a flash message.
func complaintMessage(err error) (string, bool) {
	if errors.Is(err, uploads.ErrTooLarge) || errors.Is(err, uploads.ErrUnsupportedType) || errors.Is(err, uploads.ErrEmpty) {
		return uploadMessage(err), true
	}
	return userMessage(err, complaintErrors...)
}

func isMissingOrForeign(err error) bool {
	return errors.Is(err, complaint.ErrNotFound) || errors.Is(err, orchestrators.ErrNotOwner)
}

// pathID parses the {id} wildcard.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// returnPath limits post-action redirects to known pages.
func returnPath(next string) string {
	if next == "/admin" {
		return "/admin"
	}
	return "/dashboard"
}
