package web

import (
	"bytes"
	"context"
	"database/sql"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"civicreport/internal/adapters/email"
	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/adapters/storage"
	accountStore "civicreport/internal/adapters/storage/account"
	complaintStore "civicreport/internal/adapters/storage/complaint"
	outboxStore "civicreport/internal/adapters/storage/outbox"
	"civicreport/internal/adapters/uploads"
	"civicreport/internal/application/orchestrators"
	"civicreport/internal/domain/account"
	"civicreport/internal/domain/complaint"
	domainOutbox "civicreport/internal/domain/outbox"
)

func init() {
	account.HashCost = bcrypt.MinCost
}

var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

// pngBytes is enough for content sniffing to classify the data as PNG.
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// recordingSender captures outgoing mail.
type recordingSender struct {
	mu   sync.Mutex
	sent []email.SendRequest
	err  error
}

// Send records req and returns a fixed message id, or err when set.
func (s *recordingSender) Send(_ context.Context, req email.SendRequest) (email.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return email.SendResult{}, s.err
	}
	s.sent = append(s.sent, req)
	return email.SendResult{MessageID: "msg-test"}, nil
}

func (s *recordingSender) messages() []email.SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.SendRequest(nil), s.sent...)
}

// harness wires a Server over an in-memory database and a temp upload dir.
type harness struct {
	srv        *Server
	mux        http.Handler
	db         *sql.DB
	accounts   *accountStore.SQLiteStore
	complaints *complaintStore.SQLiteStore
	outbox     *outboxStore.SQLiteStore
	images     *uploads.DiskStore
	sessions   *middleware.MemorySessionStore
	processor  *orchestrators.OutboxProcessor
	sender     *recordingSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	images, err := uploads.NewDiskStore(filepath.Join(t.TempDir(), "uploads"), 1<<20)
	if err != nil {
		t.Fatalf("upload store: %v", err)
	}

	h := &harness{
		db:         db,
		accounts:   accountStore.NewSQLiteStore(db),
		complaints: complaintStore.NewSQLiteStore(db),
		outbox:     outboxStore.NewSQLiteStore(db),
		images:     images,
		sessions:   middleware.NewMemorySessionStore(time.Hour),
		sender:     &recordingSender{},
	}
	t.Cleanup(h.sessions.Stop)
	h.processor = orchestrators.NewOutboxProcessor(h.outbox, map[string]orchestrators.ActionExecutor{
		domainOutbox.ActionTypeStatusNotification: orchestrators.StatusNotificationExecutor{Sender: h.sender, From: "noreply@example.com"},
	}, orchestrators.OutboxConfig{})

	srv, err := NewServer(Config{
		CSRFKey:            bytes.Repeat([]byte{7}, 32),
		RateLimitPerSecond: 1000,
	}, Deps{
		Stores: Stores{
			AccountStore:   h.accounts,
			ComplaintStore: h.complaints,
			OutboxStore:    h.outbox,
		},
		Sessions: h.sessions,
		Images:   images,
		Outbox:   h.processor,
		Health:   db.PingContext,
		Now:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.Close)
	h.srv = srv
	h.mux = srv.routes()
	return h
}

// serve runs req through the routes with sess (if any) already authenticated.
func (h *harness) serve(req *http.Request, sess *middleware.Session) *httptest.ResponseRecorder {
	if sess != nil {
		req = req.WithContext(middleware.ContextWithSession(req.Context(), *sess))
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

// user creates an account and returns a session for it.
func (h *harness) user(t *testing.T, username, role string) *middleware.Session {
	t.Helper()
	a := account.Account{Username: username, Email: username + "@x.com", Role: role, CreatedAt: testNow}
	if err := a.SetPassword("pw-" + username); err != nil {
		t.Fatal(err)
	}
	created, err := h.accounts.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return &middleware.Session{AccountID: created.ID, Username: created.Username, Role: created.Role}
}

// complaint stores a complaint directly, optionally with an image.
func (h *harness) complaint(t *testing.T, owner *middleware.Session, location string, withImage bool) complaint.Complaint {
	t.Helper()
	key := ""
	if withImage {
		var err error
		if key, err = h.images.Save(context.Background(), bytes.NewReader(pngBytes)); err != nil {
			t.Fatal(err)
		}
	}
	c, err := h.complaints.Create(context.Background(), complaint.New(owner.AccountID, location, "pothole", key, testNow))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// flashes decodes the flash cookie set on rec.
func (h *harness) flashes(t *testing.T, rec *httptest.ResponseRecorder) []middleware.Flash {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return h.srv.flash.Pop(httptest.NewRecorder(), req)
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body %q)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

func assertFlash(t *testing.T, h *harness, rec *httptest.ResponseRecorder, category, message string) {
	t.Helper()
	got := h.flashes(t, rec)
	if len(got) != 1 || got[0].Category != category || got[0].Message != message {
		t.Fatalf("flashes = %+v, want [%s %q]", got, category, message)
	}
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// multipartBody builds a multipart/form-data body; file is omitted when filename is empty.
func multipartBody(t *testing.T, fields map[string]string, filename string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(file)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func postMultipart(t *testing.T, path string, fields map[string]string, filename string, file []byte) *http.Request {
	body, ct := multipartBody(t, fields, filename, file)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return req
}
