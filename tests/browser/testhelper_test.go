//go:build browser

package browser_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	_ "modernc.org/sqlite"

	"civicreport/internal/adapters/email"
	web "civicreport/internal/adapters/http"
	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/adapters/storage"
	accountStore "civicreport/internal/adapters/storage/account"
	complaintStore "civicreport/internal/adapters/storage/complaint"
	outboxStore "civicreport/internal/adapters/storage/outbox"
	"civicreport/internal/adapters/uploads"
	"civicreport/internal/application/orchestrators"
	domainOutbox "civicreport/internal/domain/outbox"
)

const (
	adminUsername = "admin"
	adminPassword = "TestPass123!"
)

// testApp holds the running test server and Playwright handles.
type testApp struct {
	BaseURL   string
	DB        *sql.DB
	Server    *http.Server
	PW        *playwright.Playwright
	Browser   playwright.Browser
	Stores    web.Stores
	Processor *orchestrators.OutboxProcessor
}

// newTestApp creates a fully wired app with a temp SQLite DB and starts an HTTP server.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	tmpDir := t.TempDir()
	db, err := storage.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.MigrateDB(db); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	stores := web.Stores{
		AccountStore:   accountStore.NewSQLiteStore(db),
		ComplaintStore: complaintStore.NewSQLiteStore(db),
		OutboxStore:    outboxStore.NewSQLiteStore(db),
	}

	ctx := context.Background()
	if _, err := orchestrators.ExecuteSeedAdmin(ctx, orchestrators.SeedAdminInput{
		Username: adminUsername,
		Email:    "admin@test.com",
		Password: adminPassword,
	}, orchestrators.SeedAdminDeps{AccountStore: stores.AccountStore}); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	images, err := uploads.NewDiskStore(filepath.Join(tmpDir, "uploads"), 5<<20)
	if err != nil {
		t.Fatalf("failed to create upload store: %v", err)
	}

	processor := orchestrators.NewOutboxProcessor(stores.OutboxStore, map[string]orchestrators.ActionExecutor{
		domainOutbox.ActionTypeStatusNotification: orchestrators.StatusNotificationExecutor{Sender: email.NewNoopSender()},
	}, orchestrators.OutboxConfig{})

	sessions := middleware.NewMemorySessionStore(time.Hour)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	baseURL := "http://" + listener.Addr().String()

	// Change to project root so the relative static dir resolves
	projectRoot := findProjectRoot(t)
	origDir, _ := os.Getwd()
	if err := os.Chdir(projectRoot); err != nil {
		t.Fatalf("failed to chdir to project root: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })

	server, err := web.NewServer(web.Config{
		CSRFKey:            bytes.Repeat([]byte{9}, 32),
		TrustedOrigins:     []string{listener.Addr().String()},
		StaticDir:          "static",
		RateLimitPerSecond: 1000,
	}, web.Deps{
		Stores:   stores,
		Sessions: sessions,
		Images:   images,
		Outbox:   processor,
		Health:   db.PingContext,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	srv := &http.Server{Handler: server.Handler()}
	go func() {
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("test server error: %v", err)
		}
	}()

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}

	app := &testApp{
		BaseURL:   baseURL,
		DB:        db,
		Server:    srv,
		PW:        pw,
		Browser:   browser,
		Stores:    stores,
		Processor: processor,
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		server.Close()
		sessions.Stop()
		db.Close()
	})

	return app
}

// newPage creates a new browser page (tab) with its own cookies.
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	bctx, err := a.Browser.NewContext()
	if err != nil {
		t.Fatalf("failed to create browser context: %v", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { bctx.Close() })
	return page
}

// fill sets each named input on the current page.
func fill(t *testing.T, page playwright.Page, fields map[string]string) {
	t.Helper()
	for name, value := range fields {
		if err := page.Locator(fmt.Sprintf("[name=%q]", name)).Fill(value); err != nil {
			t.Fatalf("failed to fill %s: %v", name, err)
		}
	}
}

// submit clicks the submit button of the form containing selector's match.
func submit(t *testing.T, page playwright.Page, formSelector string) {
	t.Helper()
	if err := page.Locator(formSelector + " button[type=submit]").First().Click(); err != nil {
		t.Fatalf("failed to submit %s: %v", formSelector, err)
	}
}

// waitFor waits until the page is at path.
func (a *testApp) waitFor(t *testing.T, page playwright.Page, path string) {
	t.Helper()
	if err := page.WaitForURL(a.BaseURL+path, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("did not reach %s (at %s): %v", path, page.URL(), err)
	}
}

// login signs in through the form and waits for the dashboard.
func (a *testApp) login(t *testing.T, page playwright.Page, username, password string) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	fill(t, page, map[string]string{"username": username, "password": password})
	submit(t, page, "form[action='/login']")
	a.waitFor(t, page, "/dashboard")
}

// flashText returns the text of the first flash message.
func flashText(t *testing.T, page playwright.Page) string {
	t.Helper()
	text, err := page.Locator(".flash").First().InnerText()
	if err != nil {
		t.Fatalf("no flash area: %v", err)
	}
	return text
}

// findProjectRoot walks up from the working directory to find the project root (contains go.mod).
func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find project root (go.mod) from working directory")
		}
		dir = parent
	}
}
