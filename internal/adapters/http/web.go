package web

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"time"

	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/adapters/http/perf"
	accountStore "civicreport/internal/adapters/storage/account"
	complaintStore "civicreport/internal/adapters/storage/complaint"
	outboxStore "civicreport/internal/adapters/storage/outbox"
	"civicreport/internal/application/orchestrators"
	domainOutbox "civicreport/internal/domain/outbox"
)

// Stores holds all storage dependencies.
type Stores struct {
	AccountStore   accountStore.Store
	ComplaintStore complaintStore.Store
	OutboxStore    outboxStore.Store
}

// ImageStore stores and serves complaint images.
type ImageStore interface {
	orchestrators.ImageStore
	Open(key string) (*os.File, string, error)
	MaxBytes() int64
}

// OutboxControl is the subset of the outbox processor the admin pages drive.
type OutboxControl interface {
	Wake()
	RetryEntry(ctx context.Context, entryID string) (domainOutbox.Entry, error)
	AbandonEntry(ctx context.Context, entryID string) error
}

// Config holds HTTP-level settings.
type Config struct {
	CSRFKey            []byte // 32 bytes; also derives the flash signing key
	SecureCookies      bool
	TrustedOrigins     []string
	SessionTTL         time.Duration
	StaticDir          string // served under /static/ when non-empty
	RateLimitPerSecond int
	SlowRequestMs      int
}

// Deps are the collaborators built in cmd/server.
type Deps struct {
	Stores   Stores
	Sessions middleware.SessionStore
	Images   ImageStore
	Outbox   OutboxControl
	Perf     *perf.Collector
	Health   func(ctx context.Context) error // optional readiness check
	Now      func() time.Time
}

// Server serves the civic report web application.
type Server struct {
	cfg       Config
	stores    Stores
	sessions  middleware.SessionStore
	images    ImageStore
	outbox    OutboxControl
	perf      *perf.Collector
	health    func(ctx context.Context) error
	now       func() time.Time
	flash     *middleware.Flasher
	limiter   *middleware.RateLimiter
	templates map[string]*template.Template
	pages     map[string]infoPage
}

// NewServer validates configuration and parses templates.
// PRE: len(cfg.CSRFKey) == 32; Stores, Sessions, Images and Outbox are non-nil
// POST: Returned server must be closed to stop the rate limiter sweep
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if len(cfg.CSRFKey) != 32 {
		return nil, errors.New("csrf key must be 32 bytes")
	}
	if deps.Stores.AccountStore == nil || deps.Stores.ComplaintStore == nil || deps.Stores.OutboxStore == nil {
		return nil, errors.New("all stores are required")
	}
	if deps.Sessions == nil || deps.Images == nil || deps.Outbox == nil {
		return nil, errors.New("sessions, images and outbox are required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = middleware.DefaultSessionTTL
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 10
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	pages, err := loadInfoPages()
	if err != nil {
		return nil, err
	}

	collector := deps.Perf
	if collector == nil {
		collector = perf.NewCollector(perf.DefaultRingSize)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	flashKey := sha256.Sum256(append([]byte("civic-flash:"), cfg.CSRFKey...))
	return &Server{
		cfg:       cfg,
		stores:    deps.Stores,
		sessions:  deps.Sessions,
		images:    deps.Images,
		outbox:    deps.Outbox,
		perf:      collector,
		health:    deps.Health,
		now:       now,
		flash:     middleware.NewFlasher(flashKey[:], cfg.SecureCookies),
		limiter:   middleware.NewRateLimiter(cfg.RateLimitPerSecond, time.Second),
		templates: templates,
		pages:     pages,
	}, nil
}

// Handler returns the routes wrapped in the global middleware stack.
// Order, outermost first: Timing -> RateLimit -> SecurityHeaders -> CSRF -> Auth -> mux
func (s *Server) Handler() http.Handler {
	h := middleware.Chain(s.routes(),
		middleware.Auth(s.sessions),
		middleware.CSRF(s.cfg.CSRFKey, s.cfg.SecureCookies, s.cfg.TrustedOrigins),
		middleware.LimitBody(s.maxBodyBytes()),
		middleware.SecurityHeaders,
		middleware.RateLimit(s.limiter),
		middleware.Timing(s.perf, s.cfg.SlowRequestMs),
	)
	if !s.cfg.SecureCookies {
		h = middleware.PlaintextHTTP(h)
	}
	return h
}

// Close releases background resources.
func (s *Server) Close() {
	s.limiter.Stop()
}

// LoadCSRFKey decodes a hex key, or generates a random one outside production.
// POST: Returns 32 bytes or an error
func LoadCSRFKey(keyHex string, production bool) ([]byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, errors.New("CIVIC_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		return key, nil
	}
	if production {
		return nil, errors.New("CIVIC_CSRF_KEY is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate csrf key: %w", err)
	}
	slog.Warn("csrf_key_random", "detail", "sessions and flash cookies won't survive restart; set CIVIC_CSRF_KEY")
	return key, nil
}
