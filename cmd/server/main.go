package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	emailPkg "civicreport/internal/adapters/email"
	web "civicreport/internal/adapters/http"
	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/adapters/http/perf"
	"civicreport/internal/adapters/storage"
	accountStore "civicreport/internal/adapters/storage/account"
	complaintStore "civicreport/internal/adapters/storage/complaint"
	outboxStorePkg "civicreport/internal/adapters/storage/outbox"
	"civicreport/internal/adapters/uploads"
	"civicreport/internal/application/orchestrators"
	domainOutbox "civicreport/internal/domain/outbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// devAdminPassword is only used outside production when CIVIC_ADMIN_PASSWORD is unset.
const devAdminPassword = "change-me-now"

func main() {
	// A missing .env is normal in production; real env vars always win.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(newLogHandler(os.Getenv("CIVIC_LOG_FORMAT"), os.Getenv("CIVIC_LOG_LEVEL"))))

	if err := run(); err != nil {
		slog.Error("server_exit", "error", err)
		os.Exit(1)
	}
}

func run() error {
	env := envOrDefault("CIVIC_ENV", "development")
	production := env == "production"

	// Error reporting
	if dsn := os.Getenv("CIVIC_SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: env, Release: version}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		slog.Info("sentry_enabled", "environment", env)
	}

	// Database: WAL mode, foreign keys, busy timeout
	db, err := storage.Open(envOrDefault("CIVIC_DB_PATH", "civic_reports.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.MigrateDB(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, envInt("CIVIC_SLOW_QUERY_MS", 50))

	stores := web.Stores{
		AccountStore:   accountStore.NewSQLiteStore(timedDB),
		ComplaintStore: complaintStore.NewSQLiteStore(timedDB),
		OutboxStore:    outboxStorePkg.NewSQLiteStore(timedDB),
	}

	// Seed the administrator account if none exists
	adminPassword := os.Getenv("CIVIC_ADMIN_PASSWORD")
	if adminPassword == "" && !production {
		adminPassword = devAdminPassword
	}
	created, err := orchestrators.ExecuteSeedAdmin(context.Background(), orchestrators.SeedAdminInput{
		Username: envOrDefault("CIVIC_ADMIN_USERNAME", "admin"),
		Email:    envOrDefault("CIVIC_ADMIN_EMAIL", "admin@example.com"),
		Password: adminPassword,
	}, orchestrators.SeedAdminDeps{AccountStore: stores.AccountStore})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created && adminPassword == devAdminPassword {
		slog.Warn("admin_default_password", "detail", "set CIVIC_ADMIN_PASSWORD and change the seeded password")
	}

	// Email transport: Resend, then SMTP, then noop
	mailFrom := envOrDefault("CIVIC_MAIL_FROM", "Civic Reports <noreply@example.com>")
	sender := newSender(mailFrom, production)

	// Outbox worker delivers status notifications with retries
	processor := orchestrators.NewOutboxProcessor(stores.OutboxStore, map[string]orchestrators.ActionExecutor{
		domainOutbox.ActionTypeStatusNotification: orchestrators.StatusNotificationExecutor{Sender: sender, From: mailFrom},
	}, orchestrators.OutboxConfig{
		Interval:       envDuration("CIVIC_OUTBOX_INTERVAL", 30*time.Second),
		AttemptTimeout: envDuration("CIVIC_OUTBOX_ATTEMPT_TIMEOUT", 30*time.Second),
	})
	processor.OnTerminalFailure = func(entry domainOutbox.Entry, err error) {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("outbox_entry", entry.ID)
			scope.SetTag("action_type", entry.ActionType)
			sentry.CaptureException(err)
		})
	}
	stopWorker := processor.StartBackgroundWorker(context.Background())
	defer stopWorker()

	// Sessions: Redis when configured, otherwise in-process
	sessionTTL := envDuration("CIVIC_SESSION_TTL", middleware.DefaultSessionTTL)
	var sessions middleware.SessionStore
	if addr := os.Getenv("CIVIC_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis unreachable at %s: %w", addr, err)
		}
		sessions = middleware.NewRedisSessionStore(rdb, sessionTTL)
		slog.Info("session_store", "backend", "redis", "addr", addr)
	} else {
		memSessions := middleware.NewMemorySessionStore(sessionTTL)
		defer memSessions.Stop()
		sessions = memSessions
		slog.Info("session_store", "backend", "memory")
	}

	images, err := uploads.NewDiskStore(envOrDefault("CIVIC_UPLOAD_DIR", "static/uploads"), int64(envInt("CIVIC_UPLOAD_MAX_BYTES", 5<<20)))
	if err != nil {
		return err
	}

	csrfKey, err := web.LoadCSRFKey(os.Getenv("CIVIC_CSRF_KEY"), production)
	if err != nil {
		return err
	}

	srv, err := web.NewServer(web.Config{
		CSRFKey:            csrfKey,
		SecureCookies:      production,
		TrustedOrigins:     splitList(os.Getenv("CIVIC_TRUSTED_ORIGINS")),
		SessionTTL:         sessionTTL,
		StaticDir:          "static",
		RateLimitPerSecond: envInt("CIVIC_RATE_LIMIT", 10),
		SlowRequestMs:      envInt("CIVIC_SLOW_REQUEST_MS", middleware.DefaultSlowRequestMs),
	}, web.Deps{
		Stores:   stores,
		Sessions: sessions,
		Images:   images,
		Outbox:   processor,
		Perf:     collector,
		Health:   db.PingContext,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	handler := srv.Handler()
	if sentry.CurrentHub().Client() != nil {
		handler = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(handler)
	}

	addr := envOrDefault("CIVIC_ADDR", ":8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_start", "version", version, "addr", addr, "env", env, "schema", storage.LatestSchemaVersion())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newSender picks the mail transport from the environment.
func newSender(from string, production bool) emailPkg.Sender {
	if key := os.Getenv("CIVIC_RESEND_KEY"); key != "" {
		slog.Info("email_sender", "transport", "resend")
		return emailPkg.NewResendSender(key, from)
	}
	if host := os.Getenv("CIVIC_SMTP_HOST"); host != "" {
		slog.Info("email_sender", "transport", "smtp", "host", host)
		return emailPkg.NewSMTPSender(emailPkg.SMTPConfig{
			Host:     host,
			Port:     envInt("CIVIC_SMTP_PORT", 587),
			Username: os.Getenv("CIVIC_SMTP_USERNAME"),
			Password: os.Getenv("CIVIC_SMTP_PASSWORD"),
			From:     from,
			Timeout:  envDuration("CIVIC_SMTP_TIMEOUT", emailPkg.DefaultSMTPTimeout),
		})
	}
	if production {
		slog.Warn("email_sender", "transport", "noop", "detail", "no CIVIC_RESEND_KEY or CIVIC_SMTP_HOST; notifications are DISABLED")
	} else {
		slog.Info("email_sender", "transport", "noop")
	}
	return emailPkg.NewNoopSender()
}

func newLogHandler(format, level string) slog.Handler {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config_invalid", "key", key, "value", v, "using", fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config_invalid", "key", key, "value", v, "using", fallback)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
