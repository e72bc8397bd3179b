package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"civicreport/internal/adapters/email"
	outboxStore "civicreport/internal/adapters/storage/outbox"
	domain "civicreport/internal/domain/outbox"
	"civicreport/internal/domain/notification"
)

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the action for payload and returns the provider's reference.
	Execute(ctx context.Context, payload string) (string, error)
}

// OutboxConfig tunes delivery.
type OutboxConfig struct {
	Interval       time.Duration // poll interval for the background worker
	BaseDelay      time.Duration // first retry delay, doubled per attempt
	MaxDelay       time.Duration
	BatchSize      int
	AttemptTimeout time.Duration // upper bound on one executor call
}

// DefaultOutboxConfig returns the production defaults.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		Interval:       30 * time.Second,
		BaseDelay:      30 * time.Second,
		MaxDelay:       time.Hour,
		BatchSize:      20,
		AttemptTimeout: 30 * time.Second,
	}
}

// OutboxProcessor delivers outbox entries with retries and backoff.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	cfg       OutboxConfig
	now       func() time.Time
	wake      chan struct{}

	// mu guards inflight and every read-modify-write of an entry; it is never held across an executor call.
	mu       sync.Mutex
	inflight map[string]struct{}

	// OnTerminalFailure, when set, is called once an entry exhausts its attempts.
	OnTerminalFailure func(entry domain.Entry, err error)
}

// NewOutboxProcessor creates a processor. Zero config fields take defaults.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor, cfg OutboxConfig) *OutboxProcessor {
	def := DefaultOutboxConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		cfg:       cfg,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
		inflight:  make(map[string]struct{}),
	}
}

// Wake asks the worker to run a pass soon. It never blocks.
func (p *OutboxProcessor) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// ProcessPending runs one pass over due entries.
// PRE: Context is valid
// POST: Each due entry not already in flight attempted once; returns the number attempted
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (int, error) {
	claimed, err := p.claimDue(ctx)
	if err != nil {
		return 0, err
	}

	for _, entry := range claimed {
		if err := p.attempt(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err)
		}
	}
	return len(claimed), nil
}

// claimDue lists due entries and marks them in flight.
func (p *OutboxProcessor) claimDue(ctx context.Context) ([]domain.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.store.ListPending(ctx, p.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox entries: %w", err)
	}
	var claimed []domain.Entry
	for _, entry := range entries {
		if _, busy := p.inflight[entry.ID]; busy {
			continue
		}
		if !entry.DueAt(p.now(), p.cfg.BaseDelay, p.cfg.MaxDelay) {
			continue
		}
		p.inflight[entry.ID] = struct{}{}
		claimed = append(claimed, entry)
	}
	return claimed, nil
}

// attempt executes one claimed entry and persists the outcome.
// PRE: entry.ID is in p.inflight
// POST: entry.ID released from p.inflight
func (p *OutboxProcessor) attempt(ctx context.Context, entry domain.Entry) error {
	entry.MarkAttempt(p.now())

	executor, ok := p.executors[entry.ActionType]
	var err error
	var externalID string
	if !ok {
		err = fmt.Errorf("no executor registered for action type: %s", entry.ActionType)
	} else {
		execCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		externalID, err = executor.Execute(execCtx, entry.Payload)
		cancel()
	}

	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "max_attempts", entry.MaxAttempts, "error", err)
		if entry.Status == domain.StatusFailed && p.OnTerminalFailure != nil {
			p.OnTerminalFailure(entry, err)
		}
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, entry.ID)
	// The outcome is saved even when ctx was cancelled mid-delivery.
	return p.store.Save(context.WithoutCancel(ctx), entry)
}

// RetryEntry requeues one entry so the worker delivers it on its next pass, regardless of backoff.
// PRE: entryID is non-empty
// POST: Entry saved as retrying and due now, worker woken; done, abandoned or in-flight entries are refused
func (p *OutboxProcessor) RetryEntry(ctx context.Context, entryID string) (domain.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.inflight[entryID]; busy {
		return domain.Entry{}, fmt.Errorf("retry %s: %w", entryID, domain.ErrInFlight)
	}
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return domain.Entry{}, err
	}
	if err := entry.Requeue(); err != nil {
		return entry, fmt.Errorf("retry %s: %w", entryID, err)
	}
	if err := p.store.Save(ctx, entry); err != nil {
		return entry, err
	}
	slog.Info("outbox_entry_requeued", "entry_id", entry.ID, "attempts", entry.Attempts)
	p.Wake()
	return entry, nil
}

// AbandonEntry marks an entry as abandoned by admin.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned unless already delivered or in flight
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.inflight[entryID]; busy {
		return fmt.Errorf("abandon %s: %w", entryID, domain.ErrInFlight)
	}
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status == domain.StatusDone {
		return fmt.Errorf("abandon %s: %w", entryID, domain.ErrTerminal)
	}
	entry.MarkAbandoned()
	slog.Info("outbox_entry_abandoned", "entry_id", entry.ID, "attempts", entry.Attempts)
	return p.store.Save(ctx, entry)
}

// Run processes entries on every tick or wake signal until ctx is cancelled.
// POST: Returns after ctx is done; one pass runs at startup
func (p *OutboxProcessor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.runPass(ctx)
	}
}

func (p *OutboxProcessor) runPass(ctx context.Context) {
	n, err := p.ProcessPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("outbox_worker_error", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Debug("outbox_worker_pass", "attempted", n)
	}
}

// StartBackgroundWorker runs the processor in a goroutine.
// POST: Returns a stop function that cancels the worker and waits for it to exit
func (p *OutboxProcessor) StartBackgroundWorker(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// --- Status notification executor ---

// StatusNotificationExecutor emails a complaint owner about a status change.
type StatusNotificationExecutor struct {
	Sender email.Sender
	From   string
}

// Execute decodes the payload and sends it as a plain-text email.
// PRE: payload was produced by notification.StatusChanged.Encode
// POST: Returns the transport's message ID
func (e StatusNotificationExecutor) Execute(ctx context.Context, payload string) (string, error) {
	msg, err := notification.DecodeStatusChanged(payload)
	if err != nil {
		return "", err
	}
	res, err := e.Sender.Send(ctx, email.SendRequest{
		To:      []string{msg.To},
		From:    e.From,
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}
