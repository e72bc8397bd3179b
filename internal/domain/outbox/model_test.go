package outbox_test

import (
	"errors"
	"testing"
	"time"

	"civicreport/internal/domain/outbox"
)

// TestEntry_Validate defaults max attempts and rejects missing fields.
func TestEntry_Validate(t *testing.T) {
	e := outbox.Entry{ID: "1", ActionType: outbox.ActionTypeStatusNotification, Payload: "{}", CreatedAt: time.Now()}
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if e.MaxAttempts != outbox.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", e.MaxAttempts, outbox.DefaultMaxAttempts)
	}
	if e.Status != outbox.StatusPending {
		t.Errorf("Status = %q, want pending", e.Status)
	}

	missing := outbox.Entry{ID: "1", ActionType: outbox.ActionTypeStatusNotification, CreatedAt: time.Now()}
	if err := missing.Validate(); err != outbox.ErrEmptyPayload {
		t.Errorf("Validate() = %v, want ErrEmptyPayload", err)
	}
}

// TestEntry_Lifecycle walks an entry from pending through exhausted retries.
func TestEntry_Lifecycle(t *testing.T) {
	now := time.Now()
	e := outbox.NewEntry("id", outbox.ActionTypeStatusNotification, "{}", now)
	e.MaxAttempts = 2

	if !e.CanRetry() {
		t.Fatal("new entry should be retryable")
	}

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("smtp down"))
	if e.Status != outbox.StatusRetrying {
		t.Errorf("after first failure Status = %q, want retrying", e.Status)
	}
	if e.ErrorMessage != "smtp down" {
		t.Errorf("ErrorMessage = %q", e.ErrorMessage)
	}

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("smtp down"))
	if e.Status != outbox.StatusFailed {
		t.Errorf("after max failures Status = %q, want failed", e.Status)
	}
	if !e.IsTerminal() || e.CanRetry() {
		t.Error("exhausted entry must be terminal")
	}

	if err := e.Requeue(); err != nil {
		t.Fatalf("Requeue() = %v", err)
	}
	if !e.CanRetry() {
		t.Error("requeued entry should be retryable")
	}
	if !e.DueAt(now, time.Hour, time.Hour) {
		t.Error("requeued entry should be due immediately")
	}

	e.MarkAttempt(now)
	e.MarkSuccess("msg-1")
	if e.Status != outbox.StatusDone || e.ExternalID != "msg-1" || e.ErrorMessage != "" {
		t.Errorf("unexpected state after success: %+v", e)
	}
	if err := e.Requeue(); err != outbox.ErrTerminal {
		t.Errorf("Requeue(done) = %v, want ErrTerminal", err)
	}
}

// TestEntry_NextRetryDelay checks exponential growth and the cap.
func TestEntry_NextRetryDelay(t *testing.T) {
	e := outbox.Entry{}
	base, max := time.Second, time.Minute
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		e.Attempts = i
		if got := e.NextRetryDelay(base, max); got != w {
			t.Errorf("attempts=%d delay=%v, want %v", i, got, w)
		}
	}
	e.Attempts = 10
	if got := e.NextRetryDelay(base, max); got != max {
		t.Errorf("delay=%v, want cap %v", got, max)
	}
	e.Attempts = 63
	if got := e.NextRetryDelay(base, max); got != max {
		t.Errorf("overflow delay=%v, want cap %v", got, max)
	}
}

// TestEntry_DueAt respects the backoff window.
func TestEntry_DueAt(t *testing.T) {
	now := time.Now()
	e := outbox.NewEntry("id", outbox.ActionTypeStatusNotification, "{}", now)
	if !e.DueAt(now, time.Second, time.Minute) {
		t.Error("never-attempted entry should be due")
	}
	e.MarkAttempt(now)
	if e.DueAt(now.Add(500*time.Millisecond), time.Second, time.Minute) {
		t.Error("entry should wait for backoff")
	}
	if !e.DueAt(now.Add(2*time.Second), time.Second, time.Minute) {
		t.Error("entry should be due after backoff")
	}
}
