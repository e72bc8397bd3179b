package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"civicreport/internal/domain/account"
)

// AccountStoreForLogin defines the store interface needed by Login.
type AccountStoreForLogin interface {
	GetByUsername(ctx context.Context, username string) (account.Account, error)
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Username string
	Password string
}

// LoginResult carries the result of a successful login.
type LoginResult struct {
	AccountID int64
	Username  string
	Role      string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	AccountStore AccountStoreForLogin
}

// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid username or password")

var (
	dummyOnce sync.Once
	dummy     account.Account
)

// equalizeTiming spends one bcrypt comparison so unknown usernames cost the same as wrong passwords.
func equalizeTiming(password string) {
	dummyOnce.Do(func() {
		if err := dummy.SetPassword("civic-dummy-password"); err != nil {
			slog.Error("dummy_hash_failed", "error", err)
		}
	})
	_ = dummy.CheckPassword(password)
}

// ExecuteLogin validates credentials and returns account info for session creation.
// PRE: Username and password provided
// POST: Returns account info on success; ErrInvalidCredentials otherwise
// INVARIANT: The error does not reveal whether the username exists
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (LoginResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	acct, err := deps.AccountStore.GetByUsername(ctx, username)
	if errors.Is(err, account.ErrNotFound) {
		equalizeTiming(input.Password)
		slog.Info("auth_event", "event", "login_failed", "username", username, "reason", "not_found")
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if err := acct.CheckPassword(input.Password); err != nil {
		slog.Info("auth_event", "event", "login_failed", "username", username, "reason", "wrong_password")
		return LoginResult{}, ErrInvalidCredentials
	}

	slog.Info("auth_event", "event", "login_success", "account_id", acct.ID, "role", acct.Role)
	return LoginResult{
		AccountID: acct.ID,
		Username:  acct.Username,
		Role:      acct.Role,
	}, nil
}
