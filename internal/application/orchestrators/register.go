package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"civicreport/internal/domain/account"
)

// AccountStoreForRegister defines the store interface needed by Register.
type AccountStoreForRegister interface {
	GetByUsername(ctx context.Context, username string) (account.Account, error)
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Create(ctx context.Context, a account.Account) (account.Account, error)
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// RegisterDeps holds dependencies for Register.
type RegisterDeps struct {
	AccountStore AccountStoreForRegister
	Now          func() time.Time
}

// ExecuteRegister creates a citizen account.
// PRE: none; all input is validated here
// POST: Account persisted with a bcrypt hash, or no mutation on error
// INVARIANT: username and email are unique (checked first, then enforced by the schema)
func ExecuteRegister(ctx context.Context, input RegisterInput, deps RegisterDeps) (account.Account, error) {
	acct := account.Account{
		Username:  strings.TrimSpace(input.Username),
		Email:     strings.TrimSpace(input.Email),
		Role:      account.RoleCitizen,
		CreatedAt: nowFrom(deps.Now),
	}
	if err := acct.Validate(); err != nil {
		return account.Account{}, err
	}

	switch _, err := deps.AccountStore.GetByUsername(ctx, acct.Username); {
	case err == nil:
		return account.Account{}, account.ErrDuplicateUsername
	case !errors.Is(err, account.ErrNotFound):
		return account.Account{}, err
	}
	switch _, err := deps.AccountStore.GetByEmail(ctx, acct.Email); {
	case err == nil:
		return account.Account{}, account.ErrDuplicateEmail
	case !errors.Is(err, account.ErrNotFound):
		return account.Account{}, err
	}

	if err := acct.SetPassword(input.Password); err != nil {
		return account.Account{}, err
	}

	created, err := deps.AccountStore.Create(ctx, acct)
	if err != nil {
		return account.Account{}, err
	}
	slog.Info("auth_event", "event", "account_created", "account_id", created.ID, "role", created.Role)
	return created, nil
}

func nowFrom(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}
