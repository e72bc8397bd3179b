package account

import (
	"context"

	domain "civicreport/internal/domain/account"
)

// Store persists Account state.
type Store interface {
	GetByID(ctx context.Context, id int64) (domain.Account, error)
	GetByUsername(ctx context.Context, username string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	Create(ctx context.Context, value domain.Account) (domain.Account, error)
	CountByRole(ctx context.Context, role string) (int, error)
}
