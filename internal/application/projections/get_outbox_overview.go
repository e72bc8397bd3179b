package projections

import (
	"context"
	"fmt"

	domainOutbox "civicreport/internal/domain/outbox"
)

// DefaultOutboxListLimit bounds each list on the outbox page.
const DefaultOutboxListLimit = 50

// GetOutboxOverviewQuery carries input for the outbox overview.
type GetOutboxOverviewQuery struct {
	Limit int
}

// GetOutboxOverviewDeps holds dependencies for the outbox overview.
type GetOutboxOverviewDeps struct {
	OutboxStore OutboxLister
}

// OutboxOverviewResult carries the output of the outbox overview.
type OutboxOverviewResult struct {
	Failed  []domainOutbox.Entry
	Pending []domainOutbox.Entry
}

// QueryGetOutboxOverview returns failed entries (for retry/abandon) and those still queued.
// POST: Each list holds at most Limit entries
func QueryGetOutboxOverview(ctx context.Context, query GetOutboxOverviewQuery, deps GetOutboxOverviewDeps) (OutboxOverviewResult, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultOutboxListLimit
	}
	failed, err := deps.OutboxStore.ListFailed(ctx, limit)
	if err != nil {
		return OutboxOverviewResult{}, fmt.Errorf("list failed outbox entries: %w", err)
	}
	pending, err := deps.OutboxStore.ListPending(ctx, limit)
	if err != nil {
		return OutboxOverviewResult{}, fmt.Errorf("list pending outbox entries: %w", err)
	}
	return OutboxOverviewResult{Failed: failed, Pending: pending}, nil
}
