package projections

import (
	"context"
	"fmt"

	"civicreport/internal/domain/complaint"
)

// GetDashboardQuery carries input for the dashboard projection.
type GetDashboardQuery struct {
	AccountID int64
}

// GetDashboardDeps holds dependencies for the dashboard projection.
type GetDashboardDeps struct {
	ComplaintStore ComplaintLister
}

// DashboardResult carries the output of the dashboard projection.
type DashboardResult struct {
	Complaints []complaint.Complaint
	Open       int // anything not Resolved or Rejected
}

// QueryGetDashboard lists the account's own complaints in creation order.
// PRE: AccountID > 0
// POST: Only complaints owned by AccountID are returned
func QueryGetDashboard(ctx context.Context, query GetDashboardQuery, deps GetDashboardDeps) (DashboardResult, error) {
	if query.AccountID <= 0 {
		return DashboardResult{}, fmt.Errorf("dashboard: invalid account id %d", query.AccountID)
	}
	complaints, err := deps.ComplaintStore.ListByAccount(ctx, query.AccountID)
	if err != nil {
		return DashboardResult{}, fmt.Errorf("dashboard: %w", err)
	}

	result := DashboardResult{Complaints: complaints}
	for _, c := range complaints {
		if c.AccountID != query.AccountID {
			return DashboardResult{}, fmt.Errorf("dashboard: complaint %d is not owned by account %d", c.ID, query.AccountID)
		}
		if isOpen(c.Status) {
			result.Open++
		}
	}
	return result, nil
}

func isOpen(status string) bool {
	return status != complaint.StatusResolved && status != complaint.StatusRejected
}
