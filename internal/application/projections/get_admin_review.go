package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"civicreport/internal/application/listutil"
	"civicreport/internal/domain/account"
	"civicreport/internal/domain/complaint"
)

// GetAdminReviewQuery carries input for the admin review projection.
type GetAdminReviewQuery struct {
	Status string // optional exact-match filter
	Page   listutil.PageParams
}

// GetAdminReviewDeps holds dependencies for the admin review projection.
type GetAdminReviewDeps struct {
	ComplaintStore ComplaintLister
	AccountStore   AccountLookup
}

// ReviewRow is one complaint with its owner resolved.
type ReviewRow struct {
	Complaint     complaint.Complaint
	OwnerUsername string
	OwnerEmail    string
}

// StatusCount is the number of complaints in one status.
type StatusCount struct {
	Status string
	Count  int
}

// AdminReviewResult carries the output of the admin review projection.
type AdminReviewResult struct {
	Rows     []ReviewRow
	Counts   []StatusCount // known statuses first, then others alphabetically
	Total    int
	Statuses []string // choices offered in the status form
	Filter   string
	Page     listutil.PageInfo // over the filtered rows
}

// QueryGetAdminReview lists one page of complaints in creation order with owner details and status counts.
// PRE: deps are non-nil
// POST: Owners are resolved only for the visible page, each at most once; missing owners render as "(deleted)"
func QueryGetAdminReview(ctx context.Context, query GetAdminReviewQuery, deps GetAdminReviewDeps) (AdminReviewResult, error) {
	all, err := deps.ComplaintStore.ListAll(ctx)
	if err != nil {
		return AdminReviewResult{}, fmt.Errorf("admin review: %w", err)
	}
	counts, err := deps.ComplaintStore.CountByStatus(ctx)
	if err != nil {
		return AdminReviewResult{}, fmt.Errorf("admin review counts: %w", err)
	}

	result := AdminReviewResult{
		Statuses: complaint.KnownStatuses,
		Filter:   query.Status,
		Counts:   orderCounts(counts),
	}
	for _, n := range counts {
		result.Total += n
	}

	matched := all
	if query.Status != "" {
		matched = nil
		for _, c := range all {
			if c.Status == query.Status {
				matched = append(matched, c)
			}
		}
	}
	result.Page = listutil.NewPageInfo(query.Page, len(matched))

	owners := make(map[int64]account.Account)
	for _, c := range listutil.Slice(matched, result.Page) {
		owner, ok := owners[c.AccountID]
		if !ok {
			owner, err = deps.AccountStore.GetByID(ctx, c.AccountID)
			switch {
			case errors.Is(err, account.ErrNotFound):
				slog.Warn("complaint_event", "event", "owner_missing", "complaint_id", c.ID, "account_id", c.AccountID)
				owner = account.Account{Username: "(deleted)"}
			case err != nil:
				return AdminReviewResult{}, fmt.Errorf("admin review owner %d: %w", c.AccountID, err)
			}
			owners[c.AccountID] = owner
		}
		result.Rows = append(result.Rows, ReviewRow{
			Complaint:     c,
			OwnerUsername: owner.Username,
			OwnerEmail:    owner.Email,
		})
	}
	return result, nil
}

func orderCounts(counts map[string]int) []StatusCount {
	out := make([]StatusCount, 0, len(counts))
	seen := make(map[string]bool, len(complaint.KnownStatuses))
	for _, s := range complaint.KnownStatuses {
		seen[s] = true
		out = append(out, StatusCount{Status: s, Count: counts[s]})
	}
	var extra []string
	for s := range counts {
		if !seen[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	for _, s := range extra {
		out = append(out, StatusCount{Status: s, Count: counts[s]})
	}
	return out
}
