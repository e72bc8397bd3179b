// Package listutil paginates list views.
package listutil

import (
	"net/url"
	"strconv"
)

// PageParams carries pagination parameters parsed from a request.
type PageParams struct {
	Page    int // 1-indexed page number
	PerPage int // rows per page
}

// PageInfo carries pagination metadata for rendering.
type PageInfo struct {
	Page       int // current page (1-indexed)
	PerPage    int // rows per page
	Total      int // total matching rows
	TotalPages int // ceil(Total / PerPage)
}

// PageLink is one numbered pagination control.
type PageLink struct {
	Number  int
	URL     string
	Current bool
}

// DefaultPerPage is the default number of rows per page.
const DefaultPerPage = 20

// PerPageOptions are the allowed rows-per-page values.
var PerPageOptions = []int{10, 20, 50, 100}

// ParsePageParams extracts page and per_page from URL query values.
// POST: returns valid PageParams with defaults applied
func ParsePageParams(q url.Values) PageParams {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if !isValidPerPage(perPage) {
		perPage = DefaultPerPage
	}
	return PageParams{Page: page, PerPage: perPage}
}

// NewPageInfo computes pagination metadata.
// PRE: total >= 0
// POST: Page clamped to [1, TotalPages]; TotalPages >= 1
func NewPageInfo(params PageParams, total int) PageInfo {
	perPage := params.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	page := min(max(params.Page, 1), totalPages)
	return PageInfo{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Offset returns the index of the first row on the current page.
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Start returns the 1-indexed first row number on the current page, or 0 when empty.
func (p PageInfo) Start() int {
	if p.Total == 0 {
		return 0
	}
	return p.Offset() + 1
}

// End returns the index one past the last row on the current page.
// POST: Returns min(Offset+PerPage, Total)
func (p PageInfo) End() int {
	return min(p.Offset()+p.PerPage, p.Total)
}

// ShowPagination reports whether there is more than one page.
func (p PageInfo) ShowPagination() bool {
	return p.Total > p.PerPage
}

// Slice returns the rows of items that fall on page p.
// PRE: len(items) == p.Total
func Slice[T any](items []T, p PageInfo) []T {
	if p.Total == 0 {
		return nil
	}
	return items[p.Offset():p.End()]
}

// Links builds controls for at most five pages centred on the current one.
// Existing query values (filters) are carried into every link.
func (p PageInfo) Links(path string, q url.Values) []PageLink {
	const maxButtons = 5
	start := max(p.Page-maxButtons/2, 1)
	end := start + maxButtons - 1
	if end > p.TotalPages {
		end = p.TotalPages
		start = max(end-maxButtons+1, 1)
	}

	links := make([]PageLink, 0, end-start+1)
	for n := start; n <= end; n++ {
		v := url.Values{}
		for k, vals := range q {
			v[k] = vals
		}
		v.Set("page", strconv.Itoa(n))
		if p.PerPage != DefaultPerPage {
			v.Set("per_page", strconv.Itoa(p.PerPage))
		} else {
			v.Del("per_page")
		}
		links = append(links, PageLink{Number: n, URL: path + "?" + v.Encode(), Current: n == p.Page})
	}
	return links
}

func isValidPerPage(n int) bool {
	for _, opt := range PerPageOptions {
		if n == opt {
			return true
		}
	}
	return false
}
