package model

import "math"

// PageRequest is a validated 1-based page/per_page pair.
type PageRequest struct {
	Page    int
	PerPage int
}

// MaxPerPage caps any listing.
const MaxPerPage = 100

// NewPageRequest normalises raw values: page < 1 becomes 1, per_page < 1
// becomes def and anything above MaxPerPage is clamped.  Page is capped so
// Offset never overflows; such a page is simply past the end.
func NewPageRequest(page, perPage, def int) PageRequest {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = def
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if perPage > 0 && page > math.MaxInt/perPage {
		page = math.MaxInt / perPage
	}
	return PageRequest{Page: page, PerPage: perPage}
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.PerPage }

// Pagination is the metadata returned alongside every paged listing.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// Paginate builds the metadata; TotalPages is ceil(total/per_page).
func (p PageRequest) Paginate(total int64) Pagination {
	return Pagination{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: TotalPages(total, p.PerPage),
	}
}

// TotalPages returns ceil(total/perPage), 0 for an empty set.
func TotalPages(total int64, perPage int) int64 {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	pp := int64(perPage)
	return (total + pp - 1) / pp
}
