package common

import "net/url"

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ParsePagination extracts page and limit from query values. page is at
// least 1; limit defaults to defaultLimit and is capped at maxLimit when
// maxLimit is positive.
func ParsePagination(values url.Values, defaultLimit, maxLimit int) (page, limit int) {
	page = AtoiDefault(values.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit = AtoiDefault(values.Get("limit"), defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
