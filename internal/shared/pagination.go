package shared

import (
	"math"
	"net/url"
	"strconv"
)

// Listing limits.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Page is an offset/limit window over a listing.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// NewPage clamps offset and limit into the supported range.
func NewPage(offset, limit int) Page {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Offset: offset, Limit: limit}
}

// PageFromQuery reads offset and limit query parameters.
func PageFromQuery(q url.Values) Page {
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return NewPage(offset, limit)
}

// Window returns the slice bounds of the page over n items.
func (p Page) Window(n int) (int, int) {
	p = NewPage(p.Offset, p.Limit)
	if p.Offset >= n {
		return n, n
	}
	end := p.Offset + p.Limit
	if end > n {
		end = n
	}
	return p.Offset, end
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
