package shared

import (
	"math"
	"net/http"
	"strconv"
)

// Listing bounds. MaxPage keeps Offset far from integer overflow.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	MaxPage        = 100000
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata, clamping page and perPage into range.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = clampPage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset of the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageParams reads page and per_page query parameters, capping per_page at
// MaxPerPage and page at MaxPage.
func PageParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	return clampPage(page, perPage)
}

func clampPage(page, perPage int) (int, int) {
	switch {
	case page <= 0:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return page, perPage
}
