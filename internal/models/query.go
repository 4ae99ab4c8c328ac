package models

import (
	"strings"
	"time"

	"github.com/hyperjump/leakscan/internal/errs"
)

// SearchQuery is a paged, domain-scoped search request.
type SearchQuery struct {
	Domain   string `json:"domain"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	// OwnerID restricts results to one owner's uploads; empty searches the shared corpus.
	OwnerID string `json:"owner_id,omitempty"`
}

// Validate trims the domain and rejects malformed paging. PageSize above maxPageSize
// is clamped when maxPageSize > 0.
func (q *SearchQuery) Validate(maxPageSize int) error {
	q.Domain = strings.TrimSpace(q.Domain)
	if q.Domain == "" {
		return errs.New(errs.KindInvalidArgument, "domain is required")
	}
	if q.Page < 1 {
		return errs.Newf(errs.KindInvalidArgument, "page must be >= 1, got %d", q.Page)
	}
	if q.PageSize <= 0 {
		return errs.Newf(errs.KindInvalidArgument, "page size must be > 0, got %d", q.PageSize)
	}
	if maxPageSize > 0 && q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return nil
}

// Offset returns the number of results skipped before this page.
func (q *SearchQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// ResultRow is the projection of an ExtractedRecord that searches return and exports write.
type ResultRow struct {
	Content    string    `json:"content"`
	Email      string    `json:"email"`
	Domain     string    `json:"domain"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SearchPage is one page of a domain search.
type SearchPage struct {
	Items      []ResultRow `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
	QueryTime  int64       `json:"query_time_ms"`
	Domain     string      `json:"domain"`
}

// TotalPages returns ceil(total / pageSize), or 0 when pageSize is not positive.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
