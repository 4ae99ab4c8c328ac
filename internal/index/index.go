// Package index defines the record index capability used by ingestion and search.
package index

import (
	"context"
	"strings"

	"github.com/hyperjump/leakscan/internal/models"
)

// BulkItem is one record submitted under its assigned id.
type BulkItem struct {
	ID     string
	Record models.ExtractedRecord
}

// ItemError is a record the index refused.
type ItemError struct {
	ID     string
	Reason string
}

// BulkResponse lists per-item failures of an otherwise successful bulk write.
type BulkResponse struct {
	Failures []ItemError
}

// Filter selects records. Empty fields do not constrain the query.
// DomainKey must already be normalized with DomainKey.
type Filter struct {
	DomainKey  string
	OwnerID    string
	DocumentID string
}

// QueryResult is one window of matching records and the total match count.
type QueryResult struct {
	Records []models.ExtractedRecord
	Total   int
}

// RecordIndex stores ExtractedRecords and serves filtered, stably ordered windows over them.
type RecordIndex interface {
	// Bulk writes items in one request. A returned error means the whole request
	// failed and may be retried; per-item rejections are in the response.
	Bulk(ctx context.Context, items []BulkItem) (*BulkResponse, error)
	// Query returns up to limit records after skipping offset, ordered by
	// indexed_at, then line, then record id.
	Query(ctx context.Context, f Filter, offset, limit int) (*QueryResult, error)
	// DeleteDocument removes every record of a document and returns how many were removed.
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	DocCount() (uint64, error)
	Close() error
}

// DomainKey normalizes a domain for exact, case-insensitive matching.
func DomainKey(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
