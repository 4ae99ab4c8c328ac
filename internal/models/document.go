// Package models defines core data structures for documents, extracted records, and search pages.
package models

import "time"

// Ingest status values for Document.Status.
const (
	StatusIndexing   = "indexing"
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
)

// Document is one uploaded dump. Content fields are immutable after registration;
// only the ingest bookkeeping fields change, through DocumentPatch.
type Document struct {
	ID           string    `json:"id" db:"id"`
	OriginalName string    `json:"original_name" db:"original_name"`
	StoredName   string    `json:"stored_name" db:"stored_name"`
	SizeBytes    int64     `json:"size_bytes" db:"size_bytes"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	ContentHash  string    `json:"content_hash" db:"content_hash"`
	UploadedAt   time.Time `json:"uploaded_at" db:"uploaded_at"`

	Status        string `json:"status" db:"status"`
	LineCount     int64  `json:"line_count" db:"line_count"`
	RecordCount   int64  `json:"record_count" db:"record_count"`
	FailedCount   int64  `json:"failed_count" db:"failed_count"`
	StatusMessage string `json:"status_message,omitempty" db:"status_message"`
}

// DocumentPatch is a partial update of a Document's ingest bookkeeping.
// Nil fields are left unchanged.
type DocumentPatch struct {
	Status        *string
	LineCount     *int64
	RecordCount   *int64
	FailedCount   *int64
	StatusMessage *string
}

// Empty reports whether the patch changes nothing.
func (p DocumentPatch) Empty() bool {
	return p.Status == nil && p.LineCount == nil && p.RecordCount == nil &&
		p.FailedCount == nil && p.StatusMessage == nil
}

// ListQuery selects a page of documents, optionally for one owner.
type ListQuery struct {
	OwnerID  string `json:"owner_id,omitempty"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// DocumentPage is one page of the document catalog.
type DocumentPage struct {
	Items      []*Document `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// UploadResult is returned by an upload: the document and what its ingest produced.
type UploadResult struct {
	Document  *Document     `json:"document"`
	Commit    *CommitResult `json:"commit,omitempty"`
	Duplicate bool          `json:"duplicate,omitempty"`
	// Partial is set when some records failed to index; the upload still succeeded.
	Partial bool `json:"partial,omitempty"`
}

// StatusConfig is the configuration section of a StatusReport.
type StatusConfig struct {
	BlobBackend      string   `json:"blob_backend"`
	DatabasePath     string   `json:"database_path,omitempty"`
	BleveIndexPath   string   `json:"bleve_index_path,omitempty"`
	BatchSize        int      `json:"batch_size,omitempty"`
	DuplicatePolicy  string   `json:"duplicate_policy,omitempty"`
	ExportLimit      int      `json:"export_limit,omitempty"`
	WatchDirectories []string `json:"watch_directories,omitempty"`
}

// StatusReport summarizes the catalog, the index and storage usage.
type StatusReport struct {
	Documents      int64         `json:"documents"`
	Records        uint64        `json:"records"`
	DiskUsageBytes int64         `json:"disk_usage_bytes"`
	Config         *StatusConfig `json:"config,omitempty"`
}
