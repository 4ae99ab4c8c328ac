package models

import (
	"fmt"
	"time"

	"github.com/hyperjump/leakscan/internal/errs"
)

// ExtractedRecord is one indexed line: the first email found on it and its domain.
type ExtractedRecord struct {
	RecordID   string    `json:"record_id"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	RawLine    string    `json:"content"`
	Email      string    `json:"email"`
	Domain     string    `json:"domain"`
	LineNumber int       `json:"line"`
	UploadedAt time.Time `json:"uploaded_at"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// ItemFailure is one record the index rejected.
type ItemFailure struct {
	RecordID   string `json:"record_id"`
	LineNumber int    `json:"line"`
	Reason     string `json:"reason"`
}

// CommitResult reports what a commit wrote. Indexed == Submitted - Failed.
type CommitResult struct {
	Submitted int           `json:"submitted"`
	Indexed   int           `json:"indexed"`
	Failed    int           `json:"failed"`
	Batches   int           `json:"batches"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// Err returns a PartialIndexFailure error when some records failed, otherwise nil.
func (r *CommitResult) Err() error {
	if r == nil || r.Failed == 0 {
		return nil
	}
	return errs.New(errs.KindPartialIndexFailure,
		fmt.Sprintf("%d of %d records failed to index", r.Failed, r.Submitted))
}
