package models

import (
	"strings"

	"github.com/hyperjump/leakscan/internal/errs"
)

// ExportFormat names an export encoding.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// ParseExportFormat accepts "csv" or "xlsx" (case-insensitive).
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", errs.Newf(errs.KindInvalidArgument, "unsupported export format %q (want csv or xlsx)", s)
	}
}

// ContentType returns the MIME type of the encoded export.
func (f ExportFormat) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ExportRequest asks for every row matching a domain, encoded as Format.
type ExportRequest struct {
	Domain  string `json:"domain"`
	Format  string `json:"format"`
	OwnerID string `json:"owner_id,omitempty"`
}

// ExportResult is a fully encoded export.
type ExportResult struct {
	Data     []byte       `json:"-"`
	Format   ExportFormat `json:"format"`
	FileName string       `json:"file_name"`
	Rows     int          `json:"rows"`
	Total    int          `json:"total"`
	// Truncated is set when Total exceeded the export limit and only the first Rows were written.
	Truncated bool `json:"truncated"`
}
