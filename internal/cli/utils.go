// Package cli provides output formatting and a server client for the leakscan CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hyperjump/leakscan/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchPage writes one page of search results to w in the given format.
func WriteSearchPage(w io.Writer, page *models.SearchPage, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, page)
	}
	fmt.Fprintf(w, "\nFound %d records for %s in %dms (page %d of %d)\n\n",
		page.Total, page.Domain, page.QueryTime, page.Page, page.TotalPages)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tUPLOADED\tCONTENT")
	for _, row := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Email, row.UploadedAt.Format(time.DateTime), Truncate(row.Content, 120))
	}
	return tw.Flush()
}

// WriteDocuments writes one page of the document catalog to w.
func WriteDocuments(w io.Writer, page *models.DocumentPage, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, page)
	}
	fmt.Fprintf(w, "%d document(s), page %d of %d\n\n", page.Total, page.Page, page.TotalPages)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tSTATUS\tRECORDS\tSIZE\tUPLOADED")
	for _, d := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ID, Truncate(d.OriginalName, 40), d.OwnerID, d.Status, d.RecordCount,
			HumanBytes(d.SizeBytes), d.UploadedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

// WriteUploadResult writes the outcome of an ingest to w.
func WriteUploadResult(w io.Writer, res *models.UploadResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	d := res.Document
	switch {
	case res.Duplicate:
		fmt.Fprintf(w, "Already ingested as %s (%s)\n", d.ID, d.OriginalName)
	case res.Partial:
		fmt.Fprintf(w, "Ingested %s with errors: %d of %d records indexed (%s)\n",
			d.ID, res.Commit.Indexed, res.Commit.Submitted, d.StatusMessage)
	default:
		fmt.Fprintf(w, "Ingested %s: %d records from %d lines\n", d.ID, d.RecordCount, d.LineCount)
	}
	return nil
}

// WriteStatus writes a status report to w.
func WriteStatus(w io.Writer, st *models.StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # uploaded dumps\n", st.Documents)
	fmt.Fprintf(w, "records:            %d   # indexed email records\n", st.Records)
	fmt.Fprintf(w, "disk_usage:         %s\n", HumanBytes(st.DiskUsageBytes))
	if c := st.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "blob_backend:       %s\n", c.BlobBackend)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		if c.BleveIndexPath != "" {
			fmt.Fprintf(w, "bleve_index_path:   %s\n", c.BleveIndexPath)
		}
		if c.DuplicatePolicy != "" {
			fmt.Fprintf(w, "duplicate_policy:   %s\n", c.DuplicatePolicy)
		}
		if len(c.WatchDirectories) > 0 {
			fmt.Fprintf(w, "watch_directories:  %s\n", strings.Join(c.WatchDirectories, ", "))
		}
	}
	return nil
}

// HumanBytes formats n with a binary unit suffix.
func HumanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
