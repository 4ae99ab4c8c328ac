// Package export encodes search rows as CSV or XLSX.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/leakscan/internal/errs"
	"github.com/hyperjump/leakscan/internal/models"
)

// SheetName is the single worksheet of an XLSX export.
const SheetName = "Results"

// maxCellChars is the XLSX per-cell character limit.
const maxCellChars = 32767

// Header is the column order shared by both formats.
var Header = []string{"content", "email", "domain", "uploaded_at"}

func fields(r models.ResultRow) []string {
	return []string{r.Content, r.Email, r.Domain, r.UploadedAt.UTC().Format(time.RFC3339)}
}

// CSV encodes rows with a header row and standard quoting.
func CSV(rows []models.ResultRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, errs.Wrap(errs.KindExportError, "failed to write csv header", err)
	}
	for i, r := range rows {
		rec := fields(r)
		if err := checkRow(i, rec, false); err != nil {
			return nil, err
		}
		if err := w.Write(rec); err != nil {
			return nil, errs.Wrap(errs.KindExportError, fmt.Sprintf("failed to write csv row %d", i+1), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errs.Wrap(errs.KindExportError, "failed to flush csv", err)
	}
	return buf.Bytes(), nil
}

// XLSX encodes rows into a single "Results" sheet using excelize's stream writer.
func XLSX(rows []models.ResultRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, errs.Wrap(errs.KindExportError, "failed to name sheet", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return nil, errs.Wrap(errs.KindExportError, "failed to open sheet stream", err)
	}

	if err := sw.SetRow("A1", toCells(Header)); err != nil {
		return nil, errs.Wrap(errs.KindExportError, "failed to write xlsx header", err)
	}
	for i, r := range rows {
		rec := fields(r)
		if err := checkRow(i, rec, true); err != nil {
			return nil, err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, errs.Wrap(errs.KindExportError, "failed to address row", err)
		}
		if err := sw.SetRow(cell, toCells(rec)); err != nil {
			return nil, errs.Wrap(errs.KindExportError, fmt.Sprintf("failed to write xlsx row %d", i+1), err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, errs.Wrap(errs.KindExportError, "failed to flush xlsx stream", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errs.Wrap(errs.KindExportError, "failed to encode xlsx", err)
	}
	return buf.Bytes(), nil
}

// Encode dispatches on format.
func Encode(format models.ExportFormat, rows []models.ResultRow) ([]byte, error) {
	switch format {
	case models.FormatCSV:
		return CSV(rows)
	case models.FormatXLSX:
		return XLSX(rows)
	default:
		return nil, errs.Newf(errs.KindInvalidArgument, "unsupported export format %q", format)
	}
}

// FileName returns the download name "emails_<domain>_<unix-millis>.<format>".
func FileName(domain string, format models.ExportFormat, now time.Time) string {
	return fmt.Sprintf("emails_%s_%d.%s", sanitizeDomain(domain), now.UnixMilli(), format)
}

func checkRow(i int, rec []string, xlsx bool) error {
	for col, v := range rec {
		if !utf8.ValidString(v) {
			return errs.Newf(errs.KindExportError, "row %d column %s is not valid UTF-8", i+1, Header[col])
		}
		if xlsx && utf8.RuneCountInString(v) > maxCellChars {
			return errs.Newf(errs.KindExportError, "row %d column %s exceeds %d characters", i+1, Header[col], maxCellChars)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func sanitizeDomain(domain string) string {
	out := make([]rune, 0, len(domain))
	for _, r := range domain {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "export"
	}
	return string(out)
}
