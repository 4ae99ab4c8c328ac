// Package extract scans plaintext dumps line by line and pulls out the first email on each line.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/leakscan/internal/errs"
	"github.com/hyperjump/leakscan/internal/models"
)

// DefaultMaxLineBytes bounds a single line when no limit is configured.
const DefaultMaxLineBytes = 1 << 20

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+`)

// Extractor turns a dump into ExtractedRecords.
type Extractor struct {
	maxLineBytes int
}

// NewExtractor returns an Extractor that rejects lines longer than maxLineBytes.
// A non-positive limit uses DefaultMaxLineBytes.
func NewExtractor(maxLineBytes int) *Extractor {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Extractor{maxLineBytes: maxLineBytes}
}

// ParseLine returns the record for one line, or ok=false when the line is blank
// or carries no email. Only RawLine, Email and Domain are set; RawLine is the
// line exactly as given.
func ParseLine(line string) (models.ExtractedRecord, bool) {
	if strings.TrimSpace(line) == "" {
		return models.ExtractedRecord{}, false
	}
	email := emailPattern.FindString(line)
	if email == "" {
		return models.ExtractedRecord{}, false
	}
	_, domain, _ := strings.Cut(email, "@")
	return models.ExtractedRecord{RawLine: line, Email: email, Domain: domain}, true
}

// Records lazily yields one record per matching line of r. The first error
// (invalid UTF-8, overlong line, read failure or ctx cancellation) is yielded
// once and ends the sequence.
func (e *Extractor) Records(ctx context.Context, r io.Reader) iter.Seq2[models.ExtractedRecord, error] {
	return func(yield func(models.ExtractedRecord, error) bool) {
		_ = e.scan(ctx, r, func(lineNo int, line []byte) bool {
			rec, ok := ParseLine(string(line))
			if !ok {
				return true
			}
			rec.LineNumber = lineNo
			return yield(rec, nil)
		}, func(err error) {
			yield(models.ExtractedRecord{}, err)
		})
	}
}

// Validate scans r without producing records and returns the number of lines.
func (e *Extractor) Validate(ctx context.Context, r io.Reader) (int, error) {
	var lines int
	var scanErr error
	e.scan(ctx, r, func(lineNo int, _ []byte) bool {
		lines = lineNo
		return true
	}, func(err error) {
		scanErr = err
	})
	return lines, scanErr
}

// scan feeds each valid line to fn until fn returns false, and reports the
// first failure to onErr. It returns false if scanning stopped early.
func (e *Extractor) scan(ctx context.Context, r io.Reader, fn func(int, []byte) bool, onErr func(error)) bool {
	sc := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > e.maxLineBytes {
		initial = e.maxLineBytes
	}
	sc.Buffer(make([]byte, 0, initial), e.maxLineBytes)

	lineNo := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			onErr(err)
			return false
		}
		lineNo++
		line := sc.Bytes()
		if !utf8.Valid(line) {
			onErr(errs.Newf(errs.KindEncodingError, "line %d is not valid UTF-8", lineNo))
			return false
		}
		if i := controlByte(line); i >= 0 {
			onErr(errs.Newf(errs.KindUnsupportedFileType, "line %d contains control byte 0x%02x", lineNo, line[i]))
			return false
		}
		if !fn(lineNo, bytes.TrimSuffix(line, []byte{'\r'})) {
			return false
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			onErr(errs.Newf(errs.KindEncodingError, "line %d exceeds %d bytes", lineNo+1, e.maxLineBytes))
		} else {
			onErr(fmt.Errorf("read dump: %w", err))
		}
		return false
	}
	if err := ctx.Err(); err != nil {
		onErr(err)
		return false
	}
	return true
}

// controlByte returns the offset of the first C0 control byte other than tab
// and carriage return, or -1.
func controlByte(line []byte) int {
	for i, c := range line {
		if c < 0x20 && c != '\t' && c != '\r' {
			return i
		}
	}
	return -1
}
