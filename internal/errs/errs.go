// Package errs defines the stable error kinds surfaced by the ingestion pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Values are stable and safe to show to callers.
type Kind string

const (
	KindUnknown             Kind = ""
	KindUnsupportedFileType Kind = "UnsupportedFileType"
	KindEncodingError       Kind = "EncodingError"
	KindIndexUnavailable    Kind = "IndexUnavailable"
	KindInvalidArgument     Kind = "InvalidArgument"
	KindExportError         Kind = "ExportError"
	KindPartialIndexFailure Kind = "PartialIndexFailure"
	KindDuplicateContent    Kind = "DuplicateContent"
	KindNotFound            Kind = "NotFound"
)

// Error carries a Kind, a human-readable message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so errors.Is(err, errs.New(kind, ""))
// and errors.Is(err, ErrInvalidArgument) style sentinels both work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns an *Error of kind with msg.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf returns an *Error of kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of kind with msg that wraps err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrUnsupportedFileType = New(KindUnsupportedFileType, "")
	ErrEncoding            = New(KindEncodingError, "")
	ErrIndexUnavailable    = New(KindIndexUnavailable, "")
	ErrInvalidArgument     = New(KindInvalidArgument, "")
	ErrExport              = New(KindExportError, "")
	ErrPartialIndexFailure = New(KindPartialIndexFailure, "")
	ErrDuplicateContent    = New(KindDuplicateContent, "")
	ErrNotFound            = New(KindNotFound, "")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the message of the first *Error in err's chain, or err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return string(e.Kind)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
