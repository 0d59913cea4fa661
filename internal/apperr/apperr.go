// Package apperr defines the error kinds surfaced by the recap pipeline.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindDecode              Kind = "decode_error"
	KindTranscriptionFailed Kind = "transcription_failed"
	KindEmptyInput          Kind = "empty_input"
	KindInvalidRange        Kind = "invalid_range"
	KindSummarizationFailed Kind = "summarization_failed"
	KindExport              Kind = "export_error"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUnsupportedFormat   = &Error{Kind: KindUnsupportedFormat, Message: "unsupported audio format"}
	ErrDecode              = &Error{Kind: KindDecode, Message: "audio could not be decoded"}
	ErrTranscriptionFailed = &Error{Kind: KindTranscriptionFailed, Message: "transcription failed"}
	ErrEmptyInput          = &Error{Kind: KindEmptyInput, Message: "input is empty"}
	ErrInvalidRange        = &Error{Kind: KindInvalidRange, Message: "invalid length range"}
	ErrSummarizationFailed = &Error{Kind: KindSummarizationFailed, Message: "summarization failed"}
	ErrExport              = &Error{Kind: KindExport, Message: "export failed"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the human-readable message of the first *Error in err's chain,
// falling back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Retryable reports whether err may go away on a later attempt. Errors that
// implement Retryable() bool decide for themselves; everything else is retried.
func Retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
