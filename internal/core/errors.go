package core

import (
	"fmt"
)

// ErrorKind classifies a failed submission.
type ErrorKind string

const (
	KindInputRequired      ErrorKind = "input_required"
	KindUnsupportedInput   ErrorKind = "unsupported_input"
	KindNetwork            ErrorKind = "network_error"
	KindBackend            ErrorKind = "backend_error"
	KindFeatureUnavailable ErrorKind = "feature_unavailable"
	KindParse              ErrorKind = "parse_error"
	KindDownload           ErrorKind = "download_failed"
)

// Sentinels usable with errors.Is against any *StructuredError of that kind.
var (
	ErrInputRequired      = &StructuredError{Kind: KindInputRequired}
	ErrUnsupportedInput   = &StructuredError{Kind: KindUnsupportedInput}
	ErrNetwork            = &StructuredError{Kind: KindNetwork}
	ErrBackend            = &StructuredError{Kind: KindBackend}
	ErrFeatureUnavailable = &StructuredError{Kind: KindFeatureUnavailable}
	ErrParse              = &StructuredError{Kind: KindParse}
	ErrDownload           = &StructuredError{Kind: KindDownload}
)

// StructuredError is a user-facing failure. StatusCode is zero when no HTTP
// response was involved.
type StructuredError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	cause      error
}

func (e *StructuredError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches errors of the same kind.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	return ok && t.Kind == e.Kind
}

func (e *StructuredError) Unwrap() error {
	return e.cause
}

// InputRequired builds a client-side validation failure.
func InputRequired(format string, args ...any) *StructuredError {
	return &StructuredError{Kind: KindInputRequired, Message: fmt.Sprintf(format, args...)}
}

func unsupportedInput(format string, args ...any) *StructuredError {
	return &StructuredError{Kind: KindUnsupportedInput, Message: fmt.Sprintf(format, args...)}
}

func networkError(err error) *StructuredError {
	return &StructuredError{Kind: KindNetwork, Message: err.Error(), cause: err}
}

func parseError(status int, err error) *StructuredError {
	return &StructuredError{Kind: KindParse, Message: err.Error(), StatusCode: status, cause: err}
}

func downloadError(err error) *StructuredError {
	return &StructuredError{Kind: KindDownload, Message: err.Error(), cause: err}
}
