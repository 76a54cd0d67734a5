package model

import "errors"

var (
	// ErrInvalidInput marks malformed requests, bad range grammar, or
	// unsupported formats.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks unknown document ids and unregistered folders.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedType marks files no registered parser can handle.
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrParseFailed marks a parser that could not extract text. Recorded
	// per-document; never fatal to the folder.
	ErrParseFailed = errors.New("parse failed")
	// ErrStoreBusy is the retryable subclass of store failures.
	ErrStoreBusy = errors.New("store busy")
	// ErrStoreUnavailable marks transactional, integrity, or disk failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrModelUnavailable marks permanent embedding-provider failures.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrCancelled marks cooperative cancellation.
	ErrCancelled = errors.New("cancelled")
	// ErrPatternTooExpensive marks regex searches that exceed the scan budget.
	ErrPatternTooExpensive = errors.New("pattern too expensive")
	// ErrInternal marks invariant violations; always logged with context.
	ErrInternal = errors.New("internal error")
)

// ProviderError carries structured failure detail from an embedding backend.
type ProviderError struct {
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether err should be retried with backoff rather than
// surfaced. Context errors are never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return false
	}
	if errors.Is(err, ErrStoreBusy) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
