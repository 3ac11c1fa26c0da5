package asr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownTask indicates that provider does not know (or forgot) the task,
// no progress is possible for such job
var ErrUnknownTask = errors.New("unknown task")

// ProviderError is returned when the provider rejects a call
type ProviderError struct {
	Op         string
	StatusCode int
	Msg        string
	err        error
}

// NewProviderError creates new error
func NewProviderError(op string, code int, msg string) *ProviderError {
	return &ProviderError{Op: op, StatusCode: code, Msg: msg}
}

// NewUnknownTaskError creates provider error marked as unknown task
func NewUnknownTaskError(op string, code int, msg string) *ProviderError {
	return &ProviderError{Op: op, StatusCode: code, Msg: msg, err: ErrUnknownTask}
}

func (e *ProviderError) Error() string {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return fmt.Sprintf("asr %s: authentication failed (HTTP %d): %s", e.Op, e.StatusCode, e.Msg)
	}
	if e.err != nil {
		return fmt.Sprintf("asr %s: %v (HTTP %d): %s", e.Op, e.err, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("asr %s: HTTP %d: %s", e.Op, e.StatusCode, e.Msg)
}

func (e *ProviderError) Unwrap() error {
	return e.err
}

// MalformedResultError indicates a succeeded task with a result that can't be used
type MalformedResultError struct {
	err error
}

// NewMalformedResultError creates new error
func NewMalformedResultError(err error) error {
	return &MalformedResultError{err: err}
}

func (e *MalformedResultError) Error() string {
	return "malformed result: " + e.err.Error()
}

func (e *MalformedResultError) Unwrap() error {
	return e.err
}

// IsUnknownTask checks if err says the task is gone
func IsUnknownTask(err error) bool {
	return errors.Is(err, ErrUnknownTask)
}

// IsProviderError checks if err is a provider rejection
func IsProviderError(err error) bool {
	var pErr *ProviderError
	return errors.As(err, &pErr)
}

// IsMalformedResult checks if err is a result parse failure
func IsMalformedResult(err error) bool {
	var mErr *MalformedResultError
	return errors.As(err, &mErr)
}
