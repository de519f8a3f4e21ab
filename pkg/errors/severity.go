// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SEError is a structured error with pipeline context.
type SEError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Stage       string   `json:"stage,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *SEError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s (stage: %s)", e.Severity, e.Code, msg, e.Stage)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, msg)
}

func (e *SEError) Unwrap() error { return e.Err }

// Error codes
const (
	ErrCodeModelCallFailed   = "MODEL_CALL_FAILED"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodePriceNotFound     = "PRICE_NOT_FOUND"
	ErrCodePipelineAborted   = "PIPELINE_ABORTED"
	ErrCodeStoreFailed       = "STORE_FAILED"
)

// NewModelCallError wraps a failed language-model invocation.
func NewModelCallError(stage string, err error) *SEError {
	return &SEError{
		Code:        ErrCodeModelCallFailed,
		Message:     "model call failed",
		Severity:    SeverityError,
		Stage:       stage,
		Recoverable: true,
		Err:         err,
	}
}

// NewPriceNotFoundError creates an error for unresolved pricing.
func NewPriceNotFoundError(service, sku, region string) *SEError {
	return &SEError{
		Code:        ErrCodePriceNotFound,
		Message:     fmt.Sprintf("price not found for %s (%s) in %s", service, sku, region),
		Severity:    SeverityWarning,
		Stage:       "pricing",
		Recoverable: true,
	}
}

// NewPipelineAbortedError reports a failure in the coordination glue itself.
func NewPipelineAbortedError(reason string, err error) *SEError {
	return &SEError{
		Code:        ErrCodePipelineAborted,
		Message:     reason,
		Severity:    SeverityFatal,
		Recoverable: false,
		Err:         err,
	}
}

// NewStoreError wraps a persistence failure.
func NewStoreError(op string, err error) *SEError {
	return &SEError{
		Code:        ErrCodeStoreFailed,
		Message:     op,
		Severity:    SeverityWarning,
		Recoverable: true,
		Err:         err,
	}
}

// MalformedResponseError is returned when a model response cannot be turned
// into a document: no parsable JSON, or a field outside its allowed values.
type MalformedResponseError struct {
	Stage   string
	Reason  string
	Payload string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed model response: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed model response: %s", e.Stage, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NewMalformedResponseError builds a MalformedResponseError.
func NewMalformedResponseError(stage, reason, payload string, err error) *MalformedResponseError {
	return &MalformedResponseError{Stage: stage, Reason: reason, Payload: payload, Err: err}
}

// IsMalformed reports whether err wraps a MalformedResponseError.
func IsMalformed(err error) bool {
	var m *MalformedResponseError
	return stderrors.As(err, &m)
}

// CodeOf returns the error code carried by err, or "" if none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if IsMalformed(err) {
		return ErrCodeMalformedResponse
	}
	var se *SEError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}
