// Package aierr defines the error taxonomy shared by every orchestration
// component. Components return *Error values; callers classify them with
// errors.Is against the kind sentinels or with IsRetryable.
package aierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an orchestration failure.
type Kind string

const (
	// KindConfig is a missing or invalid credential/setting. Never retried.
	KindConfig Kind = "config_error"
	// KindRateLimited means the caller exhausted its quota or is cooling down.
	KindRateLimited Kind = "rate_limit_exceeded"
	// KindTransport is a connection-level failure. Retryable.
	KindTransport Kind = "transport_error"
	// KindProvider is a non-2xx response or an explicit error payload.
	// Retryable only for 429 and 5xx.
	KindProvider Kind = "provider_error"
	// KindValidation is a malformed or unparseable response. Never retried.
	KindValidation Kind = "validation_error"
	// KindCache is a cache failure. It degrades to a miss and is never surfaced.
	KindCache Kind = "cache_error"
	// KindCanceled is a canceled or expired caller context.
	KindCanceled Kind = "canceled"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrConfig      = &Error{Kind: KindConfig}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrTransport   = &Error{Kind: KindTransport}
	ErrProvider    = &Error{Kind: KindProvider}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrCache       = &Error{Kind: KindCache}
	ErrCanceled    = &Error{Kind: KindCanceled}
)

// Error is a classified orchestration failure.
type Error struct {
	Kind          Kind
	Op            string
	Provider      string
	StatusCode    int
	Message       string
	CorrelationID string
	// Attempts is the number of provider attempts made before giving up.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		fmt.Fprintf(&b, " [%s]", e.Provider)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if msg := e.message(); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	return b.String()
}

func (e *Error) message() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrRateLimited)
// works regardless of the other fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Config returns a KindConfig error.
func Config(op, format string, args ...any) *Error {
	return New(KindConfig, op, fmt.Sprintf(format, args...))
}

// Validation returns a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

// Transport returns a KindTransport error wrapping err.
func Transport(op string, err error) *Error {
	return Wrap(KindTransport, op, err)
}

// Provider returns a KindProvider error for an HTTP status.
func Provider(op string, status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindProvider, Op: op, StatusCode: status, Message: message}
}

// RateLimited returns a KindRateLimited error.
func RateLimited(op, message string) *Error {
	return New(KindRateLimited, op, message)
}

// KindOf reports the kind of err. Context errors map to KindCanceled and
// unclassified errors to KindProvider.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindProvider
}

// IsRetryable reports whether err is a transient failure: connection errors,
// HTTP 429 and HTTP 5xx.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindTransport:
		return true
	case KindProvider:
		return e.StatusCode == http.StatusTooManyRequests ||
			(e.StatusCode >= 500 && e.StatusCode < 600)
	default:
		return false
	}
}

// As returns err as an *Error, classifying foreign errors.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindOf(err), Err: err}
}

// Failure is the structured, caller-safe form of an orchestration error.
type Failure struct {
	Kind          Kind   `json:"kind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
	StatusCode    int    `json:"status_code,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
}

// AsFailure converts err into a Failure. Nil yields nil.
func AsFailure(err error) *Failure {
	e := As(err)
	if e == nil {
		return nil
	}
	return &Failure{
		Kind:          e.Kind,
		Message:       e.message(),
		CorrelationID: e.CorrelationID,
		StatusCode:    e.StatusCode,
		Attempts:      e.Attempts,
	}
}

// Annotate returns a copy of err's classification with op and correlationID
// filled in where unset. err itself is never mutated.
func Annotate(err error, op, correlationID string) *Error {
	if err == nil {
		return nil
	}
	cp := *As(err)
	if _, ok := err.(*Error); !ok && cp.Err == nil {
		cp.Err = err
	}
	if cp.Op == "" {
		cp.Op = op
	}
	if cp.CorrelationID == "" {
		cp.CorrelationID = correlationID
	}
	return &cp
}
