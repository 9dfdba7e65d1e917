// Package errs provides structured error types and helpers shared across the
// tip ingestion services.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an ingestion error category.
type Code string

const (
	// CodeInvalidEvent indicates a canonical event that failed validation.
	CodeInvalidEvent Code = "invalid_event"
	// CodeRateLimited indicates the upstream source throttled the request.
	CodeRateLimited Code = "rate_limited"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeNotFound indicates a missing resource or unknown identifier.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a uniqueness conflict in the relational store.
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates the upstream source is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
	// CodeConfig indicates invalid or missing operator configuration.
	CodeConfig Code = "config"
)

// E captures structured error information produced across the pipeline.
type E struct {
	// Source names the external system or component the failure belongs to
	// (for example "edgar", "reddit", "outbox").
	Source  string
	Code    Code
	HTTP    int
	Entity  string
	Field   string
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the source and error code.
func New(source string, code Code, opts ...Option) *E {
	e := &E{
		Source: strings.TrimSpace(source),
		Code:   code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithEntity records the watched entity (CIK, subreddit) the failure concerns.
func WithEntity(entity string) Option {
	trimmed := strings.TrimSpace(entity)
	return func(e *E) {
		e.Entity = trimmed
	}
}

// WithField records the event field that failed validation.
func WithField(field string) Option {
	trimmed := strings.TrimSpace(field)
	return func(e *E) {
		e.Field = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	source := strings.TrimSpace(e.Source)
	if source == "" {
		source = "unknown"
	}
	parts = append(parts, "source="+source)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Entity != "" {
		parts = append(parts, "entity="+strconv.Quote(e.Entity))
	}
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// InvalidEvent returns a validation error naming the offending field.
func InvalidEvent(field, reason string) *E {
	return New("schema", CodeInvalidEvent, WithField(field), WithMessage(reason))
}

// CodeOf extracts the envelope code from err, or an empty Code when err does
// not wrap an *E.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given envelope code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
