// Package errors provides the unified error taxonomy (§7) the ingestion
// coordinator, hybrid retriever and HTTP ingress layer all report through:
// eight semantic kinds, each carrying its own local-recovery policy and
// HTTP status mapping.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Kind is one of the eight error kinds the core distinguishes. Component
// code reports a Kind; the ingestion coordinator and hybrid retriever
// decide retry/degrade/fail policy from it (§7).
type Kind string

const (
	// KindTransient covers network hiccups, 5xx responses and timeouts.
	// Local recovery: retry with jittered backoff.
	KindTransient Kind = "TRANSIENT"

	// KindRateLimited covers a 429 response or a limiter veto. Local
	// recovery: suspend until available_in, increment backoff on repeat.
	KindRateLimited Kind = "RATE_LIMITED"

	// KindUnauthorized covers a rejected credential. Surfaced to the
	// caller; never retried.
	KindUnauthorized Kind = "UNAUTHORIZED"

	// KindNotFound covers a gone resource (chunk, entity, collection).
	// Treated as empty where semantically valid, else surfaced.
	KindNotFound Kind = "NOT_FOUND"

	// KindValidation covers malformed input or a dimension mismatch.
	// Fatal for the request; never retried.
	KindValidation Kind = "VALIDATION"

	// KindConsistency covers an I2/I3/I4 invariant breach. Schedules a
	// compensating action and raises an alarm.
	KindConsistency Kind = "CONSISTENCY"

	// KindDegradedDependency covers a backend unavailable past its
	// circuit-breaker threshold. Enters a degradation mode.
	KindDegradedDependency Kind = "DEGRADED_DEPENDENCY"

	// KindFatal covers a startup misconfiguration. Refuses to start.
	KindFatal Kind = "FATAL"
)

// StandardError is the structured error every component reports and the
// HTTP ingress layer renders through the stable `{ok, error}` envelope.
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
}

// Error implements the error interface.
func (e *StandardError) Error() string {
	return e.ErrorInfo.Message
}

// ErrorDetails carries the error kind, a human message and optional
// structured detail (validation field, rate-limit window, ...).
type ErrorDetails struct {
	Kind       Kind        `json:"kind"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter *time.Duration `json:"retry_after,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`
}

// ValidationDetail names the offending field for a KindValidation error.
type ValidationDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// RateLimitDetail carries the limiter state behind a KindRateLimited error.
type RateLimitDetail struct {
	Limit      int           `json:"limit"`
	Window     string        `json:"window"`
	RetryAfter time.Duration `json:"retry_after"`
	Remaining  int           `json:"remaining"`
}

// New builds a StandardError of the given kind.
func New(kind Kind, message string, details interface{}) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{Kind: kind, Message: message, Details: details}}
}

// NewValidationError builds a KindValidation error naming the bad field.
func NewValidationError(field, reason string, value interface{}) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:    KindValidation,
		Message: fmt.Sprintf("validation failed for field '%s': %s", field, reason),
		Details: ValidationDetail{Field: field, Reason: reason, Value: value},
	}}
}

// NewRequiredFieldError builds a KindValidation error for a missing field.
func NewRequiredFieldError(field string) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:    KindValidation,
		Message: fmt.Sprintf("required field '%s' is missing", field),
		Details: ValidationDetail{Field: field, Reason: "missing_required_field"},
	}}
}

// NewRateLimitError builds a KindRateLimited error, setting the HTTP
// Retry-After the caller should honor.
func NewRateLimitError(limit int, window string, retryAfter time.Duration, remaining int) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
		Details:    RateLimitDetail{Limit: limit, Window: window, RetryAfter: retryAfter, Remaining: remaining},
		RetryAfter: &retryAfter,
	}}
}

// NewUnauthorizedError builds a KindUnauthorized error.
func NewUnauthorizedError(reason string) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:    KindUnauthorized,
		Message: "authentication required",
		Details: map[string]interface{}{"reason": reason},
	}}
}

// NewNotFoundError builds a KindNotFound error naming the missing resource.
func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}}
}

// NewConsistencyError builds a KindConsistency error for an I2/I3/I4 breach.
func NewConsistencyError(invariant, message string) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:    KindConsistency,
		Message: message,
		Details: map[string]interface{}{"invariant": invariant},
	}}
}

// NewDegradedDependencyError builds a KindDegradedDependency error for a
// circuit-broken backend.
func NewDegradedDependencyError(dependency string, cause error) *StandardError {
	details := map[string]interface{}{"dependency": dependency}
	if cause != nil {
		details["cause"] = cause.Error()
	}
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:    KindDegradedDependency,
		Message: fmt.Sprintf("%s is degraded", dependency),
		Details: details,
	}}
}

// NewFatalError builds a KindFatal startup-misconfiguration error.
func NewFatalError(message string, cause error) *StandardError {
	details := map[string]interface{}{}
	if cause != nil {
		details["cause"] = cause.Error()
	}
	return &StandardError{ErrorInfo: ErrorDetails{Kind: KindFatal, Message: message, Details: details}}
}

// NewInternalError builds a KindTransient error wrapping an unexpected
// failure (the closest of the eight kinds to "unhandled internal error";
// it is still eligible for retry with backoff, unlike KindValidation).
func NewInternalError(message string, cause error) *StandardError {
	details := map[string]interface{}{"timestamp": time.Now().UTC().Format(time.RFC3339)}
	if cause != nil {
		details["cause"] = cause.Error()
	}
	return &StandardError{ErrorInfo: ErrorDetails{Kind: KindTransient, Message: message, Details: details}}
}

// WithTraceID attaches a trace id for debugging.
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// ToHTTPStatus maps the error's Kind to the HTTP status the ingress layer
// returns.
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindDegradedDependency:
		return http.StatusServiceUnavailable
	case KindConsistency, KindTransient:
		return http.StatusInternalServerError
	case KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON serializes the error.
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError renders the error as the stable envelope §7 describes:
// {ok: false, error: {kind, message, retry_after?}}.
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}
	if e.ErrorInfo.Kind == KindRateLimited {
		if rl, ok := e.ErrorInfo.Details.(RateLimitDetail); ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", rl.RetryAfter.Seconds()))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.Remaining))
		}
	}

	w.WriteHeader(e.ToHTTPStatus())
	envelope := struct {
		OK    bool          `json:"ok"`
		Error *ErrorDetails `json:"error"`
	}{OK: false, Error: &e.ErrorInfo}
	body, _ := json.Marshal(envelope)
	_, _ = w.Write(body)
}

// Predefined common errors for convenience.
var (
	ErrQueryRequired   = NewRequiredFieldError("query")
	ErrContentRequired = NewRequiredFieldError("content")

	ErrUnauthorizedAccess = NewUnauthorizedError("authentication_required")

	ErrInternalServer     = NewInternalError("internal server error occurred", nil)
	ErrServiceUnavailable = NewDegradedDependencyError("service", nil)
)

// IsValidationError reports whether err is a KindValidation StandardError.
func IsValidationError(err *StandardError) bool {
	return err != nil && err.ErrorInfo.Kind == KindValidation
}

// IsAuthenticationError reports whether err is a KindUnauthorized StandardError.
func IsAuthenticationError(err *StandardError) bool {
	return err != nil && err.ErrorInfo.Kind == KindUnauthorized
}

// IsSystemError reports whether err is one of the kinds the ingress layer
// treats as a server-side failure (transient, degraded dependency, fatal,
// consistency).
func IsSystemError(err *StandardError) bool {
	if err == nil {
		return false
	}
	switch err.ErrorInfo.Kind {
	case KindTransient, KindDegradedDependency, KindFatal, KindConsistency:
		return true
	default:
		return false
	}
}
