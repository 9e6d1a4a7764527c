/*
Copyright 2026 The SAMFMS Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the stable error taxonomy shared by every SCF
// component. A handler never returns a bare error across a component
// boundary; it returns (or wraps into) an *AppError so the RPC layer,
// the HTTP middleware, and the event bus all map failures the same way.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Type is the stable, wire-visible error classification. It is what the
// RPC layer puts in ResponseEnvelope.error.type and what the correlation
// middleware uses to pick an HTTP status code.
type Type string

const (
	TypeValidation         Type = "Validation"
	TypeAuthentication     Type = "Authentication"
	TypeAuthorization      Type = "Authorization"
	TypeNotFound           Type = "NotFound"
	TypeConflict           Type = "Conflict"
	TypeRateLimit          Type = "RateLimit"
	TypeBusinessRule       Type = "BusinessRule"
	TypeTimeout            Type = "Timeout"
	TypeServiceUnavailable Type = "ServiceUnavailable"
	TypeBroker             Type = "Broker"
	TypeStorage            Type = "Storage"
	TypeUpstream           Type = "Upstream"
	TypeInternal           Type = "Internal"
)

// statusByType is the fixed mapping table from §4.7 / §7 of the spec.
var statusByType = map[Type]int{
	TypeValidation:         http.StatusBadRequest,
	TypeAuthentication:     http.StatusUnauthorized,
	TypeAuthorization:      http.StatusForbidden,
	TypeNotFound:           http.StatusNotFound,
	TypeConflict:           http.StatusConflict,
	TypeRateLimit:          http.StatusTooManyRequests,
	TypeBusinessRule:       http.StatusUnprocessableEntity,
	TypeInternal:           http.StatusInternalServerError,
	TypeServiceUnavailable: http.StatusServiceUnavailable,
	TypeTimeout:            http.StatusGatewayTimeout,
	TypeUpstream:           http.StatusBadGateway,
	TypeBroker:             http.StatusInternalServerError,
	TypeStorage:            http.StatusInternalServerError,
}

// AppError is the single error shape that crosses every component boundary.
type AppError struct {
	Type          Type
	Message       string
	Details       string
	CorrelationID string
	Timestamp     time.Time
	Cause         error
}

// New creates an AppError with no cause.
func New(t Type, message string) *AppError {
	return &AppError{Type: t, Message: message, Timestamp: time.Now().UTC()}
}

// Newf creates an AppError with a formatted message.
func Newf(t Type, format string, args ...any) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError carrying an underlying cause.
func Wrap(cause error, t Type, message string) *AppError {
	return &AppError{Type: t, Message: message, Cause: cause, Timestamp: time.Now().UTC()}
}

// Wrapf creates an AppError with a formatted message and an underlying cause.
func Wrapf(cause error, t Type, format string, args ...any) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", lower(e.Type), e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Cause }

// StatusCode returns the HTTP status for the error's type, falling back to
// 500 for any type not present in the table (there should not be one).
func (e *AppError) StatusCode() int {
	if code, ok := statusByType[e.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WithDetails attaches human-facing detail and returns the same error
// (mutated in place) for chaining at the call site.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCorrelationID attaches the correlation id the response envelope will
// echo back to the caller.
func (e *AppError) WithCorrelationID(id string) *AppError {
	e.CorrelationID = id
	return e
}

func lower(t Type) string {
	switch t {
	case TypeValidation:
		return "validation"
	case TypeAuthentication:
		return "authentication"
	case TypeAuthorization:
		return "authorization"
	case TypeNotFound:
		return "not_found"
	case TypeConflict:
		return "conflict"
	case TypeRateLimit:
		return "rate_limit"
	case TypeBusinessRule:
		return "business_rule"
	case TypeTimeout:
		return "timeout"
	case TypeServiceUnavailable:
		return "service_unavailable"
	case TypeBroker:
		return "broker"
	case TypeStorage:
		return "storage"
	case TypeUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// As reports whether err is (or wraps) an *AppError and, if so, returns it.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Predefined constructors mirroring the ones the fabric's handlers reach
// for most often.

func NewValidationError(message string) *AppError { return New(TypeValidation, message) }

func NewNotFoundError(resource string) *AppError {
	return New(TypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewConflictError(message string) *AppError { return New(TypeConflict, message) }

func NewAuthenticationError(message string) *AppError { return New(TypeAuthentication, message) }

func NewAuthorizationError(message string) *AppError { return New(TypeAuthorization, message) }

func NewTimeoutError(message string) *AppError { return New(TypeTimeout, message) }

func NewBusinessRuleError(message string) *AppError { return New(TypeBusinessRule, message) }

func NewServiceUnavailableError(service string, cause error) *AppError {
	return Wrapf(cause, TypeServiceUnavailable, "%s is unavailable", service)
}

func NewBrokerError(operation string, cause error) *AppError {
	return Wrapf(cause, TypeBroker, "broker operation failed: %s", operation)
}

func NewStorageError(operation string, cause error) *AppError {
	return Wrapf(cause, TypeStorage, "storage operation failed: %s", operation)
}

func NewUpstreamError(service string, cause error) *AppError {
	return Wrapf(cause, TypeUpstream, "upstream call to %s failed", service)
}

// NewInternalError hides the cause from callers by design — internal errors
// never leak implementation detail unless the process runs in dev mode; the
// caller decides whether to attach Details from logging.IsDevMode() at the
// call site.
func NewInternalError(cause error) *AppError {
	return Wrap(cause, TypeInternal, "an internal error occurred")
}

// ClassName returns a stable "exception class name" for an arbitrary error,
// used when a non-AppError bubbles out of a handler and needs a `type`
// string for the response envelope (spec §4.2). AppErrors use their own Type.
func ClassName(err error) Type {
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return TypeInternal
}
