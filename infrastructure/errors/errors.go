// Package errors provides unified error handling for the governance runtime.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a typed string drawn from the fixed enumeration in the
// governance runtime's error taxonomy. Every operation returns either a
// success payload or a failure carrying one of these codes.
type ErrorCode string

const (
	// Validation
	ErrMissingParameter     ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameterType ErrorCode = "INVALID_PARAMETER_TYPE"
	ErrOutOfRange           ErrorCode = "OUT_OF_RANGE"
	ErrAgentNotFound        ErrorCode = "AGENT_NOT_FOUND"
	ErrSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	ErrAgentNotRegistered   ErrorCode = "AGENT_NOT_REGISTERED"
	ErrResourceNotFound     ErrorCode = "RESOURCE_NOT_FOUND"

	// Authentication / authorization
	ErrAuthFailed              ErrorCode = "AUTH_FAILED"
	ErrAuthenticationRequired  ErrorCode = "AUTHENTICATION_REQUIRED"
	ErrOwnershipViolation      ErrorCode = "OWNERSHIP_VIOLATION"
	ErrPermissionDenied        ErrorCode = "PERMISSION_DENIED"
	ErrSessionMismatch         ErrorCode = "SESSION_MISMATCH"

	// State / concurrency
	ErrAlreadyOpen       ErrorCode = "ALREADY_OPEN"
	ErrWrongPhase        ErrorCode = "WRONG_PHASE"
	ErrContention        ErrorCode = "CONTENTION"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrUnsafe            ErrorCode = "UNSAFE"
	ErrNoReviewer        ErrorCode = "NO_REVIEWER"
	ErrAmbiguousExisting ErrorCode = "AMBIGUOUS_EXISTING"

	// System
	ErrUnavailable       ErrorCode = "UNAVAILABLE"
	ErrIntegrationFailure ErrorCode = "INTEGRATION_FAILURE"
	ErrPersistFailure    ErrorCode = "PERSIST_FAILURE"
	ErrInternal          ErrorCode = "INTERNAL"
)

// httpStatusByCode maps each code onto a representative HTTP status for the
// admin/transport surface; the core itself is transport-agnostic.
var httpStatusByCode = map[ErrorCode]int{
	ErrMissingParameter:     http.StatusBadRequest,
	ErrInvalidParameterType: http.StatusBadRequest,
	ErrOutOfRange:           http.StatusBadRequest,
	ErrAgentNotFound:        http.StatusNotFound,
	ErrSessionNotFound:      http.StatusNotFound,
	ErrAgentNotRegistered:   http.StatusNotFound,
	ErrResourceNotFound:     http.StatusNotFound,

	ErrAuthFailed:             http.StatusUnauthorized,
	ErrAuthenticationRequired: http.StatusUnauthorized,
	ErrOwnershipViolation:     http.StatusForbidden,
	ErrPermissionDenied:       http.StatusForbidden,
	ErrSessionMismatch:        http.StatusConflict,

	ErrAlreadyOpen:       http.StatusConflict,
	ErrWrongPhase:        http.StatusConflict,
	ErrContention:        http.StatusConflict,
	ErrRateLimited:       http.StatusTooManyRequests,
	ErrTimeout:           http.StatusGatewayTimeout,
	ErrConflict:          http.StatusConflict,
	ErrUnsafe:            http.StatusUnprocessableEntity,
	ErrNoReviewer:        http.StatusUnprocessableEntity,
	ErrAmbiguousExisting: http.StatusConflict,

	ErrUnavailable:        http.StatusServiceUnavailable,
	ErrIntegrationFailure: http.StatusInternalServerError,
	ErrPersistFailure:     http.StatusInternalServerError,
	ErrInternal:           http.StatusInternalServerError,
}

// ServiceError is the structured failure record every operation returns
// instead of raising an exception, per the governance runtime's "replace
// exceptions-as-control-flow" design.
type ServiceError struct {
	Code       ErrorCode              `json:"error_code"`
	Message    string                 `json:"error"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Recovery   []string               `json:"recovery,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail (offending parameter, expected
// type, etc).
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRecovery attaches suggested follow-up operations to the failure.
func (e *ServiceError) WithRecovery(ops ...string) *ServiceError {
	e.Recovery = append(e.Recovery, ops...)
	return e
}

// New creates a ServiceError for the given code, resolving its HTTP status
// from the fixed taxonomy.
func New(code ErrorCode, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: statusFor(code)}
}

// Wrap creates a ServiceError wrapping an underlying error.
func Wrap(code ErrorCode, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: statusFor(code), Err: err}
}

func statusFor(code ErrorCode) int {
	if s, ok := httpStatusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Constructors for the most frequently raised codes; callers needing a code
// with no dedicated constructor use New/Wrap directly.

func MissingParameter(param string) *ServiceError {
	return New(ErrMissingParameter, "missing required parameter").WithDetails("parameter", param)
}

func OutOfRange(field string, min, max interface{}) *ServiceError {
	return New(ErrOutOfRange, "value out of range").
		WithDetails("field", field).WithDetails("min", min).WithDetails("max", max)
}

func AgentNotFound(uuid string) *ServiceError {
	return New(ErrAgentNotFound, "agent not found").WithDetails("agent_uuid", uuid)
}

func SessionNotFound(id string) *ServiceError {
	return New(ErrSessionNotFound, "dialectic session not found").WithDetails("session_id", id)
}

func AuthFailed(reason string) *ServiceError {
	return New(ErrAuthFailed, reason)
}

func AmbiguousExisting(candidateUUID, agentID, displayName string) *ServiceError {
	return New(ErrAmbiguousExisting, "an existing identity matches this request context").
		WithDetails("candidate_uuid", candidateUUID).
		WithDetails("candidate_agent_id", agentID).
		WithDetails("candidate_display_name", displayName).
		WithRecovery("retry with resume=true to adopt the existing identity",
			"retry with force_new=true to create a fresh identity")
}

func AlreadyOpen(sessionID string) *ServiceError {
	return New(ErrAlreadyOpen, "agent already has an open dialectic session").WithDetails("session_id", sessionID)
}

func WrongPhase(have, want string) *ServiceError {
	return New(ErrWrongPhase, "operation not valid in the session's current phase").
		WithDetails("phase", have).WithDetails("expected", want)
}

func Contention(name string) *ServiceError {
	return New(ErrContention, "could not acquire write lock").WithDetails("lock", name).
		WithRecovery("retry after backoff")
}

func RateLimited(class string) *ServiceError {
	return New(ErrRateLimited, "rate limit exceeded").WithDetails("operation_class", class)
}

func Unsafe(reason string) *ServiceError {
	return New(ErrUnsafe, reason).
		WithRecovery("self_recovery_review", "request_dialectic_review")
}

func NoReviewer() *ServiceError {
	return New(ErrNoReviewer, "no eligible reviewer scored above threshold")
}

func Unavailable(what string) *ServiceError {
	return New(ErrUnavailable, fmt.Sprintf("%s is unavailable", what))
}

func IntegrationFailure(err error) *ServiceError {
	return Wrap(ErrIntegrationFailure, "state integration produced a non-finite value", err)
}

func PersistFailure(err error) *ServiceError {
	return Wrap(ErrPersistFailure, "failed to persist advanced state", err)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrInternal, message, err)
}

// IsServiceError reports whether err is (or wraps) a *ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// As extracts a *ServiceError from an error chain.
func As(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// Code extracts the ErrorCode from an error, or ErrInternal if err is not a
// ServiceError.
func Code(err error) ErrorCode {
	if se := As(err); se != nil {
		return se.Code
	}
	return ErrInternal
}
