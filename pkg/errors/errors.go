// Package errors defines the error taxonomy for the sync core.
// Errors are categorized so callers can decide between silent recovery
// (rollback, reconnect) and user-visible notification.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType categorizes different error types
type ErrorType string

const (
	// Mutation errors
	ErrorTypeAlreadyPending   ErrorType = "already_pending"
	ErrorTypeMutationRejected ErrorType = "mutation_rejected"

	// Realtime errors
	ErrorTypeConnectionLost ErrorType = "connection_lost"
	ErrorTypeMalformedEvent ErrorType = "malformed_event"
	ErrorTypeRoomNotJoined  ErrorType = "room_not_joined"

	// Network errors
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeTimeout ErrorType = "timeout"
	ErrorTypeHTTP    ErrorType = "http"

	// Authentication errors
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"

	// Server errors
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeServer    ErrorType = "server"

	ErrorTypeUnknown ErrorType = "unknown"
)

// SyncError represents a structured error with context
type SyncError struct {
	Type       ErrorType
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface
func (e *SyncError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// New creates a new sync error
func New(errorType ErrorType, message string, cause error) *SyncError {
	return &SyncError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// AlreadyPending signals a second mutation attempted on a busy entity.
// It is a no-op signal, not a failure: the caller drops the mutation.
func AlreadyPending(entityID, kind string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeAlreadyPending,
		Message: fmt.Sprintf("mutation %s already pending for entity %s", kind, entityID),
	}
}

// MutationRejected signals the server declined an optimistic change.
// The store rolls back and surfaces a transient notification.
func MutationRejected(entityID, kind string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeMutationRejected,
		Message: fmt.Sprintf("server rejected %s on entity %s", kind, entityID),
		Cause:   cause,
	}
}

// ConnectionLost signals the socket disconnected. Recovery is automatic
// via reconnect and backfill.
func ConnectionLost(cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeConnectionLost,
		Message: "realtime connection lost",
		Cause:   cause,
	}
}

// MalformedEvent signals an unparseable inbound payload. The event is
// dropped and logged, never surfaced to the user.
func MalformedEvent(eventType string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeMalformedEvent,
		Message: fmt.Sprintf("malformed %s event", eventType),
		Cause:   cause,
	}
}

// RoomNotJoined signals an outbound event on a room that is not Joined.
func RoomNotJoined(roomID string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeRoomNotJoined,
		Message: fmt.Sprintf("room %s is not joined", roomID),
	}
}

// FromStatusCode maps an HTTP status code to a sync error
func FromStatusCode(statusCode int, message string) *SyncError {
	var errorType ErrorType
	switch {
	case statusCode == 401:
		errorType = ErrorTypeUnauthorized
	case statusCode == 403:
		errorType = ErrorTypeForbidden
	case statusCode == 404:
		errorType = ErrorTypeNotFound
	case statusCode == 429:
		errorType = ErrorTypeRateLimit
	case statusCode >= 500:
		errorType = ErrorTypeServer
	case statusCode >= 400:
		errorType = ErrorTypeHTTP
	default:
		errorType = ErrorTypeUnknown
	}

	return &SyncError{
		Type:       errorType,
		Message:    message,
		StatusCode: statusCode,
	}
}

// TypeOf extracts the error type, or ErrorTypeUnknown for foreign errors
func TypeOf(err error) ErrorType {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Type
	}
	return ErrorTypeUnknown
}

// IsAlreadyPending returns true for the single-flight no-op signal
func IsAlreadyPending(err error) bool {
	return TypeOf(err) == ErrorTypeAlreadyPending
}

// IsMutationRejected returns true for server-declined mutations
func IsMutationRejected(err error) bool {
	return TypeOf(err) == ErrorTypeMutationRejected
}

// IsConnectionLost returns true for socket disconnection errors
func IsConnectionLost(err error) bool {
	return TypeOf(err) == ErrorTypeConnectionLost
}

// IsRetryable returns true if the operation may succeed on retry
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeConnectionLost, ErrorTypeRateLimit, ErrorTypeServer:
		return true
	}
	return false
}
