package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// Conflict family: the caller must re-fetch state before deciding to retry.

func NewAlreadyAssigned(sessionID string) error {
	return NewDomainError("ALREADY_ASSIGNED", "session is no longer waiting", http.StatusConflict,
		map[string]any{"session_id": sessionID})
}

func NewStaleState(sessionID string) error {
	return NewDomainError("STALE_STATE", "session changed concurrently", http.StatusConflict,
		map[string]any{"session_id": sessionID})
}

func NewSessionClosed(sessionID string) error {
	return NewDomainError("SESSION_CLOSED", "session is closed", http.StatusConflict,
		map[string]any{"session_id": sessionID})
}

// Capacity family: recoverable by retrying assignment later.

func NewAgentAtCapacity(agentID string) error {
	return NewDomainError("AGENT_AT_CAPACITY", "agent has no spare capacity", http.StatusConflict,
		map[string]any{"agent_id": agentID})
}

func NewAgentOffline(agentID string) error {
	return NewDomainError("AGENT_OFFLINE", "agent is not online", http.StatusConflict,
		map[string]any{"agent_id": agentID})
}

func NewNoAgentAvailable(category string) error {
	return NewDomainError("NO_AGENT_AVAILABLE", "no eligible agent available", http.StatusConflict,
		map[string]any{"category": category})
}

func NewNoSessionsWaiting() error {
	return NewDomainError("NO_SESSIONS_WAITING", "no sessions waiting for an agent", http.StatusNotFound, nil)
}

func NewRatingOutOfRange(rating int) error {
	return NewDomainError("RATING_OUT_OF_RANGE", "rating must be between 1 and 5", http.StatusBadRequest,
		map[string]any{"rating": rating})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf extracts the DomainError code, or "" for non-domain errors.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}
