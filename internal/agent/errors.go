// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissionAborted wraps the only error class allowed to terminate the
// mission loop: the browser or page infrastructure itself has gone away.
var ErrMissionAborted = errors.New("mission aborted: browser infrastructure failure")

// ProtocolViolationError reports a broken exhaustive-testing protocol. It is
// recoverable by construction: the caller corrects its next proposal. No
// signature is ever banned for a protocol violation.
type ProtocolViolationError struct {
	ExpectedSelector string
	CurrentIndex     int
	Remaining        int
	Proposed         string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf(
		"selector testing protocol violation: expected a click/fill/press on %q (index %d, %d selector(s) still untested), got %q",
		e.ExpectedSelector, e.CurrentIndex, e.Remaining, e.Proposed,
	)
}

// FailureCategory buckets page-operation errors for history analysis and the
// fallback policy table.
type FailureCategory string

const (
	FailureElementNotFound FailureCategory = "ELEMENT_NOT_FOUND"
	FailureTimeout         FailureCategory = "TIMEOUT"
	FailureNavigation      FailureCategory = "NAVIGATION"
	FailureUserInput       FailureCategory = "USER_INPUT_TIMEOUT"
	FailureGeneric         FailureCategory = "GENERIC"
)

// ClassifyPageError maps raw driver error text onto a stable category.
// Heuristic by necessity; driver errors are prose.
func ClassifyPageError(err error) FailureCategory {
	if err == nil {
		return FailureGeneric
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no element") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "strict mode violation") ||
		strings.Contains(msg, "failed to find"):
		return FailureElementNotFound
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(msg, "net::err") || strings.Contains(msg, "navigation"):
		return FailureNavigation
	default:
		return FailureGeneric
	}
}

// infrastructureMarkers identify errors that mean the page itself is gone,
// not that one operation failed on it.
var infrastructureMarkers = []string{
	"target closed",
	"browser has been closed",
	"page has been closed",
	"context was destroyed",
	"execution context was destroyed",
	"connection closed",
	"websocket",
}

// IsInfrastructureError reports whether an error is fatal to the mission.
func IsInfrastructureError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissionAborted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range infrastructureMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
