// Package outcome defines the failure vocabulary shared by the accounting engine.
//
// Business failures travel as values (a Code plus a display message on a result
// struct). Store failures travel as Go errors tagged with ErrPersistence.
package outcome

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an expected business failure.
type Code string

// Business failure codes.
const (
	CodeNone                 Code = ""
	CodeNotFound             Code = "not_found"
	CodeForbidden            Code = "forbidden"
	CodeInvalidState         Code = "invalid_state"
	CodeInsufficientCredits  Code = "insufficient_credits"
	CodeNoActiveSubscription Code = "no_active_subscription"
	CodeInvalidInput         Code = "invalid_input"
	CodeThrottled            Code = "throttled"
)

// Sentinel errors for non-business failures.
var (
	// ErrPersistence marks a failed read or write against the store.
	ErrPersistence = errors.New("credits: persistence failure")
	// ErrConflict marks a lost optimistic update; the operation may be retried.
	ErrConflict = errors.New("credits: concurrent update conflict")
)

// Persistence wraps a store error so callers can match ErrPersistence.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsRetryable reports whether the operation may be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistence)
}

// HTTPStatus maps a business failure code to an HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNone:
		return http.StatusOK
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidState:
		return http.StatusConflict
	case CodeInsufficientCredits, CodeNoActiveSubscription:
		return http.StatusPaymentRequired
	case CodeThrottled:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}
