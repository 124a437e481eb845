// Package ratelimit throttles repeated spend actions per user.
package ratelimit

import (
	"context"
	"time"
)

// Action names a throttled user action.
type Action string

// Throttled spend actions.
const (
	ActionRevision      Action = "revision"
	ActionCreateRequest Action = "create_request"
)

// Result describes the outcome of a throttle check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter counts hits against a key within the current one-second window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}
