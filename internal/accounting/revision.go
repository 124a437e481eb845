package accounting

import (
	"context"
	"fmt"
	"strings"

	"github.com/router-for-me/CreditEngine/internal/metrics"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	"github.com/router-for-me/CreditEngine/internal/ratelimit"
	"github.com/router-for-me/CreditEngine/internal/revision"
)

// RevisionInput is a client's revision request.
type RevisionInput struct {
	RequestID uint64 `json:"request_id"`
	UserID    uint64 `json:"user_id"`
	Feedback  string `json:"feedback"`
}

// RequestRevision validates the feedback, applies the revision and emits the
// resulting comment and provider notification after the change commits.
func (e *Engine) RequestRevision(ctx context.Context, in RevisionInput) (revision.Result, error) {
	if e == nil || e.revisions == nil {
		return revision.Result{}, errNilEngine
	}
	feedback := strings.TrimSpace(in.Feedback)
	minLength := e.MinFeedbackLength()
	if errValidate := e.validate.Var(feedback, fmt.Sprintf("required,min=%d", minLength)); errValidate != nil {
		e.metrics.RecordRevision("", metrics.ResultRejected)
		return revision.Result{
			Code:    outcome.CodeInvalidInput,
			Message: fmt.Sprintf("Feedback must be at least %d characters", minLength),
		}, nil
	}
	if !e.allow(ctx, in.UserID, ratelimit.ActionRevision) {
		e.metrics.RecordRevision("", metrics.ResultRejected)
		return revision.Result{Code: outcome.CodeThrottled, Message: "Too many revision requests, please wait a moment"}, nil
	}

	var res revision.Result
	errRun := e.withRetry(ctx, ratelimit.ActionRevision, func() error {
		var errHandle error
		res, errHandle = e.revisions.HandleRevisionRequest(ctx, in.RequestID, in.UserID)
		return errHandle
	})
	if errRun != nil {
		e.metrics.RecordRevision("", metrics.ResultError)
		return revision.Result{}, errRun
	}
	if !res.Allowed {
		e.metrics.RecordRevision("", metrics.ResultRejected)
		return res, nil
	}

	e.metrics.RecordRevision(string(res.RevisionType), metrics.ResultOK)
	if res.Effects.Comment != nil {
		res.Effects.Comment.Content = fmt.Sprintf("%s\n\nFeedback: %s", res.Effects.Comment.Content, feedback)
	}
	e.emit(ctx, res.Effects.Comment, res.Effects.Notification)
	return res, nil
}
