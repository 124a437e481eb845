// Package accounting composes pricing, the credit ledger and the revision
// state machine into the user-facing spend actions.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/router-for-me/CreditEngine/internal/config"
	"github.com/router-for-me/CreditEngine/internal/credits"
	"github.com/router-for-me/CreditEngine/internal/metrics"
	"github.com/router-for-me/CreditEngine/internal/notify"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	"github.com/router-for-me/CreditEngine/internal/ratelimit"
	"github.com/router-for-me/CreditEngine/internal/revision"
	internalsettings "github.com/router-for-me/CreditEngine/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var errNilEngine = errors.New("accounting: nil engine")

// retryBackoff is the base pause between retried attempts.
const retryBackoff = 20 * time.Millisecond

// Options wires an Engine.
type Options struct {
	Config    config.EngineConfig
	Ledger    *credits.Ledger
	Throttle  *ratelimit.Manager
	Notifier  notify.Notifier
	Commenter notify.Commenter
	Metrics   *metrics.EngineMetrics
}

// Engine runs the revision and request-creation flows.
type Engine struct {
	db        *gorm.DB
	ledger    *credits.Ledger
	revisions *revision.Service
	throttle  *ratelimit.Manager
	notifier  notify.Notifier
	commenter notify.Commenter
	metrics   *metrics.EngineMetrics
	validate  *validator.Validate
	cfg       config.EngineConfig
}

// NewEngine constructs an Engine over db. Missing collaborators fall back to
// a ledger on db and log-only notification sinks.
func NewEngine(db *gorm.DB, opts Options) *Engine {
	ledger := opts.Ledger
	if ledger == nil {
		ledger = credits.NewLedger(db, credits.Options{ExpiryWarningDays: opts.Config.ExpiryWarningDays, Metrics: opts.Metrics})
	}
	var notifier notify.Notifier = notify.LogSink{}
	if opts.Notifier != nil {
		notifier = opts.Notifier
	}
	var commenter notify.Commenter = notify.LogSink{}
	if opts.Commenter != nil {
		commenter = opts.Commenter
	}
	cfg := opts.Config
	if cfg.MinFeedbackLength <= 0 {
		cfg.MinFeedbackLength = config.DefaultMinFeedbackLength
	}
	if cfg.SpendRetryAttempts < 0 {
		cfg.SpendRetryAttempts = 0
	}
	return &Engine{
		db:        db,
		ledger:    ledger,
		revisions: revision.NewService(db, ledger),
		throttle:  opts.Throttle,
		notifier:  notifier,
		commenter: commenter,
		metrics:   opts.Metrics,
		validate:  newValidator(),
		cfg:       cfg,
	}
}

// Ledger returns the credit ledger.
func (e *Engine) Ledger() *credits.Ledger {
	if e == nil {
		return nil
	}
	return e.ledger
}

// Revisions returns the revision service.
func (e *Engine) Revisions() *revision.Service {
	if e == nil {
		return nil
	}
	return e.revisions
}

// MinFeedbackLength returns the effective minimum revision feedback length.
// A positive DB setting overrides the config file.
func (e *Engine) MinFeedbackLength() int {
	if v := internalsettings.IntValue(internalsettings.MinFeedbackLengthKey, 0); v > 0 {
		return v
	}
	return e.cfg.MinFeedbackLength
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into one display line.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}

// allow consults the spend throttle. Throttle failures never block spending.
func (e *Engine) allow(ctx context.Context, userID uint64, action ratelimit.Action) bool {
	if e.throttle == nil {
		return true
	}
	res, errAllow := e.throttle.AllowAction(ctx, userID, action)
	if errAllow != nil {
		log.WithError(errAllow).WithField("action", action).Warn("accounting: throttle check failed")
		return true
	}
	return res.Allowed
}

// withRetry runs fn, retrying conflicts and persistence failures a bounded
// number of times.
func (e *Engine) withRetry(ctx context.Context, action ratelimit.Action, fn func() error) error {
	attempts := e.cfg.SpendRetryAttempts + 1
	var errLast error
	for attempt := 1; attempt <= attempts; attempt++ {
		errLast = fn()
		if errLast == nil || !outcome.IsRetryable(errLast) || attempt == attempts {
			return errLast
		}
		e.metrics.RecordRetry(string(action))
		log.WithError(errLast).WithFields(log.Fields{
			"action":  action,
			"attempt": attempt,
		}).Warn("accounting: retrying spend")
		select {
		case <-ctx.Done():
			return errors.Join(errLast, ctx.Err())
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return errLast
}

// emit delivers post-commit side effects; failures are logged only.
func (e *Engine) emit(ctx context.Context, comment *notify.SystemComment, notification *notify.Notification) {
	if comment != nil {
		c := *comment
		notify.Dispatch(ctx, "system_comment", func(ctx context.Context) error {
			return e.commenter.CreateSystemComment(ctx, c)
		})
	}
	if notification != nil {
		n := *notification
		notify.Dispatch(ctx, "notification", func(ctx context.Context) error {
			return e.notifier.CreateNotification(ctx, n)
		})
	}
}
