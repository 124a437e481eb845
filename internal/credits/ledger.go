// Package credits is the single mutator of subscription credit balances.
//
// Every balance change goes through one primitive, DeductInTx or addInTx,
// which locks the active subscription row and applies a conditional update.
// There is no public check-then-deduct pair; CheckCredits is advisory only.
package credits

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/CreditEngine/internal/metrics"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNilLedger = errors.New("credits: nil ledger")

// Operation labels used for metrics and audit reasons.
const (
	opCheck     = "check"
	opDeduct    = "deduct"
	opAdd       = "add"
	opSubscribe = "subscribe"
	opCancel    = "cancel"
)

// CheckResult reports whether a balance covers a required amount.
type CheckResult struct {
	Allowed          bool         `json:"allowed"`
	RemainingCredits int          `json:"remaining_credits"`
	Required         int          `json:"required"`
	Code             outcome.Code `json:"code,omitempty"`
	Message          string       `json:"message,omitempty"`
}

// SpendResult reports the outcome of a balance mutation.
type SpendResult struct {
	Success        bool         `json:"success"`
	NewBalance     int          `json:"new_balance"`
	Amount         int          `json:"amount"`
	SubscriptionID uint64       `json:"subscription_id,omitempty"`
	Reference      string       `json:"reference,omitempty"`
	Code           outcome.Code `json:"code,omitempty"`
	Message        string       `json:"message,omitempty"`
}

// Balance is the read-only view of a client's active subscription.
type Balance struct {
	HasActive        bool       `json:"has_active"`
	SubscriptionID   uint64     `json:"subscription_id,omitempty"`
	PackageID        uint64     `json:"package_id,omitempty"`
	RemainingCredits int        `json:"remaining_credits"`
	EndDate          *time.Time `json:"end_date,omitempty"`
}

// ExpiryStatus describes how close the active subscription is to its end date.
type ExpiryStatus struct {
	HasActive     bool       `json:"has_active"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
	ExpiringSoon  bool       `json:"expiring_soon"`
	Message       string     `json:"message,omitempty"`
}

// Options tunes a Ledger.
type Options struct {
	// ExpiryWarningDays marks a subscription as expiring soon within this many days.
	ExpiryWarningDays int
	// Now overrides the clock.
	Now func() time.Time
	// Metrics receives mutation outcomes; nil disables recording.
	Metrics *metrics.EngineMetrics
}

// Ledger owns reads and writes of subscription balances.
type Ledger struct {
	db          *gorm.DB
	warningDays int
	nowFn       func() time.Time
	metrics     *metrics.EngineMetrics
}

// NewLedger constructs a Ledger.
func NewLedger(db *gorm.DB, opts Options) *Ledger {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	warningDays := opts.ExpiryWarningDays
	if warningDays <= 0 {
		warningDays = 7
	}
	return &Ledger{db: db, warningDays: warningDays, nowFn: nowFn, metrics: opts.Metrics}
}

// DB returns the underlying connection.
func (l *Ledger) DB() *gorm.DB {
	if l == nil {
		return nil
	}
	return l.db
}

// Now returns the ledger clock in UTC.
func (l *Ledger) Now() time.Time {
	return l.nowFn().UTC()
}

// ActiveSubscriptionTx loads the user's active subscription: is_active and not
// yet ended, newest first. With lock set the row is selected FOR UPDATE.
// It returns nil without error when none exists.
func ActiveSubscriptionTx(ctx context.Context, tx *gorm.DB, userID uint64, now time.Time, lock bool) (*models.Subscription, error) {
	if tx == nil {
		return nil, errors.New("credits: nil tx")
	}
	q := tx.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sub models.Subscription
	errFind := q.
		Where("user_id = ? AND is_active = ? AND end_date >= ?", userID, true, now).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&sub).Error
	if errFind != nil {
		return nil, errFind
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

// CheckCredits reports whether the active subscription covers required.
// It fails closed when no active subscription exists.
func (l *Ledger) CheckCredits(ctx context.Context, userID uint64, required int) (CheckResult, error) {
	if l == nil || l.db == nil {
		return CheckResult{}, errNilLedger
	}
	if required < 0 {
		return CheckResult{Code: outcome.CodeInvalidInput, Message: "Required credits cannot be negative"}, nil
	}
	sub, errSub := ActiveSubscriptionTx(ctx, l.db, userID, l.Now(), false)
	if errSub != nil {
		l.metrics.RecordCreditMutation(opCheck, metrics.ResultError)
		return CheckResult{}, outcome.Persistence("credits: check", errSub)
	}
	if sub == nil {
		return CheckResult{
			Required: required,
			Code:     outcome.CodeNoActiveSubscription,
			Message:  "No active subscription found",
		}, nil
	}
	res := CheckResult{
		Allowed:          sub.RemainingCredits >= required,
		RemainingCredits: sub.RemainingCredits,
		Required:         required,
	}
	if !res.Allowed {
		res.Code = outcome.CodeInsufficientCredits
		res.Message = insufficientMessage(required, sub.RemainingCredits)
	}
	return res, nil
}

// DeductCredits removes amount from the active subscription.
func (l *Ledger) DeductCredits(ctx context.Context, userID uint64, amount int, reason string) (SpendResult, error) {
	return l.CheckAndDeductCredits(ctx, userID, amount, reason)
}

// CheckAndDeductCredits verifies and removes amount in one transaction.
func (l *Ledger) CheckAndDeductCredits(ctx context.Context, userID uint64, amount int, reason string) (SpendResult, error) {
	if l == nil || l.db == nil {
		return SpendResult{}, errNilLedger
	}
	var res SpendResult
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errDeduct error
		res, errDeduct = l.DeductInTx(ctx, tx, userID, amount, reason)
		return errDeduct
	})
	if errTx != nil {
		return SpendResult{}, asPersistence("credits: deduct", errTx)
	}
	return res, nil
}

// DeductInTx is the atomic spend primitive. The subscription row is locked and
// the decrement only applies while remaining_credits >= amount, so a balance
// can never go negative even when callers race. The caller owns tx.
func (l *Ledger) DeductInTx(ctx context.Context, tx *gorm.DB, userID uint64, amount int, reason string) (SpendResult, error) {
	if l == nil {
		return SpendResult{}, errNilLedger
	}
	if amount < 0 {
		return SpendResult{Amount: amount, Code: outcome.CodeInvalidInput, Message: "Deduction amount cannot be negative"}, nil
	}

	sub, errSub := ActiveSubscriptionTx(ctx, tx, userID, l.Now(), true)
	if errSub != nil {
		l.metrics.RecordCreditMutation(opDeduct, metrics.ResultError)
		return SpendResult{}, outcome.Persistence("credits: load subscription", errSub)
	}
	if sub == nil {
		l.metrics.RecordCreditMutation(opDeduct, metrics.ResultRejected)
		return SpendResult{Amount: amount, Code: outcome.CodeNoActiveSubscription, Message: "No active subscription found"}, nil
	}
	if amount == 0 {
		return SpendResult{Success: true, NewBalance: sub.RemainingCredits, SubscriptionID: sub.ID}, nil
	}
	if sub.RemainingCredits < amount {
		l.metrics.RecordCreditMutation(opDeduct, metrics.ResultRejected)
		return insufficientSpend(sub, amount, sub.RemainingCredits), nil
	}

	now := l.Now()
	update := tx.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND remaining_credits >= ?", sub.ID, amount).
		Updates(map[string]any{
			"remaining_credits": gorm.Expr("remaining_credits - ?", amount),
			"updated_at":        now,
		})
	if update.Error != nil {
		l.metrics.RecordCreditMutation(opDeduct, metrics.ResultError)
		return SpendResult{}, outcome.Persistence("credits: decrement", update.Error)
	}
	balance, errBalance := readBalance(ctx, tx, sub.ID)
	if errBalance != nil {
		return SpendResult{}, outcome.Persistence("credits: read balance", errBalance)
	}
	if update.RowsAffected != 1 {
		l.metrics.RecordCreditMutation(opDeduct, metrics.ResultRejected)
		return insufficientSpend(sub, amount, balance), nil
	}

	reference, errAudit := writeTransaction(ctx, tx, sub, -amount, balance, reason)
	if errAudit != nil {
		return SpendResult{}, outcome.Persistence("credits: write transaction", errAudit)
	}

	l.metrics.RecordCreditMutation(opDeduct, metrics.ResultOK)
	l.metrics.RecordCreditsSpent(amount)
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
		"balance": balance,
	}).Debug("credits: deducted")

	return SpendResult{
		Success:        true,
		NewBalance:     balance,
		Amount:         amount,
		SubscriptionID: sub.ID,
		Reference:      reference,
	}, nil
}

// AddCredits grants amount to the active subscription. Expired or absent
// subscriptions cannot receive credits.
func (l *Ledger) AddCredits(ctx context.Context, userID uint64, amount int, reason string) (SpendResult, error) {
	if l == nil || l.db == nil {
		return SpendResult{}, errNilLedger
	}
	if amount <= 0 {
		return SpendResult{Amount: amount, Code: outcome.CodeInvalidInput, Message: "Credit amount must be positive"}, nil
	}
	var res SpendResult
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errAdd error
		res, errAdd = l.addInTx(ctx, tx, userID, amount, reason)
		return errAdd
	})
	if errTx != nil {
		l.metrics.RecordCreditMutation(opAdd, metrics.ResultError)
		return SpendResult{}, asPersistence("credits: add", errTx)
	}
	return res, nil
}

func (l *Ledger) addInTx(ctx context.Context, tx *gorm.DB, userID uint64, amount int, reason string) (SpendResult, error) {
	sub, errSub := ActiveSubscriptionTx(ctx, tx, userID, l.Now(), true)
	if errSub != nil {
		return SpendResult{}, outcome.Persistence("credits: load subscription", errSub)
	}
	if sub == nil {
		l.metrics.RecordCreditMutation(opAdd, metrics.ResultRejected)
		return SpendResult{Amount: amount, Code: outcome.CodeNoActiveSubscription, Message: "No active subscription found"}, nil
	}
	if sub.RemainingCredits > math.MaxInt32-amount {
		return SpendResult{Amount: amount, Code: outcome.CodeInvalidInput, Message: "Credit amount exceeds the balance limit"}, nil
	}

	if errUpdate := tx.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"remaining_credits": gorm.Expr("remaining_credits + ?", amount),
			"updated_at":        l.Now(),
		}).Error; errUpdate != nil {
		return SpendResult{}, outcome.Persistence("credits: increment", errUpdate)
	}
	balance, errBalance := readBalance(ctx, tx, sub.ID)
	if errBalance != nil {
		return SpendResult{}, outcome.Persistence("credits: read balance", errBalance)
	}
	reference, errAudit := writeTransaction(ctx, tx, sub, amount, balance, reason)
	if errAudit != nil {
		return SpendResult{}, outcome.Persistence("credits: write transaction", errAudit)
	}

	l.metrics.RecordCreditMutation(opAdd, metrics.ResultOK)
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
		"balance": balance,
	}).Debug("credits: added")

	return SpendResult{
		Success:        true,
		NewBalance:     balance,
		Amount:         amount,
		SubscriptionID: sub.ID,
		Reference:      reference,
	}, nil
}

// GetCreditBalance returns the active subscription balance, zero when none.
func (l *Ledger) GetCreditBalance(ctx context.Context, userID uint64) (Balance, error) {
	if l == nil || l.db == nil {
		return Balance{}, errNilLedger
	}
	sub, errSub := ActiveSubscriptionTx(ctx, l.db, userID, l.Now(), false)
	if errSub != nil {
		return Balance{}, outcome.Persistence("credits: balance", errSub)
	}
	if sub == nil {
		return Balance{}, nil
	}
	end := sub.EndDate.UTC()
	return Balance{
		HasActive:        true,
		SubscriptionID:   sub.ID,
		PackageID:        sub.PackageID,
		RemainingCredits: sub.RemainingCredits,
		EndDate:          &end,
	}, nil
}

// CheckSubscriptionExpiry reports the days left on the active subscription.
func (l *Ledger) CheckSubscriptionExpiry(ctx context.Context, userID uint64) (ExpiryStatus, error) {
	if l == nil || l.db == nil {
		return ExpiryStatus{}, errNilLedger
	}
	now := l.Now()
	sub, errSub := ActiveSubscriptionTx(ctx, l.db, userID, now, false)
	if errSub != nil {
		return ExpiryStatus{}, outcome.Persistence("credits: expiry", errSub)
	}
	if sub == nil {
		return ExpiryStatus{Message: "No active subscription found"}, nil
	}
	end := sub.EndDate.UTC()
	days := int(math.Ceil(end.Sub(now).Hours() / 24))
	if days < 0 {
		days = 0
	}
	status := ExpiryStatus{
		HasActive:     true,
		EndDate:       &end,
		DaysRemaining: days,
		ExpiringSoon:  days <= l.warningDays,
	}
	if status.ExpiringSoon {
		status.Message = fmt.Sprintf("Your subscription expires in %d day(s)", days)
	}
	return status, nil
}

func readBalance(ctx context.Context, tx *gorm.DB, subscriptionID uint64) (int, error) {
	var balance int
	errScan := tx.WithContext(ctx).
		Model(&models.Subscription{}).
		Select("remaining_credits").
		Where("id = ?", subscriptionID).
		Scan(&balance).Error
	return balance, errScan
}

func writeTransaction(ctx context.Context, tx *gorm.DB, sub *models.Subscription, delta, balance int, reason string) (string, error) {
	row := models.CreditTransaction{
		Reference:      uuid.NewString(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Delta:          delta,
		BalanceAfter:   balance,
		Reason:         reason,
	}
	if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", errCreate
	}
	return row.Reference, nil
}

func insufficientSpend(sub *models.Subscription, required, available int) SpendResult {
	return SpendResult{
		NewBalance:     available,
		Amount:         required,
		SubscriptionID: sub.ID,
		Code:           outcome.CodeInsufficientCredits,
		Message:        insufficientMessage(required, available),
	}
}

func insufficientMessage(required, available int) string {
	return fmt.Sprintf("Insufficient credits: %d required, %d available", required, available)
}

// asPersistence tags a transaction error unless it already carries a sentinel.
func asPersistence(op string, err error) error {
	if errors.Is(err, outcome.ErrPersistence) || errors.Is(err, outcome.ErrConflict) {
		return err
	}
	return outcome.Persistence(op, err)
}
