package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/CreditEngine/internal/metrics"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionResult reports the outcome of subscribing or cancelling.
type SubscriptionResult struct {
	Success      bool                 `json:"success"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	Code         outcome.Code         `json:"code,omitempty"`
	Message      string               `json:"message,omitempty"`
}

// Subscribe starts a new subscription to packageID. Any other active
// subscription of the user is deactivated in the same transaction, so at most
// one subscription per user is ever active.
func (l *Ledger) Subscribe(ctx context.Context, userID, packageID uint64) (SubscriptionResult, error) {
	if l == nil || l.db == nil {
		return SubscriptionResult{}, errNilLedger
	}
	var res SubscriptionResult
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pkg models.Package
		if errFind := tx.WithContext(ctx).Where("id = ?", packageID).Limit(1).Find(&pkg).Error; errFind != nil {
			return outcome.Persistence("credits: load package", errFind)
		}
		if pkg.ID == 0 {
			res = SubscriptionResult{Code: outcome.CodeNotFound, Message: "Package not found"}
			return nil
		}
		if !pkg.IsEnabled {
			res = SubscriptionResult{Code: outcome.CodeInvalidState, Message: fmt.Sprintf("Package %q is not available", pkg.Name)}
			return nil
		}

		// Concurrent subscribes for one user queue on the user row.
		if errLock := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).Limit(1).Find(&models.User{}).Error; errLock != nil {
			return outcome.Persistence("credits: lock user", errLock)
		}

		now := l.Now()
		if errDeactivate := tx.WithContext(ctx).
			Model(&models.Subscription{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Updates(map[string]any{"is_active": false, "updated_at": now}).Error; errDeactivate != nil {
			return outcome.Persistence("credits: deactivate subscriptions", errDeactivate)
		}

		days := pkg.DurationDays
		if days <= 0 {
			days = 30
		}
		sub := models.Subscription{
			UserID:           userID,
			PackageID:        pkg.ID,
			RemainingCredits: pkg.Credits,
			StartDate:        now,
			EndDate:          now.Add(time.Duration(days) * 24 * time.Hour),
			IsActive:         true,
		}
		if errCreate := tx.WithContext(ctx).Create(&sub).Error; errCreate != nil {
			return outcome.Persistence("credits: create subscription", errCreate)
		}
		if pkg.Credits > 0 {
			reason := fmt.Sprintf("%s: %s", opSubscribe, pkg.Name)
			if _, errAudit := writeTransaction(ctx, tx, &sub, pkg.Credits, sub.RemainingCredits, reason); errAudit != nil {
				return outcome.Persistence("credits: write transaction", errAudit)
			}
		}
		sub.Package = pkg
		res = SubscriptionResult{Success: true, Subscription: &sub}
		return nil
	})
	if errTx != nil {
		l.metrics.RecordCreditMutation(opSubscribe, metrics.ResultError)
		return SubscriptionResult{}, asPersistence("credits: subscribe", errTx)
	}
	if !res.Success {
		l.metrics.RecordCreditMutation(opSubscribe, metrics.ResultRejected)
		return res, nil
	}
	l.metrics.RecordCreditMutation(opSubscribe, metrics.ResultOK)
	log.WithFields(log.Fields{
		"user_id":    userID,
		"package_id": packageID,
		"credits":    res.Subscription.RemainingCredits,
	}).Info("credits: subscribed")
	return res, nil
}

// CancelSubscription ends the user's active subscription. The row is kept.
func (l *Ledger) CancelSubscription(ctx context.Context, userID uint64) (SubscriptionResult, error) {
	if l == nil || l.db == nil {
		return SubscriptionResult{}, errNilLedger
	}
	var res SubscriptionResult
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, errSub := ActiveSubscriptionTx(ctx, tx, userID, l.Now(), true)
		if errSub != nil {
			return outcome.Persistence("credits: load subscription", errSub)
		}
		if sub == nil {
			res = SubscriptionResult{Code: outcome.CodeNoActiveSubscription, Message: "No active subscription found"}
			return nil
		}
		if errUpdate := tx.WithContext(ctx).
			Model(&models.Subscription{}).
			Where("id = ?", sub.ID).
			Updates(map[string]any{"is_active": false, "updated_at": l.Now()}).Error; errUpdate != nil {
			return outcome.Persistence("credits: cancel subscription", errUpdate)
		}
		sub.IsActive = false
		res = SubscriptionResult{Success: true, Subscription: sub}
		return nil
	})
	if errTx != nil {
		l.metrics.RecordCreditMutation(opCancel, metrics.ResultError)
		return SubscriptionResult{}, asPersistence("credits: cancel", errTx)
	}
	if res.Success {
		l.metrics.RecordCreditMutation(opCancel, metrics.ResultOK)
	} else {
		l.metrics.RecordCreditMutation(opCancel, metrics.ResultRejected)
	}
	return res, nil
}
