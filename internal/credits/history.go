package credits

import (
	"context"
	"time"

	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/outcome"
)

// History page size bounds.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryQuery filters a user's ledger history.
type HistoryQuery struct {
	Limit    int
	BeforeID uint64     // Only rows with a smaller id, for paging.
	Since    *time.Time // Only rows created at or after this instant.
}

// HistoryPage is one page of ledger rows, newest first.
type HistoryPage struct {
	Transactions []models.CreditTransaction `json:"transactions"`
	NextBeforeID uint64                     `json:"next_before_id,omitempty"`
}

// ListTransactions returns the audit rows for userID, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, userID uint64, q HistoryQuery) (HistoryPage, error) {
	if l == nil || l.db == nil {
		return HistoryPage{}, errNilLedger
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := l.db.WithContext(ctx).Model(&models.CreditTransaction{}).Where("user_id = ?", userID)
	if q.BeforeID > 0 {
		query = query.Where("id < ?", q.BeforeID)
	}
	if q.Since != nil {
		query = query.Where("created_at >= ?", q.Since.UTC())
	}

	var rows []models.CreditTransaction
	if errFind := query.Order("id DESC").Limit(limit + 1).Find(&rows).Error; errFind != nil {
		return HistoryPage{}, outcome.Persistence("credits: history", errFind)
	}
	page := HistoryPage{Transactions: rows}
	if len(rows) > limit {
		page.Transactions = rows[:limit]
		page.NextBeforeID = rows[limit-1].ID
	}
	return page, nil
}
