package revision

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/CreditEngine/internal/credits"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/notify"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNilService = errors.New("revision: nil service")

// Result is the outcome of a revision request.
type Result struct {
	Allowed          bool                `json:"allowed"`
	IsFree           bool                `json:"is_free"`
	CreditCost       int                 `json:"credit_cost"`
	NewRevisionCount int                 `json:"new_revision_count"`
	TotalRevisions   int                 `json:"total_revisions"`
	MaxFree          int                 `json:"max_free"`
	CounterReset     bool                `json:"counter_reset"`
	NewBalance       *int                `json:"new_balance,omitempty"`
	RevisionType     models.RevisionType `json:"revision_type,omitempty"`
	Code             outcome.Code        `json:"code,omitempty"`
	Message          string              `json:"message"`

	// Effects are emitted by the caller once the transaction has committed.
	Effects Effects `json:"-"`
}

// Effects are the side effects produced by a committed revision.
type Effects struct {
	Comment      *notify.SystemComment
	Notification *notify.Notification
}

// Info is the read-only revision projection of a request.
type Info struct {
	Allowed                bool         `json:"allowed"`
	RequestID              uint64       `json:"request_id"`
	CurrentCount           int          `json:"current_count"`
	MaxFree                int          `json:"max_free"`
	TotalRevisions         int          `json:"total_revisions"`
	NextRevisionCost       int          `json:"next_revision_cost"`
	FreeRevisionsRemaining int          `json:"free_revisions_remaining"`
	NextIsFree             bool         `json:"next_is_free"`
	ResetOnPaid            bool         `json:"reset_on_paid"`
	Code                   outcome.Code `json:"code,omitempty"`
	Message                string       `json:"message,omitempty"`
}

// Service applies revision decisions to stored requests.
type Service struct {
	db     *gorm.DB
	ledger *credits.Ledger
}

// NewService constructs a Service spending through ledger.
func NewService(db *gorm.DB, ledger *credits.Ledger) *Service {
	return &Service{db: db, ledger: ledger}
}

// HandleRevisionRequest moves a delivered request into REVISION_REQUESTED,
// charging the paid revision cost when the free allotment is exhausted.
// The deduction and the request update share one transaction; if the request
// changed since it was read the whole attempt fails with outcome.ErrConflict.
func (s *Service) HandleRevisionRequest(ctx context.Context, requestID, userID uint64) (Result, error) {
	if s == nil || s.db == nil || s.ledger == nil {
		return Result{}, errNilService
	}
	var res Result
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errHandle error
		res, errHandle = s.handleInTx(ctx, tx, requestID, userID)
		return errHandle
	})
	if errTx != nil {
		if errors.Is(errTx, outcome.ErrConflict) || errors.Is(errTx, outcome.ErrPersistence) {
			return Result{}, errTx
		}
		return Result{}, outcome.Persistence("revision: handle", errTx)
	}
	return res, nil
}

func (s *Service) handleInTx(ctx context.Context, tx *gorm.DB, requestID, userID uint64) (Result, error) {
	req, errReq := loadRequest(ctx, tx, requestID, true)
	if errReq != nil {
		return Result{}, outcome.Persistence("revision: load request", errReq)
	}
	if req == nil {
		return Result{Code: outcome.CodeNotFound, Message: "Request not found"}, nil
	}
	if req.ClientID != userID {
		return Result{Code: outcome.CodeForbidden, Message: "Only the client who submitted this request can ask for a revision"}, nil
	}
	if req.Status != models.RequestStatusDelivered || !CanTransition(req.Status, models.RequestStatusRevisionRequested) {
		return Result{
			Code:    outcome.CodeInvalidState,
			Message: fmt.Sprintf("Revisions can only be requested for delivered work (current status: %s)", req.Status),
		}, nil
	}

	sub, errSub := credits.ActiveSubscriptionTx(ctx, tx, userID, s.ledger.Now(), true)
	if errSub != nil {
		return Result{}, outcome.Persistence("revision: load subscription", errSub)
	}
	if sub == nil {
		return Result{Code: outcome.CodeNoActiveSubscription, Message: "No active subscription found"}, nil
	}

	st, errST := loadServiceType(ctx, tx, req.ServiceTypeID)
	if errST != nil {
		return Result{}, outcome.Persistence("revision: load service type", errST)
	}
	if st == nil {
		return Result{Code: outcome.CodeNotFound, Message: "Service type not found"}, nil
	}
	policy := LivePolicy(st)
	decision := Decide(req.CurrentRevisionCount, policy)

	res := Result{
		IsFree:           decision.Free,
		CreditCost:       decision.Cost,
		NewRevisionCount: decision.NextCount,
		TotalRevisions:   req.TotalRevisions + 1,
		MaxFree:          policy.MaxFree,
		CounterReset:     decision.Reset,
	}

	if !decision.Free {
		if sub.RemainingCredits < decision.Cost {
			return Result{
				Code:    outcome.CodeInsufficientCredits,
				Message: fmt.Sprintf("Insufficient credits for a paid revision: %d required, %d available", decision.Cost, sub.RemainingCredits),
			}, nil
		}
		spend, errSpend := s.ledger.DeductInTx(ctx, tx, userID, decision.Cost, fmt.Sprintf("revision: request %d", req.ID))
		if errSpend != nil {
			return Result{}, errSpend
		}
		if !spend.Success {
			return Result{Code: spend.Code, Message: spend.Message}, nil
		}
		balance := spend.NewBalance
		res.NewBalance = &balance
	}

	revisionType := models.RevisionTypeFree
	if !decision.Free {
		revisionType = models.RevisionTypePaid
	}
	update := tx.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ? AND current_revision_count = ? AND total_revisions = ?",
			req.ID, models.RequestStatusDelivered, req.CurrentRevisionCount, req.TotalRevisions).
		Updates(map[string]any{
			"current_revision_count": decision.NextCount,
			"total_revisions":        gorm.Expr("total_revisions + ?", 1),
			"credit_cost":            gorm.Expr("credit_cost + ?", decision.Cost),
			"status":                 models.RequestStatusRevisionRequested,
			"is_revision":            true,
			"revision_type":          revisionType,
			"updated_at":             s.ledger.Now(),
		})
	if update.Error != nil {
		return Result{}, outcome.Persistence("revision: update request", update.Error)
	}
	if update.RowsAffected != 1 {
		return Result{}, fmt.Errorf("revision: request %d changed concurrently: %w", req.ID, outcome.ErrConflict)
	}

	res.Allowed = true
	res.RevisionType = revisionType
	res.Message = revisionMessage(decision, policy)
	res.Effects = revisionEffects(req, userID, res)

	log.WithFields(log.Fields{
		"request_id": req.ID,
		"user_id":    userID,
		"type":       revisionType,
		"cost":       decision.Cost,
		"count":      decision.NextCount,
	}).Debug("revision: requested")
	return res, nil
}

// GetRevisionInfo projects the next revision's price from the live policy.
// The client and the assigned provider may read it.
func (s *Service) GetRevisionInfo(ctx context.Context, requestID, userID uint64) (Info, error) {
	if s == nil || s.db == nil {
		return Info{}, errNilService
	}
	req, errReq := loadRequest(ctx, s.db, requestID, false)
	if errReq != nil {
		return Info{}, outcome.Persistence("revision: load request", errReq)
	}
	if req == nil {
		return Info{RequestID: requestID, Code: outcome.CodeNotFound, Message: "Request not found"}, nil
	}
	if req.ClientID != userID && (req.ProviderID == nil || *req.ProviderID != userID) {
		return Info{RequestID: requestID, Code: outcome.CodeForbidden, Message: "You do not have access to this request"}, nil
	}
	st, errST := loadServiceType(ctx, s.db, req.ServiceTypeID)
	if errST != nil {
		return Info{}, outcome.Persistence("revision: load service type", errST)
	}
	if st == nil {
		return Info{RequestID: requestID, Code: outcome.CodeNotFound, Message: "Service type not found"}, nil
	}
	return project(req, LivePolicy(st)), nil
}

// IsRevisionFree reports whether the next revision of a request costs nothing.
// Unknown requests and service types report false.
func (s *Service) IsRevisionFree(ctx context.Context, requestID uint64) (bool, error) {
	if s == nil || s.db == nil {
		return false, errNilService
	}
	req, errReq := loadRequest(ctx, s.db, requestID, false)
	if errReq != nil {
		return false, outcome.Persistence("revision: load request", errReq)
	}
	if req == nil {
		return false, nil
	}
	st, errST := loadServiceType(ctx, s.db, req.ServiceTypeID)
	if errST != nil {
		return false, outcome.Persistence("revision: load service type", errST)
	}
	if st == nil {
		return false, nil
	}
	return Decide(req.CurrentRevisionCount, LivePolicy(st)).Free, nil
}

func project(req *models.Request, policy Policy) Info {
	decision := Decide(req.CurrentRevisionCount, policy)
	return Info{
		Allowed:                true,
		RequestID:              req.ID,
		CurrentCount:           req.CurrentRevisionCount,
		MaxFree:                policy.MaxFree,
		TotalRevisions:         req.TotalRevisions,
		NextRevisionCost:       decision.Cost,
		FreeRevisionsRemaining: FreeRemaining(req.CurrentRevisionCount, policy),
		NextIsFree:             decision.Free,
		ResetOnPaid:            policy.ResetOnPaid,
	}
}

func revisionMessage(d Decision, p Policy) string {
	switch {
	case d.Free:
		return fmt.Sprintf("Free revision requested (%d/%d free revisions used)", d.NextCount, p.MaxFree)
	case d.Reset:
		return fmt.Sprintf("Paid revision requested for %d credits. Free revisions have been reset (0/%d used)", d.Cost, p.MaxFree)
	default:
		return fmt.Sprintf("Paid revision requested for %d credits (%d/%d free revisions used)", d.Cost, d.NextCount, p.MaxFree)
	}
}

func revisionEffects(req *models.Request, userID uint64, res Result) Effects {
	effects := Effects{
		Comment: &notify.SystemComment{
			RequestID: req.ID,
			UserID:    userID,
			Content:   res.Message,
			Type:      notify.CommentTypeRevision,
		},
	}
	if req.ProviderID != nil && *req.ProviderID != 0 {
		kind := "Free"
		if !res.IsFree {
			kind = "Paid"
		}
		effects.Notification = &notify.Notification{
			UserID:  *req.ProviderID,
			Title:   "Revision requested",
			Message: fmt.Sprintf("%s revision requested for %q", kind, req.Title),
			Link:    fmt.Sprintf("/requests/%d", req.ID),
		}
	}
	return effects
}

func loadRequest(ctx context.Context, conn *gorm.DB, requestID uint64, lock bool) (*models.Request, error) {
	q := conn.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var req models.Request
	if errFind := q.Where("id = ?", requestID).Limit(1).Find(&req).Error; errFind != nil {
		return nil, errFind
	}
	if req.ID == 0 {
		return nil, nil
	}
	return &req, nil
}

// loadServiceType reads the current service type row; a missing row yields nil.
func loadServiceType(ctx context.Context, conn *gorm.DB, id uint64) (*models.ServiceType, error) {
	var st models.ServiceType
	if errFind := conn.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&st).Error; errFind != nil {
		return nil, errFind
	}
	if st.ID == 0 {
		return nil, nil
	}
	return &st, nil
}
