package accounting

import (
	"context"
	"fmt"
	"strings"

	"github.com/router-for-me/CreditEngine/internal/metrics"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/notify"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	"github.com/router-for-me/CreditEngine/internal/pricing"
	"github.com/router-for-me/CreditEngine/internal/ratelimit"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CreateRequestInput describes a new service request.
type CreateRequestInput struct {
	ClientID      uint64                     `json:"client_id" validate:"required"`
	ServiceTypeID uint64                     `json:"service_type_id" validate:"required"`
	Title         string                     `json:"title" validate:"required,max=255"`
	Priority      string                     `json:"priority"`
	Responses     []models.AttributeResponse `json:"attribute_responses"`
}

// CreateResult is the outcome of creating a request.
type CreateResult struct {
	Success    bool            `json:"success"`
	Request    *models.Request `json:"request,omitempty"`
	Quote      pricing.Quote   `json:"quote"`
	NewBalance int             `json:"new_balance"`
	Missing    []string        `json:"missing,omitempty"`
	Code       outcome.Code    `json:"code,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// QuoteResult is a read-only price for a prospective request.
type QuoteResult struct {
	Allowed bool          `json:"allowed"`
	Quote   pricing.Quote `json:"quote"`
	Missing []string      `json:"missing,omitempty"`
	Code    outcome.Code  `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
}

// CreateRequest prices a request and charges for it. The deduction and the
// insert share one transaction, so a failed charge leaves no request behind
// and a failed insert leaves no charge behind.
func (e *Engine) CreateRequest(ctx context.Context, in CreateRequestInput) (CreateResult, error) {
	if e == nil || e.db == nil || e.ledger == nil {
		return CreateResult{}, errNilEngine
	}
	in.Title = strings.TrimSpace(in.Title)
	if errValidate := e.validate.Struct(in); errValidate != nil {
		return CreateResult{Code: outcome.CodeInvalidInput, Message: validationMessage(errValidate)}, nil
	}
	level, okLevel := pricing.ParsePriority(in.Priority)
	if !okLevel {
		return CreateResult{Code: outcome.CodeInvalidInput, Message: fmt.Sprintf("Unknown priority %q", in.Priority)}, nil
	}

	st, quoted, errQuote := e.quote(ctx, in.ServiceTypeID, in.Responses, level)
	if errQuote != nil {
		return CreateResult{}, errQuote
	}
	if !quoted.Allowed {
		return CreateResult{Quote: quoted.Quote, Missing: quoted.Missing, Code: quoted.Code, Message: quoted.Message}, nil
	}
	if !e.allow(ctx, in.ClientID, ratelimit.ActionCreateRequest) {
		return CreateResult{Quote: quoted.Quote, Code: outcome.CodeThrottled, Message: "Too many requests, please wait a moment"}, nil
	}

	responses := stampAttributeIDs(st.Attributes, in.Responses)
	var res CreateResult
	errRun := e.withRetry(ctx, ratelimit.ActionCreateRequest, func() error {
		res = CreateResult{Quote: quoted.Quote}
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			spend, errSpend := e.ledger.DeductInTx(ctx, tx, in.ClientID, quoted.Quote.Total, fmt.Sprintf("request: %s", in.Title))
			if errSpend != nil {
				return errSpend
			}
			if !spend.Success {
				res.Code = spend.Code
				res.Message = spend.Message
				res.NewBalance = spend.NewBalance
				return nil
			}
			req := models.Request{
				ClientID:           in.ClientID,
				ServiceTypeID:      st.ID,
				Title:              in.Title,
				Priority:           level,
				Status:             models.RequestStatusPending,
				CreditCost:         quoted.Quote.Total,
				AttributeResponses: responses,
			}
			if errCreate := tx.WithContext(ctx).Create(&req).Error; errCreate != nil {
				return outcome.Persistence("accounting: create request", errCreate)
			}
			res.Success = true
			res.Request = &req
			res.NewBalance = spend.NewBalance
			return nil
		})
	})
	if errRun != nil {
		e.metrics.RecordCreditMutation("create_request", metrics.ResultError)
		return CreateResult{}, asPersistence("accounting: create request", errRun)
	}
	if !res.Success {
		e.metrics.RecordCreditMutation("create_request", metrics.ResultRejected)
		return res, nil
	}

	e.metrics.RecordCreditMutation("create_request", metrics.ResultOK)
	log.WithFields(log.Fields{
		"request_id": res.Request.ID,
		"client_id":  in.ClientID,
		"credits":    quoted.Quote.Total,
	}).Info("accounting: request created")
	e.emit(ctx, &notify.SystemComment{
		RequestID: res.Request.ID,
		UserID:    in.ClientID,
		Content: fmt.Sprintf("Request created for %d credits (base %d + attributes %d + priority %d)",
			quoted.Quote.Total, quoted.Quote.Base, quoted.Quote.Attributes, quoted.Quote.Priority),
		Type: notify.CommentTypeCreated,
	}, nil)
	return res, nil
}

// PriceQuote prices a prospective request without charging.
func (e *Engine) PriceQuote(ctx context.Context, serviceTypeID uint64, responses []models.AttributeResponse, priority string) (QuoteResult, error) {
	if e == nil || e.db == nil {
		return QuoteResult{}, errNilEngine
	}
	level, okLevel := pricing.ParsePriority(priority)
	if !okLevel {
		return QuoteResult{Code: outcome.CodeInvalidInput, Message: fmt.Sprintf("Unknown priority %q", priority)}, nil
	}
	_, res, errQuote := e.quote(ctx, serviceTypeID, responses, level)
	return res, errQuote
}

func (e *Engine) quote(ctx context.Context, serviceTypeID uint64, responses []models.AttributeResponse, level models.Priority) (*models.ServiceType, QuoteResult, error) {
	var st models.ServiceType
	if errFind := e.db.WithContext(ctx).Where("id = ?", serviceTypeID).Limit(1).Find(&st).Error; errFind != nil {
		return nil, QuoteResult{}, outcome.Persistence("accounting: load service type", errFind)
	}
	if st.ID == 0 {
		return nil, QuoteResult{Code: outcome.CodeNotFound, Message: "Service type not found"}, nil
	}
	if !st.IsEnabled {
		return nil, QuoteResult{Code: outcome.CodeInvalidState, Message: fmt.Sprintf("Service type %q is not available", st.Name)}, nil
	}
	quote := pricing.TotalCost(&st, responses, level)
	if missing := pricing.ValidateRequired(st.Attributes, responses); len(missing) > 0 {
		return &st, QuoteResult{
			Quote:   quote,
			Missing: missing,
			Code:    outcome.CodeInvalidInput,
			Message: fmt.Sprintf("Missing required answers: %s", strings.Join(missing, ", ")),
		}, nil
	}
	return &st, QuoteResult{Allowed: true, Quote: quote}, nil
}

// stampAttributeIDs records the stable attribute id on each matched answer so
// later lookups survive question rewording.
func stampAttributeIDs(attrs []models.Attribute, responses []models.AttributeResponse) []models.AttributeResponse {
	out := make([]models.AttributeResponse, len(responses))
	copy(out, responses)
	for _, attr := range attrs {
		if strings.TrimSpace(attr.ID) == "" {
			continue
		}
		for i := range out {
			if out[i].AttributeID == "" && out[i].Question == attr.Question {
				out[i].AttributeID = attr.ID
			}
		}
	}
	return out
}

func asPersistence(op string, err error) error {
	if outcome.IsRetryable(err) {
		return err
	}
	return outcome.Persistence(op, err)
}
