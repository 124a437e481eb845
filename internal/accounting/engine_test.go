package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/CreditEngine/internal/config"
	"github.com/router-for-me/CreditEngine/internal/credits"
	internaldb "github.com/router-for-me/CreditEngine/internal/db"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/notify"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	"github.com/router-for-me/CreditEngine/internal/ratelimit"
	internalsettings "github.com/router-for-me/CreditEngine/internal/settings"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	clientID   uint64 = 100
	providerID uint64 = 200
)

type recordingSink struct {
	mu            sync.Mutex
	notifications []notify.Notification
	comments      []notify.SystemComment
	fail          bool
}

func (s *recordingSink) CreateNotification(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	if s.fail {
		return errors.New("notification service down")
	}
	return nil
}

func (s *recordingSink) CreateSystemComment(_ context.Context, c notify.SystemComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, c)
	if s.fail {
		panic("comment service exploded")
	}
	return nil
}

type harness struct {
	conn   *gorm.DB
	engine *Engine
	sink   *recordingSink
	st     models.ServiceType
	sub    models.Subscription
}

func newHarness(t *testing.T, balance int, throttle *ratelimit.Manager) *harness {
	t.Helper()
	conn, errOpen := internaldb.Open(filepath.Join(t.TempDir(), "accounting.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := internaldb.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	included := 20.0
	low, medium, high := 0, 2, 5
	st := models.ServiceType{
		Name:               "Brochure",
		CreditCost:         3,
		MaxFreeRevisions:   1,
		PaidRevisionCost:   2,
		PriorityCostLow:    &low,
		PriorityCostMedium: &medium,
		PriorityCostHigh:   &high,
		Attributes: []models.Attribute{
			{ID: "pages", Question: "How many pages?", Type: models.AttributeTypeNumber, Required: true, CreditImpact: 1, IncludedQuantity: &included},
			{ID: "notes", Question: "Anything else?", Type: models.AttributeTypeTextarea},
		},
	}
	if errCreate := conn.Create(&st).Error; errCreate != nil {
		t.Fatalf("create service type: %v", errCreate)
	}
	sub := models.Subscription{
		UserID:           clientID,
		PackageID:        1,
		RemainingCredits: balance,
		StartDate:        testNow.Add(-time.Hour),
		EndDate:          testNow.Add(30 * 24 * time.Hour),
		IsActive:         true,
	}
	if errCreate := conn.Create(&sub).Error; errCreate != nil {
		t.Fatalf("create subscription: %v", errCreate)
	}

	sink := &recordingSink{}
	ledger := credits.NewLedger(conn, credits.Options{Now: func() time.Time { return testNow }})
	engine := NewEngine(conn, Options{
		Config:    config.EngineConfig{MinFeedbackLength: 10, SpendRetryAttempts: 2},
		Ledger:    ledger,
		Throttle:  throttle,
		Notifier:  sink,
		Commenter: sink,
	})
	return &harness{conn: conn, engine: engine, sink: sink, st: st, sub: sub}
}

func (h *harness) balance(t *testing.T) int {
	t.Helper()
	var sub models.Subscription
	if errFind := h.conn.First(&sub, h.sub.ID).Error; errFind != nil {
		t.Fatalf("reload subscription: %v", errFind)
	}
	return sub.RemainingCredits
}

func (h *harness) deliveredRequest(t *testing.T) models.Request {
	t.Helper()
	provider := providerID
	req := models.Request{
		ClientID:      clientID,
		ProviderID:    &provider,
		ServiceTypeID: h.st.ID,
		Title:         "Spring brochure",
		Status:        models.RequestStatusDelivered,
		Priority:      models.PriorityLow,
	}
	if errCreate := h.conn.Create(&req).Error; errCreate != nil {
		t.Fatalf("create request: %v", errCreate)
	}
	return req
}

func TestRequestRevisionRejectsShortFeedback(t *testing.T) {
	h := newHarness(t, 10, nil)
	req := h.deliveredRequest(t)

	res, err := h.engine.RequestRevision(context.Background(), RevisionInput{RequestID: req.ID, UserID: clientID, Feedback: "  too short  "})
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if res.Allowed || res.Code != outcome.CodeInvalidInput || res.Message != "Feedback must be at least 10 characters" {
		t.Fatalf("expected feedback rejection, got %+v", res)
	}
	var reloaded models.Request
	h.conn.First(&reloaded, req.ID)
	if reloaded.Status != models.RequestStatusDelivered || reloaded.TotalRevisions != 0 {
		t.Fatalf("expected request untouched, got %+v", reloaded)
	}
}

func TestRequestRevisionFeedbackSettingOverride(t *testing.T) {
	h := newHarness(t, 10, nil)
	req := h.deliveredRequest(t)
	internalsettings.StoreDBConfig(map[string]json.RawMessage{
		internalsettings.MinFeedbackLengthKey: json.RawMessage(`40`),
	})
	t.Cleanup(func() { internalsettings.StoreDBConfig(nil) })

	res, err := h.engine.RequestRevision(context.Background(), RevisionInput{RequestID: req.ID, UserID: clientID, Feedback: "Please change the cover colour."})
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if res.Code != outcome.CodeInvalidInput || !strings.Contains(res.Message, "40") {
		t.Fatalf("expected 40 character minimum, got %+v", res)
	}
}

func TestRequestRevisionEmitsEffectsAfterCommit(t *testing.T) {
	h := newHarness(t, 10, nil)
	req := h.deliveredRequest(t)

	res, err := h.engine.RequestRevision(context.Background(), RevisionInput{RequestID: req.ID, UserID: clientID, Feedback: "Please change the cover colour."})
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if !res.Allowed || !res.IsFree || res.NewRevisionCount != 1 {
		t.Fatalf("expected free revision, got %+v", res)
	}
	if len(h.sink.comments) != 1 || len(h.sink.notifications) != 1 {
		t.Fatalf("expected one comment and one notification, got %d and %d", len(h.sink.comments), len(h.sink.notifications))
	}
	comment := h.sink.comments[0]
	if !strings.Contains(comment.Content, "(1/1 free revisions used)") || !strings.Contains(comment.Content, "cover colour") {
		t.Fatalf("unexpected comment: %q", comment.Content)
	}
	if h.sink.notifications[0].UserID != providerID {
		t.Fatalf("expected provider notified, got %+v", h.sink.notifications[0])
	}
}

func TestRequestRevisionSideEffectFailureKeepsMutation(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.sink.fail = true
	req := h.deliveredRequest(t)
	h.conn.Model(&models.Request{}).Where("id = ?", req.ID).Update("current_revision_count", 1)

	res, err := h.engine.RequestRevision(context.Background(), RevisionInput{RequestID: req.ID, UserID: clientID, Feedback: "Second round of edits please."})
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if !res.Allowed || res.IsFree || res.CreditCost != 2 {
		t.Fatalf("expected paid revision, got %+v", res)
	}
	if got := h.balance(t); got != 8 {
		t.Fatalf("expected balance 8 despite failing collaborators, got %d", got)
	}
	var reloaded models.Request
	h.conn.First(&reloaded, req.ID)
	if reloaded.Status != models.RequestStatusRevisionRequested || reloaded.CreditCost != 2 {
		t.Fatalf("expected committed revision, got %+v", reloaded)
	}
}

func TestRequestRevisionThrottled(t *testing.T) {
	now := testNow
	throttle := ratelimit.NewManager(func() ratelimit.SettingsConfig {
		return ratelimit.SettingsConfig{Limit: 1}
	}, func() time.Time { return now }, nil)
	h := newHarness(t, 10, throttle)
	req := h.deliveredRequest(t)
	in := RevisionInput{RequestID: req.ID, UserID: clientID, Feedback: "Please change the cover colour."}

	if res, err := h.engine.RequestRevision(context.Background(), in); err != nil || !res.Allowed {
		t.Fatalf("expected first revision allowed, got %+v err=%v", res, err)
	}
	res, err := h.engine.RequestRevision(context.Background(), in)
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if res.Allowed || res.Code != outcome.CodeThrottled {
		t.Fatalf("expected throttled, got %+v", res)
	}
}

func TestWithRetryBounded(t *testing.T) {
	h := newHarness(t, 0, nil)

	calls := 0
	err := h.engine.withRetry(context.Background(), ratelimit.ActionRevision, func() error {
		calls++
		if calls < 3 {
			return outcome.ErrConflict
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = h.engine.withRetry(context.Background(), ratelimit.ActionRevision, func() error {
		calls++
		return outcome.ErrConflict
	})
	if !errors.Is(err, outcome.ErrConflict) || calls != 3 {
		t.Fatalf("expected conflict after 3 attempts, got err=%v calls=%d", err, calls)
	}

	calls = 0
	errPlain := errors.New("not retryable")
	err = h.engine.withRetry(context.Background(), ratelimit.ActionRevision, func() error {
		calls++
		return errPlain
	})
	if !errors.Is(err, errPlain) || calls != 1 {
		t.Fatalf("expected single attempt for plain error, got err=%v calls=%d", err, calls)
	}
}

func TestRequestRevisionRetriesConcurrentChange(t *testing.T) {
	h := newHarness(t, 10, nil)
	req := h.deliveredRequest(t)
	if errUpdate := h.conn.Model(&models.Request{}).Where("id = ?", req.ID).
		Update("current_revision_count", 1).Error; errUpdate != nil {
		t.Fatalf("exhaust free revisions: %v", errUpdate)
	}

	attempts := 0
	errRegister := h.conn.Callback().Update().Before("gorm:update").Register("creditengine:change_request", func(tx *gorm.DB) {
		if tx.Statement.Table != "requests" {
			return
		}
		attempts++
		if attempts == 1 {
			tx.Session(&gorm.Session{NewDB: true}).
				Exec("UPDATE requests SET total_revisions = total_revisions + 1 WHERE id = ?", req.ID)
		}
	})
	if errRegister != nil {
		t.Fatalf("register callback: %v", errRegister)
	}

	res, err := h.engine.RequestRevision(context.Background(), RevisionInput{RequestID: req.ID, UserID: clientID, Feedback: "Please change the cover colour."})
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected two attempts, got %d", attempts)
	}
	if !res.Allowed || res.IsFree || res.CreditCost != 2 || res.NewBalance == nil || *res.NewBalance != 8 {
		t.Fatalf("expected paid revision on retry, got %+v", res)
	}
	if got := h.balance(t); got != 8 {
		t.Fatalf("expected single charge leaving 8, got %d", got)
	}
	var reloaded models.Request
	h.conn.First(&reloaded, req.ID)
	if reloaded.TotalRevisions != 1 || reloaded.Status != models.RequestStatusRevisionRequested {
		t.Fatalf("expected one applied revision, got %+v", reloaded)
	}
	if len(h.sink.comments) != 1 {
		t.Fatalf("expected one comment, got %d", len(h.sink.comments))
	}
}
