package front

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/accounting"
	"github.com/router-for-me/CreditEngine/internal/config"
	internaldb "github.com/router-for-me/CreditEngine/internal/db"
	"github.com/router-for-me/CreditEngine/internal/models"
	"github.com/router-for-me/CreditEngine/internal/security"
	"gorm.io/gorm"
)

const testSecret = "front-test-secret"

type fixture struct {
	conn     *gorm.DB
	router   *gin.Engine
	client   models.User
	provider models.User
	pkg      models.Package
	st       models.ServiceType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := internaldb.Open(filepath.Join(t.TempDir(), "front.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := internaldb.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	f := &fixture{conn: conn}
	f.client = models.User{Username: "client", Role: models.UserRoleClient, Active: true}
	f.provider = models.User{Username: "provider", Role: models.UserRoleProvider, Active: true}
	for _, u := range []*models.User{&f.client, &f.provider} {
		if errCreate := conn.Create(u).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
	}
	f.pkg = models.Package{Name: "Starter", Credits: 20, DurationDays: 30, IsEnabled: true}
	if errCreate := conn.Create(&f.pkg).Error; errCreate != nil {
		t.Fatalf("create package: %v", errCreate)
	}
	f.st = models.ServiceType{
		Name:             "Logo",
		CreditCost:       5,
		MaxFreeRevisions: 1,
		PaidRevisionCost: 3,
		IsEnabled:        true,
	}
	if errCreate := conn.Create(&f.st).Error; errCreate != nil {
		t.Fatalf("create service type: %v", errCreate)
	}

	engine := accounting.NewEngine(conn, accounting.Options{
		Config: config.EngineConfig{MinFeedbackLength: 10, SpendRetryAttempts: 1},
	})
	f.router = gin.New()
	RegisterFrontRoutes(f.router, conn, config.JWTConfig{Secret: testSecret, Expiry: time.Hour}, engine)
	return f
}

func (f *fixture) token(t *testing.T, u models.User) string {
	t.Helper()
	token, errIssue := security.IssueUserToken(testSecret, u.ID, string(u.Role), time.Hour, time.Now())
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if errUnmarshal := json.Unmarshal(rec.Body.Bytes(), &out); errUnmarshal != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), errUnmarshal)
		}
	}
	return rec.Code, out
}

func TestPackagesArePublic(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/v0/front/packages", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	packages, ok := body["packages"].([]any)
	if !ok || len(packages) != 1 {
		t.Fatalf("expected one package, got %v", body["packages"])
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	if code, _ := f.do(t, http.MethodGet, "/v0/front/credits", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/v0/front/credits", "garbage", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}

	if errUpdate := f.conn.Model(&models.User{}).Where("id = ?", f.client.ID).Update("active", false).Error; errUpdate != nil {
		t.Fatalf("disable user: %v", errUpdate)
	}
	if code, _ := f.do(t, http.MethodGet, "/v0/front/credits", f.token(t, f.client), nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for disabled user, got %d", code)
	}
}

func TestSubscribeCreateAndRevise(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, f.client)

	code, _ := f.do(t, http.MethodGet, "/v0/front/credits", token, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 for balance, got %d", code)
	}

	code, body := f.do(t, http.MethodPost, "/v0/front/subscriptions", token, map[string]any{"package_id": f.pkg.ID})
	if code != http.StatusCreated {
		t.Fatalf("expected 201 for subscribe, got %d (%v)", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/v0/front/credits", token, nil)
	if code != http.StatusOK || body["remaining_credits"] != float64(20) {
		t.Fatalf("expected balance 20, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/v0/front/requests", token, map[string]any{
		"service_type_id": f.st.ID,
		"title":           "New logo",
		"priority":        "low",
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201 for create request, got %d (%v)", code, body)
	}
	if body["new_balance"] != float64(15) {
		t.Fatalf("expected new_balance 15, got %v", body["new_balance"])
	}

	code, body = f.do(t, http.MethodGet, "/v0/front/credits/transactions?limit=10", token, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 for transactions, got %d", code)
	}
	if txs, ok := body["transactions"].([]any); !ok || len(txs) != 2 {
		t.Fatalf("expected subscribe and spend rows, got %v", body["transactions"])
	}

	var req models.Request
	if errFind := f.conn.Where("client_id = ?", f.client.ID).First(&req).Error; errFind != nil {
		t.Fatalf("load request: %v", errFind)
	}
	if errUpdate := f.conn.Model(&req).Updates(map[string]any{
		"status":      models.RequestStatusDelivered,
		"provider_id": f.provider.ID,
	}).Error; errUpdate != nil {
		t.Fatalf("deliver request: %v", errUpdate)
	}
	revisionPath := "/v0/front/requests/" + strconv.FormatUint(req.ID, 10) + "/revision"

	code, body = f.do(t, http.MethodGet, revisionPath, f.token(t, f.provider), nil)
	if code != http.StatusOK || body["next_is_free"] != true {
		t.Fatalf("expected provider to see a free next revision, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, revisionPath, token, map[string]any{"feedback": "too short"})
	if code != http.StatusBadRequest || body["code"] != "invalid_input" {
		t.Fatalf("expected 400 invalid_input, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, revisionPath, token, map[string]any{"feedback": "Please make the colours warmer."})
	if code != http.StatusOK || body["is_free"] != true {
		t.Fatalf("expected free revision, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, revisionPath, f.token(t, f.provider), map[string]any{"feedback": "Provider cannot ask for this."})
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for provider revision, got %d %v", code, body)
	}
}

func TestRevisionRejectsBadID(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPost, "/v0/front/requests/abc/revision", f.token(t, f.client), map[string]any{"feedback": "Long enough feedback."})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestQuoteIsPublic(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/v0/front/requests/quote", "", map[string]any{
		"service_type_id": f.st.ID,
		"priority":        "low",
	})
	if code != http.StatusOK || body["allowed"] != true {
		t.Fatalf("expected allowed quote, got %d %v", code, body)
	}
}
