package router

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/issuersim"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/provider"
	"github.com/rewards-ledger/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type apiFixture struct {
	engine    *gin.Engine
	sim       *issuersim.Server
	container *provider.Container
	token     string
}

type apiEnvelope struct {
	StatusCode int             `json:"status_code"`
	Result     string          `json:"result"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupAPITest(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	sim, err := issuersim.New(nil)
	if err != nil {
		t.Fatalf("new sim failed: %v", err)
	}
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	cfg := config.Defaults()
	cfg.Issuer.BaseURL = srv.URL
	cfg.API.JWTSecret = "router-secret"
	cfg.Wallet = config.WalletConfig{
		PaymentID:     "pay-api",
		RecoverySeed:  base64.StdEncoding.EncodeToString(seed),
		Type:          "anonymous",
		EncryptionKey: "api-secret",
	}
	c, err := provider.NewContainerWithDB(cfg, db, scheduler.NewFakeClock(time.Now().Truncate(time.Second)))
	if err != nil {
		t.Fatalf("new container failed: %v", err)
	}
	t.Cleanup(c.Close)
	t.Cleanup(c.Scheduler.Wait)

	token, err := c.AuthService.GenerateToken("desktop", "ledger")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	return &apiFixture{
		engine:    SetupRouter(cfg, c),
		sim:       sim,
		container: c,
		token:     token,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) apiEnvelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: http status %d", method, path, w.Code)
	}
	var env apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode envelope failed: %v %s", method, path, err, w.Body.String())
	}
	f.container.Scheduler.Wait()
	return env
}

func (f *apiFixture) addPromotion(id, promotionType string, suggestions int, value string) {
	f.sim.AddPromotion(endpoint.Promotion{
		ID:                  id,
		CreatedAt:           time.Now().UTC(),
		ExpiresAt:           time.Now().Add(72 * time.Hour).UTC(),
		Version:             5,
		SuggestionsPerGrant: suggestions,
		ApproximateValue:    value,
		Type:                promotionType,
		Available:           true,
		Platform:            "desktop",
		PublicKeys:          []string{f.sim.PublicKey()},
	})
}

func (f *apiFixture) claim(t *testing.T, promotionID string) apiEnvelope {
	t.Helper()
	env := f.do(t, http.MethodPost, "/api/v1/promotions/"+promotionID+"/claim", nil)
	if env.StatusCode != 0 {
		return env
	}
	var challenge struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &challenge); err != nil || challenge.ID == "" {
		t.Fatalf("decode challenge failed: %v %s", err, string(env.Data))
	}
	return f.do(t, http.MethodPost, "/api/v1/promotions/"+promotionID+"/attest", map[string]interface{}{
		"id":       challenge.ID,
		"solution": map[string]string{"answer": f.sim.AttestationAnswer(challenge.ID)},
	})
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupAPITest(t)

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status want 200 got %d", w.Code)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := setupAPITest(t)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/promotions", nil))
	if code := decodeStatusCode(t, w); code != 401 {
		t.Fatalf("status_code want 401 got %d", code)
	}
}

func TestPromotionClaimFlowOverAPI(t *testing.T) {
	f := setupAPITest(t)
	f.addPromotion("p1", "ads", 4, "1")

	env := f.do(t, http.MethodGet, "/api/v1/promotions", nil)
	if env.StatusCode != 0 || env.Result != "ok" {
		t.Fatalf("unexpected list envelope: %+v", env)
	}
	var promotions []models.Promotion
	if err := json.Unmarshal(env.Data, &promotions); err != nil {
		t.Fatalf("decode promotions failed: %v", err)
	}
	if len(promotions) != 1 || promotions[0].ID != "p1" {
		t.Fatalf("unexpected promotions: %+v", promotions)
	}

	env = f.claim(t, "p1")
	if env.StatusCode != 0 {
		t.Fatalf("claim failed: %+v", env)
	}
	var promotion models.Promotion
	if err := json.Unmarshal(env.Data, &promotion); err != nil {
		t.Fatalf("decode promotion failed: %v", err)
	}
	if promotion.Status != "finished" {
		t.Fatalf("expected finished promotion, got %s", promotion.Status)
	}

	env = f.do(t, http.MethodPost, "/api/v1/promotions/p1/claim", nil)
	if env.StatusCode != 409 || env.Result != "grant_already_claimed" {
		t.Fatalf("expected grant already claimed, got %+v", env)
	}

	env = f.do(t, http.MethodGet, "/api/v1/balance-reports?page=1&page_size=10", nil)
	var reports struct {
		Items []models.BalanceReport `json:"items"`
		Total int64                  `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &reports); err != nil {
		t.Fatalf("decode reports failed: %v", err)
	}
	if len(reports.Items) != 1 || reports.Total != 1 {
		t.Fatalf("expected one balance report, got %+v", reports)
	}

	env = f.do(t, http.MethodPost, "/api/v1/tokens/transfer", nil)
	var transfer struct {
		Transferred int `json:"transferred"`
	}
	if err := json.Unmarshal(env.Data, &transfer); err != nil {
		t.Fatalf("decode transfer failed: %v", err)
	}
	if env.StatusCode != 0 || transfer.Transferred != 4 {
		t.Fatalf("unexpected transfer: %+v %s", env, string(env.Data))
	}
}

func TestClaimUnknownPromotion(t *testing.T) {
	f := setupAPITest(t)
	env := f.do(t, http.MethodPost, "/api/v1/promotions/missing/claim", nil)
	if env.StatusCode != 404 {
		t.Fatalf("expected 404, got %+v", env)
	}
}

func TestClaimRejectsInvalidJSON(t *testing.T) {
	f := setupAPITest(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/promotions/p1/attest", strings.NewReader("{bad"))
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	if code := decodeStatusCode(t, w); code != 400 {
		t.Fatalf("status_code want 400 got %d", code)
	}
}

func TestSKUOrderEndpoints(t *testing.T) {
	f := setupAPITest(t)

	env := f.do(t, http.MethodPost, "/api/v1/sku/orders", map[string]interface{}{"items": []interface{}{}})
	if env.StatusCode != 400 {
		t.Fatalf("expected 400 for empty items, got %+v", env)
	}

	env = f.do(t, http.MethodPost, "/api/v1/sku/orders/missing/retry", nil)
	if env.StatusCode != 404 {
		t.Fatalf("expected 404 for unknown order, got %+v", env)
	}

	env = f.do(t, http.MethodGet, "/api/v1/sku/contributions/none", nil)
	if env.StatusCode != 404 {
		t.Fatalf("expected 404 for unknown contribution, got %+v", env)
	}
}
