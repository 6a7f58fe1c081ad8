package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/entitle/internal/clock"
	entitlementdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/entitle/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/entitle/internal/entitlement/service"
	userrepo "github.com/smallbiznis/entitle/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type messageResponse struct {
	Message string `json:"message"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE users (
			id BIGINT PRIMARY KEY,
			stripe_customer_id TEXT NOT NULL,
			access_until TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_users_stripe_customer_id ON users(stripe_customer_id)`,
		`CREATE TABLE stripe_events (
			stripe_event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload TEXT,
			received_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	return db
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := entitlementservice.NewService(entitlementservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewSystemClock(),
		Users:  userrepo.Provide(),
		Events: entitlementrepo.Provide(),
	})

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv := &Server{
		engine:         router,
		log:            zap.NewNop(),
		entitlementSvc: svc,
	}
	srv.registerAPIRoutes()
	return router
}

func postWebhook(t *testing.T, router *gin.Engine, payload string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func getAccess(t *testing.T, router *gin.Engine, userID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/user/"+userID+"/access", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestWebhookLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	resp := postWebhook(t, router, fmt.Sprintf(`{
		"id": "evt_http_1",
		"type": "customer.subscription.created",
		"data": {"object": {"id": "sub_1", "customer": "cus_http", "status": "active", "current_period_end": %d}}
	}`, periodEnd))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var created messageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	const prefix = "event processed successfully for user id "
	if !strings.HasPrefix(created.Message, prefix) {
		t.Fatalf("unexpected success message %q", created.Message)
	}
	userID := strings.TrimPrefix(created.Message, prefix)

	resp = getAccess(t, router, userID)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var status entitlementdomain.AccessStatus
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode access status: %v", err)
	}
	if !status.HasAccess {
		t.Fatal("expected access after active subscription")
	}
	if status.AccessUntil == nil || status.AccessUntil.Unix() != periodEnd {
		t.Fatalf("unexpected access_until %v", status.AccessUntil)
	}

	resp = postWebhook(t, router, `{
		"id": "evt_http_2",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_http", "status": "canceled"}}
	}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = getAccess(t, router, userID)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode access status: %v", err)
	}
	if status.HasAccess {
		t.Fatal("expected access to be revoked after deletion")
	}
	if status.AccessUntil == nil {
		t.Fatal("expected deadline to remain visible after revocation")
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	router := newTestRouter(t)

	payload := `{
		"id": "evt_http_dup",
		"type": "invoice.paid",
		"data": {"object": {"customer": "cus_http", "subscription": "sub_1"}}
	}`

	resp := postWebhook(t, router, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = postWebhook(t, router, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 on redelivery, got %d: %s", resp.Code, resp.Body.String())
	}
	var msg messageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if msg.Message != "event already processed" {
		t.Fatalf("unexpected redelivery message %q", msg.Message)
	}
}

func TestWebhookIrrelevantTypeAcknowledged(t *testing.T) {
	router := newTestRouter(t)

	resp := postWebhook(t, router, `{
		"id": "evt_http_pi",
		"type": "payment_intent.succeeded",
		"data": {"object": {"customer": "cus_http"}}
	}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var msg messageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if msg.Message != "event type not relevant, ignoring" {
		t.Fatalf("unexpected message %q", msg.Message)
	}
}

func TestWebhookMissingEventID(t *testing.T) {
	router := newTestRouter(t)

	resp := postWebhook(t, router, `{
		"type": "customer.subscription.created",
		"data": {"object": {"customer": "cus_http", "status": "active"}}
	}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if body.Error.Type != "invalid_event" {
		t.Fatalf("unexpected error type %q", body.Error.Type)
	}
	if body.Error.Message != "invalid event data: event id not found" {
		t.Fatalf("unexpected error message %q", body.Error.Message)
	}
}

func TestWebhookMissingCustomer(t *testing.T) {
	router := newTestRouter(t)

	resp := postWebhook(t, router, `{
		"id": "evt_http_no_cus",
		"type": "customer.subscription.created",
		"data": {"object": {"id": "sub_1", "status": "active"}}
	}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if body.Error.Type != "missing_customer" {
		t.Fatalf("unexpected error type %q", body.Error.Type)
	}
	if body.Error.Message != "customer id not found in event data" {
		t.Fatalf("unexpected error message %q", body.Error.Message)
	}
}

func TestWebhookMalformedJSON(t *testing.T) {
	router := newTestRouter(t)

	resp := postWebhook(t, router, `{"id": "evt_http_bad"`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUserAccessUnknownUser(t *testing.T) {
	router := newTestRouter(t)

	resp := getAccess(t, router, "123456789")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", resp.Code, resp.Body.String())
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if body.Error.Type != "not_found" {
		t.Fatalf("unexpected error type %q", body.Error.Type)
	}
}

func TestUserAccessMalformedID(t *testing.T) {
	router := newTestRouter(t)

	for _, raw := range []string{"abc", "-1", "0"} {
		resp := getAccess(t, router, raw)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("expected status 404 for id %q, got %d", raw, resp.Code)
		}
	}
}
