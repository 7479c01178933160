package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xtremeprotocol/accrual-service/internal/api/handler"
	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
	"github.com/xtremeprotocol/accrual-service/internal/core/service"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/db/memory"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/lock"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/notify"
)

const testSecret = "router-test-secret"

// inlineAudit writes events synchronously so assertions can read them back.
type inlineAudit struct{ repo ports.AuditRepository }

func (a inlineAudit) Record(ctx context.Context, e domain.AuditEvent) {
	_ = a.repo.Insert(ctx, &e)
}

func newTestRouter(t *testing.T) *echo.Echo {
	t.Helper()

	store := memory.NewStore()
	log := zerolog.Nop()
	locker := lock.NewKeyedMutex()
	audit := inlineAudit{repo: store.Audit()}
	rates := domain.RateSchedule{
		Base:      decimal.NewFromInt(1),
		Withdrawn: decimal.NewFromInt(5),
		Elevated:  decimal.RequireFromString("12.5"),
		Period:    24 * time.Hour,
	}

	auth := service.NewAuthService(store.Accounts(), audit, testSecret, time.Hour, decimal.NewFromInt(1), log)
	accrual := service.NewAccrualService(store.Accounts(), locker, audit, rates, log)
	activation := service.NewActivationService(store.Accounts(), store.Codes(), store, locker, audit, log)
	withdrawal := service.NewWithdrawalService(
		store.Accounts(), store.Ledger(), store, locker,
		notify.NewLogNotifier(log), store.Idempotency(), audit,
		service.WithdrawalPolicy{NotifyTimeout: time.Second}, log,
	)
	admin := service.NewAdminService(
		store.Accounts(), store.Codes(), store.Audit(), audit, locker,
		service.AdminCredentials{Username: "root", Password: "hunter2"},
		testSecret, time.Hour, 0, log,
	)

	return NewRouter(Handlers{
		Account: handler.NewAccountHandler(auth),
		Reward:  handler.NewRewardHandler(accrual, activation, withdrawal),
		Admin:   handler.NewAdminHandler(admin),
		Health:  handler.NewHealthHandler(map[string]handler.HealthCheck{"storage": store.Ping}),
	}, Options{
		JWTSecret:   testSecret,
		CORSOrigins: []string{"*"},
		Logger:      log,
		Registry:    prometheus.NewRegistry(),
	})
}

func do(t *testing.T, e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + token}
}

func TestRouter_AccountLifecycle(t *testing.T) {
	e := newTestRouter(t)

	// --- Register / login ---
	rec := do(t, e, http.MethodPost, "/api/register", `{"username":"alice","password":"pw"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	userID, _ := decode(t, rec)["userId"].(string)
	if !strings.HasPrefix(userID, "xtr_") {
		t.Fatalf("unexpected user id %q", userID)
	}

	rec = do(t, e, http.MethodPost, "/api/register", `{"username":"alice","password":"other"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodPost, "/api/login", `{"username":"alice","password":"bad"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodPost, "/api/login", `{"username":"alice","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	login := decode(t, rec)
	if login["balance"] != "1.00" || login["isVerified"] != false {
		t.Fatalf("unexpected login payload: %v", login)
	}
	userToken, _ := login["token"].(string)

	// --- Sync within the first period credits nothing ---
	rec = do(t, e, http.MethodPost, "/api/sync", `{"userId":"`+userID+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d", rec.Code)
	}
	if sync := decode(t, rec); sync["balance"] != "1.00" || sync["rate"] != "1.00" {
		t.Fatalf("unexpected sync payload: %v", sync)
	}

	rec = do(t, e, http.MethodPost, "/api/sync", `{"userId":"xtr_missing"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("sync unknown: expected 404, got %d", rec.Code)
	}

	// --- Withdraw with replay ---
	withdraw := `{"userId":"` + userID + `","address":"bc1qdest","amount":"0.40"}`
	idem := map[string]string{handler.IdempotencyHeader: "w-1"}

	rec = do(t, e, http.MethodPost, "/api/withdraw", withdraw, idem)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	first := decode(t, rec)
	if first["balance"] != "0.60" || first["status"] != "pending" {
		t.Fatalf("unexpected withdraw payload: %v", first)
	}

	rec = do(t, e, http.MethodPost, "/api/withdraw", withdraw, idem)
	replay := decode(t, rec)
	if rec.Code != http.StatusOK || replay["txId"] != first["txId"] || replay["replayed"] != true {
		t.Fatalf("replay: unexpected %d %v", rec.Code, replay)
	}

	rec = do(t, e, http.MethodPost, "/api/withdraw", `{"userId":"`+userID+`","address":"a","amount":5}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overdraw: expected 400, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodGet, "/api/transactions/"+userID, "", nil)
	var txs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &txs); err != nil || len(txs) != 1 {
		t.Fatalf("transactions: expected one entry, got %s (%v)", rec.Body.String(), err)
	}
	if txs[0]["tx_id"] != first["txId"] || txs[0]["amount"] != "0.40" {
		t.Fatalf("unexpected ledger entry: %v", txs[0])
	}

	// --- Admin surface ---
	rec = do(t, e, http.MethodGet, "/api/admin/users", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin without token: expected 401, got %d", rec.Code)
	}
	rec = do(t, e, http.MethodGet, "/api/admin/users", "", bearer(userToken))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin with user token: expected 403, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodPost, "/api/admin/auth", `{"user":"root","pass":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin bad auth: expected 401, got %d", rec.Code)
	}
	rec = do(t, e, http.MethodPost, "/api/admin/auth", `{"user":"root","pass":"hunter2"}`, nil)
	adminToken, _ := decode(t, rec)["token"].(string)
	if adminToken == "" {
		t.Fatalf("admin auth: no token in %s", rec.Body.String())
	}

	rec = do(t, e, http.MethodPost, "/api/admin/generate-code", "", bearer(adminToken))
	code, _ := decode(t, rec)["code"].(string)
	if len(code) != 10 {
		t.Fatalf("generate-code: unexpected code %q", code)
	}

	// --- Activation ---
	rec = do(t, e, http.MethodPost, "/api/verify-code", `{"code":"WRONGCODE1","userId":"`+userID+`"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad code: expected 401, got %d", rec.Code)
	}
	rec = do(t, e, http.MethodPost, "/api/verify-code", `{"code":"`+code+`","userId":"`+userID+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, e, http.MethodPost, "/api/verify-code", `{"code":"`+code+`","userId":"`+userID+`"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-verify: expected 409, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodGet, "/api/admin/stats", "", bearer(adminToken))
	stats := decode(t, rec)
	if stats["totalUsers"] != float64(1) || stats["totalLiability"] != "0.60" || stats["totalPaid"] != "0.40" {
		t.Fatalf("unexpected stats: %v", stats)
	}

	rec = do(t, e, http.MethodPost, "/api/admin/update-user",
		`{"id":"`+userID+`","balance":"50","is_verified":true,"tier":"elevated"}`, bearer(adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("update-user: expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/api/admin/logs?limit=500", "", bearer(adminToken))
	var logs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil || len(logs) == 0 {
		t.Fatalf("logs: expected entries, got %s", rec.Body.String())
	}
	if logs[0]["event_type"] != string(domain.AuditAdminAccountUpdated) {
		t.Fatalf("logs must be newest first, got %v", logs[0])
	}

	rec = do(t, e, http.MethodPost, "/api/admin/clear-logs", "", bearer(adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear-logs: expected 200, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodPost, "/api/admin/delete-user", `{"id":"`+userID+`"}`, bearer(adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete-user: expected 200, got %d", rec.Code)
	}
	rec = do(t, e, http.MethodPost, "/api/admin/delete-user", `{"id":"`+userID+`"}`, bearer(adminToken))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: expected 404, got %d", rec.Code)
	}
}

func TestRouter_OpsEndpoints(t *testing.T) {
	e := newTestRouter(t)

	if rec := do(t, e, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("liveness: expected 200, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("readiness: expected 200, got %d", rec.Code)
	}

	// Generate at least one observation before scraping.
	do(t, e, http.MethodGet, "/health", "", nil)
	rec := do(t, e, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "accrual_http_requests_total") {
		t.Fatalf("metrics: unexpected %d", rec.Code)
	}

	rec = do(t, e, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound || decode(t, rec)["error"] == nil {
		t.Fatalf("unknown route: expected JSON 404, got %d %s", rec.Code, rec.Body.String())
	}
}
