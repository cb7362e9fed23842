package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/blob"
	"zetafin/internal/core"
	"zetafin/internal/middleware/auth"
	"zetafin/internal/ocr"
	"zetafin/internal/services"
	"zetafin/internal/storage/memory"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type testEnv struct {
	srv   *Server
	alice uuid.UUID
	bob   uuid.UUID
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	alice, bob := uuid.New(), uuid.New()
	store := memory.New(alice, bob)
	clock := core.FixedClock{T: testNow}

	files, err := blob.NewLocal(t.TempDir(), "http://localhost/files")
	if err != nil {
		t.Fatalf("local blob: %v", err)
	}

	svc := Services{
		Ledger:   services.NewLedgerService(store, services.UserDirectoryFunc(store.UserExists), files, clock),
		Queries:  services.NewQueryService(store, core.NewCategories(core.DefaultExpenseCategories())),
		Receipts: services.NewReceiptService(store, store, files, ocr.NewMock(1, clock), nil, clock, services.ReceiptServiceConfig{}),
		Promoter: services.NewPromoter(store, clock),
		Goals:    services.NewGoalService(store, services.UserDirectoryFunc(store.UserExists), clock),
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 1000
	}
	srv := NewServer(cfg, svc)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, alice: alice, bob: bob}
}

func (e *testEnv) do(t *testing.T, method, path string, user uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		req.Header.Set(auth.UserIDHeader, user.String())
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) upload(t *testing.T, user uuid.UUID, data []byte, txID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "receipt.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	if txID != "" {
		_ = mw.WriteField("transactionId", txID)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/receipts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.UserIDHeader, user.String())
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	return decode[errorEnvelope](t, rr).Error
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, uuid.Nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}

	env.srv.svc.Ready = func(context.Context) error { return errors.New("database unreachable") }
	if rr := env.do(t, http.MethodGet, "/readyz", uuid.Nil, ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not ready, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	rr := env.do(t, http.MethodGet, "/nope", uuid.Nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := errorOf(t, rr).Kind; got != "not_found" {
		t.Errorf("kind = %q", got)
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rr := env.do(t, http.MethodGet, "/api/transactions", uuid.Nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", rr.Code)
	}
	if got := errorOf(t, rr).Kind; got != KindUnauthenticated {
		t.Errorf("kind = %q", got)
	}
}

func TestTokenAuthentication(t *testing.T) {
	env := newTestEnv(t, ServerConfig{JWTSecret: "s3cret", JWTIssuer: "zetafin"})
	token, err := auth.New("s3cret", "zetafin").IssueToken(env.alice, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	// the development header is ignored once tokens are enabled
	if rr := env.do(t, http.MethodGet, "/api/receipts", env.alice, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with header only, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/receipts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rr := env.do(t, http.MethodPost, "/api/transactions", env.alice,
		`{"type":"income","value":"2500.00","description":"Salário","category":"Salário","date":"2025-03-05"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create income: %d %s", rr.Code, rr.Body.String())
	}
	income := decode[core.Transaction](t, rr)
	if income.Value.Cents != 250000 || income.UserID != env.alice {
		t.Errorf("unexpected income %+v", income)
	}
	if rr.Header().Get("Location") != "/api/transactions/"+income.ID.String() {
		t.Errorf("location = %q", rr.Header().Get("Location"))
	}

	rr = env.do(t, http.MethodPost, "/api/transactions", env.alice,
		`{"type":"expense","value":42.5,"description":"Mercado","category":"Alimentação","date":"2025-03-10T09:30:00-03:00","expenseType":"variaveis"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expense: %d %s", rr.Code, rr.Body.String())
	}
	expense := decode[core.Transaction](t, rr)
	if want := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC); !expense.Date.Equal(want) {
		t.Errorf("date = %v, want %v", expense.Date, want)
	}

	rr = env.do(t, http.MethodGet, "/api/transactions?type=expense", env.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}
	page := decode[core.TransactionPage](t, rr)
	if len(page.Items) != 1 || page.Pagination.TotalItems != 1 || page.Pagination.ItemsPerPage != DefaultLimit {
		t.Errorf("unexpected page %+v", page.Pagination)
	}
	if page.Summary.Balance.Cents != 250000-4250 {
		t.Errorf("summary balance = %d", page.Summary.Balance.Cents)
	}

	rr = env.do(t, http.MethodPut, "/api/transactions/"+expense.ID.String(), env.alice,
		`{"value":50,"description":"Mercado","category":"Alimentação","date":"2025-03-10"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[core.Transaction](t, rr); got.Value.Cents != 5000 || got.UpdatedAt == nil {
		t.Errorf("update not applied: %+v", got)
	}

	if rr := env.do(t, http.MethodGet, "/api/transactions/"+expense.ID.String(), env.bob, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/summary?startDate=2025-03-01&endDate=2025-03-31", env.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary: %d %s", rr.Code, rr.Body.String())
	}
	summary := decode[map[string]any](t, rr)
	if summary["balance"] != 2450.0 {
		t.Errorf("balance = %v", summary["balance"])
	}

	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+expense.ID.String(), env.alice, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+expense.ID.String(), env.alice, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestTransactionErrors(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantCode  int
		wantKind  string
		wantField string
	}{
		{"malformed json", http.MethodPost, "/api/transactions", `{"type":`, http.StatusBadRequest, "validation", ""},
		{"unknown field", http.MethodPost, "/api/transactions", `{"type":"income","amount":1}`, http.StatusBadRequest, "validation", "amount"},
		{"bad type", http.MethodPost, "/api/transactions", `{"type":"transfer","value":1,"description":"x","category":"x","date":"2025-03-01"}`, http.StatusUnprocessableEntity, "validation", "type"},
		{"missing expense type", http.MethodPost, "/api/transactions", `{"type":"expense","value":1,"description":"x","category":"Lazer","date":"2025-03-01"}`, http.StatusUnprocessableEntity, "validation", "expenseType"},
		{"future expense", http.MethodPost, "/api/transactions", `{"type":"expense","value":1,"description":"x","category":"Lazer","date":"2025-04-01","expenseType":"fixas"}`, http.StatusUnprocessableEntity, "validation", "date"},
		{"bad date", http.MethodPost, "/api/transactions", `{"type":"income","value":1,"description":"x","category":"x","date":"yesterday"}`, http.StatusUnprocessableEntity, "validation", "date"},
		{"zero limit", http.MethodGet, "/api/transactions?limit=0", "", http.StatusUnprocessableEntity, "validation", "limit"},
		{"bad page", http.MethodGet, "/api/transactions?page=abc", "", http.StatusUnprocessableEntity, "validation", "page"},
		{"inverted range", http.MethodGet, "/api/summary?startDate=2025-03-31&endDate=2025-03-01", "", http.StatusUnprocessableEntity, "validation", ""},
		{"bad id", http.MethodGet, "/api/transactions/42", "", http.StatusUnprocessableEntity, "validation", "id"},
		{"missing", http.MethodGet, "/api/transactions/" + uuid.NewString(), "", http.StatusNotFound, "not_found", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, env.alice, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			got := errorOf(t, rr)
			if got.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if tt.wantField != "" && got.Field != tt.wantField {
				t.Errorf("field = %q, want %q", got.Field, tt.wantField)
			}
		})
	}
}

func TestGoalLifecycle(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rr := env.do(t, http.MethodPost, "/api/goals", env.alice,
		`{"description":"Viagem","targetAmount":"1200.00","targetDate":"2026-01-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create goal: %d %s", rr.Code, rr.Body.String())
	}
	g := decode[core.GoalStatus](t, rr)
	if g.RemainingMonths != 10 || g.MonthlyContribution.Cents != 12000 {
		t.Errorf("unexpected status %+v", g)
	}
	if rr.Header().Get("Location") != "/api/goals/"+g.ID.String() {
		t.Errorf("location = %q", rr.Header().Get("Location"))
	}
	goalPath := "/api/goals/" + g.ID.String()

	if rr := env.do(t, http.MethodGet, goalPath, env.bob, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-member, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, goalPath+"/deposits", env.alice, `{"amount":300,"source":"salário","date":"2025-03-10"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("deposit: %d %s", rr.Code, rr.Body.String())
	}
	res := decode[services.DepositResult](t, rr)
	if res.Goal.Current.Cents != 30000 || res.Goal.Remaining.Cents != 90000 {
		t.Errorf("goal after deposit %+v", res.Goal)
	}

	rr = env.do(t, http.MethodPost, goalPath+"/members", env.alice, `{"userId":"`+env.bob.String()+`","customMonthlyTarget":50}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("share: %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPost, goalPath+"/members", env.alice, `{"userId":"`+env.bob.String()+`"}`); rr.Code != http.StatusConflict {
		t.Fatalf("second share: expected 409, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, goalPath+"/members/"+env.bob.String(), env.bob, `{"customMonthlyTarget":"75.50"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set pledge: %d %s", rr.Code, rr.Body.String())
	}
	if m := decode[core.GoalMember](t, rr); m.CustomMonthlyTarget == nil || m.CustomMonthlyTarget.Cents != 7550 {
		t.Errorf("pledge not applied: %+v", m)
	}
	if rr := env.do(t, http.MethodPut, goalPath+"/members/"+env.bob.String(), env.alice, `{"customMonthlyTarget":null}`); rr.Code != http.StatusForbidden {
		t.Fatalf("changing another member's pledge: expected 403, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, goalPath+"/deposits", env.bob, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list deposits: %d %s", rr.Code, rr.Body.String())
	}
	if ds := decode[[]core.Deposit](t, rr); len(ds) != 1 || ds[0].UserID != env.alice {
		t.Errorf("deposits %+v", ds)
	}

	rr = env.do(t, http.MethodGet, goalPath+"/members", env.bob, "")
	if ms := decode[[]core.GoalMember](t, rr); len(ms) != 2 {
		t.Errorf("members %+v", ms)
	}
	rr = env.do(t, http.MethodGet, "/api/goals", env.bob, "")
	if goals := decode[[]core.GoalStatus](t, rr); len(goals) != 1 || goals[0].ID != g.ID {
		t.Errorf("bob's goals %+v", goals)
	}
}

func TestGoalErrors(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	missing := "/api/goals/" + uuid.NewString()

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantCode  int
		wantField string
	}{
		{"zero target", http.MethodPost, "/api/goals", `{"description":"x","targetAmount":0}`, http.StatusUnprocessableEntity, "targetAmount"},
		{"bad target date", http.MethodPost, "/api/goals", `{"description":"x","targetAmount":1,"targetDate":"soon"}`, http.StatusUnprocessableEntity, "targetDate"},
		{"missing goal", http.MethodGet, missing, "", http.StatusNotFound, ""},
		{"deposit to missing goal", http.MethodPost, missing + "/deposits", `{"amount":1,"source":"pix"}`, http.StatusNotFound, ""},
		{"bad member id", http.MethodPost, missing + "/members", `{"userId":"bob"}`, http.StatusUnprocessableEntity, "userId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, env.alice, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if got := errorOf(t, rr); tt.wantField != "" && got.Field != tt.wantField {
				t.Errorf("field = %q, want %q", got.Field, tt.wantField)
			}
		})
	}
}

func TestReceiptFlow(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rr := env.upload(t, env.alice, pngBytes, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	receipt := decode[core.Receipt](t, rr)
	if receipt.MimeType != "image/png" || receipt.OcrProcessed {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	if rr := env.do(t, http.MethodPost, "/api/receipts/"+receipt.ID.String()+"/transaction", env.alice, ""); rr.Code != http.StatusConflict {
		t.Fatalf("promote before OCR: expected 409, got %d", rr.Code)
	} else if got := errorOf(t, rr).Kind; got != "invalid_state" {
		t.Errorf("kind = %q", got)
	}

	rr = env.do(t, http.MethodPost, "/api/receipts/"+receipt.ID.String()+"/ocr", env.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("ocr: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[core.Receipt](t, rr); !got.OcrProcessed || got.OcrData == nil {
		t.Fatalf("ocr not saved: %+v", got)
	}

	rr = env.do(t, http.MethodPost, "/api/receipts/"+receipt.ID.String()+"/transaction", env.alice, `{"category":"Alimentação"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("promote: %d %s", rr.Code, rr.Body.String())
	}
	result := decode[services.PromoteResult](t, rr)
	if !result.Transaction.HasReceipt || result.Receipt.TransactionID == nil || *result.Receipt.TransactionID != result.Transaction.ID {
		t.Errorf("link not established: %+v", result)
	}

	if rr := env.do(t, http.MethodPost, "/api/receipts/"+receipt.ID.String()+"/transaction", env.alice, ""); rr.Code != http.StatusConflict {
		t.Fatalf("second promote: expected 409, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/receipts/"+receipt.ID.String(), env.alice, ""); rr.Code != http.StatusConflict {
		t.Fatalf("delete linked receipt: expected 409, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/receipts", env.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	if got := decode[map[string][]core.Receipt](t, rr)["receipts"]; len(got) != 1 {
		t.Errorf("receipts = %d", len(got))
	}
	if got := decode[map[string][]core.Receipt](t, env.do(t, http.MethodGet, "/api/receipts", env.bob, ""))["receipts"]; len(got) != 0 {
		t.Errorf("bob sees %d receipts", len(got))
	}
}

func TestReceiptUploadErrors(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	if rr := env.upload(t, env.alice, []byte("plain text is not a receipt"), ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("text upload: expected 422, got %d", rr.Code)
	} else if got := errorOf(t, rr).Field; got != "mimeType" {
		t.Errorf("field = %q", got)
	}

	if rr := env.upload(t, env.alice, pngBytes, "not-a-uuid"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad transaction id: expected 422, got %d", rr.Code)
	}
	if rr := env.upload(t, env.alice, pngBytes, uuid.NewString()); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown transaction: expected 404, got %d", rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/api/receipts", env.alice, `{"file":"x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("json upload: expected 400, got %d", rr.Code)
	}
}

func TestUploadLinksTransaction(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rr := env.do(t, http.MethodPost, "/api/transactions", env.alice,
		`{"type":"expense","value":10,"description":"Farmácia","category":"Saúde","date":"2025-03-14","expenseType":"desnecessarios"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	tx := decode[core.Transaction](t, rr)

	if rr := env.upload(t, env.bob, pngBytes, tx.ID.String()); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign transaction: expected 403, got %d", rr.Code)
	}
	if rr := env.upload(t, env.alice, pngBytes, tx.ID.String()); rr.Code != http.StatusCreated {
		t.Fatalf("link upload: %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.upload(t, env.alice, pngBytes, tx.ID.String()); rr.Code != http.StatusConflict {
		t.Fatalf("second link: expected 409, got %d", rr.Code)
	}

	got := decode[core.Transaction](t, env.do(t, http.MethodGet, "/api/transactions/"+tx.ID.String(), env.alice, ""))
	if !got.HasReceipt || got.ReceiptID == nil {
		t.Errorf("transaction not marked: %+v", got)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodGet, "/api/receipts", env.alice, ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodGet, "/api/receipts", env.alice, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := errorOf(t, rr).Kind; got != KindRateLimited {
		t.Errorf("kind = %q", got)
	}

	// health checks are not rate limited
	if rr := env.do(t, http.MethodGet, "/healthz", uuid.Nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz limited: %d", rr.Code)
	}
}
