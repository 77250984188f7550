package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanpay/internal/auth"
	"cleanpay/internal/config"
	"cleanpay/internal/models"
	"cleanpay/internal/orchestrator"
	"cleanpay/internal/service/cleaning"
	"cleanpay/internal/service/download"
	"cleanpay/internal/service/payment"
	"cleanpay/internal/sessions"
	"cleanpay/internal/storage"
)

type testServer struct {
	router      *gin.Engine
	remote      *httptest.Server
	cleanCalls  atomic.Int32
	verifyCalls atomic.Int32

	// cleanReply and verifyReply write the remote responses.
	cleanReply  func(w http.ResponseWriter, r *http.Request)
	verifyReply func(w http.ResponseWriter, body models.VerificationRequest)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{
		cleanReply: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":         "success",
				"download_token": "abc123",
				"original_rows":  3,
				"cleaned_rows":   2,
				"cleaned_data_sample": []map[string]any{
					{"title": "Widget", "url_clean": "https://example.com", "description": "d", "revenue($)": 12.5},
				},
			})
		},
		verifyReply: func(w http.ResponseWriter, _ models.VerificationRequest) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "CSV Cleaner API is running"})
	})
	mux.HandleFunc("/clean-data/", func(w http.ResponseWriter, r *http.Request) {
		ts.cleanCalls.Add(1)
		ts.cleanReply(w, r)
	})
	mux.HandleFunc("/paystack/webhook/", func(w http.ResponseWriter, r *http.Request) {
		ts.verifyCalls.Add(1)
		var body models.VerificationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ts.verifyReply(w, body)
	})
	ts.remote = httptest.NewServer(mux)
	t.Cleanup(ts.remote.Close)

	ctx := context.Background()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3": {DSN: filepath.Join(t.TempDir(), "ledger.db")},
	}}
	db, err := storage.Open(ctx, "sqlite3", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, "sqlite3"))
	ledger, err := storage.NewLedger(db, nil)
	require.NoError(t, err)

	cleaner := cleaning.NewClient(ts.remote.URL, cleaning.Options{Timeout: time.Second, RPS: 100, Burst: 10})
	gateway, err := payment.NewInlineGateway("pk_test_123")
	require.NoError(t, err)
	deps := orchestrator.Deps{
		Cleaner:    cleaner,
		Gateway:    gateway,
		Verifier:   payment.NewVerifier(ts.remote.URL, time.Second, nil),
		Downloader: download.NewEndpoint(ts.remote.URL),
		Pricing:    orchestrator.DefaultPricing(),
		Timeout:    2 * time.Second,
		Observers:  []orchestrator.Observer{ledger},
	}
	store := sessions.NewMemoryStore(deps, time.Hour, nil)
	handler := NewHandler(auth.NewService(store, time.Hour), Options{
		PublicKey: "pk_test_123",
		Pricing:   deps.Pricing,
		History:   ledger,
		Upstream:  cleaner,
	})
	ts.router = gin.New()
	handler.RegisterRoutes(ts.router)
	return ts
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// browser carries the cookies of one page load.
type browser struct {
	t       *testing.T
	ts      *testServer
	cookies []*http.Cookie
	csrf    string
}

func (ts *testServer) open(t *testing.T) *browser {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	b := &browser{t: t, ts: ts, cookies: rec.Result().Cookies()}
	for _, ck := range b.cookies {
		if ck.Name == "csrf_token" {
			b.csrf = ck.Value
		}
	}
	require.NotEmpty(t, b.csrf)
	return b
}

func (b *browser) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(method, path, body)
	for _, ck := range b.cookies {
		req.AddCookie(ck)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-CSRF-Token", b.csrf)
	rec := httptest.NewRecorder()
	b.ts.router.ServeHTTP(rec, req)
	return rec
}

func (b *browser) doJSON(method, path string, payload any) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(b.t, err)
		body = bytes.NewReader(data)
	}
	return b.do(method, path, body, "application/json")
}

func (b *browser) upload(name, content string, fields map[string]string) *httptest.ResponseRecorder {
	b.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(b.t, w.WriteField(k, v))
	}
	if name != "" {
		part, err := w.CreateFormFile("file", name)
		require.NoError(b.t, err)
		_, err = io.WriteString(part, content)
		require.NoError(b.t, err)
	}
	require.NoError(b.t, w.Close())
	return b.do(http.MethodPost, "/api/session/upload", &buf, w.FormDataContentType())
}

type sessionBody struct {
	Error    string           `json:"error"`
	Kind     string           `json:"kind"`
	Session  sessionView      `json:"session"`
	Checkout *models.Checkout `json:"checkout"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	var body sessionBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestEndToEndFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.verifyReply = func(w http.ResponseWriter, body models.VerificationRequest) {
		assert.Equal(t, "charge.success", body.Event)
		assert.Equal(t, "ref1", body.Data.Reference)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
	}
	b := ts.open(t)

	rec := b.upload("sample.csv", "title,url\nWidget,https://example.com\n", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "abc123")
	body := decode(t, rec)
	assert.Equal(t, orchestrator.StateCleaned, body.Session.State)
	assert.True(t, body.Session.HasToken)
	assert.Empty(t, body.Session.DownloadURL)
	assert.Equal(t, []string{"pay"}, body.Session.Actions)
	require.NotNil(t, body.Session.Preview)
	assert.Len(t, body.Session.Preview.Sample, 1)

	rec = b.doJSON(http.MethodPost, "/api/session/payment", map[string]string{"email": "user@x.com", "currency": "USD"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	require.NotNil(t, body.Checkout)
	assert.Equal(t, int64(1500), body.Checkout.Amount)
	assert.Equal(t, models.CurrencyUSD, body.Checkout.Currency)
	assert.Equal(t, "pk_test_123", body.Checkout.Key)
	assert.Equal(t, orchestrator.StatePaymentInFlight, body.Session.State)

	rec = b.doJSON(http.MethodPost, "/api/session/payment/callback", map[string]string{"reference": "ref1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, orchestrator.StateVerified, body.Session.State)
	assert.Equal(t, downloadPath, body.Session.DownloadURL)
	assert.Equal(t, int32(1), ts.verifyCalls.Load())

	rec = b.do(http.MethodGet, "/api/session/download", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, ts.remote.URL+"/download/abc123", rec.Header().Get("Location"))

	rec = b.do(http.MethodGet, "/api/session", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orchestrator.StateDownloaded, decode(t, rec).Session.State)

	rec = b.do(http.MethodGet, "/api/session/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "abc123")
	var history struct {
		Events []models.SessionEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	var events []string
	for _, e := range history.Events {
		events = append(events, e.Event)
	}
	assert.Equal(t, []string{
		"submit_upload", "clean_succeeded", "initiate_payment",
		"payment_callback", "verification_succeeded", "download",
	}, events)
}

func TestUploadServiceError(t *testing.T) {
	ts := newTestServer(t)
	ts.cleanReply = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": "Error processing file"})
	}
	b := ts.open(t)

	rec := b.upload("sample.csv", "x", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "http_status", body.Kind)
	assert.Equal(t, "Error processing file", body.Error)
	assert.Equal(t, orchestrator.StateUploadFailed, body.Session.State)
	assert.False(t, body.Session.HasToken)
	assert.Equal(t, []string{"upload"}, body.Session.Actions)

	rec = b.do(http.MethodGet, "/api/session/download", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestLocalValidation(t *testing.T) {
	ts := newTestServer(t)
	b := ts.open(t)

	rec := b.upload("", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_file", decode(t, rec).Kind)

	rec = b.upload("report.pdf", "%PDF", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_type", decode(t, rec).Kind)

	rec = b.upload("data.csv", "x", map[string]string{"currency": "EUR"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = b.doJSON(http.MethodPost, "/api/session/payment", map[string]string{"email": "user@x.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = b.doJSON(http.MethodPost, "/api/session/payment/callback", map[string]string{"reference": "ref1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, int32(0), ts.cleanCalls.Load())
	assert.Equal(t, int32(0), ts.verifyCalls.Load())

	rec = b.do(http.MethodGet, "/api/session", nil, "")
	assert.Equal(t, orchestrator.StateIdle, decode(t, rec).Session.State)
}

func TestMissingEmailBlocksPayment(t *testing.T) {
	ts := newTestServer(t)
	b := ts.open(t)

	require.Equal(t, http.StatusOK, b.upload("data.csv", "x", nil).Code)
	rec := b.doJSON(http.MethodPost, "/api/session/payment", map[string]string{"currency": "KES"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "no_email", body.Kind)
	assert.Equal(t, orchestrator.StateCleaned, body.Session.State)
}

func TestCancelAndRetryPayment(t *testing.T) {
	ts := newTestServer(t)
	b := ts.open(t)

	rec := b.upload("data.csv", "x", map[string]string{"email": "user@x.com", "currency": "KES"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = b.doJSON(http.MethodPost, "/api/session/payment", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(50000), decode(t, rec).Checkout.Amount)

	rec = b.doJSON(http.MethodPost, "/api/session/payment", map[string]string{})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "in_flight", decode(t, rec).Kind)

	rec = b.do(http.MethodPost, "/api/session/payment/close", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, orchestrator.StateCleaned, body.Session.State)
	assert.True(t, body.Session.HasToken)

	rec = b.doJSON(http.MethodPost, "/api/session/payment", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), ts.cleanCalls.Load())
}

func TestVerificationFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.verifyReply = func(w http.ResponseWriter, _ models.VerificationRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "failed", "message": "charge not found"})
	}
	b := ts.open(t)

	require.Equal(t, http.StatusOK, b.upload("data.csv", "x", nil).Code)
	require.Equal(t, http.StatusOK, b.doJSON(http.MethodPost, "/api/session/payment", map[string]string{"email": "user@x.com"}).Code)

	rec := b.doJSON(http.MethodPost, "/api/session/payment/callback", map[string]string{"reference": "ref1"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "rejected", body.Kind)
	assert.Equal(t, orchestrator.StatePaymentFailed, body.Session.State)
	assert.True(t, body.Session.HasToken)
	assert.Equal(t, []string{"pay"}, body.Session.Actions)

	rec = b.do(http.MethodGet, "/api/session/download", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateDetails(t *testing.T) {
	ts := newTestServer(t)
	b := ts.open(t)

	rec := b.doJSON(http.MethodPut, "/api/session/details", map[string]string{"email": "user@x.com", "currency": "usd"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "user@x.com", body.Session.Email)
	assert.Equal(t, models.CurrencyUSD, body.Session.Currency)

	rec = b.doJSON(http.MethodPut, "/api/session/details", map[string]string{"currency": "EUR"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionRoutesRequireCookiesAndCSRF(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	b := ts.open(t)
	b.csrf = "forged"
	rec = b.upload("data.csv", "x", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, int32(0), ts.cleanCalls.Load())
}

func TestIndexRendersPage(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "KES 500.00")
	assert.Contains(t, rec.Body.String(), "USD 15.00")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.remote.Close()
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDuplicateUploadReportsInFlight(t *testing.T) {
	ts := newTestServer(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	reply := ts.cleanReply
	ts.cleanReply = func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		reply(w, r)
	}
	b := ts.open(t)

	done := make(chan int, 1)
	go func() {
		done <- b.upload("a.csv", "title,url\n", map[string]string{"email": "user@x.com"}).Code
	}()
	<-started

	rec := b.upload("b.csv", "title,url\n", map[string]string{"email": "other@x.com", "currency": "USD"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "in_flight", body.Kind)
	assert.Equal(t, orchestrator.StateUploading, body.Session.State)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, int32(1), ts.cleanCalls.Load())

	final := decode(t, b.do(http.MethodGet, "/api/session", nil, ""))
	assert.Equal(t, "user@x.com", final.Session.Email)
	assert.Equal(t, models.CurrencyKES, final.Session.Currency)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthChecksSessionStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var storeErr error
	store := sessions.NewMemoryStore(orchestrator.Deps{}, time.Hour, nil)
	handler := NewHandler(auth.NewService(store, time.Hour), Options{
		SessionStore: pingFunc(func(context.Context) error { return storeErr }),
	})
	router := gin.New()
	handler.RegisterRoutes(router)

	health := func() (int, map[string]string) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, body := health()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["session_store"])
	assert.NotContains(t, body, "cleaning_service")

	storeErr = errors.New("connection refused")
	code, body = health()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["session_store"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&orchestrator.UploadError{Kind: orchestrator.UploadNoFile}, http.StatusBadRequest},
		{&orchestrator.UploadError{Kind: orchestrator.UploadTransport}, http.StatusBadGateway},
		{&orchestrator.VerificationError{Kind: orchestrator.VerificationAmountMismatch}, http.StatusBadGateway},
		{&orchestrator.DownloadPreconditionError{State: orchestrator.StateCleaned}, http.StatusForbidden},
		{&orchestrator.TransitionError{State: orchestrator.StateIdle, Event: orchestrator.EventDownload}, http.StatusConflict},
		{orchestrator.ErrVerificationInFlight, http.StatusConflict},
		{orchestrator.ErrNoToken, http.StatusConflict},
		{orchestrator.ErrMissingReference, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := classify(tt.err)
		assert.Equal(t, tt.want, got, "%v", tt.err)
	}
}
