package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/otaviobastosmatriz/rh2026/models"
	"github.com/otaviobastosmatriz/rh2026/provider"
	"github.com/otaviobastosmatriz/rh2026/service"
	"github.com/otaviobastosmatriz/rh2026/store"
)

// fakeBSPay is a provider double that hands out a new code per charge.
type fakeBSPay struct {
	tokenCalls  atomic.Int32
	chargeCalls atomic.Int32
	rejectAuth  atomic.Bool
	lastExtID   atomic.Value
}

func (f *fakeBSPay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/oauth/token"):
		f.tokenCalls.Add(1)
		if f.rejectAuth.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	case strings.HasSuffix(r.URL.Path, "/pix/qrcode"):
		n := f.chargeCalls.Add(1)
		var body struct {
			ExternalID string `json:"external_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastExtID.Store(body.ExternalID)
		_, _ = fmt.Fprintf(w, `{"transactionId":"tx-%d","qrcode":"000201%04d"}`, n, n)
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	router   http.Handler
	provider *fakeBSPay
	store    store.Store
}

func newTestEnv(t *testing.T, webhookToken string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := &fakeBSPay{}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	client, err := provider.NewBSPayClient(provider.Config{BaseURL: ts.URL + "/v2", AuthKey: "Basic x", Timeout: 2 * time.Second})
	require.NoError(t, err)

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tracer := noop.NewTracerProvider().Tracer("test")
	charges := service.NewChargeService(tracer, client, st, service.ChargeSettings{
		Amount:      decimal.RequireFromString("48.00"),
		Expiration:  600 * time.Second,
		PostbackURL: "https://example.com/api/webhooks/bspay",
	})
	webhooks := service.NewWebhookService(tracer, st)

	router := NewRouter(
		RouterConfig{ServiceName: "test", WebhookToken: webhookToken},
		NewChargeHandler(charges),
		NewWebhookHandler(webhooks),
	)
	return &testEnv{router: router, provider: fake, store: st}
}

func (e *testEnv) seed(t *testing.T, slug string) {
	t.Helper()
	require.NoError(t, e.store.SaveUser(context.Background(), &models.User{Slug: slug, Name: "João Silva", Email: slug + "@example.com"}))
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) paid(t *testing.T, slug string) bool {
	t.Helper()
	w := e.do(http.MethodGet, "/api/users/"+slug+"/status", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.PaymentStatusResponse](t, w).Paid
}

const joao = `{"userSlug":"joao-silva","userName":"João Silva","userEmail":"joao@example.com"}`

func TestIssueThenPaidWebhook(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "joao-silva")

	w := env.do(http.MethodPost, "/api/charges", joao)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	charge := decode[models.ChargePresentation](t, w)
	assert.True(t, strings.HasPrefix(charge.Code, "000201"))
	assert.NotEmpty(t, charge.QRImageRef)
	assert.Equal(t, 600, charge.ExpiresInSeconds)
	assert.Equal(t, "joao-silva", env.provider.lastExtID.Load())

	assert.False(t, env.paid(t, "joao-silva"), "issuance must not mark the payer paid")

	w = env.do(http.MethodPost, "/api/webhooks/bspay", `{"requestBody":{"external_id":"joao-silva","status":"PAID"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Webhook processed successfully", decode[models.MessageResponse](t, w).Message)

	assert.True(t, env.paid(t, "joao-silva"))

	w = env.do(http.MethodGet, "/api/users/joao-silva", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[models.PayerView](t, w)
	assert.Equal(t, models.PayerView{Name: "João Silva", Email: "joao-silva@example.com", Slug: "joao-silva", Paid: true}, view)
}

func TestPendingWebhookLeavesPayerUnpaid(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "maria")

	w := env.do(http.MethodPost, "/api/webhooks/bspay", `{"external_id":"maria","status":"PENDING"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.False(t, env.paid(t, "maria"))
}

func TestRepeatedIssuanceThenPaid(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "joao-silva")

	first := decode[models.ChargePresentation](t, env.do(http.MethodPost, "/api/charges", joao))
	second := decode[models.ChargePresentation](t, env.do(http.MethodPost, "/api/charges", joao))
	assert.NotEqual(t, first.Code, second.Code)
	assert.EqualValues(t, 2, env.provider.chargeCalls.Load())

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/api/webhooks/bspay", `{"external_id":"joao-silva","status":"PAID"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	u, err := env.store.GetUser(context.Background(), "joao-silva")
	require.NoError(t, err)
	assert.True(t, u.Paid)
	require.NotNil(t, u.PaidAt)
}

func TestIssueCharge_ValidationError(t *testing.T) {
	env := newTestEnv(t, "")

	for _, body := range []string{
		`{"userName":"a","userEmail":"b"}`,
		`{"userSlug":"a","userEmail":"b"}`,
		`{"userSlug":"a","userName":"b"}`,
		`{"userSlug":"","userName":"","userEmail":""}`,
		`not json`,
	} {
		w := env.do(http.MethodPost, "/api/charges", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.NotEmpty(t, decode[models.ErrorResponse](t, w).Error)
	}
	assert.Zero(t, env.provider.tokenCalls.Load())
	assert.Zero(t, env.provider.chargeCalls.Load())
}

func TestIssueCharge_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, "")
	env.provider.rejectAuth.Store(true)

	w := env.do(http.MethodPost, "/api/charges", joao)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotEmpty(t, decode[models.ErrorResponse](t, w).Error)
	assert.Zero(t, env.provider.chargeCalls.Load())
}

func TestWebhook_MissingFields(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "maria")

	for _, body := range []string{`{}`, `{"external_id":"maria"}`, `{"requestBody":{"status":"PAID"}}`} {
		w := env.do(http.MethodPost, "/api/webhooks/bspay", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "missing external_id or status in webhook payload", decode[models.ErrorResponse](t, w).Error)
	}
	assert.False(t, env.paid(t, "maria"))
}

func TestWebhook_MalformedJSONReportsDecodeError(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "maria")

	w := env.do(http.MethodPost, "/api/webhooks/bspay", `{"external_id":"maria",`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	msg := decode[models.ErrorResponse](t, w).Error
	assert.Contains(t, msg, "decode webhook payload")
	assert.NotEqual(t, "missing external_id or status in webhook payload", msg)
	assert.False(t, env.paid(t, "maria"))
}

func TestWebhook_OversizedPayloadIs413(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "maria")

	body := `{"external_id":"maria","status":"PAID","padding":"` + strings.Repeat("x", maxWebhookBody) + `"}`
	w := env.do(http.MethodPost, "/api/webhooks/bspay", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "webhook payload too large", decode[models.ErrorResponse](t, w).Error)
	assert.False(t, env.paid(t, "maria"))
}

func TestWebhook_UnknownSlugIs500(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodPost, "/api/webhooks/bspay", `{"external_id":"ghost","status":"PAID"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Error, "payer not found")
}

func TestWebhook_LegacyPaths(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "a")
	env.seed(t, "b")

	w := env.do(http.MethodPost, "/functions/v1/bspay-webhook", `{"external_id":"a","status":"PAID"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPost, "/functions/v1/bspay-webhook-handler", `{"requestBody":{"external_id":"b","status":"PAID"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.True(t, env.paid(t, "a"))
	assert.True(t, env.paid(t, "b"))

	w = env.do(http.MethodPost, "/functions/v1/generate-pix", joao)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_Preflight(t *testing.T) {
	env := newTestEnv(t, "secret")

	w := env.do(http.MethodOptions, "/api/webhooks/bspay", "",
		"Origin", "https://profile.example",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "authorization, content-type",
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "content-type")
	assert.Empty(t, w.Body.String())
}

func TestWebhook_BareOptions(t *testing.T) {
	env := newTestEnv(t, "secret")

	w := env.do(http.MethodOptions, "/functions/v1/bspay-webhook", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "authorization")
}

func TestWebhook_Token(t *testing.T) {
	env := newTestEnv(t, "secret")
	env.seed(t, "maria")
	body := `{"external_id":"maria","status":"PAID"}`

	w := env.do(http.MethodPost, "/api/webhooks/bspay", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(http.MethodPost, "/api/webhooks/bspay", body, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.paid(t, "maria"))

	w = env.do(http.MethodPost, "/api/webhooks/bspay?token=secret", body)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPost, "/api/webhooks/bspay", body, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.paid(t, "maria"))
}

func TestLookup_NotFound(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/api/users/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodGet, "/api/users/ghost/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}
