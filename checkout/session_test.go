package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otaviobastosmatriz/rh2026/models"
)

type fakeIssuer struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (f *fakeIssuer) IssueCharge(ctx context.Context, req *models.IssueChargeRequest) (*models.ChargePresentation, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.ChargePresentation{
		Code:             fmt.Sprintf("000201-%s-%d", req.UserSlug, f.calls),
		ExpiresInSeconds: 600,
	}, nil
}

type fakeChecker struct {
	paid  atomic.Bool
	err   error
	calls atomic.Int32
}

func (f *fakeChecker) PaymentStatus(ctx context.Context, slug string) (bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return false, f.err
	}
	return f.paid.Load(), nil
}

var payer = Payer{Slug: "joao-silva", Name: "João Silva", Email: "joao@example.com"}

func TestSession_GenerateThenConfirm(t *testing.T) {
	ctx := context.Background()
	issuer, checker := &fakeIssuer{}, &fakeChecker{}
	confirmed := make(chan struct{}, 1)

	s := NewSession(issuer, checker, payer, OnConfirmed(func() { confirmed <- struct{}{} }))
	defer s.Close()
	assert.Equal(t, Idle, s.State())

	charge, err := s.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "000201-joao-silva-1", charge.Code)
	assert.Equal(t, Ready, s.State())
	assert.InDelta(t, float64(600*time.Second), float64(s.Remaining()), float64(time.Second))

	paid, err := s.Check(ctx)
	require.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, Ready, s.State())

	checker.paid.Store(true)
	paid, err = s.Check(ctx)
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, Confirmed, s.State())

	select {
	case <-confirmed:
	case <-time.After(time.Second):
		t.Fatal("confirmation callback not called")
	}

	paid, err = s.Check(ctx)
	require.NoError(t, err)
	assert.True(t, paid)
	assert.EqualValues(t, 2, checker.calls.Load(), "confirmed sessions do not re-check")
}

func TestSession_GenerateFailureReturnsToIdle(t *testing.T) {
	issuer := &fakeIssuer{err: errors.New("provider down")}
	s := NewSession(issuer, &fakeChecker{}, payer)
	defer s.Close()

	_, err := s.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, Idle, s.State())
	assert.Nil(t, s.Charge())

	_, err = s.Check(context.Background())
	assert.ErrorIs(t, err, ErrNoCharge)
}

func TestSession_FailedReissueClearsCountdown(t *testing.T) {
	issuer := &fakeIssuer{}
	s := NewSession(issuer, &fakeChecker{}, payer)
	defer s.Close()

	_, err := s.Generate(context.Background())
	require.NoError(t, err)
	require.Positive(t, s.Remaining())

	issuer.mu.Lock()
	issuer.err = errors.New("provider down")
	issuer.mu.Unlock()

	_, err = s.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, Idle, s.State())
	assert.Nil(t, s.Charge())
	assert.Zero(t, s.Remaining())
}

func TestSession_CheckErrorKeepsReady(t *testing.T) {
	checker := &fakeChecker{err: errors.New("network")}
	s := NewSession(&fakeIssuer{}, checker, payer)
	defer s.Close()

	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	_, err = s.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, Ready, s.State())
}

func TestSession_Expires(t *testing.T) {
	expired := make(chan struct{}, 1)
	s := NewSession(&fakeIssuer{}, &fakeChecker{}, payer,
		WithExpiry(20*time.Millisecond),
		OnExpired(func() { expired <- struct{}{} }),
	)
	defer s.Close()

	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never expired")
	}
	assert.Equal(t, Expired, s.State())
	assert.Zero(t, s.Remaining())
	assert.NotNil(t, s.Charge(), "expiry is display-only, the charge stays")
}

func TestSession_CheckAfterExpiry(t *testing.T) {
	checker := &fakeChecker{}
	s := NewSession(&fakeIssuer{}, checker, payer, WithExpiry(10*time.Millisecond))
	defer s.Close()

	_, err := s.Generate(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.State() == Expired }, 2*time.Second, 5*time.Millisecond)

	paid, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, Expired, s.State())

	checker.paid.Store(true)
	paid, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, Confirmed, s.State())
}

func TestSession_RegenerateCancelsOldCountdown(t *testing.T) {
	var fired atomic.Int32
	s := NewSession(&fakeIssuer{}, &fakeChecker{}, payer,
		WithExpiry(50*time.Millisecond),
		OnExpired(func() { fired.Add(1) }),
	)
	defer s.Close()

	first, err := s.Generate(context.Background())
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	s.mu.Lock()
	s.expiry = 500 * time.Millisecond
	s.mu.Unlock()
	second, err := s.Generate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, fired.Load(), "first countdown must not fire after re-issuance")
	assert.Equal(t, Ready, s.State())
}

func TestSession_CloseStopsCountdown(t *testing.T) {
	var fired atomic.Int32
	s := NewSession(&fakeIssuer{}, &fakeChecker{}, payer,
		WithExpiry(20*time.Millisecond),
		OnExpired(func() { fired.Add(1) }),
	)

	_, err := s.Generate(context.Background())
	require.NoError(t, err)
	s.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())

	_, err = s.Generate(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Check(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_BusyWhileGenerating(t *testing.T) {
	issuer := &fakeIssuer{block: make(chan struct{})}
	s := NewSession(issuer, &fakeChecker{}, payer)
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State() == Generating }, time.Second, time.Millisecond)
	_, err := s.Generate(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Check(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(issuer.block)
	require.NoError(t, <-done)
	assert.Equal(t, Ready, s.State())
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "10:00", FormatCountdown(600*time.Second))
	assert.Equal(t, "01:05", FormatCountdown(65*time.Second))
	assert.Equal(t, "00:00", FormatCountdown(-time.Second))
}

func TestClient_AgainstAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/charges", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"chargeId":"c1","code":"000201","qrImageRef":"https://qr","amount":"48","displayAmount":"R$48,00","expiresInSeconds":600}`))
	})
	mux.HandleFunc("/api/users/joao-silva/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"slug":"joao-silva","paid":true}`))
	})
	mux.HandleFunc("/api/users/ghost/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"payer not found"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewClient(ts.URL+"/", time.Second)

	charge, err := c.IssueCharge(context.Background(), &models.IssueChargeRequest{UserSlug: "joao-silva", UserName: "a", UserEmail: "b"})
	require.NoError(t, err)
	assert.Equal(t, "000201", charge.Code)
	assert.Equal(t, "R$48,00", charge.DisplayAmount)

	paid, err := c.PaymentStatus(context.Background(), "joao-silva")
	require.NoError(t, err)
	assert.True(t, paid)

	_, err = c.PaymentStatus(context.Background(), "ghost")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "payer not found", apiErr.Message)
}
