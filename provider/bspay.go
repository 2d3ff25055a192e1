package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otaviobastosmatriz/rh2026/logging"
	"github.com/otaviobastosmatriz/rh2026/monitoring"
)

// Config configures a BSPay client.
type Config struct {
	BaseURL string
	// AuthKey is the static credential sent verbatim in the Authorization header
	// of the token request, e.g. "Basic <base64>".
	AuthKey string
	Timeout time.Duration
	// Client overrides the instrumented default client.
	Client *http.Client
}

// BSPayClient talks to the BSPay v2 Pix API.
type BSPayClient struct {
	baseURL    *url.URL
	authKey    string
	httpClient *http.Client
}

// NewBSPayClient validates cfg and builds a client.
func NewBSPayClient(cfg Config) (*BSPayClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.AuthKey) == "" {
		return nil, errors.New("bspay: base url and auth key are required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		}
	}

	return &BSPayClient{baseURL: u, authKey: cfg.AuthKey, httpClient: client}, nil
}

// ChargeRequest is the canonical input of a Pix charge.
type ChargeRequest struct {
	Amount            decimal.Decimal
	ExternalReference string
	PayerName         string
	PayerEmail        string
	PayerDocument     string
	PostbackURL       string
}

// Charge is the provider response normalized for issuance.
type Charge struct {
	TransactionID string
	Code          string
	// QRImageRef is empty when the provider did not return an image.
	QRImageRef string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type pixPayer struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Email    string `json:"email"`
}

type pixQRCodeRequest struct {
	Amount        float64  `json:"amount"`
	ExternalID    string   `json:"external_id"`
	PayerQuestion string   `json:"payerQuestion"`
	Payer         pixPayer `json:"payer"`
	PostbackURL   string   `json:"postbackUrl"`
}

type pixQRCodeResponse struct {
	TransactionID    string `json:"transactionId"`
	QRCode           string `json:"qrcode"`
	QRCodeImage      string `json:"qrcode_image"`
	QRCodeImageCamel string `json:"qrCodeImage"`
}

// Authenticate exchanges the static credential for a bearer token.
func (c *BSPayClient) Authenticate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/oauth/token"), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authKey)
	req.Header.Set("Content-Type", "application/json")

	body, resp, err := c.do(ctx, "authenticate", req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}}
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", &AuthError{APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: "empty access_token"}}
	}
	return out.AccessToken, nil
}

// CreateCharge requests a Pix QR code. ExternalReference must be the payer slug so
// webhooks correlate back to the payer record.
func (c *BSPayClient) CreateCharge(ctx context.Context, token string, in ChargeRequest) (*Charge, error) {
	payload := pixQRCodeRequest{
		Amount:     in.Amount.InexactFloat64(),
		ExternalID: in.ExternalReference,
		Payer: pixPayer{
			Name:     in.PayerName,
			Document: in.PayerDocument,
			Email:    in.PayerEmail,
		},
		PostbackURL: in.PostbackURL,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/pix/qrcode"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, resp, err := c.do(ctx, "create_charge", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ChargeError{APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}}
	}

	var out pixQRCodeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode qrcode response: %w", err)
	}
	if strings.TrimSpace(out.QRCode) == "" {
		return nil, &ChargeError{APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: "empty qrcode"}}
	}

	image := out.QRCodeImage
	if image == "" {
		image = out.QRCodeImageCamel
	}
	return &Charge{
		TransactionID: out.TransactionID,
		Code:          out.QRCode,
		QRImageRef:    image,
	}, nil
}

// do sends req, reads the whole body and records the call duration.
func (c *BSPayClient) do(ctx context.Context, op string, req *http.Request) ([]byte, *http.Response, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("external.service", "bspay"))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordCall(ctx, op, "error", start)
		span.SetAttributes(attribute.String("external.status", "error"))
		return nil, nil, fmt.Errorf("bspay %s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		recordCall(ctx, op, "error", start)
		return nil, nil, fmt.Errorf("bspay %s read body: %w", op, err)
	}

	status := "success"
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status = "failed"
		logging.FromContext(ctx).Error("BSPay rejected request",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", truncate(string(body), 2000)),
		)
	}
	recordCall(ctx, op, status, start)
	span.SetAttributes(
		attribute.Int("external.status_code", resp.StatusCode),
		attribute.String("external.status", status),
	)
	return body, resp, nil
}

func (c *BSPayClient) endpoint(p string) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	return u.String()
}

func recordCall(ctx context.Context, op, status string, start time.Time) {
	monitoring.ProviderCallDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
