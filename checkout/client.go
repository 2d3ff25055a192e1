package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/otaviobastosmatriz/rh2026/models"
)

// Client calls the payments HTTP API. It implements Issuer and StatusChecker.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IssueCharge calls POST /api/charges.
func (c *Client) IssueCharge(ctx context.Context, req *models.IssueChargeRequest) (*models.ChargePresentation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out models.ChargePresentation
	if err := c.do(ctx, http.MethodPost, "/api/charges", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentStatus calls GET /api/users/:slug/status.
func (c *Client) PaymentStatus(ctx context.Context, slug string) (bool, error) {
	var out models.PaymentStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(slug)+"/status", nil, &out); err != nil {
		return false, err
	}
	return out.Paid, nil
}

// Payer calls GET /api/users/:slug.
func (c *Client) Payer(ctx context.Context, slug string) (*models.PayerView, error) {
	var out models.PayerView
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(slug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e models.ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return json.Unmarshal(data, out)
}
