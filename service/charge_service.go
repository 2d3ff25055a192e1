package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otaviobastosmatriz/rh2026/document"
	"github.com/otaviobastosmatriz/rh2026/logging"
	"github.com/otaviobastosmatriz/rh2026/models"
	"github.com/otaviobastosmatriz/rh2026/monitoring"
	"github.com/otaviobastosmatriz/rh2026/provider"
	"github.com/otaviobastosmatriz/rh2026/store"
)

// Gateway is the provider surface issuance needs. *provider.BSPayClient satisfies it.
type Gateway interface {
	Authenticate(ctx context.Context) (string, error)
	CreateCharge(ctx context.Context, token string, req provider.ChargeRequest) (*provider.Charge, error)
}

// ChargeSettings are the fixed business parameters of every charge.
type ChargeSettings struct {
	Amount         decimal.Decimal
	Expiration     time.Duration
	PostbackURL    string
	QRImageBaseURL string
}

// Validate reports settings a charge cannot be issued with. The postback URL
// must be absolute or the provider never delivers the payment notification.
func (cs ChargeSettings) Validate() error {
	if !cs.Amount.IsPositive() {
		return fmt.Errorf("charge amount must be positive, got %s", cs.Amount)
	}
	if strings.TrimSpace(cs.PostbackURL) == "" {
		return errors.New("postback url is required")
	}
	u, err := url.Parse(cs.PostbackURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("postback url %q is not an absolute url", cs.PostbackURL)
	}
	return nil
}

// ChargeService issues Pix charges and answers payment status lookups.
type ChargeService struct {
	tracer   trace.Tracer
	gateway  Gateway
	store    store.Store
	settings ChargeSettings

	newDocument func() string
	now         func() time.Time
}

// NewChargeService creates a new charge service
func NewChargeService(tracer trace.Tracer, gateway Gateway, st store.Store, settings ChargeSettings) *ChargeService {
	if settings.Expiration <= 0 {
		settings.Expiration = 600 * time.Second
	}
	return &ChargeService{
		tracer:      tracer,
		gateway:     gateway,
		store:       st,
		settings:    settings,
		newDocument: document.GenerateCPF,
		now:         time.Now,
	}
}

// IssueCharge creates a fresh provider charge for the payer. Nothing is persisted;
// a failed issuance leaves no local state behind.
func (s *ChargeService) IssueCharge(ctx context.Context, req *models.IssueChargeRequest) (*models.ChargePresentation, error) {
	ctx, span := s.tracer.Start(ctx, "issue_charge")
	defer span.End()

	if err := validateIssueRequest(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		recordIssued(ctx, "invalid")
		return nil, err
	}

	chargeID := uuid.NewString()
	span.SetAttributes(
		attribute.String("payer.slug", req.UserSlug),
		attribute.String("charge.id", chargeID),
		attribute.String("charge.amount", s.settings.Amount.String()),
	)

	logger := logging.WithTraceContext(span).With(
		zap.String("charge_id", chargeID),
		zap.String("slug", req.UserSlug),
	)
	logger.Info("Issuing Pix charge")

	token, err := s.authenticate(ctx)
	if err != nil {
		logger.Error("Provider authentication failed", zap.Error(err))
		span.SetStatus(codes.Error, "authenticate")
		recordIssued(ctx, "auth_failed")
		return nil, &UpstreamAuthError{Err: err}
	}

	charge, err := s.createCharge(ctx, token, provider.ChargeRequest{
		Amount:            s.settings.Amount,
		ExternalReference: req.UserSlug,
		PayerName:         req.UserName,
		PayerEmail:        req.UserEmail,
		PayerDocument:     s.newDocument(),
		PostbackURL:       s.settings.PostbackURL,
	})
	if err != nil {
		logger.Error("Provider charge creation failed", zap.Error(err))
		span.SetStatus(codes.Error, "create_charge")
		recordIssued(ctx, "charge_failed")
		return nil, &UpstreamChargeError{Err: err}
	}

	qr := charge.QRImageRef
	if qr == "" {
		qr = QRImageURL(s.settings.QRImageBaseURL, charge.Code)
	}

	recordIssued(ctx, "success")
	monitoring.ChargeAmount.Record(ctx, s.settings.Amount.InexactFloat64())
	span.SetAttributes(attribute.String("provider.transaction_id", charge.TransactionID))
	logger.Info("Pix charge issued", zap.String("transaction_id", charge.TransactionID))

	expiresIn := int(s.settings.Expiration / time.Second)
	return &models.ChargePresentation{
		ChargeID:         chargeID,
		Code:             charge.Code,
		QRImageRef:       qr,
		Amount:           s.settings.Amount,
		DisplayAmount:    models.FormatBRL(s.settings.Amount),
		ExpiresInSeconds: expiresIn,
		ExpiresAt:        s.now().Add(s.settings.Expiration).UTC(),
	}, nil
}

// PaymentStatus reports whether the payer's charge has been confirmed.
func (s *ChargeService) PaymentStatus(ctx context.Context, slug string) (bool, error) {
	if strings.TrimSpace(slug) == "" {
		return false, &ValidationError{Field: "slug"}
	}
	return s.store.GetPaymentStatus(ctx, slug)
}

// Payer returns the payer record for the profile page.
func (s *ChargeService) Payer(ctx context.Context, slug string) (*models.User, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, &ValidationError{Field: "slug"}
	}
	return s.store.GetUser(ctx, slug)
}

func (s *ChargeService) authenticate(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "provider.authenticate")
	defer span.End()
	return s.gateway.Authenticate(ctx)
}

func (s *ChargeService) createCharge(ctx context.Context, token string, req provider.ChargeRequest) (*provider.Charge, error) {
	ctx, span := s.tracer.Start(ctx, "provider.create_charge")
	defer span.End()
	return s.gateway.CreateCharge(ctx, token, req)
}

// QRImageURL derives a QR rendering URL for a payable code.
func QRImageURL(base, code string) string {
	if base == "" {
		base = "https://api.qrserver.com/v1/create-qr-code/"
	}
	return fmt.Sprintf("%s?size=150x150&data=%s", base, url.QueryEscape(code))
}

func validateIssueRequest(req *models.IssueChargeRequest) error {
	if req == nil {
		return &ValidationError{Field: "request"}
	}
	req.UserSlug = strings.TrimSpace(req.UserSlug)
	req.UserName = strings.TrimSpace(req.UserName)
	req.UserEmail = strings.TrimSpace(req.UserEmail)

	switch {
	case req.UserSlug == "":
		return &ValidationError{Field: "userSlug"}
	case req.UserName == "":
		return &ValidationError{Field: "userName"}
	case req.UserEmail == "":
		return &ValidationError{Field: "userEmail"}
	}
	return nil
}

func recordIssued(ctx context.Context, status string) {
	monitoring.ChargesIssued.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
