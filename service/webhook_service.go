package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otaviobastosmatriz/rh2026/logging"
	"github.com/otaviobastosmatriz/rh2026/models"
	"github.com/otaviobastosmatriz/rh2026/monitoring"
	"github.com/otaviobastosmatriz/rh2026/store"
)

// Outcome describes what a webhook delivery did.
type Outcome struct {
	Notification models.Notification
	// Applied is true when MarkPaid ran for the notification.
	Applied bool
}

// WebhookService reconciles provider notifications against payer records.
// It keeps no state between deliveries.
type WebhookService struct {
	tracer trace.Tracer
	store  store.Store
}

// NewWebhookService creates a new webhook service
func NewWebhookService(tracer trace.Tracer, st store.Store) *WebhookService {
	return &WebhookService{tracer: tracer, store: st}
}

// HandleNotification parses raw and marks the payer paid on a PAID status. Any
// other status is acknowledged without a write. Missing fields yield a
// ValidationError; store failures, unknown slugs included, yield a ProcessingError.
func (s *WebhookService) HandleNotification(ctx context.Context, raw []byte) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "handle_notification")
	defer span.End()

	logger := logging.WithTraceContext(span)

	n, err := models.ParseNotification(raw)
	if err != nil {
		logger.Warn("Rejected webhook payload", zap.Error(err), zap.ByteString("payload", truncateBytes(raw, 2000)))
		span.SetStatus(codes.Error, err.Error())
		recordNotification(ctx, "", "rejected")
		reason := err.Error()
		if errors.Is(err, models.ErrMissingNotificationFields) {
			return nil, &ValidationError{Field: "external_id/status", Reason: reason}
		}
		return nil, &ValidationError{Field: "payload", Reason: reason}
	}

	span.SetAttributes(
		attribute.String("payer.slug", n.ExternalID),
		attribute.String("notification.status", n.Status),
		attribute.String("notification.shape", string(n.Shape)),
	)
	logger = logger.With(
		zap.String("slug", n.ExternalID),
		zap.String("status", n.Status),
		zap.String("shape", string(n.Shape)),
	)

	if !n.IsPaid() {
		logger.Info("Notification status needs no update")
		recordNotification(ctx, n.Status, "ignored")
		return &Outcome{Notification: n}, nil
	}

	if err := s.store.MarkPaid(ctx, n.ExternalID); err != nil {
		logger.Error("Failed to mark payer paid", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		recordNotification(ctx, n.Status, "failed")
		return nil, &ProcessingError{ExternalID: n.ExternalID, Err: err}
	}

	logger.Info("Payer marked paid")
	recordNotification(ctx, n.Status, "applied")
	return &Outcome{Notification: n, Applied: true}, nil
}

func recordNotification(ctx context.Context, status, outcome string) {
	monitoring.WebhookNotifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("outcome", outcome),
		),
	)
}

func truncateBytes(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	return b[:max]
}
