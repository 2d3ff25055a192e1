package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StatusPaid is the only notification status that changes payer state.
const StatusPaid = "PAID"

// ErrMissingNotificationFields is returned when neither payload shape carries both
// external_id and status.
var ErrMissingNotificationFields = errors.New("missing external_id or status in webhook payload")

// PayloadShape records where the notification fields were found.
type PayloadShape string

const (
	ShapeTopLevel    PayloadShape = "top_level"
	ShapeRequestBody PayloadShape = "request_body"
)

// Notification is a provider webhook reduced to the fields reconciliation needs.
type Notification struct {
	ExternalID string
	Status     string
	Shape      PayloadShape
}

// IsPaid reports whether the notification confirms payment.
func (n Notification) IsPaid() bool {
	return n.Status == StatusPaid
}

type notificationFields struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

func (f notificationFields) complete() bool {
	return f.ExternalID != "" && f.Status != ""
}

type notificationEnvelope struct {
	notificationFields
	RequestBody *notificationFields `json:"requestBody"`
}

// ParseNotification extracts external_id and status from a provider payload.
//
// BSPay has delivered both a flat payload and one wrapped in "requestBody". The
// flat shape is tried first, then the wrapper. Both fields must come from the same
// shape; a payload split across the two is rejected.
func ParseNotification(raw []byte) (Notification, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Notification{}, fmt.Errorf("decode webhook payload: %w", err)
	}

	top := env.notificationFields.trimmed()
	if top.complete() {
		return Notification{ExternalID: top.ExternalID, Status: top.Status, Shape: ShapeTopLevel}, nil
	}

	if env.RequestBody != nil {
		nested := env.RequestBody.trimmed()
		if nested.complete() {
			return Notification{ExternalID: nested.ExternalID, Status: nested.Status, Shape: ShapeRequestBody}, nil
		}
	}

	return Notification{}, ErrMissingNotificationFields
}

func (f notificationFields) trimmed() notificationFields {
	return notificationFields{
		ExternalID: strings.TrimSpace(f.ExternalID),
		Status:     strings.TrimSpace(f.Status),
	}
}
