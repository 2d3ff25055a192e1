package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IssueChargeRequest is the body of a charge issuance call.
type IssueChargeRequest struct {
	UserSlug  string `json:"userSlug"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// ChargePresentation is what the client needs to display a Pix charge.
// It is never persisted.
type ChargePresentation struct {
	ChargeID         string          `json:"chargeId"`
	Code             string          `json:"code"`
	QRImageRef       string          `json:"qrImageRef"`
	Amount           decimal.Decimal `json:"amount"`
	DisplayAmount    string          `json:"displayAmount"`
	ExpiresInSeconds int             `json:"expiresInSeconds"`
	ExpiresAt        time.Time       `json:"expiresAt"`
}

// ErrorResponse is the JSON error body used on every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the JSON success body of the webhook endpoint.
type MessageResponse struct {
	Message string `json:"message"`
}

// FormatBRL renders an amount the way it is shown to payers, e.g. "R$48,00".
func FormatBRL(amount decimal.Decimal) string {
	fixed := amount.StringFixedBank(2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return sign + "R$" + b.String() + "," + frac
}
