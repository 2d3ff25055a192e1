package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatBRL(t *testing.T) {
	cases := map[string]string{
		"48":      "R$48,00",
		"48.00":   "R$48,00",
		"3":       "R$3,00",
		"0.5":     "R$0,50",
		"1234.5":  "R$1.234,50",
		"1000000": "R$1.000.000,00",
		"-12.3":   "-R$12,30",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatBRL(decimal.RequireFromString(in)), in)
	}
}
