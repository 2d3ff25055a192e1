// Package document synthesizes payer document numbers (CPF) for providers that
// refuse a charge without one. The numbers are well-formed, not registered.
package document

import (
	"math/rand"
	"strings"
)

const baseLength = 9

// Source yields digits in [0, n).
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.Intn(n) }

// GenerateCPF returns an 11-digit CPF: nine random base digits followed by two
// check digits.
func GenerateCPF() string {
	return GenerateCPFFrom(globalSource{})
}

// GenerateCPFFrom is GenerateCPF with an explicit digit source.
func GenerateCPFFrom(src Source) string {
	digits := make([]int, 0, baseLength+2)
	for i := 0; i < baseLength; i++ {
		digits = append(digits, src.IntN(10))
	}
	digits = append(digits, CheckDigit(digits))
	digits = append(digits, CheckDigit(digits))

	var b strings.Builder
	for _, d := range digits {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

// CheckDigit computes the modulus-11 check digit of base. Weights run from
// len(base)+1 down to 2.
func CheckDigit(base []int) int {
	sum := 0
	weight := len(base) + 1
	for _, d := range base {
		sum += d * weight
		weight--
	}
	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

// ValidCPF reports whether cpf is 11 digits whose last two are the check digits
// of the 9- and 10-digit prefixes.
func ValidCPF(cpf string) bool {
	if len(cpf) != baseLength+2 {
		return false
	}
	digits := make([]int, len(cpf))
	for i, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
	}
	return CheckDigit(digits[:baseLength]) == digits[baseLength] &&
		CheckDigit(digits[:baseLength+1]) == digits[baseLength+1]
}
