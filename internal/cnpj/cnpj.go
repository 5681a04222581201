// Package cnpj provides utilities for the Brazilian company registry number
// (Cadastro Nacional da Pessoa Jurídica). A full CNPJ has 14 digits: an
// 8-digit base, a 4-digit order and 2 check digits.
package cnpj

import (
	"fmt"
	"strings"
)

// Digits strips everything that is not a decimal digit.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Compose builds the 14-digit CNPJ from its parts, zero-padding the base to
// 8, the order to 4 and the check digits to 2.
func Compose(base, order, dv string) string {
	return fmt.Sprintf("%08s%04s%02s", Digits(base), Digits(order), Digits(dv))
}

// IsValid reports whether s (masked or not) is a structurally valid CNPJ:
// 14 digits, not all equal, with correct check digits.
func IsValid(s string) bool {
	digits := Digits(s)
	if len(digits) != 14 {
		return false
	}

	allEqual := true
	for i := 1; i < 14; i++ {
		if digits[i] != digits[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return false
	}

	return checkDigit(digits[:12]) == int(digits[12]-'0') &&
		checkDigit(digits[:13]) == int(digits[13]-'0')
}

// checkDigit computes the module-11 check digit over the given prefix using
// the standard CNPJ weight sequence (2..9, repeating from the right).
func checkDigit(prefix string) int {
	weight := 2
	sum := 0
	for i := len(prefix) - 1; i >= 0; i-- {
		sum += int(prefix[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// Format renders a 14-digit CNPJ with the standard mask
// (00.000.000/0000-00). Inputs that are not 14 digits are returned
// unchanged after digit stripping.
func Format(s string) string {
	digits := Digits(s)
	if len(digits) != 14 {
		return digits
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s",
		digits[0:2], digits[2:5], digits[5:8], digits[8:12], digits[12:14])
}
