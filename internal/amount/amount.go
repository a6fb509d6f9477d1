// Package amount converts between integer base units and decimal token
// amounts.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Parse reads either a base-unit integer or, when it contains a dot, a decimal
// amount scaled by decimals.
func Parse(raw string, decimals int) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeValidation, "decimals must be >= 0")
	}
	if !decimalPattern.MatchString(raw) {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("amount %q must be a non-negative integer or decimal like 1.23", raw))
	}
	if !strings.Contains(raw, ".") {
		n, _ := new(big.Int).SetString(raw, 10)
		return n, nil
	}
	return decimalToBaseUnits(raw, decimals)
}

// Format renders base units as a decimal string without trailing zeros.
func Format(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	n := new(big.Int).Abs(baseUnits)
	sign := ""
	if baseUnits.Sign() < 0 {
		sign = "-"
	}
	s := n.String()
	if decimals <= 0 {
		return sign + s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return sign + intPart
	}
	return sign + intPart + "." + fracPart
}

func decimalToBaseUnits(decimal string, decimals int) (*big.Int, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart, fracPart := parts[0], parts[1]
	if len(fracPart) > decimals {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	combined := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	n, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeValidation, "invalid decimal amount")
	}
	return n, nil
}
