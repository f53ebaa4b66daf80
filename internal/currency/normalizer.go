// Package currency maps raw extracted currency text to a canonical accepted code.
package currency

import (
	"strings"

	"github.com/rezonia/invoice-auditor/internal/rules"
)

// Normalize resolves raw to an accepted currency code.
// Lookup order: accepted codes, then configured symbols, then the default currency for empty input.
// Returns nil when nothing matches; never errors.
func Normalize(raw string, rs *rules.RuleSet) *string {
	if rs == nil {
		return nil
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if rs.DefaultCurrency != "" {
			return ptr(rs.DefaultCurrency)
		}
		return nil
	}

	if code := strings.ToUpper(trimmed); rs.IsAccepted(code) {
		return ptr(code)
	}
	if code, ok := rs.CurrencySymbols[strings.ToLower(trimmed)]; ok {
		return ptr(code)
	}
	return nil
}

// IsResolvable reports whether raw would normalize to an accepted code
func IsResolvable(raw string, rs *rules.RuleSet) bool {
	return Normalize(raw, rs) != nil
}

func ptr(s string) *string {
	return &s
}
