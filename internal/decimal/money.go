package decimal

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// amountNoise is stripped from extracted amount strings before parsing.
// Thousands separators, spacing and the common currency symbols.
var amountNoise = strings.NewReplacer(
	",", "",
	"_", "",
	" ", "",
	" ", "",
	"$", "",
	"€", "",
	"£", "",
	"¥", "",
	"₹", "",
	"₫", "",
)

// Parse converts an extracted value into a decimal.
// Accepts json.Number, integers, floats, decimals and numeric strings.
func Parse(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return ParseAmount(n)
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint64:
		return decimal.NewFromUint64(n), nil
	case float32:
		if isNonFinite(float64(n)) {
			return Zero, fmt.Errorf("non-finite number %v", n)
		}
		return decimal.NewFromFloat32(n), nil
	case float64:
		if isNonFinite(n) {
			return Zero, fmt.Errorf("non-finite number %v", n)
		}
		return decimal.NewFromFloat(n), nil
	case nil:
		return Zero, fmt.Errorf("no value")
	default:
		return Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func isNonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// ParseAmount parses an amount string such as "1,234.50" or "$ 25.00"
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := amountNoise.Replace(strings.TrimSpace(s))
	// Accounting negatives: (12.50)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + cleaned[1:len(cleaned)-1]
	}
	if cleaned == "" {
		return Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(cleaned)
}

// Round rounds half away from zero to the given number of places
func Round(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// Mul multiplies two decimals and rounds to the given places
func Mul(a, b decimal.Decimal, places int32) decimal.Decimal {
	return Round(a.Mul(b), places)
}

// AbsDelta returns |a - b|
func AbsDelta(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}

// PercentOf computes: |base| * (percentage/100), unrounded
func PercentOf(base, percentage decimal.Decimal) decimal.Decimal {
	return base.Abs().Mul(percentage).Div(hundred)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// Max returns the larger of two decimals
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}
