// Package rules loads and validates the declarative rule set the engine validates invoices against.
//
// A RuleSet is built once by Parse/Load/LoadFile and then shared read-only between
// concurrent validations. Nothing in the engine mutates it after construction.
package rules

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	dec "github.com/rezonia/invoice-auditor/internal/decimal"
	"github.com/rezonia/invoice-auditor/internal/model"
)

// ToleranceKind names a numeric threshold used by the reconciler
type ToleranceKind string

const (
	ToleranceRounding         ToleranceKind = "rounding"
	TolerancePriceVariance    ToleranceKind = "price_variance"
	ToleranceQuantityVariance ToleranceKind = "quantity_variance"
	ToleranceTotalVariance    ToleranceKind = "total_variance"
)

// ToleranceKinds lists every kind in a stable order
var ToleranceKinds = []ToleranceKind{
	ToleranceRounding,
	TolerancePriceVariance,
	ToleranceQuantityVariance,
	ToleranceTotalVariance,
}

// ParseToleranceKind maps a configured key to a ToleranceKind
func ParseToleranceKind(s string) (ToleranceKind, bool) {
	n := squash(s)
	for _, k := range ToleranceKinds {
		if squash(string(k)) == n {
			return k, true
		}
	}
	return "", false
}

// ToleranceMode tags a tolerance value as absolute or percentage
type ToleranceMode string

const (
	ModeAbsolute ToleranceMode = "absolute"
	ModePercent  ToleranceMode = "percent"
)

// Tolerance is a non-negative threshold below which a numeric delta is not a mismatch
type Tolerance struct {
	Value decimal.Decimal
	Mode  ToleranceMode
}

// Absolute creates an absolute tolerance
func Absolute(v string) Tolerance {
	return Tolerance{Value: dec.MustFromString(v), Mode: ModeAbsolute}
}

// Percent creates a percentage tolerance
func Percent(v string) Tolerance {
	return Tolerance{Value: dec.MustFromString(v), Mode: ModePercent}
}

// Allowance converts the tolerance into an absolute amount for the given base value
func (t Tolerance) Allowance(base decimal.Decimal) decimal.Decimal {
	if t.Mode == ModePercent {
		return dec.PercentOf(base, t.Value)
	}
	return t.Value
}

// Allows reports whether |delta| is within the tolerance. A delta equal to the allowance passes.
func (t Tolerance) Allows(delta, base decimal.Decimal) bool {
	return delta.Abs().LessThanOrEqual(t.Allowance(base))
}

func (t Tolerance) String() string {
	if t.Mode == ModePercent {
		return t.Value.String() + "%"
	}
	return t.Value.String()
}

// DefaultTolerances apply to any kind the rule document leaves out.
// total_variance defaults to a 0.02 financial rounding delta.
func DefaultTolerances() map[ToleranceKind]Tolerance {
	return map[ToleranceKind]Tolerance{
		ToleranceRounding:         Absolute("0.005"),
		TolerancePriceVariance:    Absolute("0.01"),
		ToleranceQuantityVariance: Absolute("0"),
		ToleranceTotalVariance:    Absolute("0.02"),
	}
}

// ReconciliationFields names the fields the arithmetic reconciler reads
type ReconciliationFields struct {
	Price     string `yaml:"price"`
	Quantity  string `yaml:"quantity"`
	LineTotal string `yaml:"line_total"`
	Total     string `yaml:"total"`
	Subtotal  string `yaml:"subtotal"`
	Tax       string `yaml:"tax"`
	Discount  string `yaml:"discount"`
}

// DefaultReconciliationFields follows the extraction data contract
func DefaultReconciliationFields() ReconciliationFields {
	return ReconciliationFields{
		Price:     "price",
		Quantity:  "quantity",
		LineTotal: "line_total",
		Total:     "total_amount",
		Subtotal:  "subtotal",
		Tax:       "tax_amount",
		Discount:  "discount_amount",
	}
}

// Defaults for optional sections
const (
	DefaultIdentifierField = "invoice_id"
	DefaultMinConfidence   = 0.70
	DefaultCurrencyDigits  = int32(2)
)

// RuleSet is the validated, immutable rule configuration
type RuleSet struct {
	RequiredHeaderFields   []string
	RequiredLineItemFields []string
	FieldTypes             map[string]model.FieldType
	Tolerances             map[ToleranceKind]Tolerance
	AcceptedCurrencies     map[string]struct{}
	// CurrencySymbols is keyed by the lower-cased symbol or alias
	CurrencySymbols  map[string]string
	Policies         map[model.DiscrepancyKind]model.Action
	Reconciliation   ReconciliationFields
	CurrencyDecimals map[string]int32
	DefaultCurrency  string
	IdentifierField  string
	MinConfidence    float64
	// Fingerprint is the sha256 of the source document
	Fingerprint string
}

// Tolerance returns the configured tolerance, or the default for that kind
func (rs *RuleSet) Tolerance(kind ToleranceKind) Tolerance {
	if t, ok := rs.Tolerances[kind]; ok {
		return t
	}
	return DefaultTolerances()[kind]
}

// IsAccepted reports whether code is a canonical accepted currency
func (rs *RuleSet) IsAccepted(code string) bool {
	_, ok := rs.AcceptedCurrencies[code]
	return ok
}

// AcceptedCodes returns the accepted currency codes sorted
func (rs *RuleSet) AcceptedCodes() []string {
	codes := make([]string, 0, len(rs.AcceptedCurrencies))
	for c := range rs.AcceptedCurrencies {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Decimals returns the minor-unit digits for a currency (2 when unset or unknown)
func (rs *RuleSet) Decimals(code string) int32 {
	if d, ok := rs.CurrencyDecimals[code]; ok {
		return d
	}
	return DefaultCurrencyDigits
}

// Policy returns the configured action for a discrepancy kind
func (rs *RuleSet) Policy(kind model.DiscrepancyKind) (model.Action, bool) {
	a, ok := rs.Policies[kind]
	return a, ok
}

// FieldType returns the declared type of a field
func (rs *RuleSet) FieldType(field string) (model.FieldType, bool) {
	t, ok := rs.FieldTypes[field]
	return t, ok
}

func squash(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}
