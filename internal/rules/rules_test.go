package rules_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

const sampleRules = `
required_fields:
  header: [invoice_id, vendor_name, total_amount]
  line_item: [description, quantity, price]
field_types:
  invoice_id: string
  vendor_name: string
  total_amount: decimal
  invoice_date: date
  description: string
  quantity: decimal
  price: decimal
  line_total: decimal
accepted_currencies: [USD, eur, GBP, JPY]
currency_symbols:
  "$": USD
  "€": EUR
  "US$": usd
policies:
  missing_field: reject
  totalMismatch: flag_for_review
  unknown_currency: reject
tolerances:
  price_variance: "1.5%"
  total_variance: 0.05
currency_decimals:
  JPY: 0
default_currency: USD
`

func TestParse_Sample(t *testing.T) {
	rs, err := rules.Parse([]byte(sampleRules))
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice_id", "vendor_name", "total_amount"}, rs.RequiredHeaderFields)
	assert.Equal(t, []string{"description", "quantity", "price"}, rs.RequiredLineItemFields)
	assert.Equal(t, model.FieldTypeDecimal, rs.FieldTypes["total_amount"])
	assert.Equal(t, model.FieldTypeDate, rs.FieldTypes["invoice_date"])
	assert.Equal(t, []string{"EUR", "GBP", "JPY", "USD"}, rs.AcceptedCodes())

	assert.Equal(t, "USD", rs.CurrencySymbols["$"])
	assert.Equal(t, "USD", rs.CurrencySymbols["us$"])
	assert.Equal(t, "EUR", rs.CurrencySymbols["€"])

	action, ok := rs.Policy(model.KindTotalMismatch)
	require.True(t, ok)
	assert.Equal(t, model.ActionFlagForReview, action)
	_, ok = rs.Policy(model.KindTypeMismatch)
	assert.False(t, ok)

	assert.Equal(t, int32(0), rs.Decimals("JPY"))
	assert.Equal(t, int32(2), rs.Decimals("USD"))
	assert.Equal(t, "USD", rs.DefaultCurrency)
	assert.Equal(t, "invoice_id", rs.IdentifierField)
	assert.InDelta(t, 0.70, rs.MinConfidence, 1e-9)
	assert.Len(t, rs.Fingerprint, 64)
}

func TestParse_Tolerances(t *testing.T) {
	rs, err := rules.Parse([]byte(sampleRules))
	require.NoError(t, err)

	price := rs.Tolerance(rules.TolerancePriceVariance)
	assert.Equal(t, rules.ModePercent, price.Mode)
	assert.True(t, price.Value.Equal(decimal.RequireFromString("1.5")))

	total := rs.Tolerance(rules.ToleranceTotalVariance)
	assert.Equal(t, rules.ModeAbsolute, total.Mode)
	assert.True(t, total.Value.Equal(decimal.RequireFromString("0.05")))

	// Unset kinds fall back to defaults
	rounding := rs.Tolerance(rules.ToleranceRounding)
	assert.True(t, rounding.Value.Equal(decimal.RequireFromString("0.005")))
	qty := rs.Tolerance(rules.ToleranceQuantityVariance)
	assert.True(t, qty.Value.IsZero())
}

func TestParse_ToleranceForms(t *testing.T) {
	tests := []struct {
		name  string
		value string
		mode  rules.ToleranceMode
		want  string
	}{
		{"integer", "1", rules.ModeAbsolute, "1"},
		{"float", "0.01", rules.ModeAbsolute, "0.01"},
		{"string", `"0.01"`, rules.ModeAbsolute, "0.01"},
		{"percent string", `"2%"`, rules.ModePercent, "2"},
		{"object percent", "{value: 0.5, mode: percent}", rules.ModePercent, "0.5"},
		{"object default mode", "{value: 3}", rules.ModeAbsolute, "3"},
		{"zero", "0", rules.ModeAbsolute, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := minimalRules + "tolerances:\n  rounding: " + tt.value + "\n"
			rs, err := rules.Parse([]byte(doc))
			require.NoError(t, err)
			tol := rs.Tolerance(rules.ToleranceRounding)
			assert.Equal(t, tt.mode, tol.Mode)
			assert.True(t, tol.Value.Equal(decimal.RequireFromString(tt.want)), "got %s", tol.Value)
		})
	}
}

const minimalRules = `
required_fields:
  header: [vendor_name]
field_types:
  vendor_name: string
accepted_currencies: [USD]
policies: {}
`

func TestParse_JSONDocument(t *testing.T) {
	doc := `{
	  "required_fields": {"header": ["vendor_name"], "line_item": []},
	  "field_types": {"vendor_name": "string"},
	  "accepted_currencies": ["USD"],
	  "policies": {"missing_field": "reject"}
	}`
	rs, err := rules.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor_name"}, rs.RequiredHeaderFields)
	assert.Empty(t, rs.RequiredLineItemFields)
}

func TestParse_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		key  string
	}{
		{
			name: "malformed yaml",
			doc:  "required_fields: [unclosed",
			key:  "document",
		},
		{
			name: "unknown top-level key",
			doc:  minimalRules + "surprise: true\n",
			key:  "document",
		},
		{
			name: "missing policies",
			doc:  strings.Replace(minimalRules, "policies: {}\n", "", 1),
			key:  "policies",
		},
		{
			name: "missing required_fields",
			doc:  "field_types: {a: string}\naccepted_currencies: [USD]\npolicies: {}\n",
			key:  "required_fields",
		},
		{
			name: "empty currency list",
			doc:  strings.Replace(minimalRules, "[USD]", "[]", 1),
			key:  "accepted_currencies",
		},
		{
			name: "unknown field type",
			doc:  strings.Replace(minimalRules, "vendor_name: string", "vendor_name: blob", 1),
			key:  "field_types.vendor_name",
		},
		{
			name: "required field without type",
			doc:  strings.Replace(minimalRules, "[vendor_name]", "[vendor_name, po_number]", 1),
			key:  "required_fields.header[1]",
		},
		{
			name: "bad currency code",
			doc:  strings.Replace(minimalRules, "[USD]", "[USD, DOLLARS]", 1),
			key:  "accepted_currencies[1]",
		},
		{
			name: "symbol to unaccepted code",
			doc:  minimalRules + "currency_symbols:\n  \"€\": EUR\n",
			key:  "currency_symbols.€",
		},
		{
			name: "negative tolerance",
			doc:  minimalRules + "tolerances:\n  rounding: -0.01\n",
			key:  "tolerances.rounding",
		},
		{
			name: "non-numeric tolerance",
			doc:  minimalRules + "tolerances:\n  total_variance: lots\n",
			key:  "tolerances.total_variance",
		},
		{
			name: "NaN tolerance",
			doc:  minimalRules + "tolerances:\n  total_variance: .nan\n",
			key:  "tolerances.total_variance",
		},
		{
			name: "infinite tolerance",
			doc:  minimalRules + "tolerances:\n  price_variance: .inf\n",
			key:  "tolerances.price_variance",
		},
		{
			name: "infinite tolerance object",
			doc:  minimalRules + "tolerances:\n  rounding: {value: -.inf}\n",
			key:  "tolerances.rounding",
		},
		{
			name: "unknown tolerance kind",
			doc:  minimalRules + "tolerances:\n  vibes: 1\n",
			key:  "tolerances.vibes",
		},
		{
			name: "unknown policy kind",
			doc:  strings.Replace(minimalRules, "policies: {}", "policies: {late_payment: reject}", 1),
			key:  "policies.late_payment",
		},
		{
			name: "unknown action",
			doc:  strings.Replace(minimalRules, "policies: {}", "policies: {missing_field: escalate}", 1),
			key:  "policies.missing_field",
		},
		{
			name: "default currency not accepted",
			doc:  minimalRules + "default_currency: EUR\n",
			key:  "default_currency",
		},
		{
			name: "min confidence out of range",
			doc:  minimalRules + "min_confidence: 1.5\n",
			key:  "min_confidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := rules.Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, rs)

			var cfgErr *model.ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestParse_FirstErrorIsDeterministic(t *testing.T) {
	doc := minimalRules + "tolerances:\n  zeta: 1\n  alpha: 1\n  beta: -1\n"
	for i := 0; i < 20; i++ {
		_, err := rules.Parse([]byte(doc))
		var cfgErr *model.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "tolerances.alpha", cfgErr.Key)
	}
}

func TestParse_Fingerprint(t *testing.T) {
	a, err := rules.Parse([]byte(sampleRules))
	require.NoError(t, err)
	b, err := rules.Parse([]byte(sampleRules))
	require.NoError(t, err)
	c, err := rules.Parse([]byte(minimalRules))
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestParse_ReconciliationOverrides(t *testing.T) {
	doc := minimalRules + "reconciliation:\n  price: unit_price\n  total: grand_total\n"
	rs, err := rules.Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "unit_price", rs.Reconciliation.Price)
	assert.Equal(t, "grand_total", rs.Reconciliation.Total)
	assert.Equal(t, "quantity", rs.Reconciliation.Quantity)
	assert.Equal(t, "tax_amount", rs.Reconciliation.Tax)
}

func TestTolerance_Allowance(t *testing.T) {
	abs := rules.Absolute("0.01")
	assert.True(t, abs.Allowance(decimal.NewFromInt(1000)).Equal(decimal.RequireFromString("0.01")))

	pct := rules.Percent("1")
	assert.True(t, pct.Allowance(decimal.NewFromInt(250)).Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "1%", pct.String())
	assert.Equal(t, "0.01", abs.String())
}

func TestTolerance_Boundary(t *testing.T) {
	base := decimal.NewFromInt(250)

	abs := rules.Absolute("0.01")
	assert.True(t, abs.Allows(decimal.RequireFromString("0.01"), base))
	assert.True(t, abs.Allows(decimal.RequireFromString("-0.01"), base))
	assert.False(t, abs.Allows(decimal.RequireFromString("0.02"), base))

	pct := rules.Percent("1")
	assert.True(t, pct.Allows(decimal.RequireFromString("2.50"), base))
	assert.False(t, pct.Allows(decimal.RequireFromString("2.51"), base))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o600))

	rs, err := rules.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, rs.RequiredHeaderFields, 3)

	_, err = rules.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *model.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "file", cfgErr.Key)
}

func TestLoad(t *testing.T) {
	rs, err := rules.Load(strings.NewReader(minimalRules))
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor_name"}, rs.RequiredHeaderFields)
}

func TestStore(t *testing.T) {
	empty := rules.NewStore(nil)
	_, err := empty.Current()
	assert.ErrorIs(t, err, rules.ErrNoRuleSet)

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalRules), 0o600))

	store, err := rules.OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())

	first, err := store.Current()
	require.NoError(t, err)

	// Snapshot survives a reload
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o600))
	second, err := store.ReloadFile("")
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, []string{"vendor_name"}, first.RequiredHeaderFields)

	current, err := store.Current()
	require.NoError(t, err)
	assert.Same(t, second, current)

	// A broken file keeps the active rule set
	require.NoError(t, os.WriteFile(path, []byte("policies: ["), 0o600))
	_, err = store.ReloadFile("")
	require.Error(t, err)
	current, err = store.Current()
	require.NoError(t, err)
	assert.Same(t, second, current)

	prev := store.Swap(first)
	assert.Same(t, second, prev)
}

func TestSummarize(t *testing.T) {
	rs, err := rules.Parse([]byte(sampleRules))
	require.NoError(t, err)

	s := rules.Summarize(rs)
	assert.Equal(t, rs.Fingerprint, s.Fingerprint)
	assert.Equal(t, []string{"EUR", "GBP", "JPY", "USD"}, s.AcceptedCurrencies)
	assert.Equal(t, "USD", s.DefaultCurrency)
	assert.Equal(t, "date", s.FieldTypes["invoice_date"])

	assert.Equal(t, "reject", s.Policies["missing_field"])
	assert.Equal(t, "flag_for_review", s.Policies["line_item_mismatch"])
	assert.Len(t, s.Policies, len(model.AllKinds))

	assert.Equal(t, "1.5%", s.Tolerances["price_variance"])
	assert.Equal(t, "0.05", s.Tolerances["total_variance"])
	assert.Equal(t, "0.005", s.Tolerances["rounding"])

	s.RequiredHeaderFields[0] = "changed"
	assert.Equal(t, "invoice_id", rs.RequiredHeaderFields[0])
}

func TestLoadFile_ShippedRules(t *testing.T) {
	rs, err := rules.LoadFile(filepath.Join("..", "..", "configs", "rules.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "unit_price", rs.Reconciliation.Price)
	assert.Equal(t, "quantity", rs.Reconciliation.Quantity)
	assert.Equal(t, int32(0), rs.Decimals("JPY"))
	assert.Equal(t, "INR", rs.CurrencySymbols["rs"])
	action, ok := rs.Policy(model.KindMissingField)
	require.True(t, ok)
	assert.Equal(t, model.ActionReject, action)
}
