package reconcile_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/reconcile"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

const baseRules = `
required_fields: {header: [], line_item: []}
field_types: {}
accepted_currencies: [USD, JPY]
currency_decimals: {JPY: 0}
policies: {}
`

func loadRules(t *testing.T, extra string) *rules.RuleSet {
	t.Helper()
	rs, err := rules.Parse([]byte(baseRules + extra))
	require.NoError(t, err)
	return rs
}

func num(s string) model.FieldValue {
	return model.NewFieldValue(json.Number(s))
}

func line(qty, price, total string) model.LineItem {
	item := model.LineItem{
		"quantity": num(qty),
		"price":    num(price),
	}
	if total != "" {
		item["line_total"] = num(total)
	}
	return item
}

// 10 × 2 + 5 × 1 = 25.00
func scenario(total string) *model.InvoiceRecord {
	return &model.InvoiceRecord{
		Header: map[string]model.FieldValue{
			"total_amount": num(total),
		},
		LineItems: []model.LineItem{
			line("10", "2", "20"),
			line("5", "1", "5"),
		},
		CurrencyRaw: "USD",
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReconcile_Balanced(t *testing.T) {
	rs := loadRules(t, "")
	assert.Empty(t, reconcile.Reconcile(scenario("25.00"), rs))
}

func TestReconcile_TotalMismatch(t *testing.T) {
	rs := loadRules(t, "")

	ds := reconcile.Reconcile(scenario("25.50"), rs)
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(t, model.KindTotalMismatch, d.Kind)
	assert.Equal(t, "total_amount", d.Field)
	assert.Equal(t, "25.00", d.Expected)
	require.True(t, d.Magnitude.Valid)
	assert.True(t, d.Magnitude.Decimal.Equal(dec("0.50")), "magnitude %s", d.Magnitude.Decimal)
}

func TestReconcile_TotalToleranceBoundary(t *testing.T) {
	tests := []struct {
		name     string
		extra    string
		total    string
		mismatch bool
	}{
		{"absolute at boundary", "tolerances: {total_variance: 0.02}\n", "25.02", false},
		{"absolute below", "tolerances: {total_variance: 0.02}\n", "24.98", false},
		{"absolute one cent beyond", "tolerances: {total_variance: 0.02}\n", "25.03", true},
		{"percent at boundary", "tolerances: {total_variance: \"1%\"}\n", "25.25", false},
		{"percent one cent beyond", "tolerances: {total_variance: \"1%\"}\n", "25.26", true},
		{"zero tolerance exact", "tolerances: {total_variance: 0, rounding: 0}\n", "25.00", false},
		{"zero tolerance one cent", "tolerances: {total_variance: 0, rounding: 0}\n", "25.01", true},
		{"rounding absorbs", "tolerances: {total_variance: 0, rounding: 0.005}\n", "25.005", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := loadRules(t, tt.extra)
			ds := reconcile.Reconcile(scenario(tt.total), rs)
			if tt.mismatch {
				require.Len(t, ds, 1)
				assert.Equal(t, model.KindTotalMismatch, ds[0].Kind)
			} else {
				assert.Empty(t, ds)
			}
		})
	}
}

func TestReconcile_LineToleranceBoundary(t *testing.T) {
	tests := []struct {
		name      string
		extra     string
		lineTotal string
		mismatch  bool
	}{
		{"absolute at boundary", "tolerances: {price_variance: 0.01}\n", "20.01", false},
		{"absolute beyond", "tolerances: {price_variance: 0.01}\n", "20.02", true},
		{"percent at boundary", "tolerances: {price_variance: \"1%\"}\n", "20.20", false},
		{"percent beyond", "tolerances: {price_variance: \"1%\"}\n", "20.21", true},
		{"quantity units", "tolerances: {price_variance: 0, quantity_variance: 1}\n", "22.00", false},
		{"quantity units beyond", "tolerances: {price_variance: 0, quantity_variance: 1}\n", "22.01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := loadRules(t, tt.extra)
			rec := &model.InvoiceRecord{
				Header:      map[string]model.FieldValue{},
				LineItems:   []model.LineItem{line("10", "2", tt.lineTotal)},
				CurrencyRaw: "USD",
			}
			ds := reconcile.Reconcile(rec, rs)
			if tt.mismatch {
				require.Len(t, ds, 1)
				assert.Equal(t, model.KindLineItemMismatch, ds[0].Kind)
				assert.Equal(t, 1, ds[0].Line)
			} else {
				assert.Empty(t, ds)
			}
		})
	}
}

func TestReconcile_LineMismatchMagnitude(t *testing.T) {
	rs := loadRules(t, "")
	rec := scenario("25.00")
	rec.LineItems[1] = line("5", "1", "6.00")

	ds := reconcile.Reconcile(rec, rs)
	require.Len(t, ds, 1)
	assert.Equal(t, model.KindLineItemMismatch, ds[0].Kind)
	assert.Equal(t, 2, ds[0].Line)
	assert.Equal(t, "5.00", ds[0].Expected)
	assert.True(t, ds[0].Magnitude.Decimal.Equal(dec("1")))
}

func TestReconcile_ExcludesNonNumericLines(t *testing.T) {
	rs := loadRules(t, "")
	rec := scenario("25.00")
	rec.LineItems = append(rec.LineItems,
		model.LineItem{"quantity": num("3"), "price": model.NewFieldValue("n/a")},
		model.LineItem{"description": model.NewFieldValue("freight, no price")},
	)

	assert.Empty(t, reconcile.Reconcile(rec, rs))
}

func TestReconcile_ExcludesNonFiniteValues(t *testing.T) {
	rs := loadRules(t, "")
	rec := scenario("25.00")
	rec.LineItems = append(rec.LineItems,
		model.LineItem{"quantity": num("1"), "price": model.NewFieldValue(math.NaN())},
		model.LineItem{"quantity": model.NewFieldValue(math.Inf(1)), "price": num("4")},
	)
	rec.Header["tax_amount"] = model.NewFieldValue(math.Inf(-1))

	var ds []model.Discrepancy
	require.NotPanics(t, func() {
		ds = reconcile.Reconcile(rec, rs)
	})
	assert.Empty(t, ds)
}

func TestReconcile_NoEligibleLines(t *testing.T) {
	rs := loadRules(t, "")
	rec := &model.InvoiceRecord{
		Header: map[string]model.FieldValue{"total_amount": num("99")},
		LineItems: []model.LineItem{
			{"quantity": model.NewFieldValue("some")},
		},
	}
	assert.Empty(t, reconcile.Reconcile(rec, rs))
}

func TestReconcile_TaxAndDiscount(t *testing.T) {
	rs := loadRules(t, "")
	rec := scenario("27.00")
	rec.Header["tax_amount"] = num("2.50")
	rec.Header["discount_amount"] = num("0.50")
	assert.Empty(t, reconcile.Reconcile(rec, rs))

	rec.Header["discount_amount"] = num("0")
	ds := reconcile.Reconcile(rec, rs)
	require.Len(t, ds, 1)
	assert.Equal(t, "27.50", ds[0].Expected)
	assert.True(t, ds[0].Magnitude.Decimal.Equal(dec("0.5")))
}

func TestReconcile_Subtotal(t *testing.T) {
	rs := loadRules(t, "")
	rec := scenario("27.50")
	rec.Header["subtotal"] = num("26.00")
	rec.Header["tax_amount"] = num("2.50")

	ds := reconcile.Reconcile(rec, rs)
	require.Len(t, ds, 1)
	assert.Equal(t, model.KindTotalMismatch, ds[0].Kind)
	assert.Equal(t, "subtotal", ds[0].Field)
	assert.True(t, ds[0].Magnitude.Decimal.Equal(dec("1")))
}

func TestReconcile_CurrencyDecimals(t *testing.T) {
	rs := loadRules(t, "tolerances: {price_variance: 0, rounding: 0}\n")
	rec := &model.InvoiceRecord{
		Header:      map[string]model.FieldValue{"total_amount": num("334")},
		LineItems:   []model.LineItem{line("3", "111.4", "334")},
		CurrencyRaw: "JPY",
	}
	// 3 × 111.4 = 334.2 rounds to 334 yen
	assert.Empty(t, reconcile.Reconcile(rec, rs))
}

func TestReconcile_CustomFieldNames(t *testing.T) {
	rs := loadRules(t, "reconciliation: {price: unit_price, total: grand_total}\n")
	rec := &model.InvoiceRecord{
		Header: map[string]model.FieldValue{"grand_total": num("30")},
		LineItems: []model.LineItem{
			{"quantity": num("10"), "unit_price": num("2")},
		},
	}
	ds := reconcile.Reconcile(rec, rs)
	require.Len(t, ds, 1)
	assert.Equal(t, "grand_total", ds[0].Field)
}

func TestReconcile_FormattedAmounts(t *testing.T) {
	rs := loadRules(t, "")
	rec := scenario("25.00")
	rec.Header["total_amount"] = model.NewFieldValue("$25.00")
	assert.Empty(t, reconcile.Reconcile(rec, rs))
}
