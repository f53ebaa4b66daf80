// Package reconcile recomputes line and header arithmetic and reports deltas beyond tolerance.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rezonia/invoice-auditor/internal/currency"
	dec "github.com/rezonia/invoice-auditor/internal/decimal"
	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// Reconcile checks each line total against price × quantity, then the header
// subtotal and total against the sum of computed line totals.
// Lines without a numeric price and quantity are left out of every sum.
func Reconcile(rec *model.InvoiceRecord, rs *rules.RuleSet) []model.Discrepancy {
	r := newReconciler(rec, rs)

	var (
		out    []model.Discrepancy
		totals []decimal.Decimal
	)
	for i, item := range rec.LineItems {
		computed, d, ok := r.line(i+1, item)
		if !ok {
			continue
		}
		totals = append(totals, computed)
		if d != nil {
			out = append(out, *d)
		}
	}

	if len(totals) == 0 {
		return out
	}
	sum := dec.Sum(totals)
	if d := r.checkSubtotal(sum); d != nil {
		out = append(out, *d)
	}
	if d := r.checkTotal(sum); d != nil {
		out = append(out, *d)
	}
	return out
}

type reconciler struct {
	rec    *model.InvoiceRecord
	rs     *rules.RuleSet
	fields rules.ReconciliationFields
	places int32

	rounding rules.Tolerance
	price    rules.Tolerance
	quantity rules.Tolerance
	total    rules.Tolerance
}

func newReconciler(rec *model.InvoiceRecord, rs *rules.RuleSet) *reconciler {
	places := rules.DefaultCurrencyDigits
	if code := currency.Normalize(rec.CurrencyRaw, rs); code != nil {
		places = rs.Decimals(*code)
	}
	return &reconciler{
		rec:      rec,
		rs:       rs,
		fields:   rs.Reconciliation,
		places:   places,
		rounding: rs.Tolerance(rules.ToleranceRounding),
		price:    rs.Tolerance(rules.TolerancePriceVariance),
		quantity: rs.Tolerance(rules.ToleranceQuantityVariance),
		total:    rs.Tolerance(rules.ToleranceTotalVariance),
	}
}

// line returns the computed line total and a mismatch if the extracted total disagrees.
// ok is false when the line cannot take part in arithmetic.
func (r *reconciler) line(index int, item model.LineItem) (decimal.Decimal, *model.Discrepancy, bool) {
	price, okPrice := number(item, r.fields.Price)
	qty, okQty := number(item, r.fields.Quantity)
	if !okPrice || !okQty {
		return dec.Zero, nil, false
	}
	computed := dec.Mul(price, qty, r.places)

	extracted, ok := number(item, r.fields.LineTotal)
	if !ok {
		return computed, nil, true
	}
	// Within rounding, price or quantity allowance, whichever is widest
	allowance := dec.Max(
		dec.Max(r.rounding.Allowance(computed), r.price.Allowance(computed)),
		r.quantityAllowance(price, computed),
	)
	off := dec.AbsDelta(extracted, computed)
	if off.LessThanOrEqual(allowance) {
		return computed, nil, true
	}

	return computed, &model.Discrepancy{
		Kind:      model.KindLineItemMismatch,
		Field:     r.fields.LineTotal,
		Line:      index,
		Expected:  computed.StringFixed(r.places),
		Actual:    extracted.String(),
		Magnitude: decimal.NewNullDecimal(off),
		Message: fmt.Sprintf("line %d: %s is %s but %s × %s = %s (off by %s)",
			index, r.fields.LineTotal, extracted, qty, price, computed.StringFixed(r.places), off),
	}, true
}

// quantityAllowance converts the quantity tolerance into money.
// Absolute values are quantity units priced at the line's unit price.
func (r *reconciler) quantityAllowance(price, computed decimal.Decimal) decimal.Decimal {
	if r.quantity.Mode == rules.ModePercent {
		return r.quantity.Allowance(computed)
	}
	return r.quantity.Value.Mul(price.Abs())
}

func (r *reconciler) checkSubtotal(sum decimal.Decimal) *model.Discrepancy {
	subtotal, ok := number(r.rec.Header, r.fields.Subtotal)
	if !ok {
		return nil
	}
	return r.compareHeader(r.fields.Subtotal, sum, subtotal, "sum of line totals")
}

func (r *reconciler) checkTotal(sum decimal.Decimal) *model.Discrepancy {
	total, ok := number(r.rec.Header, r.fields.Total)
	if !ok {
		return nil
	}
	expected := sum
	basis := "sum of line totals"
	if tax, ok := number(r.rec.Header, r.fields.Tax); ok {
		expected = expected.Add(tax)
		basis += " + " + r.fields.Tax
	}
	if discount, ok := number(r.rec.Header, r.fields.Discount); ok {
		expected = expected.Sub(discount)
		basis += " - " + r.fields.Discount
	}
	return r.compareHeader(r.fields.Total, expected, total, basis)
}

func (r *reconciler) compareHeader(field string, expected, actual decimal.Decimal, basis string) *model.Discrepancy {
	off := dec.AbsDelta(actual, expected)
	if r.rounding.Allows(off, expected) || r.total.Allows(off, expected) {
		return nil
	}
	return &model.Discrepancy{
		Kind:      model.KindTotalMismatch,
		Field:     field,
		Expected:  expected.StringFixed(r.places),
		Actual:    actual.String(),
		Magnitude: decimal.NewNullDecimal(off),
		Message: fmt.Sprintf("%s is %s but %s is %s (off by %s, tolerance %s)",
			field, actual, basis, expected.StringFixed(r.places), off, r.total),
	}
}

// number reads a numeric field; absent, blank or non-numeric values report false
func number(values map[string]model.FieldValue, name string) (decimal.Decimal, bool) {
	fv, ok := values[name]
	if !ok || fv.IsBlank() {
		return dec.Zero, false
	}
	d, err := dec.Parse(fv.Value)
	if err != nil {
		return dec.Zero, false
	}
	return d, true
}
