// Package engine is the validation entry point: record + rule set in, report out.
//
// Validate is a pure function of its inputs apart from the report timestamp,
// so any number of goroutines may share one Engine and one RuleSet.
package engine

import (
	"errors"
	"fmt"

	"github.com/rezonia/invoice-auditor/internal/currency"
	"github.com/rezonia/invoice-auditor/internal/fields"
	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/policy"
	"github.com/rezonia/invoice-auditor/internal/reconcile"
	"github.com/rezonia/invoice-auditor/internal/report"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// Errors for invalid calls; data problems are discrepancies, never errors
var (
	ErrNilRecord  = errors.New("invoice record is nil")
	ErrNilRuleSet = errors.New("rule set is nil")
)

// Engine runs the validation stages in order
type Engine struct {
	builder *report.Builder
}

// Option configures an Engine
type Option func(*Engine)

// WithReportBuilder replaces the default report builder
func WithReportBuilder(b *report.Builder) Option {
	return func(e *Engine) {
		e.builder = b
	}
}

// New creates an engine
func New(opts ...Option) *Engine {
	e := &Engine{builder: report.NewBuilder()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks rec against rs and returns the report
func (e *Engine) Validate(rec *model.InvoiceRecord, rs *rules.RuleSet) (*report.ValidationReport, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	if rs == nil {
		return nil, ErrNilRuleSet
	}

	result := e.Resolve(rec, rs)
	return e.builder.Build(result, rec, rs), nil
}

// Resolve runs detection and policy without building a report
func (e *Engine) Resolve(rec *model.InvoiceRecord, rs *rules.RuleSet) model.ValidationResult {
	ds := Detect(rec, rs)
	result := policy.Resolve(ds, rs)
	result.NormalizedCurrency = currency.Normalize(rec.CurrencyRaw, rs)
	return result
}

// Detect collects every finding in report order: header fields, currency,
// line item fields, then arithmetic.
func Detect(rec *model.InvoiceRecord, rs *rules.RuleSet) []model.Discrepancy {
	var ds []model.Discrepancy
	ds = append(ds, fields.ValidateHeader(rec, rs)...)
	if d, ok := unknownCurrency(rec, rs); ok {
		ds = append(ds, d)
	}
	ds = append(ds, fields.ValidateLineItems(rec, rs)...)
	ds = append(ds, reconcile.Reconcile(rec, rs)...)
	return ds
}

func unknownCurrency(rec *model.InvoiceRecord, rs *rules.RuleSet) (model.Discrepancy, bool) {
	if currency.Normalize(rec.CurrencyRaw, rs) != nil {
		return model.Discrepancy{}, false
	}
	msg := fmt.Sprintf("currency %q is not accepted", rec.CurrencyRaw)
	if rec.CurrencyRaw == "" {
		msg = "currency is missing and no default is configured"
	}
	return model.Discrepancy{
		Kind:     model.KindUnknownCurrency,
		Field:    "currency",
		Expected: fmt.Sprintf("one of %v", rs.AcceptedCodes()),
		Actual:   rec.CurrencyRaw,
		Message:  msg,
	}, true
}

// Validate runs a default engine
func Validate(rec *model.InvoiceRecord, rs *rules.RuleSet) (*report.ValidationReport, error) {
	return defaultEngine.Validate(rec, rs)
}

var defaultEngine = New()
