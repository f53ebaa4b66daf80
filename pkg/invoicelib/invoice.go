// Package invoicelib provides a public API for auditing extracted invoice data.
//
// This package exposes the record, rule and report types and an Auditor that
// validates records against a rule set loaded from YAML or JSON.
//
// Example usage:
//
//	auditor, err := invoicelib.NewAuditorFromFile("rules.yaml", invoicelib.DefaultAuditorOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reports, err := auditor.Process(ctx, reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(reports[0].Status)
package invoicelib

import (
	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/report"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// Re-export core types for public API
type (
	InvoiceRecord    = model.InvoiceRecord
	FieldValue       = model.FieldValue
	LineItem         = model.LineItem
	FieldType        = model.FieldType
	Discrepancy      = model.Discrepancy
	DiscrepancyKind  = model.DiscrepancyKind
	Action           = model.Action
	Status           = model.Status
	ValidationResult = model.ValidationResult
	ValidationReport = report.ValidationReport
	RuleSet          = rules.RuleSet
	RuleSummary      = rules.Summary
	Tolerance        = rules.Tolerance
	ToleranceKind    = rules.ToleranceKind
)

// Re-export discrepancy kinds
const (
	KindMissingField     = model.KindMissingField
	KindTypeMismatch     = model.KindTypeMismatch
	KindUnknownCurrency  = model.KindUnknownCurrency
	KindTotalMismatch    = model.KindTotalMismatch
	KindLineItemMismatch = model.KindLineItemMismatch
)

// Re-export actions
const (
	ActionAccept        = model.ActionAccept
	ActionFlagForReview = model.ActionFlagForReview
	ActionReject        = model.ActionReject
	DefaultAction       = model.DefaultAction
)

// Re-export statuses
const (
	StatusAccepted         = model.StatusAccepted
	StatusFlaggedForReview = model.StatusFlaggedForReview
	StatusRejected         = model.StatusRejected
)

// Re-export field types
const (
	FieldTypeString       = model.FieldTypeString
	FieldTypeDecimal      = model.FieldTypeDecimal
	FieldTypeDate         = model.FieldTypeDate
	FieldTypeCurrencyCode = model.FieldTypeCurrencyCode
)

// Re-export error types
type (
	ConfigError   = model.ConfigError
	ParseError    = model.ParseError
	CoercionError = model.CoercionError
)

// NewFieldValue wraps an extracted value
func NewFieldValue(v interface{}) FieldValue {
	return model.NewFieldValue(v)
}
