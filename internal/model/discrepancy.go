package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FieldType is the semantic type a field value must coerce to
type FieldType string

const (
	FieldTypeString       FieldType = "string"
	FieldTypeDecimal      FieldType = "decimal"
	FieldTypeDate         FieldType = "date"
	FieldTypeCurrencyCode FieldType = "currency_code"
)

// ParseFieldType maps a configured type name to a FieldType.
// Both snake_case and camelCase spellings are accepted.
func ParseFieldType(s string) (FieldType, bool) {
	switch normalizeName(s) {
	case "string", "text":
		return FieldTypeString, true
	case "decimal", "number", "amount":
		return FieldTypeDecimal, true
	case "date":
		return FieldTypeDate, true
	case "currencycode", "currency":
		return FieldTypeCurrencyCode, true
	}
	return "", false
}

// DiscrepancyKind is the closed set of findings the engine can report
type DiscrepancyKind string

const (
	KindMissingField     DiscrepancyKind = "missing_field"
	KindTypeMismatch     DiscrepancyKind = "type_mismatch"
	KindUnknownCurrency  DiscrepancyKind = "unknown_currency"
	KindTotalMismatch    DiscrepancyKind = "total_mismatch"
	KindLineItemMismatch DiscrepancyKind = "line_item_mismatch"
)

// AllKinds lists every discrepancy kind in a stable order
var AllKinds = []DiscrepancyKind{
	KindMissingField,
	KindTypeMismatch,
	KindUnknownCurrency,
	KindTotalMismatch,
	KindLineItemMismatch,
}

// ParseKind maps a configured policy key to a DiscrepancyKind
func ParseKind(s string) (DiscrepancyKind, bool) {
	n := normalizeName(s)
	for _, k := range AllKinds {
		if normalizeName(string(k)) == n {
			return k, true
		}
	}
	return "", false
}

// Action is the disposition a policy assigns to a discrepancy kind
type Action string

const (
	ActionAccept        Action = "accept"
	ActionFlagForReview Action = "flag_for_review"
	ActionReject        Action = "reject"
)

// DefaultAction applies to kinds with no configured policy.
// An unclassified discrepancy is never silently accepted.
const DefaultAction = ActionFlagForReview

// ParseAction maps a configured action name to an Action
func ParseAction(s string) (Action, bool) {
	switch normalizeName(s) {
	case "accept":
		return ActionAccept, true
	case "flagforreview", "flag", "review":
		return ActionFlagForReview, true
	case "reject":
		return ActionReject, true
	}
	return "", false
}

// Severity orders actions: reject > flag_for_review > accept
func (a Action) Severity() int {
	switch a {
	case ActionReject:
		return 2
	case ActionFlagForReview:
		return 1
	default:
		return 0
	}
}

// Status is the overall verdict for one invoice
type Status string

const (
	StatusAccepted         Status = "accepted"
	StatusFlaggedForReview Status = "flagged_for_review"
	StatusRejected         Status = "rejected"
)

// StatusOf maps an action to the status it implies
func StatusOf(a Action) Status {
	switch a {
	case ActionReject:
		return StatusRejected
	case ActionFlagForReview:
		return StatusFlaggedForReview
	default:
		return StatusAccepted
	}
}

// Severity orders statuses the same way as actions
func (s Status) Severity() int {
	switch s {
	case StatusRejected:
		return 2
	case StatusFlaggedForReview:
		return 1
	default:
		return 0
	}
}

// Discrepancy is one finding. Line is the 1-based line item index, 0 for header-level findings.
// Severity stays empty until the policy resolver annotates a copy.
type Discrepancy struct {
	Kind      DiscrepancyKind     `json:"kind"`
	Field     string              `json:"field,omitempty"`
	Line      int                 `json:"line,omitempty"`
	Expected  string              `json:"expected,omitempty"`
	Actual    string              `json:"actual,omitempty"`
	Magnitude decimal.NullDecimal `json:"magnitude"`
	Severity  Action              `json:"severity,omitempty"`
	Message   string              `json:"message"`
}

// WithSeverity returns a copy of d carrying the given severity
func (d Discrepancy) WithSeverity(a Action) Discrepancy {
	d.Severity = a
	return d
}

// IsLineItem reports whether the finding belongs to a line item
func (d Discrepancy) IsLineItem() bool {
	return d.Line > 0
}

// ValidationResult is the resolved verdict before report assembly
type ValidationResult struct {
	Status             Status        `json:"status"`
	Discrepancies      []Discrepancy `json:"discrepancies"`
	NormalizedCurrency *string       `json:"normalized_currency"`
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}
