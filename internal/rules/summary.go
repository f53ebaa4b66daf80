package rules

import "github.com/rezonia/invoice-auditor/internal/model"

// Summary is a display view of a rule set with effective policies for every kind
type Summary struct {
	Fingerprint            string            `json:"fingerprint"`
	RequiredHeaderFields   []string          `json:"required_header_fields"`
	RequiredLineItemFields []string          `json:"required_line_item_fields"`
	FieldTypes             map[string]string `json:"field_types"`
	AcceptedCurrencies     []string          `json:"accepted_currencies"`
	DefaultCurrency        string            `json:"default_currency,omitempty"`
	Policies               map[string]string `json:"policies"`
	Tolerances             map[string]string `json:"tolerances"`
	IdentifierField        string            `json:"identifier_field"`
	MinConfidence          float64           `json:"min_confidence"`
}

// Summarize builds a Summary; kinds without a policy show model.DefaultAction
func Summarize(rs *RuleSet) *Summary {
	s := &Summary{
		Fingerprint:            rs.Fingerprint,
		RequiredHeaderFields:   append([]string{}, rs.RequiredHeaderFields...),
		RequiredLineItemFields: append([]string{}, rs.RequiredLineItemFields...),
		FieldTypes:             make(map[string]string, len(rs.FieldTypes)),
		AcceptedCurrencies:     rs.AcceptedCodes(),
		DefaultCurrency:        rs.DefaultCurrency,
		Policies:               make(map[string]string, len(model.AllKinds)),
		Tolerances:             make(map[string]string, len(ToleranceKinds)),
		IdentifierField:        rs.IdentifierField,
		MinConfidence:          rs.MinConfidence,
	}
	for field, ft := range rs.FieldTypes {
		s.FieldTypes[field] = string(ft)
	}
	for _, kind := range model.AllKinds {
		action := model.DefaultAction
		if a, ok := rs.Policy(kind); ok {
			action = a
		}
		s.Policies[string(kind)] = string(action)
	}
	for _, kind := range ToleranceKinds {
		s.Tolerances[string(kind)] = rs.Tolerance(kind).String()
	}
	return s
}
