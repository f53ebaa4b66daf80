// Package fields checks required fields for presence and declared type.
//
// Every required field is checked independently. One failure never hides another.
package fields

import (
	"fmt"
	"sort"

	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// LineItemsField names the finding raised when line fields are required but no lines exist
const LineItemsField = "line_items"

// ValidateFields runs the header checks followed by the line item checks
func ValidateFields(rec *model.InvoiceRecord, rs *rules.RuleSet) []model.Discrepancy {
	out := ValidateHeader(rec, rs)
	return append(out, ValidateLineItems(rec, rs)...)
}

// ValidateHeader checks required header fields in configured order, then any
// other present header field that has a declared type (sorted by name).
func ValidateHeader(rec *model.InvoiceRecord, rs *rules.RuleSet) []model.Discrepancy {
	return checkFields(rec.Header, rs.RequiredHeaderFields, rs, 0)
}

// ValidateLineItems applies the same checks to every line item, 1-based
func ValidateLineItems(rec *model.InvoiceRecord, rs *rules.RuleSet) []model.Discrepancy {
	var out []model.Discrepancy
	if len(rec.LineItems) == 0 {
		if len(rs.RequiredLineItemFields) > 0 {
			out = append(out, model.Discrepancy{
				Kind:     model.KindMissingField,
				Field:    LineItemsField,
				Expected: "at least one line item",
				Message:  "invoice has no line items",
			})
		}
		return out
	}
	for i, item := range rec.LineItems {
		out = append(out, checkFields(item, rs.RequiredLineItemFields, rs, i+1)...)
	}
	return out
}

func checkFields(values map[string]model.FieldValue, required []string, rs *rules.RuleSet, line int) []model.Discrepancy {
	var out []model.Discrepancy
	seen := make(map[string]bool, len(required))

	for _, name := range required {
		seen[name] = true
		fv, ok := values[name]
		if !ok || fv.IsBlank() {
			out = append(out, missing(name, line))
			continue
		}
		if d, bad := typeCheck(name, fv, rs, line); bad {
			out = append(out, d)
		}
	}

	optional := make([]string, 0, len(values))
	for name := range values {
		if !seen[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	for _, name := range optional {
		fv := values[name]
		if fv.IsBlank() {
			continue
		}
		if d, bad := typeCheck(name, fv, rs, line); bad {
			out = append(out, d)
		}
	}
	return out
}

func typeCheck(name string, fv model.FieldValue, rs *rules.RuleSet, line int) (model.Discrepancy, bool) {
	ft, ok := rs.FieldType(name)
	if !ok {
		return model.Discrepancy{}, false
	}
	if _, err := Coerce(name, fv.Value, ft, rs); err != nil {
		return model.Discrepancy{
			Kind:     model.KindTypeMismatch,
			Field:    name,
			Line:     line,
			Expected: string(ft),
			Actual:   fv.String(),
			Message:  fmt.Sprintf("%s%s: %q is not a valid %s", linePrefix(line), name, fv.String(), ft),
		}, true
	}
	return model.Discrepancy{}, false
}

func missing(name string, line int) model.Discrepancy {
	return model.Discrepancy{
		Kind:     model.KindMissingField,
		Field:    name,
		Line:     line,
		Expected: "present",
		Message:  fmt.Sprintf("%srequired field %s is missing", linePrefix(line), name),
	}
}

func linePrefix(line int) string {
	if line == 0 {
		return ""
	}
	return fmt.Sprintf("line %d: ", line)
}
