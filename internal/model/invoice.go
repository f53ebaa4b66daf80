package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldValue is a single extracted value with optional provenance
type FieldValue struct {
	Value      interface{} `json:"value"`
	Confidence *float64    `json:"confidence,omitempty"`
	Source     string      `json:"source,omitempty"`
}

// NewFieldValue wraps a bare value without provenance
func NewFieldValue(v interface{}) FieldValue {
	return FieldValue{Value: v}
}

// WithConfidence returns a copy carrying an extraction confidence
func (f FieldValue) WithConfidence(c float64) FieldValue {
	f.Confidence = &c
	return f
}

// IsBlank reports whether the value counts as absent: nil or whitespace-only text
func (f FieldValue) IsBlank() bool {
	switch v := f.Value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// String renders the raw value for discrepancy messages
func (f FieldValue) String() string {
	if f.Value == nil {
		return ""
	}
	return fmt.Sprintf("%v", f.Value)
}

// UnmarshalJSON accepts either a bare scalar or {"value": ..., "confidence": ..., "source": ...}.
// Numbers are kept as json.Number so amounts never pass through float64.
func (f *FieldValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		*f = FieldValue{Value: v}
		return nil
	}
	value, ok := obj["value"]
	if !ok {
		*f = FieldValue{Value: v}
		return nil
	}

	out := FieldValue{Value: value}
	if c, ok := obj["confidence"].(json.Number); ok {
		conf, err := c.Float64()
		if err != nil {
			return fmt.Errorf("invalid confidence %q: %w", c, err)
		}
		out.Confidence = &conf
	}
	if s, ok := obj["source"].(string); ok {
		out.Source = s
	}
	*f = out
	return nil
}

// MarshalJSON emits the bare value when no provenance is attached
func (f FieldValue) MarshalJSON() ([]byte, error) {
	if f.Confidence == nil && f.Source == "" {
		return json.Marshal(f.Value)
	}
	type plain FieldValue
	return json.Marshal(plain(f))
}

// LineItem is one row of itemized charges keyed by field name
type LineItem map[string]FieldValue

// Field returns the named value if present
func (l LineItem) Field(name string) (FieldValue, bool) {
	v, ok := l[name]
	return v, ok
}

// InvoiceRecord is the normalized output of the extraction collaborator.
// The engine reads it and never mutates it.
type InvoiceRecord struct {
	Header      map[string]FieldValue `json:"header"`
	LineItems   []LineItem            `json:"line_items"`
	CurrencyRaw string                `json:"currency"`
}

// HeaderField returns the named header value if present
func (r *InvoiceRecord) HeaderField(name string) (FieldValue, bool) {
	v, ok := r.Header[name]
	return v, ok
}

// Record keys that are not header fields in the flat invoice shape
var (
	lineItemKeys = []string{"line_items", "lineItems"}
	currencyKeys = []string{"currency", "currency_raw", "currencyRaw"}
)

// UnmarshalJSON decodes either the structured shape ({"header", "line_items", "currency"})
// or the flat extraction shape where header fields sit at the top level.
func (r *InvoiceRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewParseError("json", "record", "record must be a JSON object", err)
	}

	out := InvoiceRecord{Header: map[string]FieldValue{}}

	if h, ok := raw["header"]; ok {
		if err := json.Unmarshal(h, &out.Header); err != nil {
			return NewParseError("json", "header", "header must be an object of fields", err)
		}
		if out.Header == nil {
			out.Header = map[string]FieldValue{}
		}
	} else {
		for key, msg := range raw {
			if isOneOf(key, lineItemKeys) || isOneOf(key, currencyKeys) {
				continue
			}
			var fv FieldValue
			if err := json.Unmarshal(msg, &fv); err != nil {
				return NewParseError("json", key, "invalid field value", err)
			}
			out.Header[key] = fv
		}
	}

	for _, key := range lineItemKeys {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(msg, &out.LineItems); err != nil {
			return NewParseError("json", key, "line items must be an array of objects", err)
		}
		break
	}

	for _, key := range currencyKeys {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		var fv FieldValue
		if err := json.Unmarshal(msg, &fv); err != nil {
			return NewParseError("json", key, "invalid currency value", err)
		}
		out.CurrencyRaw = fv.String()
		// Flat records keep currency visible to header field rules
		if _, structured := raw["header"]; !structured {
			out.Header["currency"] = fv
		}
		break
	}

	if out.CurrencyRaw == "" {
		if fv, ok := out.Header["currency"]; ok {
			out.CurrencyRaw = fv.String()
		}
	}

	*r = out
	return nil
}

func isOneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
