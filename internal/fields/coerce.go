package fields

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	dec "github.com/rezonia/invoice-auditor/internal/decimal"
	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// DateLayouts are tried in order when coercing a date field
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"02-Jan-2006",
}

// Coerce converts value to the declared type. Failures are *model.CoercionError.
func Coerce(field string, value interface{}, ft model.FieldType, rs *rules.RuleSet) (interface{}, error) {
	switch ft {
	case model.FieldTypeString:
		return coerceString(field, value)
	case model.FieldTypeDecimal:
		d, err := dec.Parse(value)
		if err != nil {
			return nil, model.NewCoercionError(field, value, ft, err)
		}
		return d, nil
	case model.FieldTypeDate:
		return coerceDate(field, value)
	case model.FieldTypeCurrencyCode:
		return coerceCurrencyCode(field, value, rs)
	default:
		return nil, model.NewCoercionError(field, value, ft, fmt.Errorf("unsupported field type"))
	}
}

func coerceString(field string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprint(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, model.NewCoercionError(field, value, model.FieldTypeString, fmt.Errorf("not a scalar"))
	}
}

func coerceDate(field string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, model.NewCoercionError(field, value, model.FieldTypeDate, fmt.Errorf("unrecognized date format"))
	default:
		return nil, model.NewCoercionError(field, value, model.FieldTypeDate, fmt.Errorf("not a date string"))
	}
}

func coerceCurrencyCode(field string, value interface{}, rs *rules.RuleSet) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, model.NewCoercionError(field, value, model.FieldTypeCurrencyCode, fmt.Errorf("not text"))
	}
	s = strings.TrimSpace(s)
	if rs != nil {
		if code, ok := rs.CurrencySymbols[strings.ToLower(s)]; ok {
			return code, nil
		}
	}
	code := strings.ToUpper(s)
	if len(code) != 3 {
		return nil, model.NewCoercionError(field, value, model.FieldTypeCurrencyCode, fmt.Errorf("want a three-letter code"))
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return nil, model.NewCoercionError(field, value, model.FieldTypeCurrencyCode, fmt.Errorf("want a three-letter code"))
		}
	}
	return code, nil
}
