package processor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/rezonia/invoice-auditor/internal/model"
)

// Format is the detected shape of a record payload
type Format int

const (
	FormatUnknown Format = iota
	FormatJSONObject
	FormatJSONArray
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSONObject:
		return "json"
	case FormatJSONArray:
		return "json-array"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat inspects the first significant byte of a payload
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(trimmed) == 0 {
		return FormatUnknown
	}
	switch trimmed[0] {
	case '{':
		return FormatJSONObject
	case '[':
		return FormatJSONArray
	default:
		return FormatYAML
	}
}

// DecodeRecords decodes one record or a list of records from JSON or YAML.
// YAML is converted to JSON first so both share the record decoding rules.
func DecodeRecords(data []byte) ([]*model.InvoiceRecord, error) {
	format := DetectFormat(data)
	body := bytes.TrimPrefix(data, utf8BOM)

	switch format {
	case FormatUnknown:
		return nil, model.NewParseError("input", "record", "empty payload", nil)
	case FormatYAML:
		converted, err := yaml.YAMLToJSON(body)
		if err != nil {
			return nil, model.NewParseError("yaml", "record", "invalid YAML", err)
		}
		body = converted
	}

	switch DetectFormat(body) {
	case FormatJSONObject:
		var rec model.InvoiceRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, wrapDecode(err)
		}
		return []*model.InvoiceRecord{&rec}, nil
	case FormatJSONArray:
		var recs []*model.InvoiceRecord
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, wrapDecode(err)
		}
		for i, rec := range recs {
			if rec == nil {
				return nil, model.NewParseError("json", fmt.Sprintf("[%d]", i), "record is null", nil)
			}
		}
		return recs, nil
	default:
		return nil, model.NewParseError(format.String(), "record", "payload must be an object or a list of objects", nil)
	}
}

func wrapDecode(err error) error {
	var pe *model.ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return model.NewParseError("json", "record", "invalid record", err)
}
