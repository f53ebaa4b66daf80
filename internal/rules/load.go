package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"

	dec "github.com/rezonia/invoice-auditor/internal/decimal"
	"github.com/rezonia/invoice-auditor/internal/model"
)

// document mirrors the on-disk rule file before semantic checks
type document struct {
	RequiredFields     *requiredFields        `yaml:"required_fields" validate:"required"`
	FieldTypes         map[string]string      `yaml:"field_types" validate:"required"`
	AcceptedCurrencies []string               `yaml:"accepted_currencies" validate:"required,min=1"`
	Policies           map[string]string      `yaml:"policies" validate:"required"`
	Tolerances         map[string]interface{} `yaml:"tolerances"`
	CurrencySymbols    map[string]string      `yaml:"currency_symbols"`
	Reconciliation     *ReconciliationFields  `yaml:"reconciliation"`
	CurrencyDecimals   map[string]int         `yaml:"currency_decimals" validate:"omitempty,dive,gte=0,lte=8"`
	DefaultCurrency    string                 `yaml:"default_currency"`
	IdentifierField    string                 `yaml:"identifier_field"`
	MinConfidence      *float64               `yaml:"min_confidence" validate:"omitempty,gte=0,lte=1"`
}

type requiredFields struct {
	Header   []string `yaml:"header"`
	LineItem []string `yaml:"line_item"`
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadFile reads and validates a rule document from disk
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewConfigError("file", fmt.Sprintf("cannot read %s", path), err)
	}
	return Parse(data)
}

// Load reads and validates a rule document from r
func Load(r io.Reader) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewConfigError("document", "cannot read rule document", err)
	}
	return Parse(data)
}

// Parse validates a YAML or JSON rule document and builds a RuleSet.
// The first structural problem is returned as a *model.ConfigError.
func Parse(data []byte) (*RuleSet, error) {
	var doc document
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.DisallowUnknownField()); err != nil {
		return nil, model.NewConfigError("document", "malformed rule document", err)
	}
	if err := checkShape(&doc); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	rs := &RuleSet{
		FieldTypes:         map[string]model.FieldType{},
		Tolerances:         DefaultTolerances(),
		AcceptedCurrencies: map[string]struct{}{},
		CurrencySymbols:    map[string]string{},
		Policies:           map[model.DiscrepancyKind]model.Action{},
		Reconciliation:     DefaultReconciliationFields(),
		CurrencyDecimals:   map[string]int32{},
		IdentifierField:    DefaultIdentifierField,
		MinConfidence:      DefaultMinConfidence,
		Fingerprint:        hex.EncodeToString(sum[:]),
	}

	steps := []func(*document, *RuleSet) error{
		buildFieldTypes,
		buildRequiredFields,
		buildCurrencies,
		buildSymbols,
		buildDecimals,
		buildTolerances,
		buildPolicies,
		buildReconciliation,
		buildReportSettings,
	}
	for _, step := range steps {
		if err := step(&doc, rs); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func checkShape(doc *document) error {
	err := structValidator.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewConfigError("document", "invalid rule document", err)
	}
	fe := verrs[0]
	key := strings.TrimPrefix(fe.Namespace(), "document.")
	switch fe.Tag() {
	case "required":
		return model.NewConfigError(key, "required section is missing", nil)
	case "min":
		return model.NewConfigError(key, "must not be empty", nil)
	case "gte", "lte":
		return model.NewConfigError(key, fmt.Sprintf("value %v is out of range", fe.Value()), nil)
	default:
		return model.NewConfigError(key, fmt.Sprintf("failed %s check", fe.Tag()), nil)
	}
}

func buildFieldTypes(doc *document, rs *RuleSet) error {
	for _, name := range sortedKeys(doc.FieldTypes) {
		key := "field_types." + name
		if strings.TrimSpace(name) == "" {
			return model.NewConfigError("field_types", "field name must not be blank", nil)
		}
		ft, ok := model.ParseFieldType(doc.FieldTypes[name])
		if !ok {
			return model.NewConfigError(key, fmt.Sprintf("unknown field type %q", doc.FieldTypes[name]), nil)
		}
		rs.FieldTypes[name] = ft
	}
	return nil
}

func buildRequiredFields(doc *document, rs *RuleSet) error {
	header, err := requiredList("required_fields.header", doc.RequiredFields.Header, rs)
	if err != nil {
		return err
	}
	lines, err := requiredList("required_fields.line_item", doc.RequiredFields.LineItem, rs)
	if err != nil {
		return err
	}
	rs.RequiredHeaderFields = header
	rs.RequiredLineItemFields = lines
	return nil
}

func requiredList(section string, names []string, rs *RuleSet) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for i, raw := range names {
		key := fmt.Sprintf("%s[%d]", section, i)
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, model.NewConfigError(key, "field name must not be blank", nil)
		}
		if seen[name] {
			return nil, model.NewConfigError(key, fmt.Sprintf("field %q listed twice", name), nil)
		}
		if _, ok := rs.FieldTypes[name]; !ok {
			return nil, model.NewConfigError(key, fmt.Sprintf("required field %q has no field_types entry", name), nil)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func buildCurrencies(doc *document, rs *RuleSet) error {
	for i, raw := range doc.AcceptedCurrencies {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if !isCurrencyCode(code) {
			return model.NewConfigError(fmt.Sprintf("accepted_currencies[%d]", i),
				fmt.Sprintf("%q is not a three-letter currency code", raw), nil)
		}
		rs.AcceptedCurrencies[code] = struct{}{}
	}
	return nil
}

func buildSymbols(doc *document, rs *RuleSet) error {
	for _, symbol := range sortedKeys(doc.CurrencySymbols) {
		key := "currency_symbols." + symbol
		folded := strings.ToLower(strings.TrimSpace(symbol))
		if folded == "" {
			return model.NewConfigError("currency_symbols", "symbol must not be blank", nil)
		}
		code := strings.ToUpper(strings.TrimSpace(doc.CurrencySymbols[symbol]))
		if !rs.IsAccepted(code) {
			return model.NewConfigError(key, fmt.Sprintf("maps to %q which is not an accepted currency", code), nil)
		}
		if prev, ok := rs.CurrencySymbols[folded]; ok && prev != code {
			return model.NewConfigError(key, fmt.Sprintf("symbol is ambiguous between %s and %s", prev, code), nil)
		}
		rs.CurrencySymbols[folded] = code
	}
	return nil
}

func buildDecimals(doc *document, rs *RuleSet) error {
	for _, raw := range sortedKeys(doc.CurrencyDecimals) {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if !rs.IsAccepted(code) {
			return model.NewConfigError("currency_decimals."+raw, "currency is not accepted", nil)
		}
		rs.CurrencyDecimals[code] = int32(doc.CurrencyDecimals[raw])
	}
	if doc.DefaultCurrency != "" {
		code := strings.ToUpper(strings.TrimSpace(doc.DefaultCurrency))
		if !rs.IsAccepted(code) {
			return model.NewConfigError("default_currency", fmt.Sprintf("%q is not an accepted currency", doc.DefaultCurrency), nil)
		}
		rs.DefaultCurrency = code
	}
	return nil
}

func buildTolerances(doc *document, rs *RuleSet) error {
	for _, name := range sortedKeys(doc.Tolerances) {
		key := "tolerances." + name
		kind, ok := ParseToleranceKind(name)
		if !ok {
			return model.NewConfigError(key, "unknown tolerance kind", nil)
		}
		t, err := parseTolerance(doc.Tolerances[name])
		if err != nil {
			return model.NewConfigError(key, err.Error(), nil)
		}
		rs.Tolerances[kind] = t
	}
	return nil
}

func buildPolicies(doc *document, rs *RuleSet) error {
	for _, name := range sortedKeys(doc.Policies) {
		key := "policies." + name
		kind, ok := model.ParseKind(name)
		if !ok {
			return model.NewConfigError(key, "unknown discrepancy kind", nil)
		}
		action, ok := model.ParseAction(doc.Policies[name])
		if !ok {
			return model.NewConfigError(key, fmt.Sprintf("unknown action %q", doc.Policies[name]), nil)
		}
		if prev, dup := rs.Policies[kind]; dup && prev != action {
			return model.NewConfigError(key, fmt.Sprintf("conflicts with an earlier policy for %s", kind), nil)
		}
		rs.Policies[kind] = action
	}
	return nil
}

func buildReconciliation(doc *document, rs *RuleSet) error {
	if doc.Reconciliation == nil {
		return nil
	}
	overrides := []struct {
		key    string
		value  string
		target *string
	}{
		{"price", doc.Reconciliation.Price, &rs.Reconciliation.Price},
		{"quantity", doc.Reconciliation.Quantity, &rs.Reconciliation.Quantity},
		{"line_total", doc.Reconciliation.LineTotal, &rs.Reconciliation.LineTotal},
		{"total", doc.Reconciliation.Total, &rs.Reconciliation.Total},
		{"subtotal", doc.Reconciliation.Subtotal, &rs.Reconciliation.Subtotal},
		{"tax", doc.Reconciliation.Tax, &rs.Reconciliation.Tax},
		{"discount", doc.Reconciliation.Discount, &rs.Reconciliation.Discount},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(o.value); v != "" {
			*o.target = v
		}
	}
	return nil
}

func buildReportSettings(doc *document, rs *RuleSet) error {
	if id := strings.TrimSpace(doc.IdentifierField); id != "" {
		rs.IdentifierField = id
	}
	if doc.MinConfidence != nil {
		rs.MinConfidence = *doc.MinConfidence
	}
	return nil
}

// parseTolerance accepts 0.01, "0.01", "1.5%" or {value: 1.5, mode: percent}
func parseTolerance(raw interface{}) (Tolerance, error) {
	if obj, ok := raw.(map[string]interface{}); ok {
		value, ok := obj["value"]
		if !ok {
			return Tolerance{}, fmt.Errorf("object form needs a value")
		}
		t, err := parseTolerance(value)
		if err != nil {
			return Tolerance{}, err
		}
		m, ok := obj["mode"]
		if !ok {
			return t, nil
		}
		s, _ := m.(string)
		switch squash(s) {
		case "absolute", "abs":
			if t.Mode == ModePercent {
				return Tolerance{}, fmt.Errorf("percent value with absolute mode")
			}
		case "percent", "percentage", "pct":
			t.Mode = ModePercent
		default:
			return Tolerance{}, fmt.Errorf("unknown mode %v", m)
		}
		return t, nil
	}

	t := Tolerance{Mode: ModeAbsolute}
	var (
		d   decimal.Decimal
		err error
	)
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if strings.HasSuffix(s, "%") {
			t.Mode = ModePercent
			s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		}
		d, err = dec.FromString(s)
	} else {
		d, err = dec.Parse(raw)
	}
	if err != nil {
		return Tolerance{}, fmt.Errorf("value %v is not numeric", raw)
	}
	if !dec.IsNonNegative(d) {
		return Tolerance{}, fmt.Errorf("value %s is negative", d)
	}
	t.Value = d
	return t, nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
