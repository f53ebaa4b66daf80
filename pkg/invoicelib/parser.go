package invoicelib

import (
	"fmt"
	"io"

	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/processor"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// ParseRecords decodes one record or a list of records from JSON or YAML
func ParseRecords(r io.Reader) ([]*InvoiceRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError("input", "record", "failed to read input", err)
	}
	return processor.DecodeRecords(data)
}

// ParseRecord decodes exactly one record
func ParseRecord(r io.Reader) (*InvoiceRecord, error) {
	recs, err := ParseRecords(r)
	if err != nil {
		return nil, err
	}
	if len(recs) != 1 {
		return nil, model.NewParseError("input", "record", fmt.Sprintf("expected one record, got %d", len(recs)), nil)
	}
	return recs[0], nil
}

// ParseRules builds a RuleSet from a YAML or JSON rule document.
// Any problem is returned as a *ConfigError naming the offending key.
func ParseRules(r io.Reader) (*RuleSet, error) {
	return rules.Load(r)
}

// LoadRulesFile reads and parses a rule file
func LoadRulesFile(path string) (*RuleSet, error) {
	return rules.LoadFile(path)
}

// SummarizeRules returns the effective rules for display
func SummarizeRules(rs *RuleSet) *RuleSummary {
	return rules.Summarize(rs)
}
