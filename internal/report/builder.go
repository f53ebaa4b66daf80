package report

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// recordNamespace seeds v5 ids for invoices without an identifier field
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("invoice-auditor:record"))

// Builder attaches identity, timestamps and summaries to a resolved result
type Builder struct {
	clock clockwork.Clock
}

// Option configures a Builder
type Option func(*Builder)

// WithClock sets the clock used for GeneratedAt
func WithClock(c clockwork.Clock) Option {
	return func(b *Builder) {
		b.clock = c
	}
}

// NewBuilder creates a builder using the real clock unless overridden
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the report. Status and discrepancies are carried over unchanged.
func (b *Builder) Build(result model.ValidationResult, rec *model.InvoiceRecord, rs *rules.RuleSet) *ValidationReport {
	discrepancies := result.Discrepancies
	if discrepancies == nil {
		discrepancies = []model.Discrepancy{}
	}

	r := &ValidationReport{
		InvoiceID:          InvoiceID(rec, rs),
		GeneratedAt:        b.clock.Now().UTC(),
		RuleFingerprint:    rs.Fingerprint,
		Status:             result.Status,
		Discrepancies:      discrepancies,
		NormalizedCurrency: result.NormalizedCurrency,
		Recommendation:     Recommendation(result.Status),
		Summary:            summarize(discrepancies),
	}

	r.Confidence = confidence(rec, rs.MinConfidence)
	if r.Confidence != nil {
		for _, low := range r.Confidence.Low {
			r.AddWarning(lowConfidenceMessage(low, rs.MinConfidence))
		}
	}
	return r
}

// InvoiceID returns the identifier field when present, otherwise a stable
// id derived from the record content.
func InvoiceID(rec *model.InvoiceRecord, rs *rules.RuleSet) string {
	if fv, ok := rec.HeaderField(rs.IdentifierField); ok && !fv.IsBlank() {
		return fv.String()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", rec))
	}
	return "inv-" + uuid.NewSHA1(recordNamespace, data).String()
}

func summarize(ds []model.Discrepancy) Summary {
	s := Summary{
		Total:      len(ds),
		ByKind:     map[model.DiscrepancyKind]int{},
		BySeverity: map[model.Action]int{},
	}
	for _, d := range ds {
		s.ByKind[d.Kind]++
		if d.Severity != "" {
			s.BySeverity[d.Severity]++
		}
	}
	return s
}

func confidence(rec *model.InvoiceRecord, threshold float64) *ConfidenceSummary {
	cs := &ConfidenceSummary{Threshold: threshold}
	var total float64

	visit := func(values map[string]model.FieldValue, line int) {
		for _, name := range sortedFields(values) {
			c := values[name].Confidence
			if c == nil {
				continue
			}
			cs.Scored++
			total += *c
			if *c < threshold {
				cs.Low = append(cs.Low, LowConfidenceField{Field: name, Line: line, Confidence: *c})
			}
		}
	}
	visit(rec.Header, 0)
	for i, item := range rec.LineItems {
		visit(item, i+1)
	}

	if cs.Scored == 0 {
		return nil
	}
	cs.Mean = total / float64(cs.Scored)
	return cs
}

func lowConfidenceMessage(f LowConfidenceField, threshold float64) string {
	if f.Line > 0 {
		return fmt.Sprintf("line %d: %s extracted with confidence %.2f (below %.2f)", f.Line, f.Field, f.Confidence, threshold)
	}
	return fmt.Sprintf("%s extracted with confidence %.2f (below %.2f)", f.Field, f.Confidence, threshold)
}

func sortedFields(values map[string]model.FieldValue) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
