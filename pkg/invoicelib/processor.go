package invoicelib

import (
	"context"
	"io"
	"runtime"

	"go.uber.org/zap"

	"github.com/rezonia/invoice-auditor/internal/engine"
	"github.com/rezonia/invoice-auditor/internal/processor"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// Validator validates invoice records against a rule set
type Validator interface {
	// Validate checks a single record
	Validate(ctx context.Context, rec *InvoiceRecord) (*ValidationReport, error)

	// ValidateBatch checks records concurrently, keeping input order
	ValidateBatch(ctx context.Context, recs []*InvoiceRecord) ([]*ValidationReport, error)
}

// AuditorOptions configures an Auditor
type AuditorOptions struct {
	Workers int         // Batch concurrency (default: GOMAXPROCS)
	Logger  *zap.Logger // Per-invoice logging (default: none)
}

// DefaultAuditorOptions returns default auditor options
func DefaultAuditorOptions() AuditorOptions {
	return AuditorOptions{
		Workers: runtime.GOMAXPROCS(0),
	}
}

// Auditor implements Validator over a swappable rule set
type Auditor struct {
	store    *rules.Store
	pipeline *processor.Pipeline
}

var _ Validator = (*Auditor)(nil)

// NewAuditor creates an auditor for rs
func NewAuditor(rs *RuleSet, opts AuditorOptions) *Auditor {
	return newAuditor(rules.NewStore(rs), opts)
}

// NewAuditorFromFile creates an auditor from a rule file; Reload re-reads it
func NewAuditorFromFile(path string, opts AuditorOptions) (*Auditor, error) {
	store, err := rules.OpenStore(path)
	if err != nil {
		return nil, err
	}
	return newAuditor(store, opts), nil
}

func newAuditor(store *rules.Store, opts AuditorOptions) *Auditor {
	pipelineOpts := []processor.Option{processor.WithWorkers(opts.Workers)}
	if opts.Logger != nil {
		pipelineOpts = append(pipelineOpts, processor.WithLogger(opts.Logger))
	}
	return &Auditor{
		store:    store,
		pipeline: processor.NewPipeline(store, pipelineOpts...),
	}
}

// Rules returns the active rule set
func (a *Auditor) Rules() (*RuleSet, error) {
	return a.store.Current()
}

// SetRules replaces the active rule set; in-flight batches keep the old one
func (a *Auditor) SetRules(rs *RuleSet) {
	a.store.Swap(rs)
}

// Reload re-reads the rule file. On error the active rules are kept.
func (a *Auditor) Reload() (*RuleSet, error) {
	return a.store.ReloadFile("")
}

// Validate checks a single record
func (a *Auditor) Validate(ctx context.Context, rec *InvoiceRecord) (*ValidationReport, error) {
	return a.pipeline.Validate(ctx, rec)
}

// ValidateBatch checks records concurrently and returns the first error, if any
func (a *Auditor) ValidateBatch(ctx context.Context, recs []*InvoiceRecord) ([]*ValidationReport, error) {
	results, err := a.pipeline.ValidateBatch(ctx, recs)
	if results == nil {
		return nil, err
	}

	reports := make([]*ValidationReport, len(results))
	var firstErr error
	for i, r := range results {
		reports[i] = r.Report
		if r.Error != nil && firstErr == nil {
			firstErr = r.Error
		}
	}
	if firstErr == nil {
		firstErr = err
	}
	return reports, firstErr
}

// Process decodes JSON or YAML input and validates every record in it
func (a *Auditor) Process(ctx context.Context, r io.Reader) ([]*ValidationReport, error) {
	recs, err := ParseRecords(r)
	if err != nil {
		return nil, err
	}
	return a.ValidateBatch(ctx, recs)
}

var defaultEngine = engine.New()

// Validate returns the findings and status for rec under rs without building a report.
// Data problems are findings; only nil inputs are errors.
func Validate(rec *InvoiceRecord, rs *RuleSet) (ValidationResult, error) {
	if rec == nil {
		return ValidationResult{}, engine.ErrNilRecord
	}
	if rs == nil {
		return ValidationResult{}, engine.ErrNilRuleSet
	}
	return defaultEngine.Resolve(rec, rs), nil
}

// Report validates rec under rs and builds the full report
func Report(rec *InvoiceRecord, rs *RuleSet) (*ValidationReport, error) {
	return defaultEngine.Validate(rec, rs)
}
