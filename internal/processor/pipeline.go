// Package processor runs the validation engine over single invoices and batches.
package processor

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rezonia/invoice-auditor/internal/engine"
	"github.com/rezonia/invoice-auditor/internal/metrics"
	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/report"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// RuleSource supplies the active rule set; *rules.Store implements it
type RuleSource interface {
	Current() (*rules.RuleSet, error)
}

// Result is the outcome for one invoice in a batch
type Result struct {
	Index    int                      `json:"index"`
	Report   *report.ValidationReport `json:"report,omitempty"`
	Error    error                    `json:"-"`
	Duration time.Duration            `json:"duration"`
}

// Pipeline validates invoices against the current rule set
type Pipeline struct {
	source  RuleSource
	engine  *engine.Engine
	logger  *zap.Logger
	metrics *metrics.Recorder
	clock   clockwork.Clock
	workers int
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithEngine sets a custom engine
func WithEngine(e *engine.Engine) Option {
	return func(p *Pipeline) {
		p.engine = e
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock sets the clock used for durations
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithWorkers bounds batch concurrency; values below 1 are ignored
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPipeline creates a pipeline reading rules from source
func NewPipeline(source RuleSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		logger:  zap.NewNop(),
		clock:   clockwork.NewRealClock(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.engine == nil {
		p.engine = engine.New(engine.WithReportBuilder(report.NewBuilder(report.WithClock(p.clock))))
	}
	return p
}

// Workers returns the batch concurrency limit
func (p *Pipeline) Workers() int {
	return p.workers
}

// Rules returns the rule set the next call would use
func (p *Pipeline) Rules() (*rules.RuleSet, error) {
	if p.source == nil {
		return nil, rules.ErrNoRuleSet
	}
	return p.source.Current()
}

// Validate checks a single invoice
func (p *Pipeline) Validate(ctx context.Context, rec *model.InvoiceRecord) (*report.ValidationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs, err := p.Rules()
	if err != nil {
		return nil, err
	}
	res := p.validateOne(0, rec, rs)
	return res.Report, res.Error
}

// ValidateBatch checks records on a bounded worker pool. The rule set is read once
// for the whole batch and results keep input order. After ctx is cancelled no new
// invoice is started; unstarted entries carry ctx.Err().
func (p *Pipeline) ValidateBatch(ctx context.Context, recs []*model.InvoiceRecord) ([]*Result, error) {
	rs, err := p.Rules()
	if err != nil {
		return nil, err
	}

	start := p.clock.Now()
	results := make([]*Result, len(recs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, rec := range recs {
		if ctx.Err() != nil {
			results[i] = &Result{Index: i, Error: ctx.Err()}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{Index: i, Error: err}
				return nil
			}
			results[i] = p.validateOne(i, rec, rs)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("batch validated",
		zap.Int("invoices", len(recs)),
		zap.Int("workers", p.workers),
		zap.String("rules", rs.Fingerprint),
		zap.Duration("duration", p.clock.Since(start)),
	)
	return results, ctx.Err()
}

func (p *Pipeline) validateOne(index int, rec *model.InvoiceRecord, rs *rules.RuleSet) *Result {
	start := p.clock.Now()
	r, err := p.engine.Validate(rec, rs)
	elapsed := p.clock.Since(start)

	if err != nil {
		p.logger.Error("validation failed", zap.Int("index", index), zap.Error(err))
		return &Result{Index: index, Error: err, Duration: elapsed}
	}

	p.metrics.ObserveValidation(r.Status, r.Discrepancies, elapsed)
	p.logger.Info("invoice validated",
		zap.String("invoice_id", r.InvoiceID),
		zap.String("status", string(r.Status)),
		zap.Int("discrepancies", len(r.Discrepancies)),
		zap.Duration("duration", elapsed),
	)
	return &Result{Index: index, Report: r, Duration: elapsed}
}

// Counts tallies batch results by status; failed entries count under errors
type Counts struct {
	Accepted int `json:"accepted"`
	Flagged  int `json:"flagged_for_review"`
	Rejected int `json:"rejected"`
	Errors   int `json:"errors"`
}

// Tally summarizes a batch
func Tally(results []*Result) Counts {
	var c Counts
	for _, r := range results {
		if r == nil || r.Error != nil || r.Report == nil {
			c.Errors++
			continue
		}
		switch r.Report.Status {
		case model.StatusAccepted:
			c.Accepted++
		case model.StatusFlaggedForReview:
			c.Flagged++
		case model.StatusRejected:
			c.Rejected++
		}
	}
	return c
}

// IsCanceled reports whether err came from context cancellation or deadline
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
