// Package report assembles the final, auditable validation report.
package report

import (
	"time"

	"github.com/rezonia/invoice-auditor/internal/model"
)

// Recommendations derived from status
const (
	RecommendApprove = "Approve for payment"
	RecommendReview  = "Route to human review"
	RecommendReject  = "Reject"
)

// ValidationReport is the complete outcome for one invoice
type ValidationReport struct {
	// Identity
	InvoiceID       string    `json:"invoice_id"`
	GeneratedAt     time.Time `json:"generated_at"`
	RuleFingerprint string    `json:"rule_fingerprint"`

	// Verdict, copied verbatim from the policy resolver
	Status             model.Status        `json:"status"`
	Discrepancies      []model.Discrepancy `json:"discrepancies"`
	NormalizedCurrency *string             `json:"normalized_currency"`

	Recommendation string             `json:"recommendation"`
	Summary        Summary            `json:"summary"`
	Confidence     *ConfidenceSummary `json:"confidence,omitempty"`

	// Warnings are informational and never affect status
	Warnings []string `json:"warnings,omitempty"`
}

// Summary counts discrepancies
type Summary struct {
	Total      int                           `json:"total"`
	ByKind     map[model.DiscrepancyKind]int `json:"by_kind"`
	BySeverity map[model.Action]int          `json:"by_severity"`
}

// ConfidenceSummary aggregates extraction confidence for fields that carry one
type ConfidenceSummary struct {
	Mean      float64              `json:"mean"`
	Scored    int                  `json:"scored_fields"`
	Threshold float64              `json:"threshold"`
	Low       []LowConfidenceField `json:"low_confidence_fields,omitempty"`
}

// LowConfidenceField is a field extracted below the configured confidence
type LowConfidenceField struct {
	Field      string  `json:"field"`
	Line       int     `json:"line,omitempty"`
	Confidence float64 `json:"confidence"`
}

// AddWarning adds a warning message to the report
func (r *ValidationReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Accepted reports whether the invoice may proceed without review
func (r *ValidationReport) Accepted() bool {
	return r.Status == model.StatusAccepted
}

// Recommendation maps a status to the human-facing recommendation
func Recommendation(s model.Status) string {
	switch s {
	case model.StatusRejected:
		return RecommendReject
	case model.StatusFlaggedForReview:
		return RecommendReview
	default:
		return RecommendApprove
	}
}
