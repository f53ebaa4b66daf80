package server

import (
	"github.com/rezonia/invoice-auditor/internal/processor"
	"github.com/rezonia/invoice-auditor/internal/report"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// BatchItem is one entry of a batch response
type BatchItem struct {
	Index    int                      `json:"index"`
	Report   *report.ValidationReport `json:"report,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Duration string                   `json:"duration"`
}

// BatchResponse is the response for the batch validate endpoint
type BatchResponse struct {
	Rules   string           `json:"rule_fingerprint"`
	Counts  processor.Counts `json:"counts"`
	Results []BatchItem      `json:"results"`
}

// RulesResponse summarizes the active rule set
type RulesResponse struct {
	*rules.Summary
	Path string `json:"path,omitempty"`
}

// ReloadResponse is the response for the rule reload endpoint
type ReloadResponse struct {
	Fingerprint string `json:"fingerprint"`
	Previous    string `json:"previous,omitempty"`
	Changed     bool   `json:"changed"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Key     string `json:"key,omitempty"`
}

func newBatchResponse(fingerprint string, results []*processor.Result) BatchResponse {
	resp := BatchResponse{
		Rules:   fingerprint,
		Counts:  processor.Tally(results),
		Results: make([]BatchItem, 0, len(results)),
	}
	for _, r := range results {
		item := BatchItem{Index: r.Index, Report: r.Report, Duration: r.Duration.String()}
		if r.Error != nil {
			item.Error = r.Error.Error()
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}

func newRulesResponse(rs *rules.RuleSet, path string) RulesResponse {
	return RulesResponse{Summary: rules.Summarize(rs), Path: path}
}
