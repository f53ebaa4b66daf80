// Package policy maps discrepancies to actions and derives the overall status.
package policy

import (
	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// ActionFor returns the configured action for kind, or model.DefaultAction
func ActionFor(kind model.DiscrepancyKind, rs *rules.RuleSet) model.Action {
	if rs != nil {
		if a, ok := rs.Policy(kind); ok {
			return a
		}
	}
	return model.DefaultAction
}

// StatusFor returns the status implied by the most severe action; accepted when empty
func StatusFor(actions ...model.Action) model.Status {
	worst := model.ActionAccept
	for _, a := range actions {
		if a.Severity() > worst.Severity() {
			worst = a
		}
	}
	return model.StatusOf(worst)
}

// Resolve annotates each discrepancy with its action and computes the status.
// Input discrepancies are not modified; order is preserved.
func Resolve(ds []model.Discrepancy, rs *rules.RuleSet) model.ValidationResult {
	resolved := make([]model.Discrepancy, len(ds))
	actions := make([]model.Action, len(ds))
	for i, d := range ds {
		actions[i] = ActionFor(d.Kind, rs)
		resolved[i] = d.WithSeverity(actions[i])
	}
	return model.ValidationResult{
		Status:        StatusFor(actions...),
		Discrepancies: resolved,
	}
}
