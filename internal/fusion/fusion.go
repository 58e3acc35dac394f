// Package fusion applies the final guardrails that combine the oracle
// verdict with neighbor evidence and detector findings into one
// decision.
package fusion

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Fuser is the pure decision combinator. Guardrails only ever demote a
// decision to Undecided; they never flip Fraud to NotFraud or back, so
// fusing an already-fused decision changes nothing.
type Fuser struct {
	thresholds domain.Thresholds
}

// New returns a Fuser using the given thresholds.
func New(t domain.Thresholds) *Fuser {
	return &Fuser{thresholds: t}
}

// Fuse applies the guardrails to the oracle verdict and attaches the
// validation report and behavioral score. verdict is the label and
// confidence proposed by the reasoning stage (oracle or fallback).
func (f *Fuser) Fuse(
	verdict domain.ScoreDecision,
	neighbors domain.NeighborSummary,
	findings domain.FindingSet,
	report domain.ValidationReport,
) domain.ScoreDecision {
	t := f.thresholds
	out := verdict
	prob := neighbors.FraudProbability
	risk := findings.BehavioralRisk

	// Guardrail 1: very low neighbor confidence forces Undecided.
	if neighbors.Confidence < t.GuardrailMinConfidence && out.Label != domain.LabelUndecided {
		out.Label = domain.LabelUndecided
		out.Reasoning += " [overridden to Undecided: very low neighbor confidence]"
		out.Confidence = math.Min(out.Confidence, 0.4)
	}

	// Guardrail 2: a Fraud verdict with weak numeric support is demoted.
	if out.Label == domain.LabelFraud &&
		prob < t.WeakFraudProb && risk < t.WeakFraudRisk && neighbors.Confidence > t.WeakFraudNeighborConf {
		out.Label = domain.LabelUndecided
		out.Reasoning += " [adjusted to Undecided: weak fraud signals]"
		out.Confidence = math.Min(out.Confidence, 0.5)
	}

	// Guardrail 3: a NotFraud verdict against strong fraud signals is demoted.
	if out.Label == domain.LabelNotFraud &&
		prob > t.StrongSignalProb && risk > t.StrongSignalRisk {
		out.Label = domain.LabelUndecided
		out.Reasoning += " [adjusted to Undecided: strong fraud signals present]"
		out.Confidence = math.Min(out.Confidence, 0.5)
	}

	out.Validation = report
	out.BehavioralScore = risk
	out.Confidence = math.Min(math.Max(out.Confidence, 0), 1)
	return out
}
