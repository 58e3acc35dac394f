// Package validate cross-checks neighbor evidence against detector
// findings before the final decision is fused.
package validate

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// CrossValidator scores the agreement between the neighbor evidence and
// the detector findings, and matches the findings against known fraud
// archetypes.
type CrossValidator struct {
	thresholds domain.Thresholds
}

// New returns a CrossValidator using the given thresholds.
func New(t domain.Thresholds) *CrossValidator {
	return &CrossValidator{thresholds: t}
}

// signalDetectors are the dimensions counted toward the multiple-signal
// check. Token churn alone is too weak a signal to count.
var signalDetectors = []string{
	domain.DetectorTemporal,
	domain.DetectorValue,
	domain.DetectorNetwork,
	domain.DetectorBehavioral,
}

// Validate computes the validation report from the two evidence sources.
func (v *CrossValidator) Validate(neighbors domain.NeighborSummary, findings domain.FindingSet) domain.ValidationReport {
	t := v.thresholds
	prob := neighbors.FraudProbability
	risk := findings.BehavioralRisk

	report := domain.ValidationReport{
		Alignment: (prob > t.AlignHighProb && risk > t.AlignHighRisk) ||
			(prob < t.AlignLowProb && risk < t.AlignLowRisk),
		ConfidenceFloorMet: neighbors.Confidence >= t.ConfidenceFloor,
	}

	signals := 0
	for _, d := range signalDetectors {
		if findings.RiskLevel(d) > t.SignalRiskLevel {
			signals++
		}
	}
	report.MultipleRiskSignals = signals >= t.MinRiskSignals

	report.MixerProfile = findings.Has(
		domain.TagMixerValuePattern,
		domain.TagHighAddressDiversity,
		domain.TagDustAccount,
	)
	report.WashTradingProfile = findings.Has(
		domain.TagTokenWashTrading,
		domain.TagMatchingValues,
	)
	report.BotProfile = findings.Has(
		domain.TagRegularInterval,
		domain.TagBurstActivity,
	)

	report.OverallScore = 0.3*boolScore(report.Alignment) +
		0.2*boolScore(report.ConfidenceFloorMet) +
		0.3*boolScore(report.MultipleRiskSignals) +
		0.2*(1-math.Abs(prob-risk))

	switch {
	case report.OverallScore > t.QualityHighAbove:
		report.QualityTier = domain.QualityHigh
	case report.OverallScore > t.QualityMedAbove:
		report.QualityTier = domain.QualityMedium
	default:
		report.QualityTier = domain.QualityLow
	}

	return report
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
