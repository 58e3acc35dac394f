// Package neighbors turns labeled reference matches into fraud evidence
// using inverse-distance-weighted voting.
package neighbors

import (
	"github.com/opensource-finance/harrier/internal/domain"
)

// Model aggregates neighbor lists and classifies the result against
// the configured thresholds.
type Model struct {
	thresholds domain.Thresholds
}

// NewModel returns a Model using the given thresholds.
func NewModel(t domain.Thresholds) *Model {
	return &Model{thresholds: t}
}

// Summarize computes the weighted fraud probability and confidence from
// a neighbor list. An empty list is the no-evidence sentinel: probability
// 0.5, confidence 0, all counts 0.
func (m *Model) Summarize(ns []domain.Neighbor) domain.NeighborSummary {
	if len(ns) == 0 {
		return domain.NeighborSummary{FraudProbability: 0.5}
	}

	var fraudCount int
	var totalWeight, weightedFraud, totalDistance float64
	for _, n := range ns {
		if n.Flag == 1 {
			fraudCount++
		}
		w := 1 / (n.Distance + m.thresholds.DistanceEpsilon)
		totalWeight += w
		weightedFraud += w * float64(n.Flag)
		totalDistance += n.Distance
	}

	total := len(ns)
	var weightedProb float64
	if totalWeight > 0 {
		weightedProb = weightedFraud / totalWeight
	}
	avgDistance := totalDistance / float64(total)

	// Confidence blends proximity with label agreement.
	agreement := float64(max(fraudCount, total-fraudCount)) / float64(total)
	confidence := (1/(1+avgDistance) + agreement) / 2

	return domain.NeighborSummary{
		FraudProbability:  weightedProb,
		SimpleProbability: float64(fraudCount) / float64(total),
		FraudCount:        fraudCount,
		NonFraudCount:     total - fraudCount,
		TotalCount:        total,
		AvgDistance:       avgDistance,
		Confidence:        confidence,
	}
}

// Classify maps a summary to a tri-state label. Low confidence always
// returns Undecided; the dead zone between 1-threshold and threshold
// returns Undecided too.
func (m *Model) Classify(s domain.NeighborSummary) domain.Label {
	if s.Confidence < m.thresholds.NeighborConfidence {
		return domain.LabelUndecided
	}
	switch {
	case s.FraudProbability >= m.thresholds.FraudThreshold:
		return domain.LabelFraud
	case s.FraudProbability < 1-m.thresholds.FraudThreshold:
		return domain.LabelNotFraud
	default:
		return domain.LabelUndecided
	}
}
