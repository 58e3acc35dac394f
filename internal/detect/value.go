package detect

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// roundValues are amounts common in laundering flows.
var roundValues = []float64{0.1, 0.5, 1.0, 5.0, 10.0, 50.0, 100.0, 1000.0}

// ValueDetector flags value-transfer anomalies: round numbers, matched
// in/out amounts, mixer-like balanced flow, and uniform small values.
type ValueDetector struct{}

func (ValueDetector) Name() string { return domain.DetectorValue }

func (ValueDetector) Detect(activity *domain.AccountActivity) domain.PatternFinding {
	finding := domain.PatternFinding{Detector: domain.DetectorValue}

	sentVals := transferValues(activity.Sent)
	recvVals := transferValues(activity.Received)
	var risk float64

	// Round-number concentration.
	total := len(sentVals) + len(recvVals)
	if total > 0 {
		round := 0
		for _, v := range append(append([]float64{}, sentVals...), recvVals...) {
			for _, rn := range roundValues {
				if math.Abs(v-rn) < 0.001 {
					round++
					break
				}
			}
		}
		if float64(round)/float64(total) > 0.5 {
			finding.Tags = append(finding.Tags, domain.TagRoundValues)
			risk += 0.3
		}
	}

	// A sent amount mirroring a received amount, over the last 20 each.
	if len(sentVals) > 0 && len(recvVals) > 0 {
		if hasMatchingPair(tail(sentVals, 20), tail(recvVals, 20)) {
			finding.Tags = append(finding.Tags, domain.TagMatchingValues)
			risk += 0.4
		}
	}

	// Nearly equal in/out totals with high volume.
	if len(sentVals) > 0 && len(recvVals) > 0 {
		totalSent := sum(sentVals)
		totalRecv := sum(recvVals)
		if totalSent > 10 && totalRecv > 10 {
			ratio := math.Min(totalSent, totalRecv) / math.Max(totalSent, totalRecv)
			if ratio > 0.9 && len(sentVals) > 20 {
				finding.Tags = append(finding.Tags, domain.TagMixerValuePattern)
				risk += 0.5
			}
		}
	}

	// Uniform sent values.
	if len(sentVals) > 10 {
		m := mean(sentVals)
		if m > 0 && stddev(sentVals) < m*0.2 {
			finding.Tags = append(finding.Tags, domain.TagConsistentSmallValues)
			risk += 0.2
		}
	}

	finding.RiskLevel = math.Min(risk, 1.0)
	return finding
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func hasMatchingPair(sent, received []float64) bool {
	for _, sv := range sent {
		if sv <= 0 {
			continue
		}
		for _, rv := range received {
			if math.Abs(sv-rv) < 0.01 {
				return true
			}
		}
	}
	return false
}
