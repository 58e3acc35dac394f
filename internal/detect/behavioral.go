package detect

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// BehavioralDetector flags account-level behavior: dust accounts with
// heavy churn, immediate forwarding, asymmetric flow, and zero-value
// spam.
type BehavioralDetector struct{}

func (BehavioralDetector) Name() string { return domain.DetectorBehavioral }

func (BehavioralDetector) Detect(activity *domain.AccountActivity) domain.PatternFinding {
	finding := domain.PatternFinding{Detector: domain.DetectorBehavioral}

	totalSent := len(activity.Sent)
	totalRecv := len(activity.Received)
	total := totalSent + totalRecv
	var risk float64

	// High activity with near-zero balance.
	if total > 100 && activity.Balance < 0.01 {
		finding.Tags = append(finding.Tags, domain.TagDustAccount)
		risk += 0.5
	}

	// Receive then send within 5 minutes, repeatedly.
	if totalRecv > 10 && totalSent > 10 {
		recvTimes := sortedTimes(activity.Received)
		sentTimes := sortedTimes(activity.Sent)
		forwards := 0
		for _, rt := range recvTimes {
			for _, st := range sentTimes {
				if d := st - rt; d > 0 && d < 300 {
					forwards++
					break
				}
			}
		}
		if forwards > 10 {
			finding.Tags = append(finding.Tags, domain.TagImmediateForwarding)
			risk += 0.6
		}
	}

	// Mostly sending or mostly receiving.
	if total > 20 {
		ratio := float64(totalSent) / float64(total)
		if ratio > 0.9 || ratio < 0.1 {
			finding.Tags = append(finding.Tags, domain.TagAsymmetricFlow)
			risk += 0.2
		}
	}

	// Zero-value spam.
	if total > 0 {
		zero := 0
		for _, r := range activity.Sent {
			if r.Value == 0 {
				zero++
			}
		}
		for _, r := range activity.Received {
			if r.Value == 0 {
				zero++
			}
		}
		if float64(zero)/float64(total) > 0.5 && total > 50 {
			finding.Tags = append(finding.Tags, domain.TagZeroValueSpam)
			risk += 0.3
		}
	}

	finding.RiskLevel = math.Min(risk, 1.0)
	return finding
}
