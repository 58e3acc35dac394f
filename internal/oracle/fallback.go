package oracle

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// FallbackVote produces a deterministic verdict when the oracle is
// unavailable or its reply could not be parsed. Each evidence source
// casts weighted votes; three votes on a side decide it, anything less
// is Undecided.
func FallbackVote(
	t domain.Thresholds,
	neighbors domain.NeighborSummary,
	findings domain.FindingSet,
	report domain.ValidationReport,
) domain.ScoreDecision {
	prob := neighbors.FraudProbability
	risk := findings.BehavioralRisk

	fraudVotes := 0
	legitVotes := 0

	// Neighbor evidence carries two votes.
	if prob > t.VoteFraudProb {
		fraudVotes += 2
	} else if prob < t.VoteLegitProb {
		legitVotes += 2
	}

	// Behavioral risk carries two votes.
	if risk > t.VoteFraudRisk {
		fraudVotes += 2
	} else if risk < t.VoteLegitRisk {
		legitVotes += 2
	}

	// A laundering archetype is one extra fraud vote.
	if report.MixerProfile || report.WashTradingProfile {
		fraudVotes++
	}

	// Alignment backs whichever side the neighbors lean toward.
	if report.Alignment {
		if prob > 0.5 {
			fraudVotes++
		} else {
			legitVotes++
		}
	}

	var label domain.Label
	var confidence float64
	switch {
	case fraudVotes >= t.VotesToDecide:
		label = domain.LabelFraud
		confidence = math.Min(t.VoteMaxConf, float64(fraudVotes)/5)
	case legitVotes >= t.VotesToDecide:
		label = domain.LabelNotFraud
		confidence = math.Min(t.VoteMaxConf, float64(legitVotes)/5)
	default:
		label = domain.LabelUndecided
		confidence = 0.4
	}

	return domain.ScoreDecision{
		Label:      label,
		Confidence: confidence,
		Reasoning: fmt.Sprintf(
			"fallback decision: %d fraud signals vs %d legitimate signals",
			fraudVotes, legitVotes,
		),
	}
}
