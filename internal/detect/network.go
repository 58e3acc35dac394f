package detect

import (
	"math"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// denylistFragments are address fragments of known burn/vanity patterns
// associated with laundering services.
var denylistFragments = []string{"0x00000", "0x11111", "0xdead", "0xaaaa", "0xbbbb"}

// NetworkDetector flags counterparty-graph anomalies: extreme address
// diversity, one-time interactions, circular flow, and contact with
// denylisted address fragments.
type NetworkDetector struct{}

func (NetworkDetector) Name() string { return domain.DetectorNetwork }

func (NetworkDetector) Detect(activity *domain.AccountActivity) domain.PatternFinding {
	finding := domain.PatternFinding{Detector: domain.DetectorNetwork}

	sentAddrs := counterparties(activity.Sent)
	recvAddrs := counterparties(activity.Received)
	totalTxs := len(activity.Sent) + len(activity.Received)
	var risk float64

	sentSet := toSet(sentAddrs)
	recvSet := toSet(recvAddrs)

	// Nearly every transfer touches a fresh address.
	if totalTxs > 0 {
		diversity := float64(len(sentSet)+len(recvSet)) / float64(totalTxs)
		if diversity > 0.8 && totalTxs > 50 {
			finding.Tags = append(finding.Tags, domain.TagHighAddressDiversity)
			risk += 0.4
		}
	}

	// Counterparties contacted exactly once.
	if len(sentAddrs) > 0 {
		counts := make(map[string]int)
		for _, a := range sentAddrs {
			counts[a]++
		}
		oneTime := 0
		for _, c := range counts {
			if c == 1 {
				oneTime++
			}
		}
		if float64(oneTime)/float64(len(sentSet)) > 0.7 && len(sentAddrs) > 20 {
			finding.Tags = append(finding.Tags, domain.TagOneTimeInteractions)
			risk += 0.3
		}
	}

	// Addresses appearing on both sides of the flow.
	circular := 0
	for a := range sentSet {
		if _, ok := recvSet[a]; ok {
			circular++
		}
	}
	if circular > 5 && totalTxs > 10 {
		smaller := math.Max(float64(min(len(sentSet), len(recvSet))), 1)
		if float64(circular)/smaller > 0.3 {
			finding.Tags = append(finding.Tags, domain.TagCircularFlow)
			risk += 0.5
		}
	}

	// Denylisted fragments in sent counterparties.
	suspicious := 0
	for _, a := range sentAddrs {
		for _, frag := range denylistFragments {
			if strings.Contains(a, frag) {
				suspicious++
				break
			}
		}
	}
	if suspicious > 5 {
		finding.Tags = append(finding.Tags, domain.TagDenylistedContact)
		risk += 0.2
	}

	finding.RiskLevel = math.Min(risk, 1.0)
	return finding
}

func counterparties(records []domain.TransferRecord) []string {
	var out []string
	for _, r := range records {
		if r.Counterparty != "" {
			out = append(out, strings.ToLower(r.Counterparty))
		}
	}
	return out
}

func toSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}
