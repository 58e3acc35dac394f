package detect

import (
	"math"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// TokenDetector flags token-contract anomalies: excessive token
// diversity, wash trading, and heavy NFT churn.
type TokenDetector struct{}

func (TokenDetector) Name() string { return domain.DetectorToken }

func (TokenDetector) Detect(activity *domain.AccountActivity) domain.PatternFinding {
	finding := domain.PatternFinding{Detector: domain.DetectorToken}

	sentTok := tokenTransfers(activity.Sent)
	recvTok := tokenTransfers(activity.Received)
	if len(sentTok) == 0 && len(recvTok) == 0 {
		return finding
	}

	var risk float64

	sentContracts := contracts(sentTok)
	recvContracts := contracts(recvTok)

	unique := make(map[string]struct{})
	for _, c := range sentContracts {
		unique[c] = struct{}{}
	}
	for _, c := range recvContracts {
		unique[c] = struct{}{}
	}
	if len(unique) > 30 {
		finding.Tags = append(finding.Tags, domain.TagTokenDiversity)
		risk += 0.3
	}

	// Per-token balanced churn in both directions.
	type flow struct{ sent, received int }
	flows := make(map[string]*flow)
	for _, c := range sentContracts {
		if flows[c] == nil {
			flows[c] = &flow{}
		}
		flows[c].sent++
	}
	for _, c := range recvContracts {
		if flows[c] == nil {
			flows[c] = &flow{}
		}
		flows[c].received++
	}
	washCandidates := 0
	for _, f := range flows {
		if f.sent > 3 && f.received > 3 && abs(f.sent-f.received) <= 2 {
			washCandidates++
		}
	}
	if washCandidates >= 3 {
		finding.Tags = append(finding.Tags, domain.TagTokenWashTrading)
		risk += 0.6
	}

	// NFT churn is legitimate but worth noting.
	nft := 0
	for _, r := range append(append([]domain.TransferRecord{}, sentTok...), recvTok...) {
		if r.Category == domain.CategoryERC721 {
			nft++
		}
	}
	if nft > 20 {
		finding.Tags = append(finding.Tags, domain.TagHighNFTActivity)
		risk += 0.1
	}

	finding.RiskLevel = math.Min(risk, 1.0)
	return finding
}

func tokenTransfers(records []domain.TransferRecord) []domain.TransferRecord {
	var out []domain.TransferRecord
	for _, r := range records {
		if r.Category.IsToken() {
			out = append(out, r)
		}
	}
	return out
}

func contracts(records []domain.TransferRecord) []string {
	var out []string
	for _, r := range records {
		if r.TokenContract != "" {
			out = append(out, strings.ToLower(r.TokenContract))
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
