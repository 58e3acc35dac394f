// Package features converts raw account activity into fixed-length,
// deterministically ordered numeric vectors and named-feature maps.
package features

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// FeatureNames is the canonical feature ordering. It mirrors the labeled
// reference dataset's column header, leading spaces and the two repeated
// trailing columns included; vectors built here must stay aligned with
// vectors loaded from that dataset.
var FeatureNames = []string{
	"Avg min between sent tnx",
	"Avg min between received tnx",
	"Time Diff between first and last (Mins)",
	"Sent tnx",
	"Received Tnx",
	"Number of Created Contracts",
	"Unique Received From Addresses",
	"Unique Sent To Addresses",
	"min value received",
	"max value received",
	"avg val received",
	"min val sent",
	"max val sent",
	"avg val sent",
	"min value sent to contract",
	"max val sent to contract",
	"avg value sent to contract",
	"total transactions (including tnx to create contract)",
	"total Ether sent",
	"total ether received",
	"total ether sent contracts",
	"total ether balance",
	" Total ERC20 tnxs",
	" ERC20 total Ether received",
	" ERC20 total ether sent",
	" ERC20 total Ether sent contract",
	" ERC20 uniq sent addr",
	" ERC20 uniq rec addr",
	" ERC20 uniq rec contract addr",
	" ERC20 avg time between sent tnx",
	" ERC20 avg time between rec tnx",
	" ERC20 avg time between contract tnx",
	" ERC20 min val rec",
	" ERC20 max val rec",
	" ERC20 avg val rec",
	" ERC20 min val sent",
	" ERC20 max val sent",
	" ERC20 avg val sent",
	" ERC20 uniq sent token name",
	" ERC20 uniq rec token name",
	" ERC20 most sent token type",
	" ERC20 most rec token type",
	"Unique Sent To Addresses",
	"Unique Received From Addresses",
}

// Dimensions is the vector length.
var Dimensions = len(FeatureNames)

// Extract computes the named feature map for an account. Empty transfer
// lists yield all-zero aggregates except balance; fewer than two
// timestamps yield 0 for inter-arrival statistics.
func Extract(activity *domain.AccountActivity) map[string]float64 {
	sentExt := filter(activity.Sent, domain.CategoryExternal)
	recvExt := filter(activity.Received, domain.CategoryExternal)
	sentERC20 := filter(activity.Sent, domain.CategoryERC20)
	recvERC20 := filter(activity.Received, domain.CategoryERC20)

	f := make(map[string]float64, Dimensions)

	f["Sent tnx"] = float64(len(sentExt))
	f["Received Tnx"] = float64(len(recvExt))
	f[" Total ERC20 tnxs"] = float64(len(sentERC20) + len(recvERC20))
	f["total transactions (including tnx to create contract)"] = float64(activity.TotalTransfers())

	f["Avg min between sent tnx"] = avgGapMinutes(sentExt)
	f["Avg min between received tnx"] = avgGapMinutes(recvExt)
	f["Time Diff between first and last (Mins)"] = spanMinutes(append(append([]domain.TransferRecord{}, activity.Sent...), activity.Received...))

	sentVals := values(sentExt)
	f["min val sent"] = minOf(sentVals)
	f["max val sent"] = maxOf(sentVals)
	f["avg val sent"] = meanOf(sentVals)
	f["total Ether sent"] = sumOf(sentVals)

	recvVals := values(recvExt)
	f["min value received"] = minOf(recvVals)
	f["max value received"] = maxOf(recvVals)
	f["avg val received"] = meanOf(recvVals)
	f["total ether received"] = sumOf(recvVals)

	contractTxs := contractTransfers(activity.Sent)
	contractVals := values(contractTxs)
	f["Number of Created Contracts"] = float64(len(filter(activity.Sent, domain.CategoryInternal)))
	f["min value sent to contract"] = minOf(contractVals)
	f["max val sent to contract"] = maxOf(contractVals)
	f["avg value sent to contract"] = meanOf(contractVals)
	f["total ether sent contracts"] = sumOf(contractVals)

	f["Unique Sent To Addresses"] = float64(uniqueCounterparties(activity.Sent))
	f["Unique Received From Addresses"] = float64(uniqueCounterparties(activity.Received))

	f["total ether balance"] = activity.Balance

	erc20SentVals := values(sentERC20)
	erc20RecvVals := values(recvERC20)
	f[" ERC20 total ether sent"] = sumOf(erc20SentVals)
	f[" ERC20 total Ether received"] = sumOf(erc20RecvVals)
	f[" ERC20 min val sent"] = minOf(erc20SentVals)
	f[" ERC20 max val sent"] = maxOf(erc20SentVals)
	f[" ERC20 avg val sent"] = meanOf(erc20SentVals)
	f[" ERC20 min val rec"] = minOf(erc20RecvVals)
	f[" ERC20 max val rec"] = maxOf(erc20RecvVals)
	f[" ERC20 avg val rec"] = meanOf(erc20RecvVals)

	f[" ERC20 uniq sent addr"] = float64(uniqueCounterparties(sentERC20))
	f[" ERC20 uniq rec addr"] = float64(uniqueCounterparties(recvERC20))

	erc20Contract := contractTransfers(sentERC20)
	f[" ERC20 total Ether sent contract"] = sumOf(values(erc20Contract))
	f[" ERC20 uniq rec contract addr"] = float64(uniqueCounterparties(erc20Contract))

	f[" ERC20 avg time between sent tnx"] = avgGapMinutes(sentERC20)
	f[" ERC20 avg time between rec tnx"] = avgGapMinutes(recvERC20)
	f[" ERC20 avg time between contract tnx"] = avgGapMinutes(erc20Contract)

	sentTokens := tokenContracts(sentERC20)
	recvTokens := tokenContracts(recvERC20)
	f[" ERC20 uniq sent token name"] = float64(uniqueOf(sentTokens))
	f[" ERC20 uniq rec token name"] = float64(uniqueOf(recvTokens))
	f[" ERC20 most sent token type"] = mostCommonCount(sentTokens)
	f[" ERC20 most rec token type"] = mostCommonCount(recvTokens)

	return f
}

// ToVector orders the feature map into the canonical vector.
// Missing names default to 0.
func ToVector(f map[string]float64) []float64 {
	v := make([]float64, Dimensions)
	for i, name := range FeatureNames {
		x := f[name]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			x = 0
		}
		v[i] = x
	}
	return v
}

func filter(records []domain.TransferRecord, cat domain.Category) []domain.TransferRecord {
	var out []domain.TransferRecord
	for _, r := range records {
		if r.Category == cat {
			out = append(out, r)
		}
	}
	return out
}

func contractTransfers(records []domain.TransferRecord) []domain.TransferRecord {
	var out []domain.TransferRecord
	for _, r := range records {
		if r.TokenContract != "" || r.Category == domain.CategoryInternal {
			out = append(out, r)
		}
	}
	return out
}

func values(records []domain.TransferRecord) []float64 {
	var out []float64
	for _, r := range records {
		if r.Value != 0 {
			out = append(out, r.Value)
		}
	}
	return out
}

func timestamps(records []domain.TransferRecord) []time.Time {
	var out []time.Time
	for _, r := range records {
		if !r.Timestamp.IsZero() {
			out = append(out, r.Timestamp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func avgGapMinutes(records []domain.TransferRecord) float64 {
	ts := timestamps(records)
	if len(ts) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(ts); i++ {
		total += ts[i].Sub(ts[i-1]).Seconds()
	}
	return total / float64(len(ts)-1) / 60
}

func spanMinutes(records []domain.TransferRecord) float64 {
	ts := timestamps(records)
	if len(ts) < 2 {
		return 0
	}
	return ts[len(ts)-1].Sub(ts[0]).Seconds() / 60
}

func uniqueCounterparties(records []domain.TransferRecord) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.Counterparty != "" {
			seen[r.Counterparty] = struct{}{}
		}
	}
	return len(seen)
}

func tokenContracts(records []domain.TransferRecord) []string {
	var out []string
	for _, r := range records {
		if r.TokenContract != "" {
			out = append(out, r.TokenContract)
		}
	}
	return out
}

func uniqueOf(items []string) int {
	seen := make(map[string]struct{})
	for _, s := range items {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// mostCommonCount returns the occurrence count of the most frequent item,
// the numeric proxy the reference dataset uses for "most X token type".
func mostCommonCount(items []string) float64 {
	if len(items) == 0 {
		return 0
	}
	counts := make(map[string]int)
	best := 0
	for _, s := range items {
		counts[s]++
		if counts[s] > best {
			best = counts[s]
		}
	}
	return float64(best)
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func sumOf(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sumOf(xs) / float64(len(xs))
}
