// Package detect implements the rule-based pattern detectors that score
// account activity across temporal, value, network, token and behavioral
// dimensions, plus operator-defined CEL screening rules.
package detect

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector analyzes one dimension of account activity. Implementations
// are pure: they read the request-local activity snapshot and return a
// finding with risk level clamped to [0,1].
type Detector interface {
	Name() string
	Detect(activity *domain.AccountActivity) domain.PatternFinding
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}

// sortedTimes returns the non-zero timestamps of the records in
// ascending order, as Unix seconds.
func sortedTimes(records []domain.TransferRecord) []float64 {
	var ts []float64
	for _, r := range records {
		if !r.Timestamp.IsZero() {
			ts = append(ts, float64(r.Timestamp.UnixNano())/float64(time.Second))
		}
	}
	sort.Float64s(ts)
	return ts
}

func gaps(ts []float64) []float64 {
	if len(ts) < 2 {
		return nil
	}
	out := make([]float64, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		out[i-1] = ts[i] - ts[i-1]
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func transferValues(records []domain.TransferRecord) []float64 {
	var out []float64
	for _, r := range records {
		if r.Value != 0 {
			out = append(out, r.Value)
		}
	}
	return out
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}
