package features

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Scaler holds frozen per-dimension normalization statistics. A Scaler is
// immutable once fit; refitting produces a new version published through
// the ScalerStore, so in-flight scoring keeps the version it captured.
type Scaler struct {
	Version int64     `json:"version"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

// Normalize applies (x-mean)/std per dimension. Dimensions with zero
// std map to 0, as does any NaN or infinite result.
func (s *Scaler) Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if i >= len(s.Mean) {
			break
		}
		if s.Std[i] == 0 {
			continue
		}
		z := (x - s.Mean[i]) / s.Std[i]
		if math.IsNaN(z) || math.IsInf(z, 0) {
			z = 0
		}
		out[i] = z
	}
	return out
}

// ScalerStore publishes Scaler versions atomically. Fitting is a
// single-writer operation performed during reference loading; scoring
// reads whatever version is current without blocking the writer.
type ScalerStore struct {
	current atomic.Pointer[Scaler]
	version atomic.Int64
}

// NewScalerStore returns an empty store. Current returns nil until the
// first Fit.
func NewScalerStore() *ScalerStore {
	return &ScalerStore{}
}

// Current returns the latest fitted scaler, or nil if none exists yet.
func (st *ScalerStore) Current() *Scaler {
	return st.current.Load()
}

// Fit computes per-dimension mean and population standard deviation over
// the batch, freezes them as a new Scaler version and publishes it.
func (st *ScalerStore) Fit(batch [][]float64) (*Scaler, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("fit scaler: empty batch")
	}
	dims := len(batch[0])
	for i, v := range batch {
		if len(v) != dims {
			return nil, fmt.Errorf("fit scaler: row %d has %d dimensions, want %d", i, len(v), dims)
		}
	}

	mean := make([]float64, dims)
	for _, v := range batch {
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			mean[i] += x
		}
	}
	n := float64(len(batch))
	for i := range mean {
		mean[i] /= n
	}

	std := make([]float64, dims)
	for _, v := range batch {
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				x = 0
			}
			d := x - mean[i]
			std[i] += d * d
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i] / n)
	}

	s := &Scaler{
		Version: st.version.Add(1),
		Mean:    mean,
		Std:     std,
	}
	st.current.Store(s)
	return s, nil
}
