// Package index provides the similarity search over the labeled
// reference population.
package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Memory is a brute-force L2 in-memory VectorIndex. It serves the
// community tier and tests; a production deployment would put an ANN
// store behind the same interface.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*domain.ReferenceVector
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*domain.ReferenceVector)}
}

// Search returns up to k entries ordered by ascending Euclidean
// distance. An empty index returns an empty result, not an error.
func (m *Memory) Search(ctx context.Context, vector []float64, k int) ([]domain.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	results := make([]domain.Neighbor, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, domain.Neighbor{
			Reference: e.Reference,
			Flag:      e.Flag,
			Distance:  l2(vector, e.Vector),
		})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Reference < results[j].Reference
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Upsert adds or replaces reference vectors in batch.
func (m *Memory) Upsert(ctx context.Context, vectors []*domain.ReferenceVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		m.entries[v.Reference] = v
	}
	return nil
}

// Count returns the reference population size.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// l2 computes Euclidean distance over the shared prefix of the vectors.
func l2(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var ss float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		ss += d * d
	}
	return math.Sqrt(ss)
}
