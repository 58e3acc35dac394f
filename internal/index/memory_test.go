package index

import (
	"context"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *Memory {
		t.Helper()
		m := NewMemory()
		err := m.Upsert(ctx, []*domain.ReferenceVector{
			{Reference: "0xa", Flag: 1, Vector: []float64{0, 0}},
			{Reference: "0xb", Flag: 0, Vector: []float64{1, 0}},
			{Reference: "0xc", Flag: 0, Vector: []float64{5, 5}},
		})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		return m
	}

	t.Run("search orders by ascending distance", func(t *testing.T) {
		m := seed(t)
		got, err := m.Search(ctx, []float64{0, 0}, 3)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if got[0].Reference != "0xa" || got[1].Reference != "0xb" || got[2].Reference != "0xc" {
			t.Errorf("order = %s,%s,%s", got[0].Reference, got[1].Reference, got[2].Reference)
		}
		if got[0].Distance != 0 || got[0].Flag != 1 {
			t.Errorf("nearest = %+v, want distance 0 flag 1", got[0])
		}
	})

	t.Run("k caps the result", func(t *testing.T) {
		m := seed(t)
		got, err := m.Search(ctx, []float64{0, 0}, 2)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})

	t.Run("empty index returns empty result", func(t *testing.T) {
		got, err := NewMemory().Search(ctx, []float64{1, 2}, 5)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("len = %d, want 0", len(got))
		}
	})

	t.Run("upsert replaces by reference", func(t *testing.T) {
		m := seed(t)
		if err := m.Upsert(ctx, []*domain.ReferenceVector{
			{Reference: "0xa", Flag: 0, Vector: []float64{9, 9}},
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		n, err := m.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 3 {
			t.Errorf("count = %d, want 3", n)
		}
		got, _ := m.Search(ctx, []float64{9, 9}, 1)
		if got[0].Reference != "0xa" || got[0].Flag != 0 {
			t.Errorf("replaced entry = %+v", got[0])
		}
	})
}
