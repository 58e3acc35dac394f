package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/index"
)

type stubLedger struct {
	activity *domain.AccountActivity
	err      error
}

func (s *stubLedger) FetchActivity(ctx context.Context, address string) (*domain.AccountActivity, error) {
	if s.err != nil {
		return nil, s.err
	}
	a := *s.activity
	a.Address = address
	return &a, nil
}

type stubOracle struct {
	resp *domain.OracleResponse
	err  error
}

func (s *stubOracle) Decide(ctx context.Context, req *domain.OracleRequest) (*domain.OracleResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type recordingRepo struct {
	mu           sync.Mutex
	evaluations  []*domain.Evaluation
	scoreUpdates []string
}

func (r *recordingRepo) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluations = append(r.evaluations, eval)
	return nil
}

func (r *recordingRepo) GetEvaluation(ctx context.Context, id string) (*domain.Evaluation, error) {
	return nil, domain.ErrNotFound
}

func (r *recordingRepo) ListEvaluationsByAddress(ctx context.Context, address string, limit int) ([]*domain.Evaluation, error) {
	return nil, nil
}

func (r *recordingRepo) GetScore(ctx context.Context, ref string) (*domain.ScoreEntry, error) {
	return nil, domain.ErrNotFound
}

func (r *recordingRepo) ApplyScoreUpdate(ctx context.Context, ref string, isFraud bool, confidence float64) (*domain.ScoreEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoreUpdates = append(r.scoreUpdates, fmt.Sprintf("%s/%t", ref, isFraud))
	return &domain.ScoreEntry{Reference: ref}, nil
}

func (r *recordingRepo) SaveReferenceVectors(ctx context.Context, vs []*domain.ReferenceVector) error {
	return nil
}

func (r *recordingRepo) ListReferenceVectors(ctx context.Context) ([]*domain.ReferenceVector, error) {
	return nil, nil
}

func (r *recordingRepo) SaveScreeningRule(ctx context.Context, rule *domain.ScreeningRule) error {
	return nil
}

func (r *recordingRepo) ListScreeningRules(ctx context.Context) ([]*domain.ScreeningRule, error) {
	return nil, nil
}

func (r *recordingRepo) Ping(ctx context.Context) error { return nil }
func (r *recordingRepo) Close() error                   { return nil }

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string, h domain.MessageHandler) (domain.Subscription, error) {
	return nil, nil
}

func (b *recordingBus) Ping(ctx context.Context) error { return nil }
func (b *recordingBus) Close() error                   { return nil }

func fraudActivity() *domain.AccountActivity {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	a := &domain.AccountActivity{Balance: 0.001}
	for i := 0; i < 60; i++ {
		a.Received = append(a.Received, domain.TransferRecord{
			Direction:    domain.DirectionReceived,
			Category:     domain.CategoryExternal,
			Value:        5.0,
			Counterparty: fmt.Sprintf("0xsrc%04d", i),
			Timestamp:    base.Add(time.Duration(i*400) * time.Second),
		})
		a.Sent = append(a.Sent, domain.TransferRecord{
			Direction:    domain.DirectionSent,
			Category:     domain.CategoryExternal,
			Value:        5.0,
			Counterparty: fmt.Sprintf("0xdst%04d", i),
			Timestamp:    base.Add(time.Duration(i*400+60) * time.Second),
		})
	}
	return a
}

func newTestEngine(t *testing.T, reasoner domain.ReasoningOracle, seedFlag int) (*Engine, *recordingRepo, *recordingBus, *index.Memory) {
	t.Helper()
	cfg := domain.DefaultConfig()
	repo := &recordingRepo{}
	bus := &recordingBus{}
	idx := index.NewMemory()
	scalers := features.NewScalerStore()
	eng := New(cfg, &stubLedger{activity: fraudActivity()}, nil, idx, repo, bus,
		reasoner, scalers, detect.NewSuite(nil, nil), nil)

	// Seed a labeled population through the same path production uses
	// so the scaler is fitted.
	refs := make([]*domain.ReferenceVector, 20)
	for i := range refs {
		v := make([]float64, features.Dimensions)
		for j := range v {
			v[j] = float64((i*7+j)%13) / 13
		}
		refs[i] = &domain.ReferenceVector{
			Reference: fmt.Sprintf("0xref%02d", i),
			Flag:      seedFlag,
			Vector:    v,
		}
	}
	if _, err := eng.LoadReference(context.Background(), refs); err != nil {
		t.Fatalf("load reference: %v", err)
	}
	return eng, repo, bus, idx
}

func TestScore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty reference population surfaces no-evidence", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		eng := New(cfg, &stubLedger{activity: fraudActivity()}, nil, index.NewMemory(),
			nil, nil, nil, features.NewScalerStore(), detect.NewSuite(nil, nil), nil)
		_, err := eng.Score(ctx, "0xabc")
		if !errors.Is(err, domain.ErrNoEvidence) {
			t.Fatalf("err = %v, want ErrNoEvidence", err)
		}
	})

	t.Run("fraud outcome persists, updates score and alerts", func(t *testing.T) {
		reasoner := &stubOracle{resp: &domain.OracleResponse{
			FinalDecision: "Fraud", Confidence: 0.85, Reasoning: "mixer profile",
		}}
		eng, repo, bus, _ := newTestEngine(t, reasoner, 1)

		res, err := eng.Score(ctx, "0xsuspect")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if res.Evaluation.Decision.Label != domain.LabelFraud {
			t.Fatalf("label = %s, want Fraud", res.Evaluation.Decision.Label)
		}
		if len(res.TopNeighbors) > 5 {
			t.Errorf("top neighbors = %d, want <= 5", len(res.TopNeighbors))
		}
		if len(res.Features) == 0 {
			t.Error("expected named feature map in result")
		}
		if len(repo.evaluations) != 1 {
			t.Fatalf("evaluations persisted = %d, want 1", len(repo.evaluations))
		}
		if len(repo.scoreUpdates) != 1 || repo.scoreUpdates[0] != "0xsuspect/true" {
			t.Errorf("score updates = %v, want [0xsuspect/true]", repo.scoreUpdates)
		}
		if len(bus.topics) != 2 {
			t.Fatalf("published topics = %v, want completed + alert", bus.topics)
		}
		if bus.topics[0] != domain.TopicScoreCompleted || bus.topics[1] != domain.TopicScoreAlert {
			t.Errorf("topics = %v", bus.topics)
		}
	})

	t.Run("oracle failure falls back to voting and never raises", func(t *testing.T) {
		eng, repo, _, _ := newTestEngine(t, &stubOracle{err: errors.New("oracle down")}, 1)

		res, err := eng.Score(ctx, "0xsuspect")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if !res.Evaluation.Metadata.OracleFellBack {
			t.Error("expected fallback flag in metadata")
		}
		switch res.Evaluation.Decision.Label {
		case domain.LabelFraud, domain.LabelNotFraud, domain.LabelUndecided:
		default:
			t.Errorf("invalid label %q", res.Evaluation.Decision.Label)
		}
		_ = repo
	})

	t.Run("undecided outcome skips the score update", func(t *testing.T) {
		reasoner := &stubOracle{resp: &domain.OracleResponse{
			FinalDecision: "Undecided", Confidence: 0.4,
		}}
		eng, repo, bus, _ := newTestEngine(t, reasoner, 1)

		if _, err := eng.Score(ctx, "0xmaybe"); err != nil {
			t.Fatalf("score: %v", err)
		}
		if len(repo.scoreUpdates) != 0 {
			t.Errorf("score updates = %v, want none for Undecided", repo.scoreUpdates)
		}
		if len(repo.evaluations) != 1 {
			t.Errorf("evaluation should still be persisted, got %d", len(repo.evaluations))
		}
		for _, topic := range bus.topics {
			if topic == domain.TopicScoreAlert {
				t.Error("no alert expected for Undecided")
			}
		}
	})

	t.Run("nil oracle decides by fallback voting", func(t *testing.T) {
		eng, _, _, _ := newTestEngine(t, nil, 0)
		res, err := eng.Score(ctx, "0xsomeone")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if !res.Evaluation.Metadata.OracleFellBack {
			t.Error("expected fallback flag with nil oracle")
		}
	})

	t.Run("ledger failure surfaces", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		idx := index.NewMemory()
		if err := idx.Upsert(ctx, []*domain.ReferenceVector{
			{Reference: "0xref", Flag: 1, Vector: make([]float64, features.Dimensions)},
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		eng := New(cfg, &stubLedger{err: errors.New("rpc down")}, nil, idx,
			nil, nil, nil, features.NewScalerStore(), detect.NewSuite(nil, nil), nil)
		if _, err := eng.Score(ctx, "0xabc"); err == nil {
			t.Fatal("expected fetch error")
		}
	})
}

func TestLoadReference(t *testing.T) {
	ctx := context.Background()

	t.Run("fits scaler and seeds the index", func(t *testing.T) {
		eng, _, _, idx := newTestEngine(t, nil, 1)
		n, err := idx.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 20 {
			t.Errorf("index count = %d, want 20", n)
		}
		if eng.scalers.Current() == nil {
			t.Error("expected fitted scaler")
		}
	})

	t.Run("empty batch errors", func(t *testing.T) {
		eng, _, _, _ := newTestEngine(t, nil, 1)
		if _, err := eng.LoadReference(ctx, nil); err == nil {
			t.Error("expected error for empty batch")
		}
	})

	t.Run("batched loads share one coordinate space", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		idx := index.NewMemory()
		eng := New(cfg, &stubLedger{activity: fraudActivity()}, nil, idx,
			nil, nil, nil, features.NewScalerStore(), detect.NewSuite(nil, nil), nil)

		batch := func(start, n int, scale float64) []*domain.ReferenceVector {
			refs := make([]*domain.ReferenceVector, n)
			for i := range refs {
				v := make([]float64, features.Dimensions)
				for j := range v {
					v[j] = scale * float64(((start+i)*7+j)%13)
				}
				refs[i] = &domain.ReferenceVector{
					Reference: fmt.Sprintf("0xpop%02d", start+i),
					Flag:      (start + i) % 2,
					Vector:    v,
				}
			}
			return refs
		}

		first := batch(0, 10, 1)
		if _, err := eng.LoadReference(ctx, first); err != nil {
			t.Fatalf("first load: %v", err)
		}
		// A second batch on a wildly different scale shifts the fitted
		// statistics; rows from the first load must be renormalized
		// under the new version, not left in the old space.
		if _, err := eng.LoadReference(ctx, batch(10, 10, 1000)); err != nil {
			t.Fatalf("second load: %v", err)
		}

		query := eng.scalers.Current().Normalize(first[3].Vector)
		matches, err := idx.Search(ctx, query, 1)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 1 || matches[0].Reference != first[3].Reference {
			t.Fatalf("nearest = %+v, want %s", matches, first[3].Reference)
		}
		if matches[0].Distance > 1e-9 {
			t.Errorf("distance to own reference row = %v, want ~0", matches[0].Distance)
		}

		n, err := idx.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 20 {
			t.Errorf("index count = %d, want 20", n)
		}
	})

	t.Run("refit bumps the scaler version", func(t *testing.T) {
		eng, _, _, _ := newTestEngine(t, nil, 1)
		v1 := eng.scalers.Current().Version
		refs := []*domain.ReferenceVector{
			{Reference: "0xnew", Flag: 0, Vector: make([]float64, features.Dimensions)},
			{Reference: "0xnew2", Flag: 1, Vector: make([]float64, features.Dimensions)},
		}
		if _, err := eng.LoadReference(ctx, refs); err != nil {
			t.Fatalf("reload: %v", err)
		}
		if eng.scalers.Current().Version <= v1 {
			t.Errorf("version = %d, want > %d", eng.scalers.Current().Version, v1)
		}
	})
}
