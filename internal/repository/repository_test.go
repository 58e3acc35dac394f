package repository

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		eval := &domain.Evaluation{
			ID:        "eval-001",
			Address:   "0xabc",
			Timestamp: time.Now().UTC(),
			Decision: domain.ScoreDecision{
				Label:       domain.LabelFraud,
				Confidence:  0.85,
				Reasoning:   "mixer profile",
				RiskFactors: []string{"mixer_value_pattern"},
			},
			Neighbors: domain.NeighborSummary{
				FraudProbability: 0.8,
				FraudCount:       4,
				TotalCount:       5,
				Confidence:       0.7,
			},
			Findings: domain.FindingSet{
				Findings: []domain.PatternFinding{
					{Detector: domain.DetectorValue, Tags: []domain.Tag{domain.TagMixerValuePattern}, RiskLevel: 0.5},
				},
				BehavioralRisk: 0.42,
			},
			Metadata: domain.EvaluationMetadata{TraceID: "trace-001", EngineVersion: "1.0.0"},
		}

		if err := repo.SaveEvaluation(ctx, eval); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, eval.ID)
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}
		if retrieved.Address != eval.Address {
			t.Errorf("expected address %s, got %s", eval.Address, retrieved.Address)
		}
		if retrieved.Decision.Label != domain.LabelFraud {
			t.Errorf("expected label Fraud, got %s", retrieved.Decision.Label)
		}
		if retrieved.Decision.Confidence != eval.Decision.Confidence {
			t.Errorf("expected confidence %.2f, got %.2f", eval.Decision.Confidence, retrieved.Decision.Confidence)
		}
		if retrieved.Neighbors.FraudCount != 4 {
			t.Errorf("expected 4 fraud neighbors, got %d", retrieved.Neighbors.FraudCount)
		}
		if !retrieved.Findings.Has(domain.TagMixerValuePattern) {
			t.Error("expected mixer tag to round-trip")
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("expected trace id, got %q", retrieved.Metadata.TraceID)
		}
	})

	t.Run("ListEvaluationsByAddress", func(t *testing.T) {
		base := time.Now().UTC()
		for i, id := range []string{"eval-010", "eval-011", "eval-012"} {
			eval := &domain.Evaluation{
				ID:        id,
				Address:   "0xrepeat",
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Decision:  domain.ScoreDecision{Label: domain.LabelNotFraud, Confidence: 0.6},
			}
			if err := repo.SaveEvaluation(ctx, eval); err != nil {
				t.Fatalf("SaveEvaluation failed: %v", err)
			}
		}

		evals, err := repo.ListEvaluationsByAddress(ctx, "0xrepeat", 2)
		if err != nil {
			t.Fatalf("ListEvaluationsByAddress failed: %v", err)
		}
		if len(evals) != 2 {
			t.Fatalf("expected 2 evaluations, got %d", len(evals))
		}
		if evals[0].ID != "eval-012" {
			t.Errorf("expected newest first, got %s", evals[0].ID)
		}
	})

	t.Run("RejectsInvalidEvaluation", func(t *testing.T) {
		err := repo.SaveEvaluation(ctx, &domain.Evaluation{ID: "", Address: "0xabc"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetEvaluation(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetScore(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestScoreLedger(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("FirstFraudUpdateStartsFromZero", func(t *testing.T) {
		entry, err := repo.ApplyScoreUpdate(ctx, "0xledger", true, 0.8)
		if err != nil {
			t.Fatalf("ApplyScoreUpdate failed: %v", err)
		}
		if math.Abs(entry.Score-0.08) > 1e-9 {
			t.Errorf("expected score 0.08, got %v", entry.Score)
		}
		if entry.LastResult != "fraud" {
			t.Errorf("expected last_result fraud, got %s", entry.LastResult)
		}
	})

	t.Run("NotFraudMovesTowardZero", func(t *testing.T) {
		entry, err := repo.ApplyScoreUpdate(ctx, "0xledger", false, 0.5)
		if err != nil {
			t.Fatalf("ApplyScoreUpdate failed: %v", err)
		}
		if math.Abs(entry.Score-0.03) > 1e-9 {
			t.Errorf("expected score 0.03, got %v", entry.Score)
		}
		if entry.LastResult != "not_fraud" {
			t.Errorf("expected last_result not_fraud, got %s", entry.LastResult)
		}
	})

	t.Run("ScoreClampsAtBounds", func(t *testing.T) {
		for i := 0; i < 15; i++ {
			if _, err := repo.ApplyScoreUpdate(ctx, "0xclamp", true, 1.0); err != nil {
				t.Fatalf("ApplyScoreUpdate failed: %v", err)
			}
		}
		entry, err := repo.GetScore(ctx, "0xclamp")
		if err != nil {
			t.Fatalf("GetScore failed: %v", err)
		}
		if entry.Score != 1.0 {
			t.Errorf("expected score clamped to 1.0, got %v", entry.Score)
		}

		if _, err := repo.ApplyScoreUpdate(ctx, "0xfloor", false, 1.0); err != nil {
			t.Fatalf("ApplyScoreUpdate failed: %v", err)
		}
		floor, err := repo.GetScore(ctx, "0xfloor")
		if err != nil {
			t.Fatalf("GetScore failed: %v", err)
		}
		if floor.Score != 0.0 {
			t.Errorf("expected score clamped to 0.0, got %v", floor.Score)
		}
	})

	t.Run("CreatedAtSurvivesUpdates", func(t *testing.T) {
		first, err := repo.ApplyScoreUpdate(ctx, "0xcreated", true, 0.5)
		if err != nil {
			t.Fatalf("ApplyScoreUpdate failed: %v", err)
		}
		second, err := repo.ApplyScoreUpdate(ctx, "0xcreated", true, 0.5)
		if err != nil {
			t.Fatalf("ApplyScoreUpdate failed: %v", err)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("created_at changed: %v vs %v", first.CreatedAt, second.CreatedAt)
		}
	})

	t.Run("RequiresReference", func(t *testing.T) {
		if _, err := repo.ApplyScoreUpdate(ctx, "", true, 0.5); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestReferenceVectors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	vectors := []*domain.ReferenceVector{
		{Reference: "0xref-a", Flag: 1, Vector: []float64{0.1, 0.2, 0.3}},
		{Reference: "0xref-b", Flag: 0, Vector: []float64{1.0, 2.0, 3.0}},
	}

	t.Run("SaveAndList", func(t *testing.T) {
		if err := repo.SaveReferenceVectors(ctx, vectors); err != nil {
			t.Fatalf("SaveReferenceVectors failed: %v", err)
		}

		listed, err := repo.ListReferenceVectors(ctx)
		if err != nil {
			t.Fatalf("ListReferenceVectors failed: %v", err)
		}
		if len(listed) != 2 {
			t.Fatalf("expected 2 vectors, got %d", len(listed))
		}
		if listed[0].Reference != "0xref-a" || listed[0].Flag != 1 {
			t.Errorf("unexpected first vector: %+v", listed[0])
		}
		if len(listed[1].Vector) != 3 || listed[1].Vector[2] != 3.0 {
			t.Errorf("vector did not round-trip: %v", listed[1].Vector)
		}
	})

	t.Run("UpsertReplacesByReference", func(t *testing.T) {
		if err := repo.SaveReferenceVectors(ctx, []*domain.ReferenceVector{
			{Reference: "0xref-a", Flag: 0, Vector: []float64{9, 9, 9}},
		}); err != nil {
			t.Fatalf("SaveReferenceVectors failed: %v", err)
		}

		listed, err := repo.ListReferenceVectors(ctx)
		if err != nil {
			t.Fatalf("ListReferenceVectors failed: %v", err)
		}
		if len(listed) != 2 {
			t.Fatalf("expected 2 vectors after upsert, got %d", len(listed))
		}
		if listed[0].Flag != 0 || listed[0].Vector[0] != 9 {
			t.Errorf("expected replaced row, got %+v", listed[0])
		}
	})

	t.Run("EmptyBatchRejected", func(t *testing.T) {
		if err := repo.SaveReferenceVectors(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestScreeningRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.ScreeningRule{
		ID:          "rule-001",
		Name:        "high volume low balance",
		Description: "busy account holding dust",
		Expression:  `f["Sent tnx"] > 100.0 && f["total ether balance"] < 0.01`,
		Tag:         "custom_dust_churn",
		Weight:      0.4,
		Enabled:     true,
	}

	t.Run("SaveAndList", func(t *testing.T) {
		if err := repo.SaveScreeningRule(ctx, rule); err != nil {
			t.Fatalf("SaveScreeningRule failed: %v", err)
		}

		rules, err := repo.ListScreeningRules(ctx)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
		if rules[0].Expression != rule.Expression {
			t.Errorf("expression did not round-trip: %q", rules[0].Expression)
		}
		if !rules[0].Enabled {
			t.Error("expected enabled rule")
		}
	})

	t.Run("UpsertUpdatesInPlace", func(t *testing.T) {
		updated := *rule
		updated.Weight = 0.7
		updated.Enabled = false

		if err := repo.SaveScreeningRule(ctx, &updated); err != nil {
			t.Fatalf("SaveScreeningRule failed: %v", err)
		}

		rules, err := repo.ListScreeningRules(ctx)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule after upsert, got %d", len(rules))
		}
		if rules[0].Weight != 0.7 || rules[0].Enabled {
			t.Errorf("expected updated rule, got %+v", rules[0])
		}
	})

	t.Run("RejectsMissingExpression", func(t *testing.T) {
		err := repo.SaveScreeningRule(ctx, &domain.ScreeningRule{ID: "rule-002"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
