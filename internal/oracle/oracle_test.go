package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestParseVerdict(t *testing.T) {
	t.Run("bare JSON", func(t *testing.T) {
		r, err := ParseVerdict([]byte(`{"final_decision":"Fraud","confidence":0.8,"reasoning":"x"}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if r.Label() != domain.LabelFraud || r.Confidence != 0.8 {
			t.Errorf("got %+v", r)
		}
	})

	t.Run("json fence inside content envelope", func(t *testing.T) {
		raw := []byte(`{"content":"Here is my analysis.\n` + "```json" + `\n{\"final_decision\":\"Not_Fraud\",\"confidence\":0.6}\n` + "```" + `\nDone."}`)
		r, err := ParseVerdict(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if r.Label() != domain.LabelNotFraud {
			t.Errorf("label = %s, want NotFraud", r.Label())
		}
	})

	t.Run("plain fence", func(t *testing.T) {
		raw := []byte(`{"content":"` + "```" + `\n{\"final_decision\":\"Undecided\",\"confidence\":0.4}\n` + "```" + `"}`)
		r, err := ParseVerdict(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if r.Label() != domain.LabelUndecided {
			t.Errorf("label = %s, want Undecided", r.Label())
		}
	})

	t.Run("unknown decision maps to undecided", func(t *testing.T) {
		r, err := ParseVerdict([]byte(`{"final_decision":"maybe?","confidence":0.9}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if r.Label() != domain.LabelUndecided {
			t.Errorf("label = %s, want Undecided", r.Label())
		}
	})

	t.Run("garbage errors", func(t *testing.T) {
		if _, err := ParseVerdict([]byte("not json at all")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestClientDecide(t *testing.T) {
	cfg := func(url string) domain.OracleConfig {
		return domain.OracleConfig{Endpoint: url, TimeoutSeconds: 5, RetryBackoffMs: 10}
	}

	t.Run("successful call", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"final_decision":"Fraud","confidence":0.75,"reasoning":"mixer profile"}`))
		}))
		defer srv.Close()

		c, err := NewClient(cfg(srv.URL), nil)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		resp, err := c.Decide(context.Background(), &domain.OracleRequest{Address: "0xabc"})
		if err != nil {
			t.Fatalf("decide: %v", err)
		}
		if resp.Label() != domain.LabelFraud {
			t.Errorf("label = %s, want Fraud", resp.Label())
		}
	})

	t.Run("retries once on transport failure", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"final_decision":"Not_Fraud","confidence":0.6}`))
		}))
		defer srv.Close()

		c, err := NewClient(cfg(srv.URL), nil)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		resp, err := c.Decide(context.Background(), &domain.OracleRequest{Address: "0xabc"})
		if err != nil {
			t.Fatalf("decide: %v", err)
		}
		if resp.Label() != domain.LabelNotFraud {
			t.Errorf("label = %s, want NotFraud", resp.Label())
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("no retry on parse failure", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte("definitely not json"))
		}))
		defer srv.Close()

		c, err := NewClient(cfg(srv.URL), nil)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if _, err := c.Decide(context.Background(), &domain.OracleRequest{Address: "0xabc"}); err == nil {
			t.Fatal("expected parse error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1 (parse failures must not retry)", calls.Load())
		}
	})

	t.Run("fails after second transport failure", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c, err := NewClient(cfg(srv.URL), nil)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if _, err := c.Decide(context.Background(), &domain.OracleRequest{Address: "0xabc"}); err == nil {
			t.Fatal("expected transport error")
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("empty endpoint is rejected", func(t *testing.T) {
		if _, err := NewClient(domain.OracleConfig{}, nil); err == nil {
			t.Error("expected error for empty endpoint")
		}
	})
}

func TestFallbackVote(t *testing.T) {
	thresholds := domain.DefaultThresholds()

	cases := []struct {
		name      string
		neighbors domain.NeighborSummary
		findings  domain.FindingSet
		report    domain.ValidationReport
		want      domain.Label
	}{
		{
			name:      "strong fraud signals vote fraud",
			neighbors: domain.NeighborSummary{FraudProbability: 0.85},
			findings:  domain.FindingSet{BehavioralRisk: 0.7},
			want:      domain.LabelFraud,
		},
		{
			name:      "strong legitimate signals vote not fraud",
			neighbors: domain.NeighborSummary{FraudProbability: 0.1},
			findings:  domain.FindingSet{BehavioralRisk: 0.1},
			want:      domain.LabelNotFraud,
		},
		{
			name:      "mixed signals stay undecided",
			neighbors: domain.NeighborSummary{FraudProbability: 0.5},
			findings:  domain.FindingSet{BehavioralRisk: 0.5},
			want:      domain.LabelUndecided,
		},
		{
			name:      "archetype tips two fraud votes over the line",
			neighbors: domain.NeighborSummary{FraudProbability: 0.85},
			findings:  domain.FindingSet{BehavioralRisk: 0.5},
			report:    domain.ValidationReport{MixerProfile: true},
			want:      domain.LabelFraud,
		},
		{
			name:      "alignment backs the legitimate side",
			neighbors: domain.NeighborSummary{FraudProbability: 0.2},
			findings:  domain.FindingSet{BehavioralRisk: 0.5},
			report:    domain.ValidationReport{Alignment: true},
			want:      domain.LabelNotFraud,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FallbackVote(thresholds, tc.neighbors, tc.findings, tc.report)
			if got.Label != tc.want {
				t.Errorf("label = %s, want %s", got.Label, tc.want)
			}
			if got.Label == domain.LabelUndecided && got.Confidence != 0.4 {
				t.Errorf("undecided confidence = %v, want 0.4", got.Confidence)
			}
			if got.Confidence > thresholds.VoteMaxConf && got.Label != domain.LabelUndecided {
				t.Errorf("confidence = %v exceeds cap", got.Confidence)
			}
		})
	}
}
