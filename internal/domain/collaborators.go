package domain

import (
	"context"
	"errors"
)

// Sentinel errors shared across packages.
var (
	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrNoEvidence is returned when the reference population is empty:
	// without labeled neighbors no classification is possible.
	ErrNoEvidence = errors.New("no reference evidence available")
)

// LedgerClient fetches raw account activity from the chain.
// Absence of transfers is valid input, not an error.
type LedgerClient interface {
	FetchActivity(ctx context.Context, address string) (*AccountActivity, error)
}

// VectorIndex is the similarity search collaborator over the labeled
// reference population.
type VectorIndex interface {
	// Search returns up to k neighbors ordered by ascending distance.
	// An empty result means no evidence, not "no fraud".
	Search(ctx context.Context, vector []float64, k int) ([]Neighbor, error)

	// Upsert adds or replaces reference vectors in batch.
	Upsert(ctx context.Context, vectors []*ReferenceVector) error

	// Count returns the reference population size.
	Count(ctx context.Context) (int, error)
}

// OracleRequest is the structured evidence summary posted to the
// reasoning oracle.
type OracleRequest struct {
	Address          string             `json:"address"`
	Features         map[string]float64 `json:"features"`
	Neighbors        NeighborSummary    `json:"neighbors"`
	Findings         FindingSet         `json:"findings"`
	Validation       ValidationReport   `json:"validation"`
	Model            string             `json:"model,omitempty"`
}

// OracleResponse is the oracle's structured verdict.
type OracleResponse struct {
	FinalDecision string   `json:"final_decision"` // "Fraud", "Not_Fraud" or "Undecided"
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	RiskFactors   []string `json:"risk_factors"`
	EdgeCases     []string `json:"edge_cases_detected"`
}

// Label converts the oracle's tri-state verdict field. Anything it did
// not answer cleanly counts as Undecided.
func (r *OracleResponse) Label() Label {
	switch r.FinalDecision {
	case "Fraud":
		return LabelFraud
	case "Not_Fraud", "NotFraud":
		return LabelNotFraud
	default:
		return LabelUndecided
	}
}

// ReasoningOracle is the external natural-language reasoning collaborator.
// Implementations must bound the call and retry at most once, on
// transport failure only.
type ReasoningOracle interface {
	Decide(ctx context.Context, req *OracleRequest) (*OracleResponse, error)
}
