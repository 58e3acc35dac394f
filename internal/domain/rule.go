package domain

import "time"

// ScreeningRule is an operator-defined CEL expression evaluated over the
// named feature map. A rule that evaluates true contributes a finding
// with its tag and weight alongside the built-in detectors.
type ScreeningRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`

	// Expression is a CEL boolean expression. Feature values are bound
	// under `f`, e.g. `f["Sent tnx"] > 100.0 && f["total ether balance"] < 0.01`.
	Expression string `json:"expression"`

	// Tag reported when the rule fires.
	Tag string `json:"tag"`

	// Weight in [0,1] added to the screening risk level when the rule
	// fires. The screening risk is capped at 1.
	Weight float64 `json:"weight"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
