package domain

import (
	"time"
)

// Label is the tri-state fraud classification.
type Label string

const (
	LabelFraud     Label = "Fraud"
	LabelNotFraud  Label = "NotFraud"
	LabelUndecided Label = "Undecided"
)

// Neighbor is one labeled reference-population match from the vector index.
type Neighbor struct {
	Reference string  `json:"reference"`
	Flag      int     `json:"flag"` // 1 = fraud, 0 = legitimate
	Distance  float64 `json:"distance"`
}

// NeighborSummary aggregates a neighbor list into fraud evidence.
// An empty neighbor list yields the no-evidence sentinel
// (probability 0.5, confidence 0) rather than "not fraud".
type NeighborSummary struct {
	FraudProbability  float64 `json:"fraudProbability"`
	SimpleProbability float64 `json:"simpleProbability"`
	FraudCount        int     `json:"fraudCount"`
	NonFraudCount     int     `json:"nonFraudCount"`
	TotalCount        int     `json:"totalCount"`
	AvgDistance       float64 `json:"avgDistance"`
	Confidence        float64 `json:"confidence"`
}

// Detector names for the five built-in pattern dimensions.
const (
	DetectorTemporal   = "temporal"
	DetectorValue      = "value"
	DetectorNetwork    = "network"
	DetectorToken      = "token"
	DetectorBehavioral = "behavioral"
	DetectorScreening  = "screening" // operator-defined CEL rules
)

// Tag identifies a detected behavioral pattern. Tags are an enumerated
// type checked by set membership, never by substring search.
type Tag string

const (
	// Temporal
	TagBurstActivity     Tag = "burst_activity"
	TagRegularInterval   Tag = "regular_interval"
	TagNightActivity     Tag = "night_activity"
	TagShortLifespanBusy Tag = "short_lifespan_high_volume"

	// Value
	TagRoundValues           Tag = "frequent_round_values"
	TagMatchingValues        Tag = "matching_send_receive_values"
	TagMixerValuePattern     Tag = "mixer_value_pattern"
	TagConsistentSmallValues Tag = "consistent_small_values"

	// Network
	TagHighAddressDiversity Tag = "high_address_diversity"
	TagOneTimeInteractions  Tag = "one_time_interactions"
	TagCircularFlow         Tag = "circular_flow"
	TagDenylistedContact    Tag = "denylisted_contact"

	// Token
	TagTokenDiversity   Tag = "excessive_token_diversity"
	TagTokenWashTrading Tag = "token_wash_trading"
	TagHighNFTActivity  Tag = "high_nft_activity"

	// Behavioral
	TagDustAccount         Tag = "dust_account_high_activity"
	TagImmediateForwarding Tag = "immediate_forwarding"
	TagAsymmetricFlow      Tag = "asymmetric_flow"
	TagZeroValueSpam       Tag = "zero_value_spam"
)

// PatternFinding is the output of one detector: the tags it triggered and
// its risk level, already clamped to [0,1].
type PatternFinding struct {
	Detector  string  `json:"detector"`
	Tags      []Tag   `json:"tags"`
	RiskLevel float64 `json:"riskLevel"`
}

// Has reports whether the finding triggered the given tag.
func (f *PatternFinding) Has(tag Tag) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FindingSet is the combined output of the detector suite.
type FindingSet struct {
	Findings []PatternFinding `json:"findings"`

	// BehavioralRisk is the weighted combination of the five detector
	// risk levels, in [0,1].
	BehavioralRisk float64 `json:"behavioralRisk"`
}

// Has reports whether any finding triggered the given tag.
func (s *FindingSet) Has(tags ...Tag) bool {
	for _, f := range s.Findings {
		for _, tag := range tags {
			if f.Has(tag) {
				return true
			}
		}
	}
	return false
}

// RiskLevel returns the risk level reported by the named detector, or 0.
func (s *FindingSet) RiskLevel(detector string) float64 {
	for _, f := range s.Findings {
		if f.Detector == detector {
			return f.RiskLevel
		}
	}
	return 0
}

// AllTags returns every triggered tag across all findings, in detector order.
func (s *FindingSet) AllTags() []Tag {
	var tags []Tag
	for _, f := range s.Findings {
		tags = append(tags, f.Tags...)
	}
	return tags
}

// ValidationReport is the CrossValidator's agreement assessment.
type ValidationReport struct {
	Alignment            bool    `json:"alignment"`
	ConfidenceFloorMet   bool    `json:"confidenceFloorMet"`
	MultipleRiskSignals  bool    `json:"multipleRiskSignals"`
	MixerProfile         bool    `json:"mixerProfile"`
	WashTradingProfile   bool    `json:"washTradingProfile"`
	BotProfile           bool    `json:"botProfile"`
	OverallScore         float64 `json:"overallScore"`
	QualityTier          string  `json:"qualityTier"` // "low", "medium", "high"
}

// Quality tiers for ValidationReport.QualityTier.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// ScoreDecision is the final fused classification for one scoring request.
type ScoreDecision struct {
	Label           Label            `json:"label"`
	Confidence      float64          `json:"confidence"`
	Reasoning       string           `json:"reasoning"`
	RiskFactors     []string         `json:"riskFactors"`
	EdgeCases       []string         `json:"edgeCases"`
	BehavioralScore float64          `json:"behavioralScore"`
	Validation      ValidationReport `json:"validation"`
}

// Evaluation is a persisted scoring run: the decision plus the evidence
// that produced it.
type Evaluation struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Reference string    `json:"reference,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Decision  ScoreDecision   `json:"decision"`
	Neighbors NeighborSummary `json:"neighbors"`
	Findings  FindingSet      `json:"findings"`

	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata records per-stage processing information.
type EvaluationMetadata struct {
	TraceID       string `json:"traceId"`
	FetchMs       int64  `json:"fetchMs"`
	FeatureMs     int64  `json:"featureMs"`
	DetectMs      int64  `json:"detectMs"`
	SearchMs      int64  `json:"searchMs"`
	OracleMs      int64  `json:"oracleMs"`
	TotalMs       int64  `json:"totalMs"`
	OracleFellBack bool  `json:"oracleFellBack"`
	EngineVersion string `json:"engineVersion"`
}

// ScoreEntry is one row of the additive scoring ledger maintained by the
// persistence collaborator.
type ScoreEntry struct {
	Reference      string    `json:"reference"`
	Score          float64   `json:"score"`
	LastResult     string    `json:"lastResult"`
	LastConfidence float64   `json:"lastConfidence"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
